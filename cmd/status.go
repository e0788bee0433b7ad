package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	statusTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212"))

	statusLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241")).
				Width(18)

	statusValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252"))

	statusOKStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("78"))

	statusWarnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	statusBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("241")).
			Padding(0, 2)
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show memory statistics",
	Long: `Show current memory statistics: canonical facts, semantic
documents, episodes, database size, and index availability.

Examples:
  xylem status`,
	RunE: func(cmd *cobra.Command, args []string) error { return runStatus() },
}

func runStatus() error {
	s, cfg, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()

	facts, err := s.CountFacts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count facts: %w", err)
	}
	docs, err := s.CountDocuments(ctx)
	if err != nil {
		return fmt.Errorf("failed to count documents: %w", err)
	}
	episodes, err := s.CountEpisodes(ctx)
	if err != nil {
		return fmt.Errorf("failed to count episodes: %w", err)
	}
	totalEpisodes := 0
	for _, n := range episodes {
		totalEpisodes += n
	}

	size, _ := s.Size()
	lastActivity := "never"
	if t, err := s.LastActivity(ctx); err == nil && !t.IsZero() {
		lastActivity = t.Format("2006-01-02 15:04:05")
	}

	vecStatus := statusOKStyle.Render("available")
	if !s.IndexAvailable() {
		vecStatus = statusWarnStyle.Render("unavailable (linear-scan fallback)")
	}

	row := func(label, value string) string {
		return statusLabelStyle.Render(label) + statusValueStyle.Render(value)
	}

	lines := []string{
		statusTitleStyle.Render("Xylem Memory Status"),
		"",
		row("Canonical facts", fmt.Sprintf("%d", facts)),
		row("Documents", fmt.Sprintf("%d", docs)),
		row("Episodes", fmt.Sprintf("%d", totalEpisodes)),
		row("Database size", size),
		row("Vector index", vecStatus),
		row("Last activity", lastActivity),
		row("Data directory", cfg.DataDir),
	}

	fmt.Println(statusBoxStyle.Render(strings.Join(lines, "\n")))
	return nil
}
