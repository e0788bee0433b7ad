package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xylemhq/xylem/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the episodic audit trail",
	Long: `Inspect the episodic event log that records every
reconciliation: summaries, detected conflicts, and imports.

By default shows episode counts by kind plus the most recent
reconciliation records.

Examples:
  xylem audit
  xylem audit --kind conflict_detected
  xylem audit --kind reconciliation_summary --limit 20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		limit, _ := cmd.Flags().GetInt("limit")
		return runAuditLog(kind, limit)
	},
}

func init() {
	auditCmd.Flags().String("kind", "", "Only show episodes of this kind")
	auditCmd.Flags().Int("limit", 10, "Maximum records to show")
}

func runAuditLog(kind string, limit int) error {
	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()

	if kind == "" {
		counts, err := s.CountEpisodes(ctx)
		if err != nil {
			return fmt.Errorf("failed to count episodes: %w", err)
		}

		fmt.Println("📜 Xylem Audit Trail")
		fmt.Println()
		if len(counts) == 0 {
			fmt.Println("  No episodes recorded yet.")
			return nil
		}

		kinds := make([]string, 0, len(counts))
		for k := range counts {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Printf("  %-28s %d\n", k, counts[k])
		}
		fmt.Println()
		kind = audit.KindConflictDetected
		fmt.Printf("Recent %s records:\n", kind)
	}

	episodes, err := s.ListEpisodes(ctx, kind, limit)
	if err != nil {
		return fmt.Errorf("failed to list episodes: %w", err)
	}
	if len(episodes) == 0 {
		fmt.Println("  (none)")
		return nil
	}

	for _, ep := range episodes {
		fmt.Printf("\n  %s  %s\n", ep.CreatedAt.Format("2006-01-02 15:04:05"), ep.Kind)
		fmt.Printf("  %s\n", indentJSON(ep.Payload, "  "))
	}
	return nil
}

// indentJSON pretty-prints a payload for terminal output, falling back
// to the raw bytes if it is not valid JSON.
func indentJSON(raw []byte, prefix string) string {
	var buf strings.Builder
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	enc := json.NewEncoder(&buf)
	enc.SetIndent(prefix, "  ")
	if err := enc.Encode(v); err != nil {
		return string(raw)
	}
	return strings.TrimRight(buf.String(), "\n")
}
