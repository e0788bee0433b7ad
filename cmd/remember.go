package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var rememberCmd = &cobra.Command{
	Use:   "remember <content>",
	Short: "Store a semantic memory",
	Long: `Store a free-text memory in the semantic index. Unlike canonical
facts, semantic memories are fuzzy: they surface through recall and lose
every conflict with a canonical fact.

Examples:
  xylem remember "the user mentioned they prefer dark themes"
  xylem remember "goes by Marcus with close friends" --key displayName
  xylem remember "works at a startup" --tags "career,work"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")
		tagsStr, _ := cmd.Flags().GetString("tags")
		return runRemember(args[0], key, tagsStr)
	},
}

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Search semantic memories",
	Long: `Search the semantic index by similarity.

Examples:
  xylem recall "display name"
  xylem recall "color preferences" --limit 10`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return runRecall(args[0], limit)
	},
}

func init() {
	rememberCmd.Flags().String("key", "", "Logical fact key this memory speaks to")
	rememberCmd.Flags().String("tags", "", "Comma-separated tags")
	recallCmd.Flags().Int("limit", 5, "Maximum results")
}

func runRemember(content, key, tagsStr string) error {
	if strings.TrimSpace(content) == "" {
		fmt.Println("Usage: xylem remember \"<content>\" [--key <key>] [--tags \"tag1,tag2,...\"]")
		return nil
	}
	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	var tags []string
	if tagsStr != "" {
		for _, t := range strings.Split(tagsStr, ",") {
			if v := strings.TrimSpace(t); v != "" {
				tags = append(tags, v)
			}
		}
	}

	doc, err := s.AddDocument(context.Background(), content, key, tags)
	if err != nil {
		return fmt.Errorf("remember failed: %w", err)
	}
	fmt.Printf("✅ Remembered (%s).\n", doc.ID)
	return nil
}

func runRecall(query string, limit int) error {
	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	hits, err := s.Search(context.Background(), query, limit)
	if err != nil {
		return fmt.Errorf("recall failed: %w", err)
	}
	if len(hits) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for _, h := range hits {
		line := fmt.Sprintf("%3.0f%%  %s", h.Score*100, h.Text)
		if h.Key != "" && h.Key != h.DocID {
			line += fmt.Sprintf("  (key: %s)", h.Key)
		}
		fmt.Println(line)
	}
	return nil
}
