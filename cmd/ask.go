package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Ask a question against reconciled memory",
	Long: `Ask a question. The answer is synthesized from the canonical
key-value store and the semantic index, with canonical records winning
every conflict.

Examples:
  xylem ask "what is my display name?"
  xylem ask "what's my favorite color?" --verbose
  xylem ask "where do I work?" --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		asJSON, _ := cmd.Flags().GetBool("json")
		return runAsk(args[0], verbose, asJSON)
	},
}

func init() {
	askCmd.Flags().BoolP("verbose", "v", false, "Show citations, reasoning, and provenance")
	askCmd.Flags().Bool("json", false, "Emit the full answer as JSON")
}

func runAsk(query string, verbose, asJSON bool) error {
	s, cfg, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	pipe := buildPipeline(s, cfg, nil)
	output, rec := pipe.Ask(context.Background(), query)

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"answer":         output,
			"reconciliation": rec,
		})
	}

	fmt.Println(output.Content)

	if verbose {
		fmt.Println()
		fmt.Printf("Confidence: %.0f%%\n", output.Confidence*100)
		fmt.Printf("Sources: %d canonical, %d semantic, %d conflicted\n",
			output.Provenance.CanonicalFacts,
			output.Provenance.SemanticFacts,
			output.Provenance.ConflictedFacts)

		if len(output.Citations) > 0 {
			fmt.Println("\nCitations:")
			for _, c := range output.Citations {
				fmt.Printf("  - %s %s\n", c.FactKey, c.Text)
			}
		}
		if len(output.ReasoningPath) > 0 {
			fmt.Println("\nReasoning:")
			for _, step := range output.ReasoningPath {
				fmt.Printf("  %s\n", step)
			}
		}
		if len(rec.Conflicts) > 0 {
			fmt.Printf("\n⚠️  %d conflict(s) detected this turn:\n", len(rec.Conflicts))
			for _, c := range rec.Conflicts {
				fmt.Printf("  [%s] %s: %s\n", c.Severity, c.FactKey, c.Rationale)
			}
		}
	}
	return nil
}
