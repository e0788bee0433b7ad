package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var factCmd = &cobra.Command{
	Use:   "fact",
	Short: "Manage canonical facts",
	Long: `Manage the canonical key-value store. Facts set here win every
conflict with semantic suggestions.

Examples:
  xylem fact set displayName "Mark"
  xylem fact get displayName
  xylem fact list
  xylem fact rm displayName`,
}

var factSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a canonical fact",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		confidence, _ := cmd.Flags().GetFloat64("confidence")
		sensitive, _ := cmd.Flags().GetBool("sensitive")
		return runFactSet(args[0], args[1], confidence, sensitive)
	},
}

var factGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a canonical fact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFactGet(args[0])
	},
}

var factListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all canonical facts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFactList()
	},
}

var factRmCmd = &cobra.Command{
	Use:   "rm <key>",
	Short: "Delete a canonical fact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFactRm(args[0])
	},
}

func init() {
	factSetCmd.Flags().Float64("confidence", 1.0, "Confidence in (0, 1]")
	factSetCmd.Flags().Bool("sensitive", false, "Mark value as sensitive (redacted in listings)")

	factCmd.AddCommand(factSetCmd)
	factCmd.AddCommand(factGetCmd)
	factCmd.AddCommand(factListCmd)
	factCmd.AddCommand(factRmCmd)
}

func runFactSet(key, value string, confidence float64, sensitive bool) error {
	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	fact, err := s.SetFact(context.Background(), key, value, confidence, sensitive)
	if err != nil {
		return fmt.Errorf("failed to set fact: %w", err)
	}
	fmt.Printf("✅ %s = %s (confidence: %.0f%%)\n", fact.Key, displayValue(fact.Value, fact.Sensitive), fact.Confidence*100)
	return nil
}

func runFactGet(key string) error {
	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	fact, err := s.GetFact(context.Background(), key)
	if err != nil {
		return fmt.Errorf("failed to get fact: %w", err)
	}
	if fact == nil {
		return fmt.Errorf("fact not found: %s", key)
	}
	fmt.Println(fact.Value)
	return nil
}

func runFactList() error {
	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	facts, err := s.ListFacts(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list facts: %w", err)
	}
	if len(facts) == 0 {
		fmt.Println("No canonical facts stored.")
		return nil
	}
	for _, f := range facts {
		fmt.Printf("%-24s %-32s %.0f%%  %s\n",
			f.Key, displayValue(f.Value, f.Sensitive), f.Confidence*100,
			f.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runFactRm(key string) error {
	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.DeleteFact(context.Background(), key); err != nil {
		return fmt.Errorf("failed to delete fact: %w", err)
	}
	fmt.Printf("✅ Deleted %s\n", key)
	return nil
}

// displayValue redacts sensitive values in listings. `fact get` still
// prints the raw value for the owner.
func displayValue(value string, sensitive bool) string {
	if sensitive {
		return "[redacted]"
	}
	return value
}
