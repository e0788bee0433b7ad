package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xylemhq/xylem/internal/config"
	"github.com/xylemhq/xylem/internal/store"
)

var backupCmd = &cobra.Command{
	Use:   "backup [output]",
	Short: "Create a consistent database backup",
	Long: `Create a consistent snapshot of the database using VACUUM INTO.
The backup is safe to take while the server is running.

If no output path is given, a timestamped filename is generated.

Examples:
  xylem backup
  xylem backup ~/backups/xylem-snapshot.db`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output := ""
		if len(args) >= 1 {
			output = args[0]
		}
		return runBackup(output)
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <backup-file>",
	Short: "Restore the database from a backup",
	Long: `Replace the current database with a backup file.

The server must not be running during a restore. The existing database
is overwritten.

Examples:
  xylem restore xylem-backup-2026-08-29.db`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRestore(args[0])
	},
}

var vacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Compact the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVacuum()
	},
}

func runBackup(output string) error {
	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if output == "" {
		output = fmt.Sprintf("xylem-backup-%s.db", time.Now().Format("2006-01-02"))
	}

	if err := s.Backup(context.Background(), output); err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	fmt.Printf("✅ Backup written to %s\n", output)
	return nil
}

func runRestore(src string) error {
	dataDir, err := config.DataDir()
	if err != nil {
		return fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if err := store.Restore(dataDir, src); err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	fmt.Printf("✅ Restored database from %s\n", src)
	return nil
}

func runVacuum() error {
	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	before, _ := s.Size()
	if err := s.Vacuum(context.Background()); err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}
	after, _ := s.Size()
	fmt.Printf("✅ Vacuum complete (%s → %s)\n", before, after)
	return nil
}
