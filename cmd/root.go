package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xylemhq/xylem/internal/audit"
	"github.com/xylemhq/xylem/internal/config"
	"github.com/xylemhq/xylem/internal/pipeline"
	"github.com/xylemhq/xylem/internal/recon"
	"github.com/xylemhq/xylem/internal/store"
	"go.uber.org/zap"
)

// Build-time variables
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// SetVersion sets the version info from main
func SetVersion(v, c, d string) {
	Version = v
	Commit = c
	Date = d
}

var rootCmd = &cobra.Command{
	Use:   "xylem",
	Short: "Xylem - reconciled memory for chat agents",
	Long: `Local-first memory scaffold: a canonical key-value store, an
episodic event log, and a semantic index, reconciled under a strict
canonical-wins policy before anything reaches an answer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the xylem command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// serve, version (defined in serve.go)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	// ask (defined in ask.go)
	rootCmd.AddCommand(askCmd)

	// fact get/set/list/rm (defined in fact.go)
	rootCmd.AddCommand(factCmd)

	// remember, recall (defined in remember.go)
	rootCmd.AddCommand(rememberCmd)
	rootCmd.AddCommand(recallCmd)

	// status (defined in status.go)
	rootCmd.AddCommand(statusCmd)

	// audit (defined in audit.go)
	rootCmd.AddCommand(auditCmd)

	// backup, restore, vacuum (defined in backup.go)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(vacuumCmd)

	// doctor (defined in doctor.go)
	rootCmd.AddCommand(doctorCmd)

	// import, export (defined in import_export.go)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
}

// openStore opens the configured store. Callers own Close.
func openStore() (*store.Store, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	s, err := store.NewStoreAt(cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	return s, cfg, nil
}

// buildPipeline wires a reconciliation engine over the store, with the
// episodic log as the audit sink.
func buildPipeline(s *store.Store, cfg *config.Config, logger *zap.Logger) *pipeline.Pipeline {
	pol := recon.DefaultPolicy()
	pol.SemanticCap = cfg.SemanticCap
	pol.ExtraStrictKeys = cfg.StrictKeys
	pol.ExtraPreferenceKeys = cfg.PreferenceKeys

	engine := recon.NewEngine(
		recon.WithPolicy(pol),
		recon.WithAuditSink(audit.NewEpisodeSink(s)),
		recon.WithHistoryLimit(cfg.HistoryLimit),
	)
	return pipeline.New(s, engine, logger)
}
