package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/xylemhq/xylem/internal/config"
	"github.com/xylemhq/xylem/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose common setup issues",
	Long: `Diagnose common setup issues and optionally fix them.

Examples:
  xylem doctor        # check for issues
  xylem doctor --fix  # check and auto-fix issues`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fix, _ := cmd.Flags().GetBool("fix")
		return runDoctor(fix)
	},
}

func init() {
	doctorCmd.Flags().Bool("fix", false, "Attempt to automatically fix issues")
}

// runDoctor diagnoses common setup issues
func runDoctor(fix bool) error {
	fmt.Println("🔍 Xylem Doctor - Diagnosing Setup")
	if fix {
		fmt.Println("🛠️  Auto-fix enabled")
	}
	fmt.Println()

	issues := 0
	warnings := 0
	fixed := 0

	// 1. Check if binary is in PATH
	fmt.Print("✓ Checking if xylem is in PATH... ")
	path, err := exec.LookPath("xylem")
	if err != nil {
		fmt.Println("⚠️  WARNING")
		fmt.Println("  xylem binary not found in PATH")
		warnings++
	} else {
		fmt.Printf("✅ OK (%s)\n", path)
	}

	// 2. Check configuration
	fmt.Print("✓ Checking configuration... ")
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("❌ FAILED")
		fmt.Printf("  Issue: %v\n", err)
		issues++
	} else if err := cfg.Validate(); err != nil {
		fmt.Println("❌ FAILED")
		fmt.Printf("  Issue: %v\n", err)
		issues++
	} else {
		fmt.Println("✅ OK")
	}

	// 3. Check data directory
	fmt.Print("✓ Checking data directory... ")
	dataDir, err := config.DataDir()
	if err != nil {
		fmt.Println("❌ FAILED")
		fmt.Printf("  Issue: %v\n", err)
		issues++
	} else if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		if fix {
			fmt.Print("🛠️  Creating... ")
			if err := os.MkdirAll(dataDir, 0755); err != nil {
				fmt.Printf("❌ FAILED: %v\n", err)
				issues++
			} else {
				fmt.Println("✅ FIXED")
				fixed++
			}
		} else {
			fmt.Println("⚠️  WARNING")
			fmt.Printf("  Data directory does not exist: %s\n", dataDir)
			fmt.Println("  It will be created on first run")
			warnings++
		}
	} else {
		fmt.Printf("✅ OK (%s)\n", dataDir)
	}

	// 4. Check directory permissions
	fmt.Print("✓ Checking data directory permissions... ")
	if info, err := os.Stat(dataDir); err == nil {
		mode := info.Mode().Perm()
		if mode&0007 != 0 {
			if fix {
				fmt.Print("🛠️  Fixing... ")
				if err := os.Chmod(dataDir, 0700); err != nil {
					fmt.Printf("❌ FAILED: %v\n", err)
					issues++
				} else {
					fmt.Println("✅ FIXED")
					fixed++
				}
			} else {
				fmt.Println("⚠️  WARNING")
				fmt.Printf("  Data directory is world-accessible (%04o)\n", mode)
				fmt.Printf("  Fix: chmod 700 %s\n", dataDir)
				warnings++
			}
		} else {
			fmt.Println("✅ OK")
		}
	} else {
		fmt.Println("⚠️  SKIPPED (no data directory)")
	}

	// 5. Check SQLite database and vector index
	fmt.Print("✓ Checking SQLite database... ")
	dbPath := filepath.Join(dataDir, "xylem.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("⚠️  WARNING")
		fmt.Printf("  Database not found: %s\n", dbPath)
		fmt.Println("  It will be created on first run")
		warnings++
	} else {
		s, err := store.NewStoreAt(dataDir)
		if err != nil {
			fmt.Println("❌ FAILED")
			fmt.Printf("  Issue: cannot open database: %v\n", err)
			issues++
		} else {
			fmt.Println("✅ OK")
			fmt.Print("✓ Checking vector index... ")
			if s.IndexAvailable() {
				fmt.Println("✅ OK (sqlite-vec)")
			} else {
				fmt.Println("⚠️  WARNING (extension unavailable, recall uses linear scan)")
				warnings++
			}
			s.Close()
		}
	}

	// 6. Check environment
	fmt.Print("✓ Checking environment... ")
	fmt.Printf("✅ OK (%s/%s)\n", runtime.GOOS, runtime.GOARCH)

	// Summary
	fmt.Println()
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	if issues == 0 && warnings == 0 {
		fmt.Println("✅ All checks passed! Xylem is ready to use.")
	} else {
		if fixed > 0 {
			fmt.Printf("🛠️  Auto-fixed %d issue(s)\n", fixed)
		}
		if issues > 0 {
			fmt.Printf("❌ Found %d critical issue(s)\n", issues)
		}
		if warnings > 0 {
			fmt.Printf("⚠️  Found %d warning(s)\n", warnings)
		}
		fmt.Println()
		fmt.Println("Run the suggested fixes above to resolve issues.")
	}
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	if issues > 0 {
		return fmt.Errorf("found %d critical issue(s)", issues)
	}
	return nil
}
