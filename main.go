// Xylem - local-first memory scaffold for chat agents
// Canonical facts, episodic log, semantic recall, conflict-aware answers
package main

import (
	"fmt"
	"os"

	"github.com/xylemhq/xylem/cmd"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersion(version, commit, date)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
