// Command gitmem is the thin CLI surface over the core packages: it
// resolves the workspace, loads configuration, opens the store and git
// adapter, and dispatches to internal/enrich, internal/judge,
// internal/aggregate, and internal/search. The core has no dependency on
// this package; it exists so the core has a real caller to exercise it
// end to end.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	workspaceFlag string
	verbose       bool
	logger        *logrus.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "gitmem",
	Short: "gitmem indexes a git repository's commit history for fast, AI-assisted recall",
	Long: `gitmem builds a local, queryable index of a repository's commit history:
per-commit classification and summaries, file-level statistics and
coupling, trend analysis, and full-text search — all in a single embedded
SQLite file under .gitmem/.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logrus.New()
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}

		// .env is optional; a missing file is not an error (matches the
		// teacher's dev-mode loader, but without requiring GITHUB_TOKEN).
		_ = godotenv.Load()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&workspaceFlag, "workspace", "", "repository root (default: detected from current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(trendsCmd)
	rootCmd.AddCommand(configureCmd)
}
