package main

import (
	"fmt"
	"os"

	"github.com/jmcdonald-ut/gitmem/internal/config"
	"github.com/jmcdonald-ut/gitmem/internal/store"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize gitmem for the current repository",
	Long: `Creates the .gitmem/ workspace at the repository root: a default
config.json and an empty, migrated index.db. Run 'gitmem index' next to
populate it.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().Bool("ai", true, "enable AI classification and summarization")
	initCmd.Flags().String("index-model", config.DefaultIndexModel, "model used for interactive/batch classification")
	initCmd.Flags().String("check-model", config.DefaultCheckModel, "model used for judge evaluation")
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	dir := dotGitmemDir(root)

	if _, err := os.Stat(config.Path(dir)); err == nil {
		pterm.Warning.Printf("gitmem is already initialized at %s\n", dir)
		return nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	ai, _ := cmd.Flags().GetBool("ai")
	indexModel, _ := cmd.Flags().GetString("index-model")
	checkModel, _ := cmd.Flags().GetString("check-model")

	cfg := &config.Config{
		AI:         config.AIMode{Enabled: ai},
		IndexModel: indexModel,
		CheckModel: checkModel,
	}
	if err := config.Save(dir, cfg); err != nil {
		return fmt.Errorf("write config.json: %w", err)
	}

	st, err := store.Open(dir)
	if err != nil {
		return err
	}
	defer st.Close()

	pterm.Success.Printf("Initialized gitmem for %s\n", gitRemoteSummary(root))
	pterm.Info.Printf("  Workspace:  %s\n", dir)
	pterm.Info.Printf("  AI:         %v\n", ai)
	pterm.Info.Printf("  Next step:  gitmem index\n")

	if !ai {
		pterm.Warning.Println("AI is disabled; 'gitmem index' will only discover and measure commits, no classification.")
	}

	return nil
}
