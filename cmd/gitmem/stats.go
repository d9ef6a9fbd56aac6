package main

import (
	"fmt"

	"github.com/jmcdonald-ut/gitmem/internal/aggregate"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats <path>",
	Short: "Show a file's derived change history, contributors, and coupling",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().Int("coupling-limit", 10, "maximum coupled files to show")
}

func runStats(cmd *cobra.Command, args []string) error {
	rc, err := resolveExisting()
	if err != nil {
		return err
	}
	defer rc.store.Close()

	path := args[0]
	couplingLimit, _ := cmd.Flags().GetInt("coupling-limit")

	agg := aggregate.New(rc.store.DB())
	ctx := cmd.Context()

	stats, err := agg.FileStats(ctx, path)
	if err != nil {
		return err
	}
	if stats == nil {
		pterm.Info.Printf("%s has never appeared in an indexed commit.\n", path)
		return nil
	}

	pterm.DefaultSection.Println(path)
	fmt.Printf("Total changes:   %d (+%d/-%d)\n", stats.TotalChanges, stats.TotalAdditions, stats.TotalDeletions)
	fmt.Printf("First seen:      %s\n", stats.FirstSeen.Format("2006-01-02"))
	fmt.Printf("Last changed:    %s\n", stats.LastChanged.Format("2006-01-02"))
	fmt.Printf("Current:         %d lines, complexity %d (avg %.1f, max %d)\n",
		stats.CurrentLOC, stats.CurrentComplexity, stats.AvgComplexity, stats.MaxComplexity)
	fmt.Printf("Classifications: bug-fix=%d feature=%d refactor=%d docs=%d chore=%d perf=%d test=%d style=%d\n",
		stats.BugFixCount, stats.FeatureCount, stats.RefactorCount, stats.DocsCount,
		stats.ChoreCount, stats.PerfCount, stats.TestCount, stats.StyleCount)

	contributors, err := agg.FileContributors(ctx, path)
	if err != nil {
		return err
	}
	if len(contributors) > 0 {
		pterm.DefaultSection.WithLevel(2).Println("Contributors")
		for _, c := range contributors {
			fmt.Printf("  %-30s %d commits\n", c.DisplayName, c.CommitCount)
		}
	}

	coupling, err := agg.FileCoupling(ctx, path, couplingLimit)
	if err != nil {
		return err
	}
	if len(coupling) > 0 {
		pterm.DefaultSection.WithLevel(2).Println("Frequently changed together")
		for _, c := range coupling {
			other := c.FileA
			if other == path {
				other = c.FileB
			}
			fmt.Printf("  %-50s %d co-changes\n", other, c.CoChangeCount)
		}
	}

	return nil
}
