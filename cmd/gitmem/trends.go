package main

import (
	"fmt"

	"github.com/jmcdonald-ut/gitmem/internal/aggregate"
	"github.com/jmcdonald-ut/gitmem/internal/models"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var trendsCmd = &cobra.Command{
	Use:   "trends <path>",
	Short: "Show windowed period statistics and the overall trend direction for a file or directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrends,
}

func init() {
	trendsCmd.Flags().String("window", "monthly", "bucket window: weekly, monthly, or quarterly")
}

func runTrends(cmd *cobra.Command, args []string) error {
	rc, err := resolveExisting()
	if err != nil {
		return err
	}
	defer rc.store.Close()

	prefix := args[0]
	windowFlag, _ := cmd.Flags().GetString("window")
	window := models.TrendWindow(windowFlag)

	agg := aggregate.New(rc.store.DB())
	ctx := cmd.Context()

	periods, err := agg.Trends(ctx, prefix, window)
	if err != nil {
		return err
	}
	if len(periods) == 0 {
		pterm.Info.Printf("No history found under %s.\n", prefix)
		return nil
	}

	pterm.DefaultSection.Println(prefix)
	for _, p := range periods {
		fmt.Printf("%s  %3d changes  avg loc %.0f  avg complexity %.1f\n",
			p.PeriodLabel, p.TotalChanges, p.AvgLOC, p.AvgComplexity)
	}

	summary := aggregate.ComputeTrend(periods)
	pterm.Info.Printf(
		"Overall: %s (volume), %s (bug-fix rate), %s (complexity)\n",
		summary.Direction, summary.BugFixTrend, summary.ComplexityTrend,
	)
	return nil
}
