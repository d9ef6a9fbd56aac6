package main

import (
	"fmt"

	"github.com/jmcdonald-ut/gitmem/internal/scope"
	"github.com/jmcdonald-ut/gitmem/internal/search"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over enriched commit messages and summaries",
	Long: `Runs an FTS5 query over every indexed commit's message, classification,
and summary, ranked by relevance. Narrow the result set to one
classification label or to a file-path scope (defaulting to the
workspace's configured scope, if any).`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().String("classification", "", "restrict to one classification label")
	searchCmd.Flags().Int("limit", 20, "maximum number of results")
	searchCmd.Flags().StringSlice("include", nil, "restrict to files matching these patterns")
	searchCmd.Flags().StringSlice("exclude", nil, "exclude files matching these patterns")
	searchCmd.Flags().Bool("all", false, "ignore the workspace's configured default scope")
	searchCmd.Flags().Bool("include-deleted", false, "also match commits whose only scoped files have since been removed from the working tree")
}

func runSearch(cmd *cobra.Command, args []string) error {
	rc, err := resolveExisting()
	if err != nil {
		return err
	}
	defer rc.store.Close()

	query := args[0]
	limit, _ := cmd.Flags().GetInt("limit")
	classification, _ := cmd.Flags().GetString("classification")
	include, _ := cmd.Flags().GetStringSlice("include")
	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	all, _ := cmd.Flags().GetBool("all")
	includeDeleted, _ := cmd.Flags().GetBool("include-deleted")

	var classPtr *string
	if classification != "" {
		classPtr = &classification
	}

	sc := scope.Merge(rc.cfg.Scope, include, exclude, all)

	var trackedFiles []string
	if !sc.IsEmpty() && !includeDeleted {
		trackedFiles, err = rc.git.TrackedFiles(cmd.Context())
		if err != nil {
			return err
		}
	}

	idx := search.New(rc.store.DB())
	results, err := idx.SearchWithScope(cmd.Context(), query, limit, classPtr, sc, trackedFiles)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		pterm.Info.Println("No matches.")
		return nil
	}

	for _, r := range results {
		classification := r.Classification
		if classification == "" {
			classification = "(unclassified)"
		}
		summary := r.Summary
		if summary == "" {
			summary = "(no summary)"
		}
		fmt.Printf("%s  [%s]\n  %s\n\n", r.Hash[:min(len(r.Hash), 12)], classification, summary)
	}
	return nil
}
