package main

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"
	"github.com/jmcdonald-ut/gitmem/internal/aggregate"
	"github.com/jmcdonald-ut/gitmem/internal/batchjobs"
	"github.com/jmcdonald-ut/gitmem/internal/batchllm"
	"github.com/jmcdonald-ut/gitmem/internal/classify"
	"github.com/jmcdonald-ut/gitmem/internal/commitstore"
	"github.com/jmcdonald-ut/gitmem/internal/enrich"
	"github.com/jmcdonald-ut/gitmem/internal/errs"
	"github.com/jmcdonald-ut/gitmem/internal/measure"
	"github.com/jmcdonald-ut/gitmem/internal/search"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// classifyRequestsPerSecond bounds the interactive classifier's
// client-side request rate; matches defaultConcurrency's worker count so
// a full pool of workers doesn't immediately queue up on the limiter.
const classifyRequestsPerSecond = 4

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Discover, measure, and classify new commits",
	Long: `Walks the default branch for commits not yet in the index, measures
their file-level complexity, and classifies them either interactively
(a bounded worker pool, blocking until done) or via a vendor batch job
(submit now, import results on a later invocation once it has ended).`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().Bool("batch", false, "submit/poll/import a vendor batch job instead of classifying interactively")
	indexCmd.Flags().Int("concurrency", 0, "interactive worker pool size (default 4)")
	indexCmd.Flags().Bool("dry-run", false, "discover and measure only; no classification, no model calls")
}

func runIndex(cmd *cobra.Command, args []string) error {
	runID := uuid.New().String()
	log := logger.WithField("run_id", runID).WithField("command", "index")

	rc, err := resolveExisting()
	if err != nil {
		return err
	}
	defer rc.store.Close()

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	batch, _ := cmd.Flags().GetBool("batch")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	if rc.cfg.AI.IsDisabled() && !dryRun {
		return errs.New(errs.AIRequired)
	}

	commits := commitstore.New(rc.store.DB())
	measurer := measure.New(rc.git, commits)
	jobs := batchjobs.New(rc.store.DB())
	agg := aggregate.New(rc.store.DB())
	idx := search.New(rc.store.DB())

	var classifier *classify.Client
	var batchClient *batchllm.Client
	if !dryRun {
		key, err := anthropicAPIKey()
		if err != nil {
			return err
		}
		client := newAnthropicClient(key)
		model := anthropic.Model(rc.cfg.IndexModel)
		classifier = classify.New(client, model, classifyRequestsPerSecond)
		batchClient = batchllm.New(client, model)
	}

	e := enrich.New(rc.git, rc.store, commits, measurer, classifier, batchClient, jobs, agg, idx)

	printer := newEnrichProgressPrinter()
	defer printer.stop()

	var result enrich.Result
	err = rc.store.WithLock(func() error {
		var runErr error
		switch {
		case dryRun:
			result, runErr = e.DryRun(cmd.Context(), rc.cfg.IndexStartDate, printer.onProgress)
		case batch:
			result, runErr = e.RunBatch(cmd.Context(), rc.cfg.IndexModel, rc.cfg.IndexStartDate, printer.onProgress)
		default:
			result, runErr = e.RunInteractive(cmd.Context(), concurrency, rc.cfg.IndexModel, rc.cfg.IndexStartDate, printer.onProgress)
		}
		return runErr
	})
	printer.stop()
	if err != nil {
		return err
	}

	log.WithField("outcome", result.Outcome).Debug("index run finished")
	reportIndexResult(result, dryRun)
	return nil
}

func reportIndexResult(result enrich.Result, dryRun bool) {
	switch result.Outcome {
	case enrich.OutcomeNoWork:
		pterm.Info.Println("Nothing new to index.")
	case enrich.OutcomeSubmitted:
		pterm.Success.Printf("Submitted batch %s. Run 'gitmem index --batch' again later to poll or import it.\n", result.BatchID)
	case enrich.OutcomeInProgress:
		pterm.Info.Printf("Batch %s is still %s; check back later.\n", result.BatchID, result.BatchStatus)
	case enrich.OutcomeComplete:
		if dryRun {
			pterm.Success.Println("Dry run complete: new commits discovered and measured, nothing classified.")
			return
		}
		pterm.Success.Printf("Indexed %d commit(s), %d failed classification.\n", result.Enriched, result.Failed)
	default:
		fmt.Printf("outcome: %s\n", result.Outcome)
	}
}
