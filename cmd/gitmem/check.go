package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/jmcdonald-ut/gitmem/internal/batchjobs"
	"github.com/jmcdonald-ut/gitmem/internal/batchllm"
	"github.com/jmcdonald-ut/gitmem/internal/commitstore"
	"github.com/jmcdonald-ut/gitmem/internal/errs"
	"github.com/jmcdonald-ut/gitmem/internal/judge"
	"github.com/jmcdonald-ut/gitmem/internal/models"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Grade a previously enriched commit's classification and summary",
	Long: `Re-reads one or more already-enriched commits and asks the model to
grade their classification, accuracy, and completeness against the actual
diff. Run against a single commit, a random sample, or a vendor batch job.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().String("hash", "", "evaluate a single commit by full hash or unambiguous prefix")
	checkCmd.Flags().Int("sample", 0, "evaluate a random sample of N enriched commits")
	checkCmd.Flags().Bool("include-template-merges", false, "include template-generated merge commits in the sample")
	checkCmd.Flags().Bool("batch", false, "submit/poll/import a vendor batch job instead of evaluating interactively")
	checkCmd.Flags().String("output", "", "write results as JSON to this path (default: .gitmem/check-<timestamp>.json)")
	checkCmd.MarkFlagsMutuallyExclusive("hash", "sample")
}

func runCheck(cmd *cobra.Command, args []string) error {
	rc, err := resolveExisting()
	if err != nil {
		return err
	}
	defer rc.store.Close()

	hash, _ := cmd.Flags().GetString("hash")
	sample, _ := cmd.Flags().GetInt("sample")
	includeTemplateMerges, _ := cmd.Flags().GetBool("include-template-merges")
	batch, _ := cmd.Flags().GetBool("batch")
	outputPath, _ := cmd.Flags().GetString("output")

	key, err := anthropicAPIKey()
	if err != nil {
		return err
	}
	client := newAnthropicClient(key)
	model := anthropic.Model(rc.cfg.CheckModel)

	commits := commitstore.New(rc.store.DB())
	jobs := batchjobs.New(rc.store.DB())
	judgeClient := judge.New(client, model, classifyRequestsPerSecond)
	batchClient := batchllm.New(client, model)
	orch := judge.NewOrchestrator(rc.git, commits, jobs, judgeClient, batchClient)

	ctx := cmd.Context()

	if batch {
		return runCheckBatch(ctx, rc, orch, hash, sample, includeTemplateMerges, model, outputPath)
	}

	selection, err := selectCommits(ctx, orch, hash, sample, includeTemplateMerges)
	if err != nil {
		return err
	}
	if len(selection) == 0 {
		pterm.Info.Println("No enriched commits matched the selection.")
		return nil
	}

	var results []models.EvalResult
	err = rc.store.WithLock(func() error {
		var evalErr error
		results, evalErr = orch.EvaluateInteractive(ctx, selection)
		return evalErr
	})
	if err != nil {
		return err
	}

	printCheckSummary(results)
	return writeCheckOutput(rc.dir, outputPath, results)
}

// runCheckBatch submits a new check batch (selecting commits first),
// polls an outstanding one, or imports a finished one's results. Selection
// only applies to a fresh submission; polling/importing act on whatever
// batch is already pending.
func runCheckBatch(ctx context.Context, rc *runContext, orch *judge.Orchestrator, hash string, sample int, includeTemplateMerges bool, model anthropic.Model, outputPath string) error {
	// Unlike the interactive path, --hash/--sample are optional here: with
	// neither set this call only polls or imports an already-pending batch,
	// never submits a fresh one (RunBatch treats a nil selection as "no work"
	// when nothing is outstanding).
	var selection []models.Commit
	if hash != "" || sample > 0 {
		var err error
		selection, err = selectCommits(ctx, orch, hash, sample, includeTemplateMerges)
		if err != nil {
			return err
		}
	}

	var result judge.Result
	lockErr := rc.store.WithLock(func() error {
		var runErr error
		result, runErr = orch.RunBatch(ctx, selection, string(model))
		return runErr
	})
	if lockErr != nil {
		return lockErr
	}

	switch result.Outcome {
	case judge.OutcomeNoWork:
		pterm.Info.Println("No commits selected for a fresh check batch.")
	case judge.OutcomeSubmitted:
		pterm.Success.Printf("Submitted check batch %s. Run 'gitmem check --batch' again later to poll or import it.\n", result.BatchID)
	case judge.OutcomeInProgress:
		pterm.Info.Printf("Check batch %s is still %s; check back later.\n", result.BatchID, result.BatchStatus)
	case judge.OutcomeComplete:
		printCheckSummary(result.Results)
		return writeCheckOutput(rc.dir, outputPath, result.Results)
	}
	return nil
}

func selectCommits(ctx context.Context, orch *judge.Orchestrator, hash string, sample int, includeTemplateMerges bool) ([]models.Commit, error) {
	switch {
	case hash != "":
		return orch.SelectOne(ctx, hash)
	case sample > 0:
		return orch.SelectSample(ctx, sample, !includeTemplateMerges)
	default:
		return nil, errs.Newf(errs.Validation, "check requires --hash or --sample")
	}
}

func printCheckSummary(results []models.EvalResult) {
	summary := judge.Summarize(results)
	pterm.Success.Printf(
		"Graded %d commit(s): classification %d/%d, accuracy %d/%d, completeness %d/%d passed.\n",
		summary.Total,
		summary.ClassificationPassed, summary.Total,
		summary.AccuracyPassed, summary.Total,
		summary.CompletenessPassed, summary.Total,
	)
}

// writeCheckOutput dumps results as JSON to path, or to a timestamped
// default name under the workspace directory per spec.md §6.
func writeCheckOutput(workspaceDir, path string, results []models.EvalResult) error {
	if path == "" {
		path = filepath.Join(workspaceDir, fmt.Sprintf("check-%d.json", time.Now().Unix()))
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal check results: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	pterm.Info.Printf("Wrote results to %s\n", path)
	return nil
}
