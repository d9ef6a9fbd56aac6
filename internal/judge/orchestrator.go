package judge

import (
	"context"
	"time"

	"github.com/jmcdonald-ut/gitmem/internal/batchjobs"
	"github.com/jmcdonald-ut/gitmem/internal/batchllm"
	"github.com/jmcdonald-ut/gitmem/internal/commitstore"
	"github.com/jmcdonald-ut/gitmem/internal/gitrepo"
	"github.com/jmcdonald-ut/gitmem/internal/models"
)

// diffMaxChars matches the Enricher's diff budget; the judge re-reads the
// same kind of diff the classifier originally saw.
const diffMaxChars = 20000

// Outcome mirrors the Enricher's three-state batch result, plus a
// synchronous "complete" for the interactive path.
type Outcome string

const (
	OutcomeComplete   Outcome = "complete"
	OutcomeSubmitted  Outcome = "submitted"
	OutcomeInProgress Outcome = "in_progress"
	OutcomeNoWork     Outcome = "no_work"
)

// Result is what a batch run hands back to the caller.
type Result struct {
	Outcome     Outcome
	BatchID     string
	BatchStatus string
	Results     []models.EvalResult
}

// Orchestrator drives interactive and batch evaluation over enriched commits.
type Orchestrator struct {
	git     *gitrepo.Adapter
	commits *commitstore.Store
	jobs    *batchjobs.Store
	client  *Client
	batch   *batchllm.Client
}

// NewOrchestrator wires an Orchestrator from its dependencies.
func NewOrchestrator(git *gitrepo.Adapter, commits *commitstore.Store, jobs *batchjobs.Store, client *Client, batch *batchllm.Client) *Orchestrator {
	return &Orchestrator{git: git, commits: commits, jobs: jobs, client: client, batch: batch}
}

// SelectOne resolves a single commit (by full hash or unambiguous prefix)
// for evaluation.
func (o *Orchestrator) SelectOne(ctx context.Context, hash string) ([]models.Commit, error) {
	c, err := o.commits.ResolvePrefix(ctx, hash)
	if err != nil {
		return nil, err
	}
	return []models.Commit{*c}, nil
}

// SelectSample draws n enriched commits uniformly at random, excluding
// template merges by default per spec.md §4.8.
func (o *Orchestrator) SelectSample(ctx context.Context, n int, excludeTemplateMerges bool) ([]models.Commit, error) {
	return o.commits.RandomEnriched(ctx, n, nil, excludeTemplateMerges)
}

func (o *Orchestrator) buildRequests(ctx context.Context, commits []models.Commit) ([]Request, error) {
	hashes := make([]string, len(commits))
	for i, c := range commits {
		hashes[i] = c.Hash
	}

	diffs, err := o.git.DiffBatch(ctx, hashes, diffMaxChars)
	if err != nil {
		return nil, err
	}
	filesByHash, err := o.commits.FilesByHashes(ctx, hashes)
	if err != nil {
		return nil, err
	}

	reqs := make([]Request, len(commits))
	for i, c := range commits {
		classification := ""
		if c.Classification != nil {
			classification = *c.Classification
		}
		summary := ""
		if c.Summary != nil {
			summary = *c.Summary
		}
		reqs[i] = Request{
			Hash:           c.Hash,
			Message:        c.Message,
			Files:          toRawFiles(filesByHash[c.Hash]),
			Diff:           diffs[c.Hash],
			Classification: classification,
			Summary:        summary,
		}
	}
	return reqs, nil
}

func toRawFiles(files []models.CommitFile) []models.RawCommitFile {
	out := make([]models.RawCommitFile, len(files))
	for i, f := range files {
		out[i] = models.RawCommitFile{
			Path: f.FilePath, ChangeType: f.ChangeType, Additions: f.Additions, Deletions: f.Deletions,
		}
	}
	return out
}

// EvaluateInteractive grades each of the given commits one request at a
// time (judge sample sizes are small relative to a full enrichment run, so
// no worker pool is warranted here) and returns their reconciled results.
func (o *Orchestrator) EvaluateInteractive(ctx context.Context, commits []models.Commit) ([]models.EvalResult, error) {
	if len(commits) == 0 {
		return nil, nil
	}

	reqs, err := o.buildRequests(ctx, commits)
	if err != nil {
		return nil, err
	}

	results := make([]models.EvalResult, 0, len(reqs))
	for _, req := range reqs {
		classification, accuracy, completeness, err := o.client.Evaluate(ctx, req)
		if err != nil {
			return nil, err
		}
		result := models.EvalResult{
			Hash:                  req.Hash,
			Classification:        req.Classification,
			Summary:               req.Summary,
			ClassificationVerdict: classification,
			AccuracyVerdict:       accuracy,
			CompletenessVerdict:   completeness,
		}
		results = append(results, ReconcileResult(result))
	}
	return results, nil
}

// RunBatch drives the asynchronous judge path over the given commits:
// submits a new check batch if none is pending, polls an outstanding one,
// or imports a finished one's results. commits is only used when nothing
// is pending; an empty or nil commits slice then yields OutcomeNoWork.
func (o *Orchestrator) RunBatch(ctx context.Context, commits []models.Commit, modelUsed string) (Result, error) {
	pending, err := o.jobs.GetPendingByType(ctx, models.BatchTypeCheck)
	if err != nil {
		return Result{}, err
	}

	if pending == nil {
		return o.submitBatch(ctx, commits, modelUsed)
	}

	status, err := o.batch.Status(ctx, pending.BatchID)
	if err != nil {
		return Result{}, err
	}

	if status.ProcessingStatus != "ended" {
		batchStatus := models.BatchStatusInProgress
		if status.ProcessingStatus == "canceled" || status.ProcessingStatus == "expired" {
			batchStatus = models.BatchStatusFailed
		}
		if err := o.jobs.UpdateStatus(ctx, pending.BatchID, batchStatus, status.Counts.Succeeded, status.Counts.Errored, nil); err != nil {
			return Result{}, err
		}
		return Result{Outcome: OutcomeInProgress, BatchID: pending.BatchID, BatchStatus: status.ProcessingStatus}, nil
	}

	return o.importBatchResults(ctx, pending)
}

func (o *Orchestrator) submitBatch(ctx context.Context, commits []models.Commit, modelUsed string) (Result, error) {
	if len(commits) == 0 {
		return Result{Outcome: OutcomeNoWork}, nil
	}

	reqs, err := o.buildRequests(ctx, commits)
	if err != nil {
		return Result{}, err
	}

	batchReqs := BuildJudgeRequests(reqs)
	batchID, count, err := o.batch.Submit(ctx, batchReqs)
	if err != nil {
		return Result{}, err
	}

	if err := o.jobs.Insert(ctx, models.BatchJob{
		BatchID: batchID, Type: models.BatchTypeCheck, Status: models.BatchStatusSubmitted,
		RequestCount: count, SubmittedAt: time.Now(), ModelUsed: modelUsed,
	}); err != nil {
		return Result{}, err
	}

	items := make([]models.CheckBatchItem, len(reqs))
	for i, r := range reqs {
		items[i] = models.CheckBatchItem{BatchID: batchID, Hash: r.Hash, Classification: r.Classification, Summary: r.Summary}
	}
	if err := o.jobs.InsertItems(ctx, items); err != nil {
		return Result{}, err
	}

	return Result{Outcome: OutcomeSubmitted, BatchID: batchID}, nil
}

func (o *Orchestrator) importBatchResults(ctx context.Context, job *models.BatchJob) (Result, error) {
	items, err := o.jobs.GetItems(ctx, job.BatchID)
	if err != nil {
		return Result{}, err
	}
	snapshotByHash := make(map[string]models.CheckBatchItem, len(items))
	for _, item := range items {
		snapshotByHash[item.Hash] = item
	}

	var results []models.EvalResult
	succeeded, failed := 0, 0

	for outcome, err := range o.batch.Results(ctx, job.BatchID) {
		if err != nil {
			return Result{}, err
		}
		snapshot, ok := snapshotByHash[outcome.CorrelationID]
		if !ok {
			continue // result for an item we never snapshotted; ignore
		}
		if outcome.FailureReason != "" {
			failed++
			continue
		}

		classification, accuracy, completeness := ParseJudgeOutcome(outcome)
		result := models.EvalResult{
			Hash:                  outcome.CorrelationID,
			Classification:        snapshot.Classification,
			Summary:               snapshot.Summary,
			ClassificationVerdict: classification,
			AccuracyVerdict:       accuracy,
			CompletenessVerdict:   completeness,
		}
		results = append(results, ReconcileResult(result))
		succeeded++
	}

	now := time.Now()
	if err := o.jobs.UpdateStatus(ctx, job.BatchID, models.BatchStatusEnded, succeeded, failed, &now); err != nil {
		return Result{}, err
	}

	return Result{Outcome: OutcomeComplete, BatchID: job.BatchID, Results: results}, nil
}

// BuildJudgeRequests turns judge requests into generic batch requests
// using the judge's own system prompt and user-prompt builder, so an
// interactive and a batched evaluation produce byte-identical prompts —
// the judge-batch counterpart to batchllm.BuildClassifyRequests.
func BuildJudgeRequests(reqs []Request) []batchllm.Request {
	out := make([]batchllm.Request, len(reqs))
	for i, r := range reqs {
		out[i] = batchllm.Request{
			CorrelationID: r.Hash,
			SystemPrompt:  SystemPrompt(),
			UserPrompt:    BuildUserPrompt(r),
		}
	}
	return out
}

// ParseJudgeOutcome is the batch-mode counterpart to Client.Evaluate's
// interactive parse step.
func ParseJudgeOutcome(outcome batchllm.Outcome) (classification, accuracy, completeness models.Verdict) {
	if outcome.FailureReason != "" {
		fail := failedParseVerdict()
		return fail, fail, fail
	}
	return ParseVerdicts(outcome.Text)
}
