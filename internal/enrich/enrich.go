// Package enrich drives an indexing run end to end: discover new commits,
// measure them, then classify the unenriched backlog either interactively
// (bounded worker pool) or through a vendor batch job that may span
// multiple process invocations.
package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/jmcdonald-ut/gitmem/internal/batchjobs"
	"github.com/jmcdonald-ut/gitmem/internal/batchllm"
	"github.com/jmcdonald-ut/gitmem/internal/classify"
	"github.com/jmcdonald-ut/gitmem/internal/commitstore"
	"github.com/jmcdonald-ut/gitmem/internal/gitrepo"
	"github.com/jmcdonald-ut/gitmem/internal/measure"
	"github.com/jmcdonald-ut/gitmem/internal/models"
	"github.com/jmcdonald-ut/gitmem/internal/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// diffMaxChars bounds the per-commit diff passed to the classifier, per
// spec.md §4.2's fair-truncation worked example.
const diffMaxChars = 20000

// writerFlushSize is how many completed classifications the batched writer
// accumulates before committing them in one transaction.
const writerFlushSize = 50

// defaultConcurrency is the worker pool size used when the caller doesn't
// override it.
const defaultConcurrency = 4

// Phase names reported on Progress.
const (
	PhaseDiscovering = "discovering"
	PhaseMeasuring   = "measuring"
	PhaseEnriching   = "enriching"
	PhaseSubmitting  = "submitting"
	PhasePolling     = "polling"
	PhaseFinalizing  = "finalizing"
)

// Progress is the single value type the pipeline reports after every phase
// transition and on meaningful steps within a phase.
type Progress struct {
	Phase       string
	Current     int
	Total       int
	BatchID     string
	BatchStatus string
	CurrentHash string
}

// Outcome distinguishes the four shapes a run can end in.
type Outcome string

const (
	OutcomeComplete   Outcome = "complete"
	OutcomeSubmitted  Outcome = "submitted"
	OutcomeInProgress Outcome = "in_progress"
	OutcomeNoWork     Outcome = "no_work"
)

// Result is what run_interactive/run_batch hand back to the caller.
type Result struct {
	Outcome     Outcome
	BatchID     string
	BatchStatus string
	Enriched    int
	Failed      int
}

// Aggregator is the narrow view of the derived-table rebuilder the
// Enricher needs at finalization time.
type Aggregator interface {
	Rebuild(ctx context.Context) error
}

// SearchIndexer is the narrow view of the search index the Enricher needs
// at finalization time.
type SearchIndexer interface {
	IndexNewCommits(ctx context.Context, hashes []string) error
}

// Enricher orchestrates discovery, measurement, and classification.
type Enricher struct {
	git        *gitrepo.Adapter
	store      *store.Store
	commits    *commitstore.Store
	measurer   *measure.Measurer
	classifier *classify.Client
	batch      *batchllm.Client
	jobs       *batchjobs.Store
	aggregator Aggregator
	search     SearchIndexer
	logger     *logrus.Entry
}

// New wires an Enricher from its dependencies.
func New(
	git *gitrepo.Adapter,
	st *store.Store,
	commits *commitstore.Store,
	measurer *measure.Measurer,
	classifier *classify.Client,
	batch *batchllm.Client,
	jobs *batchjobs.Store,
	aggregator Aggregator,
	search SearchIndexer,
) *Enricher {
	return &Enricher{
		git:        git,
		store:      st,
		commits:    commits,
		measurer:   measurer,
		classifier: classifier,
		batch:      batch,
		jobs:       jobs,
		aggregator: aggregator,
		search:     search,
		logger:     logrus.WithField("component", "enrich"),
	}
}

// discover runs the phase shared by both run modes: enumerate the default
// branch, drop anything older than indexStartDate, insert anything not
// already indexed, then measure it.
//
// The indexStartDate cutoff is applied after commit_info_batch rather than
// against the bare hash list rev-list returns, since only the full record
// carries committed_at; the net effect is identical — a commit older than
// the cutoff is simply never inserted, so it never becomes part of this or
// any future run's indexed set.
func (e *Enricher) discover(ctx context.Context, indexStartDate *time.Time, onProgress func(Progress)) error {
	branch, err := e.git.DefaultBranch(ctx)
	if err != nil {
		return fmt.Errorf("resolve default branch: %w", err)
	}

	allHashes, err := e.git.CommitHashes(ctx, branch)
	if err != nil {
		return fmt.Errorf("enumerate commit hashes: %w", err)
	}
	if onProgress != nil {
		onProgress(Progress{Phase: PhaseDiscovering, Total: len(allHashes)})
	}

	indexed, err := e.commits.IndexedHashes(ctx)
	if err != nil {
		return err
	}

	var newHashes []string
	for _, h := range allHashes {
		if !indexed[h] {
			newHashes = append(newHashes, h)
		}
	}

	var measureHashes []string
	if len(newHashes) > 0 {
		raw, err := e.git.CommitInfoBatch(ctx, newHashes)
		if err != nil {
			return fmt.Errorf("fetch commit info for %d new commits: %w", len(newHashes), err)
		}
		if indexStartDate != nil {
			filtered := raw[:0]
			for _, c := range raw {
				if !c.CommittedAt.Before(*indexStartDate) {
					filtered = append(filtered, c)
				}
			}
			raw = filtered
		}
		if err := e.commits.InsertRaw(ctx, raw); err != nil {
			return err
		}
		for _, c := range raw {
			measureHashes = append(measureHashes, c.Hash)
		}
	}

	if onProgress != nil {
		onProgress(Progress{Phase: PhaseMeasuring, Total: len(measureHashes)})
	}
	return e.measurer.Run(ctx, measureHashes, func(p measure.Progress) {
		if onProgress != nil {
			onProgress(Progress{Phase: PhaseMeasuring, Current: p.Processed, Total: p.Total})
		}
	})
}

func (e *Enricher) unenrichedCommits(ctx context.Context, indexStartDate *time.Time) ([]models.Commit, error) {
	if indexStartDate != nil {
		return e.commits.UnenrichedSince(ctx, *indexStartDate)
	}
	return e.commits.Unenriched(ctx)
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

func hashesOf(commits []models.Commit) []string {
	out := make([]string, len(commits))
	for i, c := range commits {
		out[i] = c.Hash
	}
	return out
}

// enrichOutcome is one worker's result, handed off to the batched writer.
type enrichOutcome struct {
	hash       string
	enrichment models.Enrichment
	failed     bool
}

// RunInteractive runs discovery/measurement, then classifies the
// unenriched backlog through a bounded worker pool of size concurrency
// (0 defaults to 4), finishing with the shared finalization step.
func (e *Enricher) RunInteractive(ctx context.Context, concurrency int, modelUsed string, indexStartDate *time.Time, onProgress func(Progress)) (Result, error) {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if onProgress == nil {
		onProgress = func(Progress) {}
	}

	if err := e.discover(ctx, indexStartDate, onProgress); err != nil {
		return Result{}, err
	}

	unenriched, err := e.unenrichedCommits(ctx, indexStartDate)
	if err != nil {
		return Result{}, err
	}
	if len(unenriched) == 0 {
		if err := e.finalize(ctx, nil, modelUsed, onProgress); err != nil {
			return Result{}, err
		}
		return Result{Outcome: OutcomeNoWork}, nil
	}

	hashes := hashesOf(unenriched)
	byHash := make(map[string]models.Commit, len(unenriched))
	for _, c := range unenriched {
		byHash[c.Hash] = c
	}

	diffs, err := e.git.DiffBatch(ctx, hashes, diffMaxChars)
	if err != nil {
		return Result{}, err
	}
	filesByHash, err := e.commits.FilesByHashes(ctx, hashes)
	if err != nil {
		return Result{}, err
	}

	total := len(hashes)
	onProgress(Progress{Phase: PhaseEnriching, Total: total})

	workerCount := concurrency
	if workerCount > len(hashes) {
		workerCount = len(hashes)
	}

	jobsCh := make(chan string)
	resultsCh := make(chan enrichOutcome, concurrency)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workerCount; i++ {
		g.Go(func() error {
			for hash := range jobsCh {
				c := byHash[hash]
				classification, summary, err := e.classifier.Classify(gctx, classify.Request{
					Hash:    hash,
					Message: c.Message,
					Files:   toRawFiles(filesByHash[hash]),
					Diff:    diffs[hash],
				})
				if err != nil {
					e.logger.WithError(err).WithField("hash", hash).Warn("classification failed, dropping commit from this run")
					resultsCh <- enrichOutcome{hash: hash, failed: true}
					continue
				}
				resultsCh <- enrichOutcome{
					hash:       hash,
					enrichment: models.Enrichment{Hash: hash, Classification: classification, Summary: summary, Model: modelUsed},
				}
			}
			return nil
		})
	}

	go func() {
		defer close(jobsCh)
		for _, h := range hashes {
			select {
			case jobsCh <- h:
			case <-gctx.Done():
				return
			}
		}
	}()

	var writeErr error
	var enrichedCount, failedCount int
	var enrichedHashes []string
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		var pending []models.Enrichment
		processed := 0
		flush := func() {
			if len(pending) == 0 {
				return
			}
			if err := e.commits.UpdateEnrichmentBatch(ctx, pending); err != nil {
				writeErr = err
				return
			}
			pending = pending[:0]
		}
		for res := range resultsCh {
			processed++
			if res.failed {
				failedCount++
			} else {
				pending = append(pending, res.enrichment)
				enrichedHashes = append(enrichedHashes, res.hash)
				enrichedCount++
				if len(pending) >= writerFlushSize {
					flush()
				}
			}
			onProgress(Progress{Phase: PhaseEnriching, Current: processed, Total: total, CurrentHash: res.hash})
		}
		flush()
	}()

	poolErr := g.Wait()
	close(resultsCh)
	<-writerDone

	if poolErr != nil {
		return Result{}, poolErr
	}
	if writeErr != nil {
		return Result{}, writeErr
	}

	if err := e.finalize(ctx, enrichedHashes, modelUsed, onProgress); err != nil {
		return Result{}, err
	}

	return Result{Outcome: OutcomeComplete, Enriched: enrichedCount, Failed: failedCount}, nil
}

// RunBatch drives the asynchronous path: submit a new batch if none is
// pending, poll an outstanding one, or import a finished one's results.
// The "pending batch ended" branch proceeds to finalization, and so does a
// submission that finds no unenriched commits (it finalizes and returns
// OutcomeNoWork); an actual submission and a poll of an unfinished batch
// return early without touching the Aggregator or search index.
func (e *Enricher) RunBatch(ctx context.Context, modelUsed string, indexStartDate *time.Time, onProgress func(Progress)) (Result, error) {
	if onProgress == nil {
		onProgress = func(Progress) {}
	}

	if err := e.discover(ctx, indexStartDate, onProgress); err != nil {
		return Result{}, err
	}

	pending, err := e.jobs.GetPendingByType(ctx, models.BatchTypeIndex)
	if err != nil {
		return Result{}, err
	}

	if pending == nil {
		return e.submitBatch(ctx, modelUsed, indexStartDate, onProgress)
	}

	status, err := e.batch.Status(ctx, pending.BatchID)
	if err != nil {
		return Result{}, err
	}

	if status.ProcessingStatus != "ended" {
		batchStatus := models.BatchStatusInProgress
		if status.ProcessingStatus == "canceled" || status.ProcessingStatus == "expired" {
			batchStatus = models.BatchStatusFailed
		}
		if err := e.jobs.UpdateStatus(ctx, pending.BatchID, batchStatus, status.Counts.Succeeded, status.Counts.Errored, nil); err != nil {
			return Result{}, err
		}
		onProgress(Progress{Phase: PhasePolling, BatchID: pending.BatchID, BatchStatus: status.ProcessingStatus})
		return Result{Outcome: OutcomeInProgress, BatchID: pending.BatchID, BatchStatus: status.ProcessingStatus}, nil
	}

	return e.importBatchResults(ctx, pending, modelUsed, onProgress)
}

// DryRun runs only the shared discovery phase — enumerate, insert, and
// measure new commits — without issuing a single classifier call or
// touching the Aggregator or search index. It lets a caller sanity-check
// what a real run would discover before spending model budget.
func (e *Enricher) DryRun(ctx context.Context, indexStartDate *time.Time, onProgress func(Progress)) (Result, error) {
	if onProgress == nil {
		onProgress = func(Progress) {}
	}

	if err := e.discover(ctx, indexStartDate, onProgress); err != nil {
		return Result{}, err
	}

	unenriched, err := e.unenrichedCommits(ctx, indexStartDate)
	if err != nil {
		return Result{}, err
	}
	if len(unenriched) == 0 {
		return Result{Outcome: OutcomeNoWork}, nil
	}
	return Result{Outcome: OutcomeComplete, Enriched: 0, Failed: 0}, nil
}

func (e *Enricher) submitBatch(ctx context.Context, modelUsed string, indexStartDate *time.Time, onProgress func(Progress)) (Result, error) {
	unenriched, err := e.unenrichedCommits(ctx, indexStartDate)
	if err != nil {
		return Result{}, err
	}
	if len(unenriched) == 0 {
		if err := e.finalize(ctx, nil, modelUsed, onProgress); err != nil {
			return Result{}, err
		}
		return Result{Outcome: OutcomeNoWork}, nil
	}

	hashes := hashesOf(unenriched)
	diffs, err := e.git.DiffBatch(ctx, hashes, diffMaxChars)
	if err != nil {
		return Result{}, err
	}
	filesByHash, err := e.commits.FilesByHashes(ctx, hashes)
	if err != nil {
		return Result{}, err
	}

	reqs := make([]classify.Request, len(unenriched))
	for i, c := range unenriched {
		reqs[i] = classify.Request{
			Hash: c.Hash, Message: c.Message, Files: toRawFiles(filesByHash[c.Hash]), Diff: diffs[c.Hash],
		}
	}

	onProgress(Progress{Phase: PhaseSubmitting, Total: len(reqs)})
	batchID, count, err := e.batch.Submit(ctx, batchllm.BuildClassifyRequests(reqs))
	if err != nil {
		return Result{}, err
	}

	if err := e.jobs.Insert(ctx, models.BatchJob{
		BatchID: batchID, Type: models.BatchTypeIndex, Status: models.BatchStatusSubmitted,
		RequestCount: count, SubmittedAt: time.Now(), ModelUsed: modelUsed,
	}); err != nil {
		return Result{}, err
	}

	return Result{Outcome: OutcomeSubmitted, BatchID: batchID}, nil
}

func (e *Enricher) importBatchResults(ctx context.Context, job *models.BatchJob, modelUsed string, onProgress func(Progress)) (Result, error) {
	var succeeded []models.Enrichment
	var enrichedHashes []string
	failed := 0

	for outcome, err := range e.batch.Results(ctx, job.BatchID) {
		if err != nil {
			return Result{}, err
		}
		if outcome.FailureReason != "" {
			failed++
			continue
		}
		classification, summary := batchllm.ParseClassifyOutcome(outcome)
		succeeded = append(succeeded, models.Enrichment{
			Hash: outcome.CorrelationID, Classification: classification, Summary: summary, Model: modelUsed,
		})
		enrichedHashes = append(enrichedHashes, outcome.CorrelationID)
	}

	if err := e.commits.UpdateEnrichmentBatch(ctx, succeeded); err != nil {
		return Result{}, err
	}

	now := time.Now()
	if err := e.jobs.UpdateStatus(ctx, job.BatchID, models.BatchStatusEnded, len(succeeded), failed, &now); err != nil {
		return Result{}, err
	}

	if err := e.finalize(ctx, enrichedHashes, modelUsed, onProgress); err != nil {
		return Result{}, err
	}

	return Result{Outcome: OutcomeComplete, BatchID: job.BatchID, Enriched: len(succeeded), Failed: failed}, nil
}

// finalize rebuilds the derived aggregates, reindexes newly enriched
// commits for search, and stamps last_run/model_used metadata. Shared by
// both run modes; reached on a completed run and also on a run that finds
// no unenriched commits.
func (e *Enricher) finalize(ctx context.Context, enrichedHashes []string, modelUsed string, onProgress func(Progress)) error {
	onProgress(Progress{Phase: PhaseFinalizing})

	if e.aggregator != nil {
		if err := e.aggregator.Rebuild(ctx); err != nil {
			return fmt.Errorf("rebuild aggregates: %w", err)
		}
	}
	if e.search != nil && len(enrichedHashes) > 0 {
		if err := e.search.IndexNewCommits(ctx, enrichedHashes); err != nil {
			return fmt.Errorf("index new commits: %w", err)
		}
	}
	if err := e.store.SetMetadata(ctx, nil, store.MetaLastRun, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("write last_run metadata: %w", err)
	}
	if err := e.store.SetMetadata(ctx, nil, store.MetaModelUsed, modelUsed); err != nil {
		return fmt.Errorf("write model_used metadata: %w", err)
	}
	return nil
}
