// Package batchllm is gitmem's asynchronous model client: submits many
// commits at once to the Anthropic Message Batches API, polls status, and
// streams results back keyed by the caller-chosen correlation id (always
// a commit hash here). Judge batches use the same client with a different
// prompt builder — everything else is identical, per spec.md §4.6.
package batchllm

import (
	"context"
	"fmt"
	"iter"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/jmcdonald-ut/gitmem/internal/classify"
	"github.com/jmcdonald-ut/gitmem/internal/models"
)

// Status mirrors the vendor's batch processing lifecycle plus the
// terminal states gitmem's own state machine cares about.
type Status struct {
	BatchID          string
	ProcessingStatus string // "in_progress", "ended", "canceling", "canceled"
	Counts           StatusCounts
}

// StatusCounts is the per-outcome-state breakdown the vendor reports.
type StatusCounts struct {
	Processing int
	Succeeded  int
	Errored    int
	Canceled   int
	Expired    int
}

// Request is one item submitted as part of a batch: a correlation id (the
// commit hash) plus the already-built prompt for that commit.
type Request struct {
	CorrelationID string
	SystemPrompt  string
	UserPrompt    string
}

// Outcome is one item's result once the batch has ended: either Text (the
// raw model response to parse) or a non-empty FailureReason.
type Outcome struct {
	CorrelationID string
	Text          string
	FailureReason string
}

// Client submits and polls Anthropic Message Batches.
type Client struct {
	anthropic *anthropic.Client
	model     anthropic.Model
}

// New builds a batch Client against model.
func New(client *anthropic.Client, model anthropic.Model) *Client {
	return &Client{anthropic: client, model: model}
}

// Submit creates one vendor batch covering every request, returning its
// batch id and the request count the vendor accepted.
func (c *Client) Submit(ctx context.Context, requests []Request) (batchID string, requestCount int, err error) {
	if len(requests) == 0 {
		return "", 0, fmt.Errorf("submit batch: no requests")
	}

	items := make([]anthropic.MessageBatchNewParamsRequest, len(requests))
	for i, r := range requests {
		items[i] = anthropic.MessageBatchNewParamsRequest{
			CustomID: r.CorrelationID,
			Params: anthropic.MessageBatchNewParamsRequestParams{
				Model:     c.model,
				MaxTokens: 512,
				System: []anthropic.TextBlockParam{
					{Text: r.SystemPrompt},
				},
				Messages: []anthropic.MessageParam{
					anthropic.NewUserMessage(anthropic.NewTextBlock(r.UserPrompt)),
				},
			},
		}
	}

	batch, err := c.anthropic.Messages.Batches.New(ctx, anthropic.MessageBatchNewParams{
		Requests: items,
	})
	if err != nil {
		return "", 0, fmt.Errorf("submit batch: %w", err)
	}
	return batch.ID, len(items), nil
}

// Status fetches the current processing status and per-state counts for
// an outstanding batch.
func (c *Client) Status(ctx context.Context, batchID string) (Status, error) {
	batch, err := c.anthropic.Messages.Batches.Get(ctx, batchID)
	if err != nil {
		return Status{}, fmt.Errorf("get batch status %s: %w", batchID, err)
	}
	return Status{
		BatchID:          batch.ID,
		ProcessingStatus: string(batch.ProcessingStatus),
		Counts: StatusCounts{
			Processing: int(batch.RequestCounts.Processing),
			Succeeded:  int(batch.RequestCounts.Succeeded),
			Errored:    int(batch.RequestCounts.Errored),
			Canceled:   int(batch.RequestCounts.Canceled),
			Expired:    int(batch.RequestCounts.Expired),
		},
	}, nil
}

// Results streams one Outcome per item in a completed batch. The caller
// must only invoke this once the batch's ProcessingStatus is "ended".
func (c *Client) Results(ctx context.Context, batchID string) iter.Seq2[Outcome, error] {
	return func(yield func(Outcome, error) bool) {
		page, err := c.anthropic.Messages.Batches.ResultsStreaming(ctx, batchID)
		if err != nil {
			yield(Outcome{}, fmt.Errorf("stream batch results %s: %w", batchID, err))
			return
		}

		for page.Next() {
			entry := page.Current()
			outcome := Outcome{CorrelationID: entry.CustomID}
			switch entry.Result.Type {
			case "succeeded":
				outcome.Text = extractText(entry.Result.Message)
			default:
				outcome.FailureReason = string(entry.Result.Type)
			}
			if !yield(outcome, nil) {
				return
			}
		}
		if err := page.Err(); err != nil {
			yield(Outcome{}, fmt.Errorf("read batch results %s: %w", batchID, err))
		}
	}
}

func extractText(msg anthropic.Message) string {
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text
}

// BuildClassifyRequests turns commit-and-diff inputs into batch requests
// using the classifier's own system prompt and user-prompt builder, so an
// interactive and a batched classification produce byte-identical prompts.
func BuildClassifyRequests(reqs []classify.Request) []Request {
	out := make([]Request, len(reqs))
	for i, r := range reqs {
		out[i] = Request{
			CorrelationID: r.Hash,
			SystemPrompt:  classify.SystemPrompt(),
			UserPrompt:    classify.BuildUserPrompt(r),
		}
	}
	return out
}

// ParseClassifyOutcome is the batch-mode counterpart to classify.Client's
// interactive parse step, reused so both paths coerce malformed responses
// identically.
func ParseClassifyOutcome(outcome Outcome) (models.Classification, string) {
	if outcome.FailureReason != "" {
		return models.ClassChore, models.NoSummarySentinel
	}
	return classify.ParseClassification(outcome.Text)
}
