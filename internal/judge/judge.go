// Package judge is gitmem's evaluator: it re-reads an already-enriched
// commit's (classification, summary) and asks the model to grade it on
// three dimensions, tolerating the same fenced/unfenced JSON shapes the
// classifier does and reconciling self-contradictory verdicts.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/jmcdonald-ut/gitmem/internal/models"
	"golang.org/x/time/rate"
)

// systemPrompt fixes the judge's output contract: three independent
// pass/fail verdicts, each allowed an optional suggested replacement
// classification.
const systemPrompt = `You are a senior engineer auditing another model's annotations on a commit.

You will be given a commit's message, its changed files, its diff, and the
classification and summary a prior pass assigned to it. Grade that prior
annotation on three independent dimensions:

- classification: does the assigned label (one of bug-fix, feature, refactor,
  docs, chore, perf, test, style) actually match what the diff does?
- accuracy: does the summary describe something the diff actually contains,
  with no invented or contradicted detail?
- completeness: does the summary cover the change's main effect, not just a
  minor or incidental part of it?

For each dimension, decide pass or fail and give a one-sentence reasoning. If
a dimension fails because a different classification would have been
correct, include it as suggested_classification; omit the field otherwise.

Respond with a single JSON object and nothing else:
{
  "classification": {"pass": <bool>, "reasoning": "<text>", "suggested_classification": "<label or omitted>"},
  "accuracy": {"pass": <bool>, "reasoning": "<text>"},
  "completeness": {"pass": <bool>, "reasoning": "<text>"}
}`

// SystemPrompt returns the fixed judge system message, shared by the
// interactive and batch paths.
func SystemPrompt() string { return systemPrompt }

// Request is everything the judge needs about one previously enriched commit.
type Request struct {
	Hash           string
	Message        string
	Files          []models.RawCommitFile
	Diff           string
	Classification string
	Summary        string
}

// BuildUserPrompt is exported for the batch path to reuse.
func BuildUserPrompt(req Request) string { return buildUserPrompt(req) }

func buildUserPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Commit message:\n")
	b.WriteString(req.Message)
	b.WriteString("\n\nFiles changed:\n")
	for _, f := range req.Files {
		fmt.Fprintf(&b, "- %s (%s, +%d/-%d)\n", f.Path, f.ChangeType, f.Additions, f.Deletions)
	}
	b.WriteString("\nDiff:\n")
	b.WriteString(req.Diff)
	fmt.Fprintf(&b, "\n\nPrior classification: %s\nPrior summary: %s\n", req.Classification, req.Summary)
	return b.String()
}

// Client issues one judge request at a time against the Anthropic
// Messages API.
type Client struct {
	anthropic *anthropic.Client
	model     anthropic.Model
	limiter   *rate.Limiter
}

// New builds a Client bounded to requestsPerSecond client-side requests.
func New(client *anthropic.Client, model anthropic.Model, requestsPerSecond float64) *Client {
	burst := int(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		anthropic: client,
		model:     model,
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Evaluate sends one commit-under-evaluation to the model and returns its
// three raw verdicts, unreconciled (the caller applies Reconcile).
func (c *Client) Evaluate(ctx context.Context, req Request) (classification, accuracy, completeness models.Verdict, err error) {
	if err = c.limiter.Wait(ctx); err != nil {
		return
	}

	resp, apiErr := c.anthropic.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 768,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildUserPrompt(req))),
		},
	})
	if apiErr != nil {
		err = fmt.Errorf("judge commit %s: %w", req.Hash, apiErr)
		return
	}

	text := extractText(resp)
	classification, accuracy, completeness = ParseVerdicts(text)
	return
}

func extractText(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// verdictJSON is the wire shape of one dimension's grade.
type verdictJSON struct {
	Pass                     bool    `json:"pass"`
	Reasoning                string  `json:"reasoning"`
	SuggestedClassification *string `json:"suggested_classification,omitempty"`
}

type evalOutput struct {
	Classification verdictJSON `json:"classification"`
	Accuracy       verdictJSON `json:"accuracy"`
	Completeness   verdictJSON `json:"completeness"`
}

// failedParseVerdict is returned for all three dimensions when the
// response can't be parsed at all: an unreadable grade can't be asserted
// as a pass.
func failedParseVerdict() models.Verdict {
	return models.Verdict{Pass: false, Reasoning: "judge response could not be parsed"}
}

// ParseVerdicts tolerates fenced or unfenced JSON, mirroring classify's
// parser. A response that fails to parse at all produces three failing
// verdicts rather than silently passing an ungraded commit.
func ParseVerdicts(text string) (classification, accuracy, completeness models.Verdict) {
	candidate := stripCodeFence(text)

	var out evalOutput
	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		fail := failedParseVerdict()
		return fail, fail, fail
	}

	toVerdict := func(v verdictJSON) models.Verdict {
		return models.Verdict{Pass: v.Pass, Reasoning: v.Reasoning, SuggestedClassification: v.SuggestedClassification}
	}
	return toVerdict(out.Classification), toVerdict(out.Accuracy), toVerdict(out.Completeness)
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// Reconcile applies spec.md §4.8's self-contradiction fix-up to a single
// verdict: a failing verdict whose suggested classification actually
// matches the original is flipped to pass and the suggestion cleared.
func Reconcile(v models.Verdict, originalClassification string) models.Verdict {
	if !v.Pass && v.SuggestedClassification != nil && *v.SuggestedClassification == originalClassification {
		v.Pass = true
		v.SuggestedClassification = nil
	}
	return v
}

// ReconcileResult applies Reconcile to all three verdicts in result,
// per §4.8's "apply this normalization to every verdict on ingest".
func ReconcileResult(result models.EvalResult) models.EvalResult {
	result.ClassificationVerdict = Reconcile(result.ClassificationVerdict, result.Classification)
	result.AccuracyVerdict = Reconcile(result.AccuracyVerdict, result.Classification)
	result.CompletenessVerdict = Reconcile(result.CompletenessVerdict, result.Classification)
	return result
}

// Summarize aggregates per-dimension pass counts across a batch of results.
func Summarize(results []models.EvalResult) models.EvalSummary {
	summary := models.EvalSummary{Total: len(results)}
	for _, r := range results {
		if r.ClassificationVerdict.Pass {
			summary.ClassificationPassed++
		}
		if r.AccuracyVerdict.Pass {
			summary.AccuracyPassed++
		}
		if r.CompletenessVerdict.Pass {
			summary.CompletenessPassed++
		}
	}
	return summary
}
