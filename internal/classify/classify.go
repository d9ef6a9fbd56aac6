// Package classify is gitmem's interactive (single-request) classifier:
// one Anthropic Messages call per commit that returns a classification
// label and a one- or two-sentence summary, with a parser tolerant of
// whatever shape the model actually returns.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/jmcdonald-ut/gitmem/internal/models"
	"golang.org/x/time/rate"
)

// systemPrompt is sent verbatim as the system message on every classify
// call. It fixes the output contract parseClassification depends on.
const systemPrompt = `You are a senior engineer annotating commits in a git history browser.

For the commit you are given, decide which single label best describes its
intent and write a one- or two-sentence summary of what it actually changed.

Labels (choose exactly one): bug-fix, feature, refactor, docs, chore, perf, test, style.

Respond with a single JSON object and nothing else:
{"classification": "<one of the eight labels>", "summary": "<one or two sentences>"}`

// SystemPrompt returns the fixed system message used by both the
// interactive and batch classifier paths, so their prompts never drift
// apart.
func SystemPrompt() string { return systemPrompt }

// BuildUserPrompt is the exported form of buildUserPrompt, for the batch
// client to reuse when constructing a Message Batches request.
func BuildUserPrompt(req Request) string { return buildUserPrompt(req) }

// ParseClassification is the exported form of parseClassification, for
// the batch client to reuse when coercing a batch result's raw text.
func ParseClassification(text string) (models.Classification, string) { return parseClassification(text) }

// Request is everything the classifier needs about one commit.
type Request struct {
	Hash    string
	Message string
	Files   []models.RawCommitFile
	Diff    string
}

// Client classifies commits one at a time against the Anthropic Messages API.
type Client struct {
	anthropic *anthropic.Client
	model     anthropic.Model
	limiter   *rate.Limiter
}

// New builds a Client. requestsPerSecond bounds the client-side request
// rate so gitmem never exceeds the vendor's own concurrency limits during
// an interactive enrichment run; burst allows requestsPerSecond in-flight
// at once.
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

// Classify sends one commit to the model and returns its enrichment.
// Vendor transport errors propagate unchanged; the caller (the Enricher)
// owns retry policy.
func (c *Client) Classify(ctx context.Context, req Request) (models.Classification, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", "", err
	}

	resp, err := c.anthropic.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildUserPrompt(req))),
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("classify commit %s: %w", req.Hash, err)
	}

	text := extractText(resp)
	classification, summary := parseClassification(text)
	return classification, summary, nil
}

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
	return b.String()
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

// classifyOutput is the JSON shape the system prompt constrains the model
// to. Fields are typed loosely (json.RawMessage for classification) so a
// non-string or missing value doesn't fail decoding outright — it falls
// through to the coercion rules in parseClassification.
type classifyOutput struct {
	Classification json.RawMessage `json:"classification"`
	Summary        json.RawMessage `json:"summary"`
}

// parseClassification tolerates fenced or unfenced JSON and coerces an
// unknown/missing classification to "chore" and a non-string/missing
// summary to models.NoSummarySentinel, per spec.md §4.5.
func parseClassification(text string) (models.Classification, string) {
	candidate := stripCodeFence(text)

	var out classifyOutput
	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		return models.ClassChore, models.NoSummarySentinel
	}

	classification := models.Classification(unquoteString(out.Classification))
	if !classification.IsValid() {
		classification = models.ClassChore
	}

	summary := models.NoSummarySentinel
	if s := unquoteString(out.Summary); s != "" {
		summary = s
	}

	return classification, summary
}

// stripCodeFence removes a leading/trailing ```json fence if present,
// otherwise returns the input trimmed.
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

// unquoteString decodes raw into a Go string if it is a JSON string;
// returns "" for any other JSON value (number, object, null, absent).
func unquoteString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
