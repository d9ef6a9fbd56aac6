package judge

import (
	"testing"

	"github.com/jmcdonald-ut/gitmem/internal/batchllm"
	"github.com/jmcdonald-ut/gitmem/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestParseVerdicts_Unfenced(t *testing.T) {
	text := `{"classification": {"pass": true, "reasoning": "matches"}, "accuracy": {"pass": false, "reasoning": "invents a detail"}, "completeness": {"pass": true, "reasoning": "covers it"}}`
	classification, accuracy, completeness := ParseVerdicts(text)
	assert.True(t, classification.Pass)
	assert.False(t, accuracy.Pass)
	assert.Equal(t, "invents a detail", accuracy.Reasoning)
	assert.True(t, completeness.Pass)
}

func TestParseVerdicts_FencedJSON(t *testing.T) {
	text := "```json\n{\"classification\": {\"pass\": false, \"reasoning\": \"wrong label\", \"suggested_classification\": \"feature\"}, \"accuracy\": {\"pass\": true, \"reasoning\": \"ok\"}, \"completeness\": {\"pass\": true, \"reasoning\": \"ok\"}}\n```"
	classification, _, _ := ParseVerdicts(text)
	assert.False(t, classification.Pass)
	require.NotNil(t, classification.SuggestedClassification)
	assert.Equal(t, "feature", *classification.SuggestedClassification)
}

func TestParseVerdicts_UnparsableTextFailsAllThree(t *testing.T) {
	classification, accuracy, completeness := ParseVerdicts("not json at all")
	assert.False(t, classification.Pass)
	assert.False(t, accuracy.Pass)
	assert.False(t, completeness.Pass)
	assert.NotEmpty(t, classification.Reasoning)
}

func TestReconcile_FlipsSelfContradictingFailure(t *testing.T) {
	v := models.Verdict{Pass: false, Reasoning: "should be feature", SuggestedClassification: ptr("feature")}
	got := Reconcile(v, "feature")
	assert.True(t, got.Pass)
	assert.Nil(t, got.SuggestedClassification)
}

func TestReconcile_LeavesGenuineFailureAlone(t *testing.T) {
	v := models.Verdict{Pass: false, Reasoning: "should be refactor", SuggestedClassification: ptr("refactor")}
	got := Reconcile(v, "feature")
	assert.False(t, got.Pass)
	require.NotNil(t, got.SuggestedClassification)
	assert.Equal(t, "refactor", *got.SuggestedClassification)
}

func TestReconcile_LeavesPassingVerdictAlone(t *testing.T) {
	v := models.Verdict{Pass: true, Reasoning: "fine"}
	got := Reconcile(v, "feature")
	assert.True(t, got.Pass)
	assert.Nil(t, got.SuggestedClassification)
}

func TestReconcileResult_AppliesToAllThreeVerdicts(t *testing.T) {
	result := models.EvalResult{
		Classification:        "feature",
		ClassificationVerdict: models.Verdict{Pass: false, SuggestedClassification: ptr("feature")},
		AccuracyVerdict:       models.Verdict{Pass: false, SuggestedClassification: ptr("feature")},
		CompletenessVerdict:   models.Verdict{Pass: true},
	}
	got := ReconcileResult(result)
	assert.True(t, got.ClassificationVerdict.Pass)
	assert.True(t, got.AccuracyVerdict.Pass)
	assert.True(t, got.CompletenessVerdict.Pass)
}

func TestSummarize(t *testing.T) {
	results := []models.EvalResult{
		{ClassificationVerdict: models.Verdict{Pass: true}, AccuracyVerdict: models.Verdict{Pass: true}, CompletenessVerdict: models.Verdict{Pass: false}},
		{ClassificationVerdict: models.Verdict{Pass: false}, AccuracyVerdict: models.Verdict{Pass: true}, CompletenessVerdict: models.Verdict{Pass: true}},
	}
	summary := Summarize(results)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.ClassificationPassed)
	assert.Equal(t, 2, summary.AccuracyPassed)
	assert.Equal(t, 1, summary.CompletenessPassed)
}

func TestBuildJudgeRequests_CorrelationIDIsCommitHash(t *testing.T) {
	reqs := []Request{{Hash: "abc123", Message: "fix bug", Classification: "bug-fix", Summary: "fixed it"}}
	batchReqs := BuildJudgeRequests(reqs)
	built := batchReqs[0]
	assert.Equal(t, "abc123", built.CorrelationID)
	assert.Equal(t, SystemPrompt(), built.SystemPrompt)
	assert.Contains(t, built.UserPrompt, "fix bug")
	assert.Contains(t, built.UserPrompt, "Prior classification: bug-fix")
}

func TestParseJudgeOutcome_FailureProducesFailingVerdicts(t *testing.T) {
	classification, accuracy, completeness := ParseJudgeOutcome(batchllm.Outcome{CorrelationID: "h1", FailureReason: "errored"})
	assert.False(t, classification.Pass)
	assert.False(t, accuracy.Pass)
	assert.False(t, completeness.Pass)
}

func TestParseJudgeOutcome_SuccessParsesText(t *testing.T) {
	text := `{"classification": {"pass": true, "reasoning": "ok"}, "accuracy": {"pass": true, "reasoning": "ok"}, "completeness": {"pass": true, "reasoning": "ok"}}`
	classification, accuracy, completeness := ParseJudgeOutcome(batchllm.Outcome{CorrelationID: "h1", Text: text})
	assert.True(t, classification.Pass)
	assert.True(t, accuracy.Pass)
	assert.True(t, completeness.Pass)
}
