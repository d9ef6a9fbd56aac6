package batchllm

import (
	"testing"

	"github.com/jmcdonald-ut/gitmem/internal/classify"
	"github.com/jmcdonald-ut/gitmem/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildClassifyRequests_CorrelationIDIsCommitHash(t *testing.T) {
	reqs := []classify.Request{
		{Hash: "abc123", Message: "fix bug", Files: nil, Diff: "diff --git a/x b/x"},
	}
	out := BuildClassifyRequests(reqs)
	require.Len(t, out, 1)
	assert.Equal(t, "abc123", out[0].CorrelationID)
	assert.Equal(t, classify.SystemPrompt(), out[0].SystemPrompt)
	assert.Contains(t, out[0].UserPrompt, "fix bug")
}

func TestParseClassifyOutcome_FailureCoercesToChore(t *testing.T) {
	c, s := ParseClassifyOutcome(Outcome{CorrelationID: "h1", FailureReason: "errored"})
	assert.Equal(t, models.ClassChore, c)
	assert.Equal(t, models.NoSummarySentinel, s)
}

func TestParseClassifyOutcome_SuccessParsesText(t *testing.T) {
	c, s := ParseClassifyOutcome(Outcome{
		CorrelationID: "h1",
		Text:          `{"classification": "perf", "summary": "speeds up the hot loop"}`,
	})
	assert.Equal(t, models.ClassPerf, c)
	assert.Equal(t, "speeds up the hot loop", s)
}
