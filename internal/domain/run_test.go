package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPipelineRun(t *testing.T) {
	now := time.Now().UTC()
	run := NewPipelineRun("run-1", "doc-1", "payments", "gpt-4o-mini", now)

	assert.Equal(t, StageCollectDocs, run.CurrentStage)
	assert.Equal(t, RunStatusPending, run.Status)
	assert.NotNil(t, run.StageOutputs)
	assert.Equal(t, now, run.CreatedAt)
	assert.Nil(t, run.CompletedAt)
}

func TestValidatePipelineRun(t *testing.T) {
	valid := NewPipelineRun("run-1", "doc-1", "", "gpt-4o-mini", time.Now().UTC())
	require.NoError(t, ValidatePipelineRun(valid))

	assert.Error(t, ValidatePipelineRun(nil))

	noID := NewPipelineRun("", "doc-1", "", "gpt-4o-mini", time.Now().UTC())
	assert.Error(t, ValidatePipelineRun(noID))

	noDoc := NewPipelineRun("run-1", "", "", "gpt-4o-mini", time.Now().UTC())
	assert.Error(t, ValidatePipelineRun(noDoc))

	badStage := NewPipelineRun("run-1", "doc-1", "", "gpt-4o-mini", time.Now().UTC())
	badStage.CurrentStage = "no_such_stage"
	assert.Error(t, ValidatePipelineRun(badStage))

	badStatus := NewPipelineRun("run-1", "doc-1", "", "gpt-4o-mini", time.Now().UTC())
	badStatus.Status = "no_such_status"
	assert.Error(t, ValidatePipelineRun(badStatus))
}

func TestNextStage(t *testing.T) {
	assert.Equal(t, StageAnalyze, NextStage(StageCollectDocs))
	assert.Equal(t, StageGenerateControls, NextStage(StageAnalyze))
	assert.Equal(t, Stage(""), NextStage(StageGenerateIAMModel))
	assert.Equal(t, Stage(""), NextStage("bogus"))
}

func TestRunStatusIsTerminal(t *testing.T) {
	assert.False(t, RunStatusPending.IsTerminal())
	assert.False(t, RunStatusRunning.IsTerminal())
	assert.True(t, RunStatusSucceeded.IsTerminal())
	assert.True(t, RunStatusFailed.IsTerminal())
	assert.True(t, RunStatusTimedOut.IsTerminal())
}

func TestValidateDocument(t *testing.T) {
	require.NoError(t, ValidateDocument(&Document{ID: "doc-1", Content: "text"}))

	err := ValidateDocument(&Document{ID: "doc-1"})
	assert.ErrorIs(t, err, ErrEmptyDocument)

	assert.Error(t, ValidateDocument(nil))
}
