package domain

import (
	"fmt"
	"time"
)

// Stage identifies one unit of work in the pipeline's fixed sequence.
type Stage string

const (
	StageCollectDocs      Stage = "collect_docs"
	StageAnalyze          Stage = "analyze"
	StageGenerateControls Stage = "generate_controls"
	StageGenerateTemplate Stage = "generate_template"
	StageGenerateProfile  Stage = "generate_profile"
	StageGenerateIAMModel Stage = "generate_iam_model"
)

// StageSequence is the fixed execution order. A stage only starts once its
// immediate predecessor has succeeded.
var StageSequence = []Stage{
	StageCollectDocs,
	StageAnalyze,
	StageGenerateControls,
	StageGenerateTemplate,
	StageGenerateProfile,
	StageGenerateIAMModel,
}

// NextStage returns the stage following s in the sequence, or "" when s is the
// final stage.
func NextStage(s Stage) Stage {
	for i, stage := range StageSequence {
		if stage == s && i+1 < len(StageSequence) {
			return StageSequence[i+1]
		}
	}
	return ""
}

// RunStatus represents the status of a pipeline run or of a single stage.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusTimedOut  RunStatus = "timed_out"
)

// IsTerminal reports whether the status is final.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusTimedOut:
		return true
	}
	return false
}

// PipelineRun tracks one end-to-end execution of the stage sequence for a
// triggered document. Runs are never deleted automatically; terminal runs are
// retained for audit.
type PipelineRun struct {
	ID            string
	DocumentID    string
	Domain        string
	ModelID       string
	CurrentStage  Stage
	Status        RunStatus
	FailureReason string
	StageOutputs  map[Stage]string // stage -> artifact reference
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// NewPipelineRun creates a pending run for the given document.
func NewPipelineRun(id, documentID, domainTag, modelID string, createdAt time.Time) *PipelineRun {
	return &PipelineRun{
		ID:           id,
		DocumentID:   documentID,
		Domain:       domainTag,
		ModelID:      modelID,
		CurrentStage: StageCollectDocs,
		Status:       RunStatusPending,
		StageOutputs: make(map[Stage]string),
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

// ValidatePipelineRun validates a PipelineRun instance
func ValidatePipelineRun(r *PipelineRun) error {
	if r == nil {
		return fmt.Errorf("pipeline run cannot be nil")
	}

	if r.ID == "" {
		return fmt.Errorf("pipeline run ID is required")
	}

	if r.DocumentID == "" {
		return fmt.Errorf("pipeline run DocumentID is required")
	}

	if !isValidStage(r.CurrentStage) {
		return fmt.Errorf("pipeline run CurrentStage is invalid: %s", r.CurrentStage)
	}

	if !isValidRunStatus(r.Status) {
		return fmt.Errorf("pipeline run Status is invalid: %s", r.Status)
	}

	return nil
}

// isValidStage checks if a Stage is valid
func isValidStage(s Stage) bool {
	switch s {
	case StageCollectDocs, StageAnalyze, StageGenerateControls,
		StageGenerateTemplate, StageGenerateProfile, StageGenerateIAMModel:
		return true
	}
	return false
}

// isValidRunStatus checks if a RunStatus is valid
func isValidRunStatus(s RunStatus) bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusSucceeded,
		RunStatusFailed, RunStatusTimedOut:
		return true
	}
	return false
}
