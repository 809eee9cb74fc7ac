package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cloo-solutions/docpipe/internal/domain"
	"github.com/cloo-solutions/docpipe/internal/telemetry"
)

// DefaultStageTimeout is the per-stage time budget.
const DefaultStageTimeout = 5 * time.Minute

// RunRepository defines the tracking-store interface the orchestrator needs.
type RunRepository interface {
	SetStage(ctx context.Context, id string, stage domain.Stage, status domain.RunStatus, reason string) error
	RecordStageOutput(ctx context.Context, runID string, stage domain.Stage, artifactRef string) error
	GetStageOutput(ctx context.Context, runID string, stage domain.Stage) (string, error)
}

// Orchestrator drives one run through the fixed stage sequence. It owns all
// PipelineRun transitions: a stage starts only after its predecessor
// succeeded, a stage failure or timeout is terminal for the run, and each
// stage's artifact is recorded exactly once per run.
type Orchestrator struct {
	repo         RunRepository
	stages       []StageRunner
	stageTimeout time.Duration
}

// NewOrchestrator creates an Orchestrator. Stages must be given in the
// pipeline's fixed sequence order.
func NewOrchestrator(repo RunRepository, stages []StageRunner, stageTimeout time.Duration) (*Orchestrator, error) {
	if len(stages) != len(domain.StageSequence) {
		return nil, fmt.Errorf("expected %d stages, got %d", len(domain.StageSequence), len(stages))
	}
	for i, st := range stages {
		if st.Name() != domain.StageSequence[i] {
			return nil, fmt.Errorf("stage %d is %s, expected %s", i, st.Name(), domain.StageSequence[i])
		}
	}
	if stageTimeout <= 0 {
		stageTimeout = DefaultStageTimeout
	}
	return &Orchestrator{
		repo:         repo,
		stages:       stages,
		stageTimeout: stageTimeout,
	}, nil
}

// Execute runs the stage sequence for a claimed run. Re-executing a run is
// safe: stages that already recorded an artifact are skipped, so retries are
// at-least-once on execution but exactly-once on recorded output.
func (o *Orchestrator) Execute(ctx context.Context, run *domain.PipelineRun) error {
	if run.StageOutputs == nil {
		run.StageOutputs = make(map[domain.Stage]string)
	}

	prevRef := ""
	for _, stage := range o.stages {
		name := stage.Name()

		ref, err := o.repo.GetStageOutput(ctx, run.ID, name)
		if err == nil {
			log.Printf("run %s: stage %s already has artifact %s, skipping", run.ID, name, ref)
			run.StageOutputs[name] = ref
			prevRef = ref
			continue
		}
		if !errors.Is(err, domain.ErrArtifactNotFound) {
			return fmt.Errorf("failed to check stage output for %s: %w", name, err)
		}

		if err := o.repo.SetStage(ctx, run.ID, name, domain.RunStatusRunning, ""); err != nil {
			return fmt.Errorf("failed to mark stage %s running: %w", name, err)
		}
		run.CurrentStage = name
		run.Status = domain.RunStatusRunning

		log.Printf("run %s: stage %s started", run.ID, name)

		stageCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
		ref, err = stage.Run(stageCtx, StageInput{Run: run, PredecessorRef: prevRef})
		timedOut := stageCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil
		cancel()

		if err != nil {
			return o.failStage(ctx, run, name, err, timedOut)
		}

		if err := o.repo.RecordStageOutput(ctx, run.ID, name, ref); err != nil {
			return o.failStage(ctx, run, name, fmt.Errorf("failed to record stage output: %w", err), false)
		}
		run.StageOutputs[name] = ref
		prevRef = ref

		log.Printf("run %s: stage %s completed, artifact %s", run.ID, name, ref)
	}

	final := o.stages[len(o.stages)-1].Name()
	if err := o.repo.SetStage(ctx, run.ID, final, domain.RunStatusSucceeded, ""); err != nil {
		return fmt.Errorf("failed to mark run succeeded: %w", err)
	}
	run.Status = domain.RunStatusSucceeded

	log.Printf("run %s: all stages succeeded", run.ID)
	return nil
}

// failStage records the terminal state for a failed or timed-out stage. When
// the enclosing context is already cancelled (shutdown), the run is put back
// to pending so a worker can resume it; partial stage output is discarded.
func (o *Orchestrator) failStage(ctx context.Context, run *domain.PipelineRun, name domain.Stage, stageErr error, timedOut bool) error {
	persistCtx := context.WithoutCancel(ctx)

	if ctx.Err() != nil && !timedOut {
		log.Printf("run %s: stage %s interrupted, releasing run for retry", run.ID, name)
		if err := o.repo.SetStage(persistCtx, run.ID, name, domain.RunStatusPending, ""); err != nil {
			log.Printf("run %s: failed to release run: %v", run.ID, err)
		}
		run.Status = domain.RunStatusPending
		return stageErr
	}

	status := domain.RunStatusFailed
	if timedOut {
		status = domain.RunStatusTimedOut
		stageErr = errors.Join(domain.ErrStageTimedOut, stageErr)
	}

	log.Printf("run %s: stage %s ended %s: %v", run.ID, name, status, stageErr)
	telemetry.CaptureError(persistCtx, stageErr)
	if err := o.repo.SetStage(persistCtx, run.ID, name, status, stageErr.Error()); err != nil {
		log.Printf("run %s: failed to record stage failure: %v", run.ID, err)
	}
	run.Status = status
	run.FailureReason = stageErr.Error()

	return stageErr
}
