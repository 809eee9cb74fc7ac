package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/cloo-solutions/docpipe/internal/domain"
)

const (
	// DefaultClaimLimit caps how many pending runs one poll picks up.
	DefaultClaimLimit = 5
)

// RunRepository defines the interface for claiming pending pipeline runs
type RunRepository interface {
	// ClaimPending retrieves and claims pending runs, marking them running
	ClaimPending(ctx context.Context, limit int) ([]*domain.PipelineRun, error)
}

// RunExecutor defines the interface for executing a claimed run
type RunExecutor interface {
	Execute(ctx context.Context, run *domain.PipelineRun) error
}

// RunWorker drives claimed pipeline runs through the orchestrator
type RunWorker struct {
	repo       RunRepository
	executor   RunExecutor
	claimLimit int
}

// NewRunWorker creates a new RunWorker instance
func NewRunWorker(repo RunRepository, executor RunExecutor) *RunWorker {
	return &RunWorker{
		repo:       repo,
		executor:   executor,
		claimLimit: DefaultClaimLimit,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *RunWorker) ProcessJobs(ctx context.Context) error {
	runs, err := w.repo.ClaimPending(ctx, w.claimLimit)
	if err != nil {
		return fmt.Errorf("failed to claim pending runs: %w", err)
	}

	if len(runs) == 0 {
		return nil
	}

	log.Printf("processing %d claimed pipeline runs", len(runs))

	// Runs execute sequentially: stage parallelism lives inside the analyze
	// stage's chunk pool, not across runs on one worker.
	for _, run := range runs {
		if err := w.executor.Execute(ctx, run); err != nil {
			// Terminal state and failure reason were already recorded by the
			// orchestrator; nothing to do here beyond the log line.
			log.Printf("run %s ended with error: %v", run.ID, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return nil
}
