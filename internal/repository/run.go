package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/docpipe/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RunRepository persists pipeline runs and their per-stage outputs.
type RunRepository struct {
	db dbtx
}

func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{db: pool}
}

func NewRunRepositoryWithTx(tx pgx.Tx) *RunRepository {
	return &RunRepository{db: tx}
}

func (r *RunRepository) Create(ctx context.Context, run *domain.PipelineRun) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO pipeline_runs (id, document_id, domain, model_id, current_stage, status, failure_reason, created_at, updated_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.DocumentID, run.Domain, run.ModelID, run.CurrentStage, run.Status,
		nullable(run.FailureReason), run.CreatedAt, run.UpdatedAt, run.CompletedAt,
	)
	return err
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.PipelineRun, error) {
	var run domain.PipelineRun
	var reason pgtype.Text
	err := r.db.QueryRow(ctx,
		`SELECT id, document_id, domain, model_id, current_stage, status, failure_reason, created_at, updated_at, completed_at
		 FROM pipeline_runs WHERE id = $1`,
		id,
	).Scan(&run.ID, &run.DocumentID, &run.Domain, &run.ModelID, &run.CurrentStage, &run.Status,
		&reason, &run.CreatedAt, &run.UpdatedAt, &run.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRunNotFound
		}
		return nil, err
	}
	if reason.Valid {
		run.FailureReason = reason.String
	}

	outputs, err := r.stageOutputs(ctx, id)
	if err != nil {
		return nil, err
	}
	run.StageOutputs = outputs

	return &run, nil
}

func (r *RunRepository) List(ctx context.Context, limit int) ([]*domain.PipelineRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, document_id, domain, model_id, current_stage, status, failure_reason, created_at, updated_at, completed_at
		 FROM pipeline_runs
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRuns(rows)
}

// ClaimPending atomically claims up to limit pending runs and marks them
// running, so concurrent workers never pick up the same run.
func (r *RunRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.PipelineRun, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Query(ctx,
		`WITH cte AS (
			 SELECT id
			 FROM pipeline_runs
			 WHERE status = $1
			 ORDER BY created_at ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT $2
		 )
		 UPDATE pipeline_runs
		 SET status = $3,
		     updated_at = now()
		 FROM cte
		 WHERE pipeline_runs.id = cte.id
		 RETURNING pipeline_runs.id, pipeline_runs.document_id, pipeline_runs.domain, pipeline_runs.model_id,
		           pipeline_runs.current_stage, pipeline_runs.status, pipeline_runs.failure_reason,
		           pipeline_runs.created_at, pipeline_runs.updated_at, pipeline_runs.completed_at`,
		domain.RunStatusPending, limit, domain.RunStatusRunning,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRuns(rows)
}

// SetStage records the run's current stage and status. Terminal statuses also
// stamp completed_at.
func (r *RunRepository) SetStage(ctx context.Context, id string, stage domain.Stage, status domain.RunStatus, reason string) error {
	var completedAt *time.Time
	if status.IsTerminal() {
		now := time.Now().UTC()
		completedAt = &now
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE pipeline_runs
		 SET current_stage = $1, status = $2, failure_reason = $3, updated_at = now(), completed_at = $4
		 WHERE id = $5`,
		stage, status, nullable(reason), completedAt, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

// RecordStageOutput writes the artifact reference for a run's stage. Writes
// are append-only and idempotent: re-running a stage with the same run keeps
// the first recorded artifact.
func (r *RunRepository) RecordStageOutput(ctx context.Context, runID string, stage domain.Stage, artifactRef string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO stage_outputs (run_id, stage, artifact_ref, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (run_id, stage) DO NOTHING`,
		runID, stage, artifactRef, time.Now().UTC(),
	)
	return err
}

// GetStageOutput returns the recorded artifact reference for a run's stage.
func (r *RunRepository) GetStageOutput(ctx context.Context, runID string, stage domain.Stage) (string, error) {
	var ref string
	err := r.db.QueryRow(ctx,
		`SELECT artifact_ref FROM stage_outputs WHERE run_id = $1 AND stage = $2`,
		runID, stage,
	).Scan(&ref)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrArtifactNotFound
		}
		return "", err
	}
	return ref, nil
}

func (r *RunRepository) stageOutputs(ctx context.Context, runID string) (map[domain.Stage]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT stage, artifact_ref FROM stage_outputs WHERE run_id = $1`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	outputs := make(map[domain.Stage]string)
	for rows.Next() {
		var stage domain.Stage
		var ref string
		if err := rows.Scan(&stage, &ref); err != nil {
			return nil, err
		}
		outputs[stage] = ref
	}
	return outputs, rows.Err()
}

func scanRuns(rows pgx.Rows) ([]*domain.PipelineRun, error) {
	var runs []*domain.PipelineRun
	for rows.Next() {
		var run domain.PipelineRun
		var reason pgtype.Text
		if err := rows.Scan(&run.ID, &run.DocumentID, &run.Domain, &run.ModelID, &run.CurrentStage, &run.Status,
			&reason, &run.CreatedAt, &run.UpdatedAt, &run.CompletedAt); err != nil {
			return nil, err
		}
		if reason.Valid {
			run.FailureReason = reason.String
		}
		run.StageOutputs = make(map[domain.Stage]string)
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
