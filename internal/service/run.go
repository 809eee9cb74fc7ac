package service

import (
	"context"
	"time"

	"github.com/cloo-solutions/docpipe/internal/domain"
	"github.com/google/uuid"
)

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// RunRepositoryInterface defines the repository interface for pipeline runs
type RunRepositoryInterface interface {
	Create(ctx context.Context, run *domain.PipelineRun) error
	GetByID(ctx context.Context, id string) (*domain.PipelineRun, error)
	List(ctx context.Context, limit int) ([]*domain.PipelineRun, error)
}

// ModelCatalog reports whether a model ID has a registered profile.
type ModelCatalog interface {
	HasProfile(modelID string) bool
}

// RunService handles triggering and querying pipeline runs. Execution itself
// belongs to the orchestrator; the service only creates pending runs for the
// worker to claim.
type RunService struct {
	repo           RunRepositoryInterface
	catalog        ModelCatalog
	uuidGen        UUIDGenerator
	defaultModelID string
}

// NewRunService creates a new RunService instance
func NewRunService(repo RunRepositoryInterface, catalog ModelCatalog, defaultModelID string) *RunService {
	return &RunService{
		repo:           repo,
		catalog:        catalog,
		uuidGen:        &DefaultUUIDGenerator{},
		defaultModelID: defaultModelID,
	}
}

// NewRunServiceWithUUIDGen creates a RunService with an explicit UUID generator
func NewRunServiceWithUUIDGen(repo RunRepositoryInterface, catalog ModelCatalog, defaultModelID string, uuidGen UUIDGenerator) *RunService {
	svc := NewRunService(repo, catalog, defaultModelID)
	svc.uuidGen = uuidGen
	return svc
}

// TriggerInput is the external trigger: a document identifier and a domain tag.
type TriggerInput struct {
	DocumentID string
	Domain     string
	ModelID    string
}

// Trigger creates a pending pipeline run for the document.
func (s *RunService) Trigger(ctx context.Context, input TriggerInput) (*domain.PipelineRun, error) {
	if input.DocumentID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "document_id is required")
	}

	modelID := input.ModelID
	if modelID == "" {
		modelID = s.defaultModelID
	}
	if s.catalog != nil && !s.catalog.HasProfile(modelID) {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "unknown model: "+modelID)
	}

	run := domain.NewPipelineRun(s.uuidGen.NewString(), input.DocumentID, input.Domain, modelID, time.Now().UTC())
	if err := domain.ValidatePipelineRun(run); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid run", err)
	}

	if err := s.repo.Create(ctx, run); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to create run", err)
	}

	return run, nil
}

// GetByID returns a run with its recorded stage outputs.
func (s *RunService) GetByID(ctx context.Context, id string) (*domain.PipelineRun, error) {
	if id == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "run id is required")
	}
	return s.repo.GetByID(ctx, id)
}

// List returns recent runs, newest first.
func (s *RunService) List(ctx context.Context, limit int) ([]*domain.PipelineRun, error) {
	return s.repo.List(ctx, limit)
}
