package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cloo-solutions/docpipe/internal/api"
	"github.com/cloo-solutions/docpipe/internal/domain"
	"github.com/cloo-solutions/docpipe/internal/service"
	"github.com/go-chi/chi/v5"
)

type RunService interface {
	Trigger(ctx context.Context, input service.TriggerInput) (*domain.PipelineRun, error)
	GetByID(ctx context.Context, id string) (*domain.PipelineRun, error)
	List(ctx context.Context, limit int) ([]*domain.PipelineRun, error)
}

type RunHandler struct {
	svc RunService
}

func NewRunHandler(svc RunService) *RunHandler {
	return &RunHandler{svc: svc}
}

type TriggerRunRequest struct {
	DocumentID string `json:"document_id"`
	Domain     string `json:"domain"`
	ModelID    string `json:"model_id"`
}

type RunResponse struct {
	ID            string            `json:"id"`
	DocumentID    string            `json:"document_id"`
	Domain        string            `json:"domain,omitempty"`
	ModelID       string            `json:"model_id"`
	CurrentStage  string            `json:"current_stage"`
	Status        string            `json:"status"`
	FailureReason string            `json:"failure_reason,omitempty"`
	StageOutputs  map[string]string `json:"stage_outputs,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

func toRunResponse(run *domain.PipelineRun) RunResponse {
	resp := RunResponse{
		ID:            run.ID,
		DocumentID:    run.DocumentID,
		Domain:        run.Domain,
		ModelID:       run.ModelID,
		CurrentStage:  string(run.CurrentStage),
		Status:        string(run.Status),
		FailureReason: run.FailureReason,
		CreatedAt:     run.CreatedAt,
		UpdatedAt:     run.UpdatedAt,
		CompletedAt:   run.CompletedAt,
	}
	if len(run.StageOutputs) > 0 {
		resp.StageOutputs = make(map[string]string, len(run.StageOutputs))
		for stage, ref := range run.StageOutputs {
			resp.StageOutputs[string(stage)] = ref
		}
	}
	return resp
}

// Trigger handles POST /runs
func (h *RunHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	run, err := h.svc.Trigger(r.Context(), service.TriggerInput{
		DocumentID: req.DocumentID,
		Domain:     req.Domain,
		ModelID:    req.ModelID,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, toRunResponse(run))
}

// Get handles GET /runs/{id}. Read-only: reports the run's current stage,
// status, failure reason, and recorded stage outputs.
func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, toRunResponse(run))
}

// List handles GET /runs
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	runs, err := h.svc.List(r.Context(), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, toRunResponse(run))
	}

	api.Success(w, http.StatusOK, resp)
}
