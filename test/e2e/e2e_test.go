//go:build e2e

package e2e

import (
	"encoding/json"
	"testing"

	"github.com/cloo-solutions/docpipe/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runPayload struct {
	ID            string            `json:"id"`
	DocumentID    string            `json:"document_id"`
	Domain        string            `json:"domain"`
	ModelID       string            `json:"model_id"`
	CurrentStage  string            `json:"current_stage"`
	Status        string            `json:"status"`
	FailureReason string            `json:"failure_reason"`
	StageOutputs  map[string]string `json:"stage_outputs"`
	CompletedAt   *string           `json:"completed_at"`
}

func TestE2E_HealthCheck(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	resp, err := env.Get("/health")
	require.NoError(t, err)

	var health map[string]string
	require.NoError(t, json.Unmarshal(resp.Data, &health))
	assert.Equal(t, "ok", health["status"])
}

func TestE2E_TriggerStatusList(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	var created runPayload

	t.Run("trigger run", func(t *testing.T) {
		resp, err := env.Post("/runs", map[string]string{
			"document_id": "doc-e2e-1",
			"domain":      "billing",
		})
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(resp.Data, &created))

		require.NotEmpty(t, created.ID)
		assert.Equal(t, string(domain.RunStatusPending), created.Status)
		assert.Equal(t, string(domain.StageCollectDocs), created.CurrentStage)
		assert.Equal(t, openai.GPT4oMini, created.ModelID)
	})

	t.Run("status round trip", func(t *testing.T) {
		resp, err := env.Get("/runs/" + created.ID)
		require.NoError(t, err)

		var fetched runPayload
		require.NoError(t, json.Unmarshal(resp.Data, &fetched))
		assert.Equal(t, created.ID, fetched.ID)
		assert.Equal(t, "doc-e2e-1", fetched.DocumentID)
		assert.Equal(t, "billing", fetched.Domain)
	})

	t.Run("list includes run", func(t *testing.T) {
		resp, err := env.Get("/runs?limit=10")
		require.NoError(t, err)

		var runs []runPayload
		require.NoError(t, json.Unmarshal(resp.Data, &runs))

		found := false
		for _, r := range runs {
			if r.ID == created.ID {
				found = true
			}
		}
		assert.True(t, found, "triggered run missing from list")
	})
}

func TestE2E_TriggerValidation(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	t.Run("missing document ID", func(t *testing.T) {
		_, err := env.Post("/runs", map[string]string{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")
	})

	t.Run("unknown model", func(t *testing.T) {
		_, err := env.Post("/runs", map[string]string{
			"document_id": "doc-1",
			"model_id":    "not-a-real-model",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")
	})
}

func TestE2E_StatusUnknownRun(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	_, err := env.Get("/runs/00000000-0000-0000-0000-000000000000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

// TestE2E_RunLifecycle drives a run through the full stage sequence the way
// the worker does, then checks the API reflects the terminal state.
func TestE2E_RunLifecycle(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	resp, err := env.Post("/runs", map[string]string{"document_id": "doc-lifecycle"})
	require.NoError(t, err)

	var created runPayload
	require.NoError(t, json.Unmarshal(resp.Data, &created))

	t.Run("claim is exclusive", func(t *testing.T) {
		claimed, err := env.RunRepo.ClaimPending(env.Ctx, 10)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, created.ID, claimed[0].ID)

		again, err := env.RunRepo.ClaimPending(env.Ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, again)
	})

	t.Run("stage sequence to terminal state", func(t *testing.T) {
		for _, stage := range domain.StageSequence {
			require.NoError(t, env.RunRepo.SetStage(env.Ctx, created.ID, stage, domain.RunStatusRunning, ""))
			ref := "artifacts/" + created.ID + "/" + string(stage)
			require.NoError(t, env.RunRepo.RecordStageOutput(env.Ctx, created.ID, stage, ref))
		}
		final := domain.StageSequence[len(domain.StageSequence)-1]
		require.NoError(t, env.RunRepo.SetStage(env.Ctx, created.ID, final, domain.RunStatusSucceeded, ""))

		statusResp, err := env.Get("/runs/" + created.ID)
		require.NoError(t, err)

		var done runPayload
		require.NoError(t, json.Unmarshal(statusResp.Data, &done))
		assert.Equal(t, string(domain.RunStatusSucceeded), done.Status)
		assert.Len(t, done.StageOutputs, len(domain.StageSequence))
		assert.NotNil(t, done.CompletedAt)
	})
}

func TestE2E_CLIFlow(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.BuildBinaries()

	var created runPayload

	t.Run("trigger with JSON output", func(t *testing.T) {
		out, err := env.RunDocpipe("trigger", "doc-cli-1", "--domain", "identity", "--output")
		require.NoError(t, err, out)
		require.NoError(t, json.Unmarshal([]byte(out), &created), out)
		assert.Equal(t, "doc-cli-1", created.DocumentID)
		assert.Equal(t, string(domain.RunStatusPending), created.Status)
	})

	t.Run("status renders run", func(t *testing.T) {
		out, err := env.RunDocpipe("status", created.ID)
		require.NoError(t, err, out)
		assert.Contains(t, out, created.ID)
		assert.Contains(t, out, "pending")
	})

	t.Run("list includes run", func(t *testing.T) {
		out, err := env.RunDocpipe("list")
		require.NoError(t, err, out)
		assert.Contains(t, out, created.ID)
	})
}
