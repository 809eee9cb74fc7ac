package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// TriggerAPIRequest represents the trigger API request.
type TriggerAPIRequest struct {
	DocumentID string `json:"document_id"`
	Domain     string `json:"domain,omitempty"`
	ModelID    string `json:"model_id,omitempty"`
}

// RunAPIResponse represents a pipeline run as returned by the API.
type RunAPIResponse struct {
	ID            string            `json:"id"`
	DocumentID    string            `json:"document_id"`
	Domain        string            `json:"domain,omitempty"`
	ModelID       string            `json:"model_id"`
	CurrentStage  string            `json:"current_stage"`
	Status        string            `json:"status"`
	FailureReason string            `json:"failure_reason,omitempty"`
	StageOutputs  map[string]string `json:"stage_outputs,omitempty"`
	CreatedAt     string            `json:"created_at"`
	UpdatedAt     string            `json:"updated_at"`
	CompletedAt   string            `json:"completed_at,omitempty"`
}

// TriggerCmd creates the trigger command.
func TriggerCmd() *cobra.Command {
	var (
		domainTag string
		modelID   string
	)

	cmd := &cobra.Command{
		Use:   "trigger <document-id>",
		Short: "Trigger a pipeline run for a document",
		Long:  "Creates a pending pipeline run; the server's worker picks it up and executes the stage sequence.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runTrigger(cmd, args[0], domainTag, modelID, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&domainTag, "domain", "d", "", "Domain tag carried through the run")
	cmd.Flags().StringVarP(&modelID, "model", "m", "", "Model ID (defaults to the server's configured model)")

	return cmd
}

func runTrigger(cmd *cobra.Command, documentID, domainTag, modelID string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Post("/runs", TriggerAPIRequest{
		DocumentID: documentID,
		Domain:     domainTag,
		ModelID:    modelID,
	})
	if err != nil {
		return fmt.Errorf("trigger failed: %w", err)
	}

	var run RunAPIResponse
	if err := json.Unmarshal(resp.Data, &run); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(run, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Run created: %s\n", run.ID)
	fmt.Printf("  Document: %s\n", run.DocumentID)
	fmt.Printf("  Model:    %s\n", run.ModelID)
	fmt.Printf("  Status:   %s\n", run.Status)
	return nil
}

// StatusCmd creates the status command.
func StatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show a pipeline run's current stage and status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runStatus(cmd, args[0], outputJSON)
		},
	}

	return cmd
}

func runStatus(cmd *cobra.Command, runID string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Get("/runs/" + runID)
	if err != nil {
		return fmt.Errorf("status failed: %w", err)
	}

	var run RunAPIResponse
	if err := json.Unmarshal(resp.Data, &run); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(run, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	printRun(run)
	return nil
}

// ListCmd creates the run list command.
func ListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runRunList(cmd, limit, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")

	return cmd
}

func runRunList(cmd *cobra.Command, limit int, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Get(fmt.Sprintf("/runs?limit=%d", limit))
	if err != nil {
		return fmt.Errorf("list failed: %w", err)
	}

	var runs []RunAPIResponse
	if err := json.Unmarshal(resp.Data, &runs); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(runs, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(runs) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	fmt.Printf("Found %d runs:\n\n", len(runs))
	for i, run := range runs {
		fmt.Printf("%d. %s [%s]\n", i+1, run.ID, run.Status)
		fmt.Printf("   Document: %s\n", run.DocumentID)
		fmt.Printf("   Stage:    %s\n", run.CurrentStage)
		if run.FailureReason != "" {
			fmt.Printf("   Failure:  %s\n", run.FailureReason)
		}
		if i < len(runs)-1 {
			fmt.Println(strings.Repeat("-", 40))
		}
	}

	return nil
}

func printRun(run RunAPIResponse) {
	fmt.Printf("Run %s\n", run.ID)
	fmt.Printf("  Document: %s\n", run.DocumentID)
	if run.Domain != "" {
		fmt.Printf("  Domain:   %s\n", run.Domain)
	}
	fmt.Printf("  Model:    %s\n", run.ModelID)
	fmt.Printf("  Stage:    %s\n", run.CurrentStage)
	fmt.Printf("  Status:   %s\n", run.Status)
	if run.FailureReason != "" {
		fmt.Printf("  Failure:  %s\n", run.FailureReason)
	}
	if len(run.StageOutputs) > 0 {
		fmt.Println("  Artifacts:")
		for stage, ref := range run.StageOutputs {
			fmt.Printf("    %s: %s\n", stage, ref)
		}
	}
	if run.CompletedAt != "" {
		fmt.Printf("  Completed: %s\n", run.CompletedAt)
	}
}
