package handlers

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/review-relay/internal/prompts"
	"github.com/ZanzyTHEbar/review-relay/internal/types"
)

// WorkflowHandler diagnoses failed workflow runs. It never writes back to
// the source host.
type WorkflowHandler struct {
	deps Deps
}

// Handle analyzes failed workflow runs and only writes an artifact
func (h *WorkflowHandler) Handle(ctx context.Context, req Request) types.HandlerResult {
	ev := req.Event
	if ev.Action != "completed" {
		return types.Ignored(actionNotHandled(ev.Action))
	}

	p := ev.Payload
	conclusion := p.String("", "workflow_run", "conclusion")
	if conclusion != "failure" {
		return types.Ignored(fmt.Sprintf("conclusion '%s' not handled", conclusion))
	}

	runID := p.Int(0, "workflow_run", "id")
	if runID == 0 {
		return types.Failed("payload has no workflow run id")
	}
	name := p.String("", "workflow_run", "name")

	data := prompts.BuildContext(ev.EventType, ev.Action, p)
	prompt, ok := h.deps.Prompts.Render(ev.EventType, ev.Action, data)
	if !ok {
		return types.Failed(ReasonNoTemplate)
	}

	analysis, err := h.deps.Analyzer.Analyze(ctx, prompt, workflowInput(ev.Repository, p))
	if err != nil {
		return types.Failed(fmt.Sprintf("analysis failed: %v", err))
	}

	path, err := h.deps.Artifacts.Write(KindWorkflows, workflowArtifact(runID), analysis)
	if err != nil {
		return types.Failed(fmt.Sprintf("save analysis: %v", err))
	}

	h.deps.log(req).Info("Workflow failure analyzed", "repository", ev.Repository, "workflow", name, "run_id", runID, "artifact", path)
	return types.Success(types.SuccessDetails{
		ArtifactPath: path,
		Identifier:   runID,
		Extra:        map[string]any{"workflow_name": name},
	})
}
