package handlers

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/review-relay/internal/prompts"
	"github.com/ZanzyTHEbar/review-relay/internal/types"
)

// IssueHandler triages newly opened issues
type IssueHandler struct {
	deps Deps
}

// Handle analyzes an opened issue once. Issues carrying the sentinel label
// are skipped without touching any collaborator.
func (h *IssueHandler) Handle(ctx context.Context, req Request) types.HandlerResult {
	ev := req.Event
	if ev.Action != "opened" {
		return types.Ignored(actionNotHandled(ev.Action))
	}

	p := ev.Payload
	number := int(p.Int(0, "issue", "number"))
	if number == 0 {
		return types.Failed("payload has no issue number")
	}
	logger := h.deps.log(req).With("repository", ev.Repository, "issue", number)

	labels := p.Names("issue", "labels")
	if !p.Has("issue", "labels") {
		details, err := h.deps.Host.GetIssue(ctx, ev.Repository, number)
		if err != nil {
			logger.Warn("Could not fetch issue labels", "error", err)
		} else {
			labels = details.Labels
		}
	}
	sentinel := h.deps.sentinel()
	if contains(labels, sentinel) {
		return types.Skipped("already analyzed")
	}

	data := prompts.BuildContext(ev.EventType, ev.Action, p)
	prompt, ok := h.deps.Prompts.Render(ev.EventType, ev.Action, data)
	if !ok {
		return types.Failed(ReasonNoTemplate)
	}

	analysis, err := h.deps.Analyzer.Analyze(ctx, prompt, issueInput(ev.Repository, p, labels))
	if err != nil {
		return types.Failed(fmt.Sprintf("analysis failed: %v", err))
	}

	path, err := h.deps.Artifacts.Write(KindIssues, issueArtifact(number), analysis)
	if err != nil {
		return types.Failed(fmt.Sprintf("save analysis: %v", err))
	}

	applied := []string{}
	if req.Repo.ApplyLabels() {
		if suggested := ExtractLabels(analysis); len(suggested) > 0 {
			if h.deps.Host.AddLabels(ctx, ev.Repository, number, suggested) {
				applied = suggested
			}
		}
	}

	if req.Repo.PostComments() {
		h.deps.Host.PostComment(ctx, ev.Repository, number, issueComment(analysis, timestampOf(data)))
	}

	closed := false
	if req.Repo.AutoCloseInvalid() && ShouldClose(analysis) {
		closed = h.deps.Host.CloseItem(ctx, ev.Repository, number, closeComment)
	}

	if !h.deps.Host.AddLabels(ctx, ev.Repository, number, []string{sentinel}) {
		logger.Warn("Could not apply sentinel label", "label", sentinel)
	}

	logger.Info("Issue analyzed", "artifact", path, "labels", applied, "closed", closed)
	return types.Success(types.SuccessDetails{
		ArtifactPath:  path,
		Identifier:    int64(number),
		AppliedLabels: applied,
		Extra:         map[string]any{"closed": closed},
	})
}
