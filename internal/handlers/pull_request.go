package handlers

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/review-relay/internal/prompts"
	"github.com/ZanzyTHEbar/review-relay/internal/types"
)

// PullRequestHandler reviews opened and updated pull requests
type PullRequestHandler struct {
	deps Deps
}

// Prompt actions differ from webhook actions for pull requests
var pullRequestPromptActions = map[string]string{
	"opened":      "new_pr",
	"synchronize": "pr_updated",
}

// Handle analyzes opened and updated pull requests and labels them by size and type
func (h *PullRequestHandler) Handle(ctx context.Context, req Request) types.HandlerResult {
	ev := req.Event
	promptAction, ok := pullRequestPromptActions[ev.Action]
	if !ok {
		return types.Ignored(actionNotHandled(ev.Action))
	}

	p := ev.Payload
	number := int(p.Int(0, "pull_request", "number"))
	if number == 0 {
		return types.Failed("payload has no pull request number")
	}
	logger := h.deps.log(req).With("repository", ev.Repository, "pull_request", number)

	pr, err := h.deps.Host.GetPullRequest(ctx, ev.Repository, number)
	if err != nil {
		return types.Failed(fmt.Sprintf("fetch pull request: %v", err))
	}

	data := prompts.BuildContext(ev.EventType, ev.Action, p)
	data["pr_additions"] = pr.Additions
	data["pr_deletions"] = pr.Deletions
	data["pr_changed_files"] = pr.ChangedFiles
	data["pr_files"] = pr.Files

	prompt, ok := h.deps.Prompts.Render(ev.EventType, promptAction, data)
	if !ok {
		return types.Failed(ReasonNoTemplate)
	}

	draft := p.Bool(false, "pull_request", "draft")
	analysis, err := h.deps.Analyzer.Analyze(ctx, prompt, pullRequestInput(ev.Repository, pr, draft))
	if err != nil {
		return types.Failed(fmt.Sprintf("analysis failed: %v", err))
	}

	path, err := h.deps.Artifacts.Write(KindPullRequests, prArtifact(number), analysis)
	if err != nil {
		return types.Failed(fmt.Sprintf("save analysis: %v", err))
	}

	if req.Repo.PostComments() {
		h.deps.Host.PostComment(ctx, ev.Repository, number, pullRequestComment(analysis, timestampOf(data)))
	}

	applied := []string{}
	if req.Repo.ApplyLabels() {
		labels := PullRequestLabels(analysis, pr.ChangedLines())
		if h.deps.Host.AddLabels(ctx, ev.Repository, number, labels) {
			applied = labels
		}
	}

	logger.Info("Pull request analyzed", "artifact", path, "labels", applied, "action", ev.Action)
	return types.Success(types.SuccessDetails{
		ArtifactPath:  path,
		Identifier:    int64(number),
		AppliedLabels: applied,
		Extra:         map[string]any{"action": ev.Action},
	})
}
