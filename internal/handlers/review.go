package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/review-relay/internal/prompts"
	"github.com/ZanzyTHEbar/review-relay/internal/types"
)

// ReviewHandler prepares an analysis when a reviewer is requested
type ReviewHandler struct {
	deps Deps
	now  func() time.Time
}

const reviewPromptAction = "requested"

// Handle prepares a review brief when a reviewer is requested
func (h *ReviewHandler) Handle(ctx context.Context, req Request) types.HandlerResult {
	ev := req.Event
	p := ev.Payload
	if !p.Has("requested_reviewer") {
		return types.Ignored("not a review request")
	}

	number := int(p.Int(0, "pull_request", "number"))
	if number == 0 {
		return types.Failed("payload has no pull request number")
	}
	reviewer := p.String("", "requested_reviewer", "login")
	requester := p.String("", "sender", "login")
	logger := h.deps.log(req).With("repository", ev.Repository, "pull_request", number, "reviewer", reviewer)

	pr, err := h.deps.Host.GetPullRequest(ctx, ev.Repository, number)
	if err != nil {
		return types.Failed(fmt.Sprintf("fetch pull request: %v", err))
	}

	data := prompts.BuildContext(ev.EventType, ev.Action, p)
	data["reviewer"] = reviewer
	data["requester"] = requester
	data["pr_files"] = pr.Files

	prompt, ok := h.deps.Prompts.Render(ev.EventType, reviewPromptAction, data)
	if !ok {
		return types.Failed(ReasonNoTemplate)
	}

	analysis, err := h.deps.Analyzer.Analyze(ctx, prompt, reviewInput(ev.Repository, pr, reviewer, requester))
	if err != nil {
		return types.Failed(fmt.Sprintf("analysis failed: %v", err))
	}

	path, err := h.deps.Artifacts.Write(KindReviews, reviewArtifact(number, h.clock().Unix()), analysis)
	if err != nil {
		return types.Failed(fmt.Sprintf("save analysis: %v", err))
	}

	if req.Repo.PostComments() {
		h.deps.Host.PostComment(ctx, ev.Repository, number, reviewComment(analysis, reviewer, timestampOf(data)))
	}

	logger.Info("Review analysis completed", "artifact", path)
	return types.Success(types.SuccessDetails{
		ArtifactPath: path,
		Identifier:   int64(number),
		Extra:        map[string]any{"reviewer": reviewer},
	})
}

func (h *ReviewHandler) clock() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}
