// Package handlers holds the per-event analysis strategies and the router
// that selects one for an inbound event.
package handlers

import (
	"context"
	"log/slog"
	"sort"

	"github.com/ZanzyTHEbar/review-relay/internal/monitoring"
	"github.com/ZanzyTHEbar/review-relay/internal/policy"
	"github.com/ZanzyTHEbar/review-relay/internal/types"
)

// Request is everything a handler needs for one dispatch
type Request struct {
	Event         types.InboundEvent
	CorrelationID string
	Repo          policy.Entry
}

// Handler processes one event type
type Handler interface {
	Handle(ctx context.Context, req Request) types.HandlerResult
}

// Analyzer produces an analysis from a rendered prompt and an item description
type Analyzer interface {
	Analyze(ctx context.Context, prompt, input string) (string, error)
}

// SourceHost is the source-control API. Write operations are best effort:
// they log their own failures and report success as a bool.
type SourceHost interface {
	GetIssue(ctx context.Context, repo string, number int) (types.IssueDetails, error)
	GetPullRequest(ctx context.Context, repo string, number int) (types.PullRequestDetails, error)
	PostComment(ctx context.Context, repo string, number int, body string) bool
	AddLabels(ctx context.Context, repo string, number int, labels []string) bool
	CloseItem(ctx context.Context, repo string, number int, comment string) bool
}

// PromptRenderer renders the template for an (event type, action) pair.
// false means no template is configured.
type PromptRenderer interface {
	Render(eventType, action string, data map[string]any) (string, bool)
}

// ArtifactWriter persists an analysis and returns its path
type ArtifactWriter interface {
	Write(kind, fileName, content string) (string, error)
}

// Deps are the collaborators shared by every handler
type Deps struct {
	Analyzer      Analyzer
	Host          SourceHost
	Prompts       PromptRenderer
	Artifacts     ArtifactWriter
	SentinelLabel string
	Logger        *monitoring.Logger
}

func (d Deps) log(req Request) *monitoring.Logger {
	logger := d.Logger
	if logger == nil {
		logger = &monitoring.Logger{Logger: slog.Default()}
	}
	return logger.WithCorrelation(req.CorrelationID)
}

// DefaultSentinelLabel marks issues that have already been analyzed
const DefaultSentinelLabel = "clide-analyzed"

func (d Deps) sentinel() string {
	if d.SentinelLabel == "" {
		return DefaultSentinelLabel
	}
	return d.SentinelLabel
}

// Router maps event types to handlers. It is read-only after construction.
type Router struct {
	handlers map[string]Handler
}

// NewRouter creates a router over the given handlers
func NewRouter(handlers map[string]Handler) *Router {
	r := &Router{handlers: make(map[string]Handler, len(handlers))}
	for ev, h := range handlers {
		r.handlers[ev] = h
	}
	return r
}

// NewDefaultRouter registers the handler for every supported event type
func NewDefaultRouter(deps Deps) *Router {
	return NewRouter(map[string]Handler{
		EventIssues:            &IssueHandler{deps: deps},
		EventPullRequest:       &PullRequestHandler{deps: deps},
		EventPullRequestReview: &ReviewHandler{deps: deps},
		EventWorkflowRun:       &WorkflowHandler{deps: deps},
	})
}

// Lookup returns the handler registered for eventType
func (r *Router) Lookup(eventType string) (Handler, bool) {
	h, ok := r.handlers[eventType]
	return h, ok
}

// EventTypes lists the registered event types in sorted order
func (r *Router) EventTypes() []string {
	out := make([]string, 0, len(r.handlers))
	for ev := range r.handlers {
		out = append(out, ev)
	}
	sort.Strings(out)
	return out
}

// Event types with a registered handler
const (
	EventIssues            = "issues"
	EventPullRequest       = "pull_request"
	EventPullRequestReview = "pull_request_review"
	EventWorkflowRun       = "workflow_run"
)

// Artifact kinds, matching the keys of outputs.directories
const (
	KindIssues       = "issues"
	KindPullRequests = "pull_requests"
	KindReviews      = "reviews"
	KindWorkflows    = "workflows"
)

// ReasonNoTemplate is returned when no prompt is configured for the event
const ReasonNoTemplate = "no prompt template"
