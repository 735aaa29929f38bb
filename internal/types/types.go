package types

import (
	"time"

	"github.com/ZanzyTHEbar/review-relay/internal/payload"
)

// InboundEvent represents a decoded webhook delivery handed to the dispatch engine
type InboundEvent struct {
	EventType  string       `json:"event_type"`
	Action     string       `json:"action"`
	DeliveryID string       `json:"delivery_id,omitempty"`
	Repository string       `json:"repository"`
	Payload    payload.Tree `json:"-"`
	ReceivedAt time.Time    `json:"received_at"`
}

// ResultKind tags the variant of a HandlerResult
type ResultKind string

const (
	KindSuccess ResultKind = "success"
	KindIgnored ResultKind = "ignored"
	KindSkipped ResultKind = "skipped"
	KindError   ResultKind = "error"
)

// SuccessDetails describes what a handler produced
type SuccessDetails struct {
	ArtifactPath  string         `json:"artifact_path"`
	Identifier    int64          `json:"identifier"`
	AppliedLabels []string       `json:"applied_labels"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// HandlerResult is the outcome of exactly one dispatch
type HandlerResult struct {
	Kind    ResultKind      `json:"status"`
	Reason  string          `json:"reason,omitempty"`
	Message string          `json:"message,omitempty"`
	Details *SuccessDetails `json:"details,omitempty"`
}

func Success(details SuccessDetails) HandlerResult {
	if details.AppliedLabels == nil {
		details.AppliedLabels = []string{}
	}
	return HandlerResult{Kind: KindSuccess, Details: &details}
}

func Ignored(reason string) HandlerResult {
	return HandlerResult{Kind: KindIgnored, Reason: reason}
}

func Skipped(reason string) HandlerResult {
	return HandlerResult{Kind: KindSkipped, Reason: reason}
}

func Failed(message string) HandlerResult {
	return HandlerResult{Kind: KindError, Message: message}
}

// Summary returns the reason or message carried by the result, if any
func (r HandlerResult) Summary() string {
	if r.Kind == KindError {
		return r.Message
	}
	return r.Reason
}

// IssueDetails is the subset of an issue the handlers consume
type IssueDetails struct {
	Number int      `json:"number"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	State  string   `json:"state"`
	Author string   `json:"author"`
	Labels []string `json:"labels"`
	URL    string   `json:"url"`
}

// PullRequestDetails extends issue details with branch and change information
type PullRequestDetails struct {
	IssueDetails
	HeadBranch   string   `json:"head_branch"`
	BaseBranch   string   `json:"base_branch"`
	Additions    int      `json:"additions"`
	Deletions    int      `json:"deletions"`
	ChangedFiles int      `json:"changed_files"`
	Files        []string `json:"files"`
	Diff         string   `json:"diff"`
}

// ChangedLines is the total number of added and removed lines
func (p PullRequestDetails) ChangedLines() int {
	return p.Additions + p.Deletions
}
