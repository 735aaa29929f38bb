package prompts

import (
	"time"

	"github.com/ZanzyTHEbar/review-relay/internal/payload"
)

// BuildContext extracts the fields prompt templates consume for an event
func BuildContext(eventType, action string, p payload.Tree) map[string]any {
	ctx := map[string]any{
		"event_type":             eventType,
		"action":                 action,
		"timestamp":              time.Now().UTC().Format(time.RFC3339),
		"repository_name":        p.String("", "repository", "full_name"),
		"repository_url":         p.String("", "repository", "html_url"),
		"repository_description": p.String("", "repository", "description"),
		"sender_login":           p.String("", "sender", "login"),
		"sender_type":            p.String("", "sender", "type"),
	}

	switch eventType {
	case "issues":
		ctx["issue_number"] = p.Int(0, "issue", "number")
		ctx["issue_title"] = p.String("", "issue", "title")
		ctx["issue_body"] = p.String("", "issue", "body")
		ctx["issue_user"] = p.String("", "issue", "user", "login")
		ctx["issue_url"] = p.String("", "issue", "html_url")
		ctx["issue_labels"] = p.Names("issue", "labels")

	case "pull_request":
		ctx["pr_number"] = p.Int(0, "pull_request", "number")
		ctx["pr_title"] = p.String("", "pull_request", "title")
		ctx["pr_body"] = p.String("", "pull_request", "body")
		ctx["pr_user"] = p.String("", "pull_request", "user", "login")
		ctx["pr_url"] = p.String("", "pull_request", "html_url")
		ctx["pr_labels"] = p.Names("pull_request", "labels")
		ctx["pr_state"] = p.String("", "pull_request", "state")
		ctx["pr_draft"] = p.Bool(false, "pull_request", "draft")
		ctx["head_branch"] = p.String("", "pull_request", "head", "ref")
		ctx["base_branch"] = p.String("", "pull_request", "base", "ref")

	case "pull_request_review":
		ctx["review_id"] = p.Int(0, "review", "id")
		ctx["review_state"] = p.String("", "review", "state")
		ctx["review_body"] = p.String("", "review", "body")
		ctx["reviewer"] = p.String(p.String("", "review", "user", "login"), "requested_reviewer", "login")
		ctx["requester"] = p.String("", "sender", "login")
		ctx["pr_number"] = p.Int(0, "pull_request", "number")
		ctx["pr_title"] = p.String("", "pull_request", "title")
		ctx["pr_user"] = p.String("", "pull_request", "user", "login")

	case "workflow_run":
		ctx["workflow_name"] = p.String("", "workflow_run", "name")
		ctx["workflow_status"] = p.String("", "workflow_run", "status")
		ctx["workflow_conclusion"] = p.String("", "workflow_run", "conclusion")
		ctx["workflow_run_id"] = p.Int(0, "workflow_run", "id")
		ctx["workflow_url"] = p.String("", "workflow_run", "html_url")
		ctx["head_branch"] = p.String("", "workflow_run", "head_branch")
		ctx["commit_sha"] = p.String("", "workflow_run", "head_sha")
		ctx["commit_message"] = p.String("", "workflow_run", "head_commit", "message")
	}

	return ctx
}
