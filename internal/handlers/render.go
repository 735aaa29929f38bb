package handlers

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ZanzyTHEbar/review-relay/internal/payload"
	"github.com/ZanzyTHEbar/review-relay/internal/types"
)

// Diff excerpts sent to the analyzer are capped per event kind
const (
	prDiffLimit     = 5000
	reviewDiffLimit = 8000
)

const footer = "*This analysis was generated automatically by review-relay. " +
	"The suggestions above are machine-generated and should be reviewed by a human maintainer.*"

const closeComment = `## Issue Closed by Automated Analysis

This issue has been automatically closed based on the analysis above.

If you believe this was closed in error, please provide additional context and ask a maintainer to review the decision.`

func actionNotHandled(action string) string {
	return fmt.Sprintf("action '%s' not handled", action)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return cutAtRune(s, limit) + "\n... (truncated)"
}

// cutAtRune returns at most limit bytes of s without splitting a UTF-8 sequence
func cutAtRune(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

func issueInput(repo string, p payload.Tree, labels []string) string {
	var b strings.Builder
	b.WriteString("# GitHub Issue Analysis Request\n\n## Issue Details\n")
	fmt.Fprintf(&b, "- **Repository**: %s\n", repo)
	fmt.Fprintf(&b, "- **Issue Number**: #%d\n", p.Int(0, "issue", "number"))
	fmt.Fprintf(&b, "- **Title**: %s\n", p.String("", "issue", "title"))
	fmt.Fprintf(&b, "- **URL**: %s\n", p.String("", "issue", "html_url"))
	fmt.Fprintf(&b, "- **Author**: %s\n", p.String("", "issue", "user", "login"))
	fmt.Fprintf(&b, "- **Labels**: %s\n", strings.Join(labels, ", "))
	fmt.Fprintf(&b, "\n## Issue Description\n%s\n", p.String("", "issue", "body"))
	return b.String()
}

func pullRequestInput(repo string, pr types.PullRequestDetails, draft bool) string {
	var b strings.Builder
	b.WriteString("# GitHub Pull Request Analysis Request\n\n## PR Details\n")
	fmt.Fprintf(&b, "- **Repository**: %s\n", repo)
	fmt.Fprintf(&b, "- **PR Number**: #%d\n", pr.Number)
	fmt.Fprintf(&b, "- **Title**: %s\n", pr.Title)
	fmt.Fprintf(&b, "- **URL**: %s\n", pr.URL)
	fmt.Fprintf(&b, "- **Author**: %s\n", pr.Author)
	fmt.Fprintf(&b, "- **State**: %s\n", pr.State)
	fmt.Fprintf(&b, "- **Draft**: %t\n", draft)
	fmt.Fprintf(&b, "\n## PR Description\n%s\n", pr.Body)
	fmt.Fprintf(&b, "\n## Files Changed\n%s\n", strings.Join(pr.Files, ", "))
	b.WriteString("\n## Statistics\n")
	fmt.Fprintf(&b, "- **Additions**: %d\n", pr.Additions)
	fmt.Fprintf(&b, "- **Deletions**: %d\n", pr.Deletions)
	fmt.Fprintf(&b, "- **Changed Files**: %d\n", pr.ChangedFiles)
	fmt.Fprintf(&b, "\n## Code Diff\n```diff\n%s\n```\n", truncate(pr.Diff, prDiffLimit))
	return b.String()
}

func reviewInput(repo string, pr types.PullRequestDetails, reviewer, requester string) string {
	var b strings.Builder
	b.WriteString("# GitHub Pull Request Review Request\n\n## Review Request Details\n")
	fmt.Fprintf(&b, "- **Repository**: %s\n", repo)
	fmt.Fprintf(&b, "- **PR Number**: #%d\n", pr.Number)
	fmt.Fprintf(&b, "- **PR Title**: %s\n", pr.Title)
	fmt.Fprintf(&b, "- **PR Author**: %s\n", pr.Author)
	fmt.Fprintf(&b, "- **Reviewer Requested**: %s\n", reviewer)
	fmt.Fprintf(&b, "- **Requested By**: %s\n", requester)
	fmt.Fprintf(&b, "\n## PR Description\n%s\n", pr.Body)
	fmt.Fprintf(&b, "\n## Files to Review\n%s\n", strings.Join(pr.Files, ", "))
	fmt.Fprintf(&b, "\n## Code Changes\n```diff\n%s\n```\n", truncate(pr.Diff, reviewDiffLimit))
	return b.String()
}

func workflowInput(repo string, p payload.Tree) string {
	var b strings.Builder
	b.WriteString("# GitHub Workflow Failure Analysis Request\n\n## Workflow Details\n")
	fmt.Fprintf(&b, "- **Repository**: %s\n", repo)
	fmt.Fprintf(&b, "- **Workflow**: %s\n", p.String("", "workflow_run", "name"))
	fmt.Fprintf(&b, "- **Run ID**: %d\n", p.Int(0, "workflow_run", "id"))
	fmt.Fprintf(&b, "- **Conclusion**: %s\n", p.String("", "workflow_run", "conclusion"))
	fmt.Fprintf(&b, "- **Branch**: %s\n", p.String("", "workflow_run", "head_branch"))
	fmt.Fprintf(&b, "- **Commit**: %s\n", p.String("", "workflow_run", "head_sha"))
	fmt.Fprintf(&b, "- **URL**: %s\n", p.String("", "workflow_run", "html_url"))
	fmt.Fprintf(&b, "\n## Commit Message\n%s\n", p.String("", "workflow_run", "head_commit", "message"))
	return b.String()
}

func issueComment(analysis, timestamp string) string {
	return fmt.Sprintf("## Automated Issue Analysis\n\n"+
		"This issue was analyzed automatically. Here is the assessment:\n\n---\n\n%s\n\n---\n\n%s\n\n*Issue analyzed at: %s*",
		analysis, footer, timestamp)
}

func pullRequestComment(analysis, timestamp string) string {
	return fmt.Sprintf("## Automated PR Review\n\n"+
		"This pull request was reviewed automatically. Here is the assessment:\n\n---\n\n%s\n\n---\n\n%s\n\n*PR analyzed at: %s*",
		analysis, footer, timestamp)
}

func reviewComment(analysis, reviewer, timestamp string) string {
	return fmt.Sprintf("## Automated Code Review\n\n"+
		"A review was requested from **%s**. Here is an automated analysis to help with the review:\n\n---\n\n%s\n\n---\n\n%s\n\n*Review analysis completed at: %s*",
		reviewer, analysis, footer, timestamp)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func timestampOf(data map[string]any) string {
	if ts, ok := data["timestamp"].(string); ok {
		return ts
	}
	return "unknown"
}
