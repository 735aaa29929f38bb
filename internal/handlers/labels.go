package handlers

import (
	"regexp"
	"sort"
	"strings"
)

// CloseMarker in an analysis asks for the issue to be closed
const CloseMarker = "RECOMMENDATION: CLOSE ISSUE"

type labelRule struct {
	pattern *regexp.Regexp
	label   string
}

// Matched against lowercased analysis text.
var labelRules = []labelRule{
	{regexp.MustCompile(`\bbug\b`), "bug"},
	{regexp.MustCompile(`\benhancement\b`), "enhancement"},
	{regexp.MustCompile(`\bquestion\b`), "question"},
	{regexp.MustCompile(`\bdocumentation\b`), "documentation"},
	{regexp.MustCompile(`\bmaintenance\b`), "maintenance"},
	{regexp.MustCompile(`\bhigh.priority\b|\bpriority.high\b`), "priority-high"},
	{regexp.MustCompile(`\bmedium.priority\b|\bpriority.medium\b`), "priority-medium"},
	{regexp.MustCompile(`\blow.priority\b|\bpriority.low\b`), "priority-low"},
	{regexp.MustCompile(`\beasy\b|\bdifficulty.easy\b`), "difficulty-easy"},
	{regexp.MustCompile(`\bmoderate\b|\bdifficulty.moderate\b`), "difficulty-moderate"},
	{regexp.MustCompile(`\bcomplex\b|\bdifficulty.complex\b`), "difficulty-complex"},
	{regexp.MustCompile(`\bfrontend\b|\bcomponent.frontend\b`), "component-frontend"},
	{regexp.MustCompile(`\bbackend\b|\bcomponent.backend\b`), "component-backend"},
	{regexp.MustCompile(`\bdatabase\b|\bcomponent.database\b`), "component-database"},
}

// ExtractLabels derives issue labels from analysis text. The result is
// sorted and contains no duplicates.
func ExtractLabels(analysis string) []string {
	text := strings.ToLower(analysis)
	labels := make([]string, 0, 4)
	for _, rule := range labelRules {
		if rule.pattern.MatchString(text) {
			labels = append(labels, rule.label)
		}
	}
	sort.Strings(labels)
	return labels
}

// ShouldClose reports whether the analysis recommends closing the issue
func ShouldClose(analysis string) bool {
	return strings.Contains(analysis, CloseMarker)
}

// SizeLabel buckets a pull request by total changed lines
func SizeLabel(changedLines int) string {
	switch {
	case changedLines < 50:
		return "size/small"
	case changedLines < 200:
		return "size/medium"
	default:
		return "size/large"
	}
}

// TypeLabel guesses the kind of change from the analysis, first match wins
func TypeLabel(analysis string) (string, bool) {
	text := strings.ToLower(analysis)
	switch {
	case strings.Contains(text, "bug") || strings.Contains(text, "fix"):
		return "type/bug-fix", true
	case strings.Contains(text, "feature") || strings.Contains(text, "enhancement"):
		return "type/feature", true
	case strings.Contains(text, "refactor"):
		return "type/refactor", true
	case strings.Contains(text, "documentation") || strings.Contains(text, "docs"):
		return "type/docs", true
	}
	return "", false
}

// PullRequestLabels combines the size and type labels for a pull request
func PullRequestLabels(analysis string, changedLines int) []string {
	labels := []string{SizeLabel(changedLines)}
	if typ, ok := TypeLabel(analysis); ok {
		labels = append(labels, typ)
	}
	return labels
}

// LabelSpec is a label the setup command creates on a repository
type LabelSpec struct {
	Name        string
	Color       string
	Description string
}

// StandardLabels returns every label the handlers may apply, plus the
// sentinel used to mark analyzed issues
func StandardLabels(sentinel string) []LabelSpec {
	return []LabelSpec{
		{"bug", "d73a4a", "Something isn't working"},
		{"enhancement", "a2eeef", "New feature or request"},
		{"question", "d876e3", "Further information is requested"},
		{"documentation", "0075ca", "Improvements or additions to documentation"},
		{"maintenance", "fbca04", "Chores and upkeep"},
		{"priority-high", "b60205", "High priority"},
		{"priority-medium", "fbca04", "Medium priority"},
		{"priority-low", "0e8a16", "Low priority"},
		{"difficulty-easy", "c2e0c6", "Easy to address"},
		{"difficulty-moderate", "fef2c0", "Moderate effort"},
		{"difficulty-complex", "f9d0c4", "Complex change"},
		{"component-frontend", "1d76db", "Frontend"},
		{"component-backend", "5319e7", "Backend"},
		{"component-database", "006b75", "Database"},
		{"size/small", "c2e0c6", "Fewer than 50 changed lines"},
		{"size/medium", "fef2c0", "50 to 199 changed lines"},
		{"size/large", "f9d0c4", "200 or more changed lines"},
		{"type/bug-fix", "d73a4a", "Fixes a bug"},
		{"type/feature", "a2eeef", "Adds a feature"},
		{"type/refactor", "cfd3d7", "Restructures code"},
		{"type/docs", "0075ca", "Documentation change"},
		{"status/needs-review", "fbca04", "Awaiting review"},
		{"status/in-progress", "0e8a16", "Being worked on"},
		{"status/blocked", "b60205", "Blocked"},
		{sentinel, "ededed", "Analyzed by the review bot"},
	}
}
