package adapters

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/ZanzyTHEbar/review-relay/internal/cache"
	apperrors "github.com/ZanzyTHEbar/review-relay/internal/errors"
	"github.com/ZanzyTHEbar/review-relay/internal/handlers"
	"github.com/ZanzyTHEbar/review-relay/internal/monitoring"
	"github.com/ZanzyTHEbar/review-relay/internal/resilience"
	"github.com/ZanzyTHEbar/review-relay/internal/types"
	"github.com/google/go-github/v56/github"
)

// maxDiffBytes caps the unified diff kept per pull request
const maxDiffBytes = 10000

// rateLimitTTL bounds how often status endpoints hit the rate limit API
const rateLimitTTL = 30 * time.Second

// GitHubClient talks to the GitHub REST API. Reads return errors; writes are
// best effort and report success as a bool.
type GitHubClient struct {
	client   *github.Client
	breaker  *resilience.CircuitBreaker
	limits   *cache.Cache[RateLimit]
	logger   *monitoring.Logger
	requests atomic.Int64
	failures atomic.Int64
}

// NewGitHubClient creates a client authenticated with token. An empty baseURL
// targets api.github.com.
func NewGitHubClient(token, baseURL string, logger *monitoring.Logger) (*GitHubClient, error) {
	client := github.NewClient(&http.Client{Timeout: 30 * time.Second})
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, apperrors.NewConfigurationError("invalid github.base_url", err)
		}
		client.BaseURL = u
	}

	return &GitHubClient{
		client: client,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
			SuccessThreshold: 1,
		}),
		limits: cache.New[RateLimit](rateLimitTTL),
		logger: logger,
	}, nil
}

func splitRepo(fullName string) (string, string, error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" {
		return "", "", apperrors.NewValidationError(fmt.Sprintf("invalid repository name %q", fullName), nil)
	}
	return owner, name, nil
}

// call runs fn behind the circuit breaker and logs the request outcome
func (g *GitHubClient) call(method, endpoint string, fn func() (*github.Response, error)) error {
	start := time.Now()
	g.requests.Add(1)

	status := 0
	err := g.breaker.Call(func() error {
		resp, err := fn()
		if resp != nil && resp.Response != nil {
			status = resp.StatusCode
		}
		return err
	})

	g.logger.ExternalAPILogger("github", method, endpoint, status, time.Since(start), err == nil)
	if err != nil {
		g.failures.Add(1)
		return apperrors.NewExternalAPIError("github", err)
	}
	return nil
}

// GetIssue fetches an issue
func (g *GitHubClient) GetIssue(ctx context.Context, repo string, number int) (types.IssueDetails, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return types.IssueDetails{}, err
	}

	var issue *github.Issue
	err = g.call(http.MethodGet, fmt.Sprintf("repos/%s/issues/%d", repo, number), func() (*github.Response, error) {
		var resp *github.Response
		var err error
		issue, resp, err = g.client.Issues.Get(ctx, owner, name, number)
		return resp, err
	})
	if err != nil {
		return types.IssueDetails{}, err
	}

	return types.IssueDetails{
		Number: issue.GetNumber(),
		Title:  issue.GetTitle(),
		Body:   issue.GetBody(),
		State:  issue.GetState(),
		Author: issue.GetUser().GetLogin(),
		Labels: labelNames(issue.Labels),
		URL:    issue.GetHTMLURL(),
	}, nil
}

// GetPullRequest fetches a pull request with its changed files and a
// truncated diff. A failed diff download leaves Diff empty.
func (g *GitHubClient) GetPullRequest(ctx context.Context, repo string, number int) (types.PullRequestDetails, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return types.PullRequestDetails{}, err
	}
	endpoint := fmt.Sprintf("repos/%s/pulls/%d", repo, number)

	var pr *github.PullRequest
	err = g.call(http.MethodGet, endpoint, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		pr, resp, err = g.client.PullRequests.Get(ctx, owner, name, number)
		return resp, err
	})
	if err != nil {
		return types.PullRequestDetails{}, err
	}

	details := types.PullRequestDetails{
		IssueDetails: types.IssueDetails{
			Number: pr.GetNumber(),
			Title:  pr.GetTitle(),
			Body:   pr.GetBody(),
			State:  pr.GetState(),
			Author: pr.GetUser().GetLogin(),
			Labels: labelNames(pr.Labels),
			URL:    pr.GetHTMLURL(),
		},
		HeadBranch:   pr.GetHead().GetRef(),
		BaseBranch:   pr.GetBase().GetRef(),
		Additions:    pr.GetAdditions(),
		Deletions:    pr.GetDeletions(),
		ChangedFiles: pr.GetChangedFiles(),
	}

	files, err := g.listFiles(ctx, owner, name, repo, number)
	if err != nil {
		return types.PullRequestDetails{}, err
	}
	details.Files = files

	var diff string
	err = g.call(http.MethodGet, endpoint+".diff", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		diff, resp, err = g.client.PullRequests.GetRaw(ctx, owner, name, number, github.RawOptions{Type: github.Diff})
		return resp, err
	})
	if err != nil {
		g.logger.Warn("Could not fetch pull request diff", "repository", repo, "pull_request", number, "error", err)
	} else {
		details.Diff = cutDiff(diff, maxDiffBytes)
	}

	return details, nil
}

func (g *GitHubClient) listFiles(ctx context.Context, owner, name, repo string, number int) ([]string, error) {
	files := []string{}
	opts := &github.ListOptions{PerPage: 100}
	for {
		var page []*github.CommitFile
		var next int
		err := g.call(http.MethodGet, fmt.Sprintf("repos/%s/pulls/%d/files", repo, number), func() (*github.Response, error) {
			var resp *github.Response
			var err error
			page, resp, err = g.client.PullRequests.ListFiles(ctx, owner, name, number, opts)
			if resp != nil {
				next = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, f := range page {
			files = append(files, f.GetFilename())
		}
		if next == 0 {
			return files, nil
		}
		opts.Page = next
	}
}

// PostComment adds a comment to an issue or pull request
func (g *GitHubClient) PostComment(ctx context.Context, repo string, number int, body string) bool {
	owner, name, err := splitRepo(repo)
	if err == nil {
		err = g.call(http.MethodPost, fmt.Sprintf("repos/%s/issues/%d/comments", repo, number), func() (*github.Response, error) {
			_, resp, err := g.client.Issues.CreateComment(ctx, owner, name, number, &github.IssueComment{Body: github.String(body)})
			return resp, err
		})
	}
	if err != nil {
		g.logger.Error("Failed to post comment", "repository", repo, "number", number, "error", err)
		return false
	}
	g.logger.Info("Posted comment", "repository", repo, "number", number)
	return true
}

// AddLabels applies labels to an issue or pull request. Labels already
// present are left alone by the API.
func (g *GitHubClient) AddLabels(ctx context.Context, repo string, number int, labels []string) bool {
	if len(labels) == 0 {
		return true
	}
	owner, name, err := splitRepo(repo)
	if err == nil {
		err = g.call(http.MethodPost, fmt.Sprintf("repos/%s/issues/%d/labels", repo, number), func() (*github.Response, error) {
			_, resp, err := g.client.Issues.AddLabelsToIssue(ctx, owner, name, number, labels)
			return resp, err
		})
	}
	if err != nil {
		g.logger.Error("Failed to add labels", "repository", repo, "number", number, "labels", labels, "error", err)
		return false
	}
	g.logger.Info("Added labels", "repository", repo, "number", number, "labels", labels)
	return true
}

// CloseItem posts comment, when non-empty, and closes the issue
func (g *GitHubClient) CloseItem(ctx context.Context, repo string, number int, comment string) bool {
	if comment != "" && !g.PostComment(ctx, repo, number, comment) {
		return false
	}

	owner, name, err := splitRepo(repo)
	if err == nil {
		err = g.call(http.MethodPatch, fmt.Sprintf("repos/%s/issues/%d", repo, number), func() (*github.Response, error) {
			_, resp, err := g.client.Issues.Edit(ctx, owner, name, number, &github.IssueRequest{State: github.String("closed")})
			return resp, err
		})
	}
	if err != nil {
		g.logger.Error("Failed to close issue", "repository", repo, "number", number, "error", err)
		return false
	}
	g.logger.Info("Closed issue", "repository", repo, "number", number)
	return true
}

// LabelReport sorts the requested labels by what EnsureLabels did with them
type LabelReport struct {
	Created  []string
	Existing []string
	Failed   []string
}

// EnsureLabels creates every label in specs that the repository lacks.
// A label that cannot be created is reported in Failed and the rest still
// run; the error is only set when the existing labels cannot be listed.
func (g *GitHubClient) EnsureLabels(ctx context.Context, repo string, specs []handlers.LabelSpec) (LabelReport, error) {
	var report LabelReport
	owner, name, err := splitRepo(repo)
	if err != nil {
		return report, err
	}

	existing := make(map[string]struct{})
	opts := &github.ListOptions{PerPage: 100}
	for {
		var page []*github.Label
		var next int
		err := g.call(http.MethodGet, fmt.Sprintf("repos/%s/labels", repo), func() (*github.Response, error) {
			var resp *github.Response
			var err error
			page, resp, err = g.client.Issues.ListLabels(ctx, owner, name, opts)
			if resp != nil {
				next = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return report, err
		}
		for _, l := range page {
			existing[l.GetName()] = struct{}{}
		}
		if next == 0 {
			break
		}
		opts.Page = next
	}

	for _, spec := range specs {
		if _, ok := existing[spec.Name]; ok {
			report.Existing = append(report.Existing, spec.Name)
			continue
		}
		label := &github.Label{
			Name:        github.String(spec.Name),
			Color:       github.String(spec.Color),
			Description: github.String(spec.Description),
		}
		err := g.call(http.MethodPost, fmt.Sprintf("repos/%s/labels", repo), func() (*github.Response, error) {
			_, resp, err := g.client.Issues.CreateLabel(ctx, owner, name, label)
			return resp, err
		})
		if err != nil {
			g.logger.Warn("Failed to create label", "repository", repo, "label", spec.Name, "error", err)
			report.Failed = append(report.Failed, spec.Name)
			continue
		}
		report.Created = append(report.Created, spec.Name)
	}
	return report, nil
}

// cutDiff keeps at most limit bytes of diff, backing off to a rune boundary
func cutDiff(diff string, limit int) string {
	if len(diff) <= limit {
		return diff
	}
	for limit > 0 && !utf8.RuneStart(diff[limit]) {
		limit--
	}
	return diff[:limit]
}

// RateLimit is the core API quota
type RateLimit struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
}

// CheckHealth queries the rate limit endpoint, which does not count against
// the quota. Successful results are reused for rateLimitTTL.
func (g *GitHubClient) CheckHealth(ctx context.Context) (RateLimit, error) {
	if limit, ok := g.limits.Get("core"); ok {
		return limit, nil
	}

	var limits *github.RateLimits
	err := g.call(http.MethodGet, "rate_limit", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		limits, resp, err = g.client.RateLimits(ctx)
		return resp, err
	})
	if err != nil {
		return RateLimit{}, err
	}

	core := limits.GetCore()
	if core == nil {
		return RateLimit{}, nil
	}
	limit := RateLimit{
		Limit:     core.Limit,
		Remaining: core.Remaining,
		Reset:     core.Reset.Time,
	}
	g.limits.Set("core", limit)
	return limit, nil
}

// Stats reports request counters and, when reachable, the current quota
func (g *GitHubClient) Stats(ctx context.Context) map[string]interface{} {
	stats := map[string]interface{}{
		"requests_made":    g.requests.Load(),
		"failed_requests":  g.failures.Load(),
		"circuit_breaker":  g.breaker.State().String(),
		"breaker_failures": g.breaker.Failures(),
		"rate_limit_cache": g.limits.Stats(),
	}
	if limit, err := g.CheckHealth(ctx); err == nil {
		stats["rate_limit"] = map[string]interface{}{"core": limit}
	} else {
		stats["rate_limit_error"] = err.Error()
	}
	return stats
}

func labelNames(labels []*github.Label) []string {
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.GetName())
	}
	return names
}
