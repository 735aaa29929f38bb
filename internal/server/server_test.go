package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/review-relay/internal/adapters"
	"github.com/ZanzyTHEbar/review-relay/internal/config"
	"github.com/ZanzyTHEbar/review-relay/internal/database"
	"github.com/ZanzyTHEbar/review-relay/internal/dispatch"
	"github.com/ZanzyTHEbar/review-relay/internal/handlers"
	"github.com/ZanzyTHEbar/review-relay/internal/monitoring"
	"github.com/ZanzyTHEbar/review-relay/internal/policy"
	"github.com/ZanzyTHEbar/review-relay/internal/prompts"
	"github.com/ZanzyTHEbar/review-relay/internal/security"
	"github.com/ZanzyTHEbar/review-relay/internal/signature"
	"github.com/ZanzyTHEbar/review-relay/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "webhook-secret"

const openedIssue = `{
  "action": "opened",
  "issue": {"number": 7, "title": "Crash on start", "body": "It crashes.", "labels": [], "user": {"login": "octo"}},
  "repository": {"full_name": "acme/widgets"},
  "sender": {"login": "octo"}
}`

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(context.Context, string, string) (string, error) {
	return "This is a bug in the backend.", nil
}

type stubHost struct {
	mu       sync.Mutex
	comments int
}

func (h *stubHost) GetIssue(context.Context, string, int) (types.IssueDetails, error) {
	return types.IssueDetails{}, errors.New("unexpected call")
}

func (h *stubHost) GetPullRequest(context.Context, string, int) (types.PullRequestDetails, error) {
	return types.PullRequestDetails{}, errors.New("unexpected call")
}

func (h *stubHost) PostComment(context.Context, string, int, string) bool {
	h.mu.Lock()
	h.comments++
	h.mu.Unlock()
	return true
}

func (h *stubHost) AddLabels(context.Context, string, int, []string) bool { return true }
func (h *stubHost) CloseItem(context.Context, string, int, string) bool   { return true }

type stubGitHub struct{ err error }

func (g stubGitHub) CheckHealth(context.Context) (adapters.RateLimit, error) {
	return adapters.RateLimit{Limit: 5000, Remaining: 4999}, g.err
}

func (g stubGitHub) Stats(context.Context) map[string]interface{} {
	return map[string]interface{}{"requests_made": 3}
}

type memJournal struct {
	mu      sync.Mutex
	entries []database.Delivery
}

func (m *memJournal) Record(_ context.Context, d database.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, d)
	return nil
}

func (m *memJournal) Recent(_ context.Context, limit int) ([]database.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.entries) {
		limit = len(m.entries)
	}
	return append([]database.Delivery(nil), m.entries[:limit]...), nil
}

func (m *memJournal) Ping(context.Context) error { return nil }
func (m *memJournal) Close() error               { return nil }

type harness struct {
	srv     *Server
	stats   *monitoring.StatsRegistry
	runner  *dispatch.Runner
	journal *memJournal
	outDir  string
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	promptDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(promptDir, "issue.tmpl"), []byte("Triage #{{.issue_number}}"), 0o644))

	cfg := config.Default()
	cfg.GitHub.WebhookSecret = secret
	cfg.Outputs.BaseDir = t.TempDir()
	cfg.Prompts = config.PromptsConfig{
		BaseDir:   promptDir,
		Templates: map[string]map[string]string{"issues": {"opened": "issue.tmpl"}},
	}
	cfg.Repositories = []config.RepositoryConfig{{Name: "acme/widgets", Events: []string{"issues", "pull_request"}}}
	if mutate != nil {
		mutate(&cfg)
	}

	logger := monitoring.NewLogger(&bytes.Buffer{}, slog.LevelDebug, "json")
	loader := prompts.NewLoader(cfg.Prompts)
	router := handlers.NewDefaultRouter(handlers.Deps{
		Analyzer:      stubAnalyzer{},
		Host:          &stubHost{},
		Prompts:       loader,
		Artifacts:     handlers.NewArtifactStore(cfg.Outputs),
		SentinelLabel: cfg.Features.SentinelLabel,
		Logger:        logger,
	})
	pol := policy.New(cfg.Repositories)
	stats := monitoring.NewStatsRegistry(monitoring.DefaultWindow)
	journal := &memJournal{}
	runner := dispatch.NewRunner(2, logger)
	t.Cleanup(func() { _ = runner.Shutdown(context.Background()) })

	srv := New(Options{
		Config:  &cfg,
		Engine:  dispatch.NewEngine(router, pol, stats, journal, logger),
		Runner:  runner,
		Policy:  pol,
		Router:  router,
		Stats:   stats,
		Journal: journal,
		GitHub:  stubGitHub{},
		Prompts: loader,
		Logger:  logger,
	})

	return &harness{srv: srv, stats: stats, runner: runner, journal: journal, outDir: cfg.Outputs.BaseDir}
}

func (h *harness) post(t *testing.T, eventType, body string, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/github-webhook", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if eventType != "" {
		req.Header.Set("X-GitHub-Event", eventType)
	}
	req.Header.Set("X-GitHub-Delivery", "72d3162e-cc78-11e3-81ab-4c9367dc0958")
	if sign {
		req.Header.Set("X-Hub-Signature-256", signature.Sign([]byte(body), []byte(secret)))
	}
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestWebhookQueuedThenProcessed(t *testing.T) {
	h := newHarness(t, nil)

	w := h.post(t, "issues", openedIssue, true)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "queued", body["status"])
	assert.Equal(t, "issues", body["event_type"])
	assert.Equal(t, "acme/widgets", body["repository"])
	assert.NotEmpty(t, body["correlation_id"])

	artifact := filepath.Join(h.outDir, "issues", "issue_7_analysis.md")
	require.Eventually(t, func() bool {
		return h.stats.Snapshot().Succeeded == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.FileExists(t, artifact)

	require.Eventually(t, func() bool {
		entries, _ := h.journal.Recent(context.Background(), 0)
		return len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond)
	entries, _ := h.journal.Recent(context.Background(), 0)
	assert.Equal(t, body["correlation_id"], entries[0].CorrelationID)
}

func TestWebhookSynchronous(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Features.AsyncProcessing = false })

	w := h.post(t, "issues", openedIssue, true)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "processed", body["status"])
	result := body["result"].(map[string]interface{})
	assert.Equal(t, "success", result["status"])
	assert.Equal(t, int64(1), h.stats.Snapshot().Succeeded)
}

func TestWebhookRejections(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		body      string
		sign      bool
		status    int
		errMsg    string
	}{
		{"missing event type", "", openedIssue, true, http.StatusBadRequest, "missing event type header"},
		{"unsigned", "issues", openedIssue, false, http.StatusUnauthorized, "invalid signature"},
		{"malformed", "issues", `{"action":`, true, http.StatusBadRequest, "malformed payload"},
		{"not an object", "issues", `null`, true, http.StatusBadRequest, "malformed payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			w := h.post(t, tt.eventType, tt.body, tt.sign)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.errMsg, decode(t, w)["error"])
			assert.Zero(t, h.stats.Snapshot().Total)
		})
	}
}

func TestWebhookBadSignatureLeavesStatsUntouched(t *testing.T) {
	h := newHarness(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/github-webhook", bytes.NewBufferString(openedIssue))
	req.Header.Set("X-Event-Type", "issues")
	req.Header.Set("X-Signature-256", signature.Sign([]byte(openedIssue), []byte("wrong")))
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, h.stats.Snapshot().Total)
	assert.Empty(t, h.journal.entries)
}

func TestWebhookChecksRunBeforeContentType(t *testing.T) {
	formBody := "payload=" + openedIssue

	tests := []struct {
		name        string
		contentType string
		eventType   string
		body        string
		signature   string
		status      int
		errMsg      string
	}{
		{"form encoded with bad signature", "application/x-www-form-urlencoded", "issues", formBody, "sha256=deadbeef", http.StatusUnauthorized, "invalid signature"},
		{"plain text without event type", "text/plain", "", openedIssue, "", http.StatusBadRequest, "missing event type header"},
		{"form encoded and signed", "application/x-www-form-urlencoded", "issues", formBody, signature.Sign([]byte(formBody), []byte(secret)), http.StatusBadRequest, "malformed payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)

			req := httptest.NewRequest(http.MethodPost, "/github-webhook", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			if tt.eventType != "" {
				req.Header.Set("X-GitHub-Event", tt.eventType)
			}
			if tt.signature != "" {
				req.Header.Set("X-Hub-Signature-256", tt.signature)
			}
			w := httptest.NewRecorder()
			h.srv.Handler().ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.errMsg, decode(t, w)["error"])
			assert.Zero(t, h.stats.Snapshot().Total)
		})
	}
}

func TestWebhookBodyLimitFromConfig(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Server.MaxBodyBytes = 32 })
	assert.Equal(t, int64(32), h.srv.security.MaxBodyBytes)

	w := h.post(t, "issues", openedIssue, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "malformed payload", decode(t, w)["error"])

	def := newHarness(t, nil)
	assert.Equal(t, security.DefaultMaxBodyBytes, def.srv.security.MaxBodyBytes)
}

func TestWebhookAlternateHeaderNames(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Features.AsyncProcessing = false })

	req := httptest.NewRequest(http.MethodPost, "/github-webhook", bytes.NewBufferString(openedIssue))
	req.Header.Set("X-Event-Type", "issues")
	req.Header.Set("X-Delivery-Id", "relay-1")
	req.Header.Set("X-Signature-256", signature.Sign([]byte(openedIssue), []byte(secret)))
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "processed", decode(t, w)["status"])
	require.Len(t, h.journal.entries, 1)
	assert.Equal(t, "relay-1", h.journal.entries[0].DeliveryID)
}

func TestWebhookPolicyIgnores(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		body      string
		reason    string
	}{
		{"no repository", "issues", `{"action":"opened"}`, ReasonNoRepository},
		{"unconfigured repository", "issues", `{"action":"opened","repository":{"full_name":"other/repo"}}`, policy.ReasonRepositoryNotConfigured},
		{"event not enabled", "workflow_run", `{"action":"completed","repository":{"full_name":"acme/widgets"}}`, policy.ReasonEventNotEnabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			w := h.post(t, tt.eventType, tt.body, true)

			require.Equal(t, http.StatusOK, w.Code)
			body := decode(t, w)
			assert.Equal(t, "ignored", body["status"])
			assert.Equal(t, tt.reason, body["reason"])
			assert.Zero(t, h.stats.Snapshot().Total)
			assert.Zero(t, h.runner.InFlight())
		})
	}
}

func TestWebhookSignatureValidationDisabled(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Features.SignatureValidation = false
		c.Features.AsyncProcessing = false
	})

	w := h.post(t, "issues", openedIssue, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "processed", decode(t, w)["status"])
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, ServiceName, body["service"])
}

func TestHealthComponents(t *testing.T) {
	h := newHarness(t, nil)
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/components", nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])

	components := body["components"].(map[string]interface{})
	assert.Equal(t, "healthy", components["github"].(map[string]interface{})["status"])
	assert.Equal(t, "disabled", components["redis"].(map[string]interface{})["status"])
	assert.Equal(t, "healthy", components["journal"].(map[string]interface{})["status"])
	assert.Equal(t, "healthy", components["prompts"].(map[string]interface{})["status"])
}

func TestHealthComponentsDegraded(t *testing.T) {
	h := newHarness(t, nil)
	h.srv.github = stubGitHub{err: errors.New("bad credentials")}

	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/components", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", decode(t, w)["status"])
}

func TestStats(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Features.AsyncProcessing = false })
	h.post(t, "issues", openedIssue, true)

	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, float64(1), body["total_webhooks"])
	assert.Equal(t, float64(1), body["successful_processing"])
	assert.Equal(t, []interface{}{"issues", "pull_request", "pull_request_review", "workflow_run"}, body["handlers"])
	assert.Equal(t, []interface{}{"acme/widgets"}, body["repositories"])
	assert.Contains(t, body, "github_api")
}

func TestDeliveries(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Features.AsyncProcessing = false })
	h.post(t, "issues", openedIssue, true)

	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/deliveries?limit=10", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/deliveries?limit=ten", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
