package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/ZanzyTHEbar/review-relay/internal/handlers"
	"github.com/ZanzyTHEbar/review-relay/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *monitoring.Logger {
	return monitoring.NewLogger(&bytes.Buffer{}, slog.LevelDebug, "json")
}

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

type fakeGitHub struct {
	mu       sync.Mutex
	requests []recordedRequest
	mux      *http.ServeMux
}

func newFakeGitHub(t *testing.T) (*fakeGitHub, *GitHubClient) {
	t.Helper()
	f := &fakeGitHub{mux: http.NewServeMux()}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: string(body)})
		f.mu.Unlock()
		r.Body = io.NopCloser(bytes.NewReader(body))
		f.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := NewGitHubClient("ghp_test", srv.URL, testLogger())
	require.NoError(t, err)
	return f, client
}

func (f *fakeGitHub) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func TestGitHubGetIssue(t *testing.T) {
	f, client := newFakeGitHub(t)
	f.mux.HandleFunc("/repos/acme/widgets/issues/7", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ghp_test", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"number":7,"title":"Crash","body":"boom","state":"open","user":{"login":"octo"},
			"labels":[{"name":"bug"},{"name":"clide-analyzed"}],"html_url":"https://github.com/acme/widgets/issues/7"}`)
	})

	issue, err := client.GetIssue(context.Background(), "acme/widgets", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, issue.Number)
	assert.Equal(t, "octo", issue.Author)
	assert.Equal(t, []string{"bug", "clide-analyzed"}, issue.Labels)
}

func TestGitHubGetIssueNotFound(t *testing.T) {
	f, client := newFakeGitHub(t)
	f.mux.HandleFunc("/repos/acme/widgets/issues/404", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})

	_, err := client.GetIssue(context.Background(), "acme/widgets", 404)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "external_api")
}

func TestGitHubInvalidRepositoryName(t *testing.T) {
	_, client := newFakeGitHub(t)
	_, err := client.GetIssue(context.Background(), "widgets", 1)
	require.Error(t, err)
	assert.False(t, client.PostComment(context.Background(), "widgets", 1, "hi"))
}

func TestGitHubGetPullRequest(t *testing.T) {
	f, client := newFakeGitHub(t)
	f.mux.HandleFunc("/repos/acme/widgets/pulls/12", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Accept"), "diff") {
			fmt.Fprint(w, strings.Repeat("+", maxDiffBytes+50))
			return
		}
		fmt.Fprint(w, `{"number":12,"title":"Widgets","state":"open","user":{"login":"octo"},
			"head":{"ref":"feature"},"base":{"ref":"main"},"additions":30,"deletions":19,"changed_files":3}`)
	})
	f.mux.HandleFunc("/repos/acme/widgets/pulls/12/files", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"filename":"c.go"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<http://%s%s?page=2>; rel="next"`, r.Host, r.URL.Path))
		fmt.Fprint(w, `[{"filename":"a.go"},{"filename":"b.go"}]`)
	})

	pr, err := client.GetPullRequest(context.Background(), "acme/widgets", 12)
	require.NoError(t, err)
	assert.Equal(t, "feature", pr.HeadBranch)
	assert.Equal(t, "main", pr.BaseBranch)
	assert.Equal(t, 49, pr.ChangedLines())
	assert.Equal(t, []string{"a.go", "b.go", "c.go"}, pr.Files)
	assert.Len(t, pr.Diff, maxDiffBytes)
}

func TestGitHubWritesAreBestEffort(t *testing.T) {
	f, client := newFakeGitHub(t)
	f.mux.HandleFunc("/repos/acme/widgets/issues/3/comments", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":1}`)
	})
	f.mux.HandleFunc("/repos/acme/widgets/issues/3/labels", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"Resource not accessible by integration"}`)
	})
	f.mux.HandleFunc("/repos/acme/widgets/issues/3", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "closed", body["state"])
		fmt.Fprint(w, `{"number":3,"state":"closed"}`)
	})

	ctx := context.Background()
	assert.True(t, client.PostComment(ctx, "acme/widgets", 3, "hello"))
	assert.False(t, client.AddLabels(ctx, "acme/widgets", 3, []string{"bug"}))
	assert.True(t, client.AddLabels(ctx, "acme/widgets", 3, nil), "nothing to apply")
	assert.True(t, client.CloseItem(ctx, "acme/widgets", 3, "closing"))

	assert.Equal(t, 2, f.count(http.MethodPost, "/repos/acme/widgets/issues/3/comments"))
	assert.Equal(t, 1, f.count(http.MethodPatch, "/repos/acme/widgets/issues/3"))
}

func TestGitHubEnsureLabels(t *testing.T) {
	f, client := newFakeGitHub(t)
	f.mux.HandleFunc("/repos/acme/widgets/labels", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `[{"name":"bug"}]`)
			return
		}
		var label struct {
			Name string `json:"name"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&label))
		if label.Name == "type/docs" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprint(w, `{"message":"Validation Failed"}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"name":%q}`, label.Name)
	})

	specs := []handlers.LabelSpec{
		{Name: "bug", Color: "d73a4a"},
		{Name: "size/small", Color: "c2e0c6"},
		{Name: "type/docs", Color: "0075ca"},
		{Name: "clide-analyzed", Color: "ededed"},
	}
	report, err := client.EnsureLabels(context.Background(), "acme/widgets", specs)
	require.NoError(t, err)
	assert.Equal(t, []string{"size/small", "clide-analyzed"}, report.Created)
	assert.Equal(t, []string{"bug"}, report.Existing)
	assert.Equal(t, []string{"type/docs"}, report.Failed)
	assert.Equal(t, 3, f.count(http.MethodPost, "/repos/acme/widgets/labels"))
}

func TestGitHubCheckHealth(t *testing.T) {
	f, client := newFakeGitHub(t)
	f.mux.HandleFunc("/rate_limit", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"resources":{"core":{"limit":5000,"remaining":4990,"reset":1700000000}}}`)
	})

	limit, err := client.CheckHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5000, limit.Limit)
	assert.Equal(t, 4990, limit.Remaining)

	stats := client.Stats(context.Background())
	assert.Equal(t, "closed", stats["circuit_breaker"])
	assert.Equal(t, 0, stats["breaker_failures"])
	assert.Contains(t, stats, "rate_limit")
}

func TestGitHubRateLimitIsCached(t *testing.T) {
	f, client := newFakeGitHub(t)
	f.mux.HandleFunc("/rate_limit", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"resources":{"core":{"limit":5000,"remaining":4990,"reset":1700000000}}}`)
	})

	for i := 0; i < 3; i++ {
		_, err := client.CheckHealth(context.Background())
		require.NoError(t, err)
	}
	client.Stats(context.Background())

	assert.Equal(t, 1, f.count(http.MethodGet, "/rate_limit"))
}

func TestGitHubRateLimitFailureIsNotCached(t *testing.T) {
	f, client := newFakeGitHub(t)
	f.mux.HandleFunc("/rate_limit", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"Bad credentials"}`)
	})

	_, err := client.CheckHealth(context.Background())
	require.Error(t, err)
	_, err = client.CheckHealth(context.Background())
	require.Error(t, err)

	assert.Equal(t, 2, f.count(http.MethodGet, "/rate_limit"))
}

func TestGitHubDiffCutKeepsRunesWhole(t *testing.T) {
	diff := strings.Repeat("a", maxDiffBytes-1) + "é and more"
	got := cutDiff(diff, maxDiffBytes)

	assert.Equal(t, maxDiffBytes-1, len(got))
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "short", cutDiff("short", maxDiffBytes))
}
