package adapters

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ZanzyTHEbar/review-relay/internal/config"
	apperrors "github.com/ZanzyTHEbar/review-relay/internal/errors"
	"github.com/ZanzyTHEbar/review-relay/internal/monitoring"
	"github.com/ZanzyTHEbar/review-relay/internal/ratelimit"
	"github.com/ZanzyTHEbar/review-relay/internal/resilience"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient calls the Messages API. Calls are paced by a shared
// Pacer so concurrent handlers never burst the upstream.
type AnthropicClient struct {
	cfg      config.ClaudeConfig
	client   anthropic.Client
	pacer    *ratelimit.Pacer
	breaker  *resilience.CircuitBreaker
	logger   *monitoring.Logger
	requests atomic.Int64
	failures atomic.Int64
}

// NewAnthropicClient creates a client for cfg. pacer may be nil.
func NewAnthropicClient(cfg config.ClaudeConfig, pacer *ratelimit.Pacer, logger *monitoring.Logger) *AnthropicClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if pacer == nil {
		pacer = ratelimit.NewPacer(0, "anthropic", nil)
	}

	// Retries are left to the circuit breaker and the pacer.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}

	return &AnthropicClient{
		cfg:    cfg,
		client: anthropic.NewClient(opts...),
		pacer:  pacer,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			RecoveryTimeout:  60 * time.Second,
			SuccessThreshold: 1,
		}),
		logger: logger,
	}
}

// Analyze sends input followed by prompt as a single user message and
// returns the first text block of the reply
func (a *AnthropicClient) Analyze(ctx context.Context, prompt, input string) (string, error) {
	if err := a.pacer.Wait(ctx); err != nil {
		return "", apperrors.NewTimeoutError("waiting for analysis slot", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.cfg.Model),
		MaxTokens: int64(a.cfg.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(input + "\n\n" + prompt)),
		},
	}

	n := a.requests.Add(1)
	a.logger.Info("Sending analysis request", "request_count", n, "model", a.cfg.Model)

	start := time.Now()
	var msg *anthropic.Message
	err := a.breaker.Call(func() error {
		var callErr error
		msg, callErr = a.client.Messages.New(ctx, params)
		return callErr
	})
	a.logger.ExternalAPILogger("anthropic", http.MethodPost, "/v1/messages", statusOf(err), time.Since(start), err == nil)

	if err != nil {
		a.failures.Add(1)
		return "", apperrors.NewExternalAPIError("anthropic", err)
	}

	text := firstText(msg)
	a.logger.Info("Received analysis", "response_length", len(text), "stop_reason", msg.StopReason)
	return text, nil
}

func firstText(msg *anthropic.Message) string {
	if msg == nil {
		return ""
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text
		}
	}
	return ""
}

func statusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Stats reports request counters and pacing state
func (a *AnthropicClient) Stats() map[string]interface{} {
	return map[string]interface{}{
		"requests_made":    a.requests.Load(),
		"failed_requests":  a.failures.Load(),
		"circuit_breaker":  a.breaker.State().String(),
		"breaker_failures": a.breaker.Failures(),
		"model":            a.cfg.Model,
		"pacing":           a.pacer.Stats(),
	}
}
