// Package server is the HTTP boundary: it authenticates webhook deliveries,
// filters them by repository policy and hands accepted ones to dispatch.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/ZanzyTHEbar/review-relay/internal/adapters"
	"github.com/ZanzyTHEbar/review-relay/internal/config"
	"github.com/ZanzyTHEbar/review-relay/internal/database"
	"github.com/ZanzyTHEbar/review-relay/internal/dispatch"
	_ "github.com/ZanzyTHEbar/review-relay/internal/docs"
	apperrors "github.com/ZanzyTHEbar/review-relay/internal/errors"
	"github.com/ZanzyTHEbar/review-relay/internal/handlers"
	"github.com/ZanzyTHEbar/review-relay/internal/monitoring"
	"github.com/ZanzyTHEbar/review-relay/internal/policy"
	"github.com/ZanzyTHEbar/review-relay/internal/prompts"
	"github.com/ZanzyTHEbar/review-relay/internal/ratelimit"
	"github.com/ZanzyTHEbar/review-relay/internal/security"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// ServiceName is reported by the liveness check
const ServiceName = "github-webhook-handler"

// GitHubAPI is the part of the host client the status endpoints read
type GitHubAPI interface {
	CheckHealth(ctx context.Context) (adapters.RateLimit, error)
	Stats(ctx context.Context) map[string]interface{}
}

// StatsProvider exposes collaborator counters
type StatsProvider interface {
	Stats() map[string]interface{}
}

// Options wires the server. Journal, GitHub, Analyzer, Redis and Prompts
// are optional.
type Options struct {
	Config   *config.Config
	Engine   *dispatch.Engine
	Runner   *dispatch.Runner
	Policy   *policy.Policy
	Router   *handlers.Router
	Stats    *monitoring.StatsRegistry
	Journal  database.Journal
	GitHub   GitHubAPI
	Analyzer StatsProvider
	Redis    *ratelimit.RedisClient
	Prompts  *prompts.Loader
	Logger   *monitoring.Logger
}

// Server holds the gin engine and everything its routes read
type Server struct {
	cfg      *config.Config
	engine   *dispatch.Engine
	runner   *dispatch.Runner
	policy   *policy.Policy
	router   *handlers.Router
	stats    *monitoring.StatsRegistry
	journal  database.Journal
	github   GitHubAPI
	analyzer StatsProvider
	redis    *ratelimit.RedisClient
	prompts  *prompts.Loader
	logger   *monitoring.Logger
	secret   []byte
	security security.Config
	http     *gin.Engine
}

// New builds the server and registers its routes
func New(opts Options) *Server {
	s := &Server{
		cfg:      opts.Config,
		engine:   opts.Engine,
		runner:   opts.Runner,
		policy:   opts.Policy,
		router:   opts.Router,
		stats:    opts.Stats,
		journal:  opts.Journal,
		github:   opts.GitHub,
		analyzer: opts.Analyzer,
		redis:    opts.Redis,
		prompts:  opts.Prompts,
		logger:   opts.Logger,
		secret:   []byte(opts.Config.GitHub.WebhookSecret),
		security: securityConfig(opts.Config.Server),
	}
	s.http = s.routes()
	return s
}

func securityConfig(cfg config.ServerConfig) security.Config {
	sec := security.DefaultConfig()
	sec.AllowedOrigins = cfg.CORSOrigins
	if cfg.MaxBodyBytes > 0 {
		sec.MaxBodyBytes = cfg.MaxBodyBytes
	}
	return sec
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.http
}

// HTTPServer returns an http.Server listening on the configured address
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Server.Addr(),
		Handler:           s.http,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()

	r.Use(apperrors.RecoveryHandler())
	r.Use(monitoring.RequestMiddleware(s.logger))
	r.Use(security.Headers())
	if mw, ok := security.CORS(s.security.AllowedOrigins); ok {
		r.Use(mw)
	}

	r.POST(s.cfg.Server.WebhookPath,
		monitoring.DeliveryMonitoringMiddleware(s.logger, s.security.MaxBodyBytes),
		security.LimitBody(s.security.MaxBodyBytes),
		s.handleWebhook,
	)

	r.GET("/health", s.handleHealth)
	r.GET("/health/components", s.handleComponents)
	r.GET("/stats", s.handleStats)
	if s.journal != nil {
		r.GET("/deliveries", s.handleDeliveries)
	}

	if s.cfg.Server.EnableDocs {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
