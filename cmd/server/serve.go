package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZanzyTHEbar/review-relay/internal/adapters"
	"github.com/ZanzyTHEbar/review-relay/internal/config"
	"github.com/ZanzyTHEbar/review-relay/internal/database"
	"github.com/ZanzyTHEbar/review-relay/internal/dispatch"
	apperrors "github.com/ZanzyTHEbar/review-relay/internal/errors"
	"github.com/ZanzyTHEbar/review-relay/internal/handlers"
	"github.com/ZanzyTHEbar/review-relay/internal/monitoring"
	"github.com/ZanzyTHEbar/review-relay/internal/policy"
	"github.com/ZanzyTHEbar/review-relay/internal/prompts"
	"github.com/ZanzyTHEbar/review-relay/internal/ratelimit"
	"github.com/ZanzyTHEbar/review-relay/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 30 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the webhook server",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "run gin in debug mode"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if !c.Bool("debug") {
				gin.SetMode(gin.ReleaseMode)
			}
			return serve(c.Context, cfg)
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := monitoring.NewLoggerFromConfig(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()
	slog.SetDefault(logger.Logger)

	redisClient, err := ratelimit.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, pacing is process-local", "error", err)
	}
	defer apperrors.SafeClose(redisClient, "redis client")

	journal, err := database.Open(ctx, cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if journal != nil {
		defer apperrors.SafeClose(journal, "delivery journal")
	}

	github, err := adapters.NewGitHubClient(cfg.GitHub.Token, cfg.GitHub.BaseURL, logger)
	if err != nil {
		return err
	}

	interval := cfg.Claude.MinInterval
	if !cfg.Features.RateLimiting {
		interval = 0
	}
	analyzer := adapters.NewAnthropicClient(cfg.Claude, ratelimit.NewPacer(interval, "anthropic", redisClient), logger)

	loader := prompts.NewLoader(cfg.Prompts)
	router := handlers.NewDefaultRouter(handlers.Deps{
		Analyzer:      analyzer,
		Host:          github,
		Prompts:       loader,
		Artifacts:     handlers.NewArtifactStore(cfg.Outputs),
		SentinelLabel: cfg.Features.SentinelLabel,
		Logger:        logger,
	})
	pol := policy.New(cfg.Repositories)
	stats := monitoring.NewStatsRegistry(monitoring.DefaultWindow)
	runner := dispatch.NewRunner(cfg.Features.MaxConcurrentTasks, logger)

	srv := server.New(server.Options{
		Config:   cfg,
		Engine:   dispatch.NewEngine(router, pol, stats, journal, logger),
		Runner:   runner,
		Policy:   pol,
		Router:   router,
		Stats:    stats,
		Journal:  journal,
		GitHub:   github,
		Analyzer: analyzer,
		Redis:    redisClient,
		Prompts:  loader,
		Logger:   logger,
	})
	httpServer := srv.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			"addr", httpServer.Addr,
			"webhook_path", cfg.Server.WebhookPath,
			"repositories", pol.Names(),
			"async", cfg.Features.AsyncProcessing,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-quit:
	case <-ctx.Done():
	}
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Background tasks cancelled", "in_flight", runner.InFlight(), "error", err)
	}

	logger.Info("Server exited")
	return nil
}
