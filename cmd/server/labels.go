package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ZanzyTHEbar/review-relay/internal/adapters"
	"github.com/ZanzyTHEbar/review-relay/internal/config"
	"github.com/ZanzyTHEbar/review-relay/internal/handlers"
	"github.com/ZanzyTHEbar/review-relay/internal/monitoring"
	"github.com/ZanzyTHEbar/review-relay/internal/resilience"
	"github.com/urfave/cli/v2"
)

// labelEnsurer creates missing labels on a repository
type labelEnsurer interface {
	EnsureLabels(ctx context.Context, repo string, specs []handlers.LabelSpec) (adapters.LabelReport, error)
}

func setupLabelsCommand() *cli.Command {
	return &cli.Command{
		Name:  "setup-labels",
		Usage: "create the analysis labels on every configured repository",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger, err := monitoring.NewLoggerFromConfig(cfg.Logging)
			if err != nil {
				return err
			}
			defer logger.Close()

			client, err := adapters.NewGitHubClient(cfg.GitHub.Token, cfg.GitHub.BaseURL, logger)
			if err != nil {
				return err
			}
			return setupLabels(c.Context, c.App.Writer, cfg, client, resilience.AdminRetryConfig())
		},
	}
}

// setupLabels ensures the standard label set on each repository. A
// repository that keeps failing, or that has labels which could not be
// created, is reported and the rest still run.
func setupLabels(ctx context.Context, out io.Writer, cfg *config.Config, client labelEnsurer, retry resilience.RetryConfig) error {
	specs := handlers.StandardLabels(cfg.Features.SentinelLabel)

	failed := 0
	for _, repo := range cfg.Repositories {
		var report adapters.LabelReport
		err := resilience.RetryWithConfig(ctx, retry, func() error {
			var err error
			report, err = client.EnsureLabels(ctx, repo.Name, specs)
			return err
		})
		if err != nil {
			failed++
			fmt.Fprintf(out, "%s: failed: %v\n", repo.Name, err)
			continue
		}

		fmt.Fprintf(out, "%s: %d labels created, %d already present, %d failed\n",
			repo.Name, len(report.Created), len(report.Existing), len(report.Failed))
		if len(report.Failed) > 0 {
			failed++
			fmt.Fprintf(out, "%s: could not create %s\n", repo.Name, strings.Join(report.Failed, ", "))
		}
	}

	if failed > 0 {
		return fmt.Errorf("label setup failed for %d of %d repositories", failed, len(cfg.Repositories))
	}
	return nil
}
