package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "review-relay",
		Usage: "route GitHub webhooks to automated analysis handlers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config/settings.yaml",
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"REVIEW_RELAY_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			setupLabelsCommand(),
			checkConfigCommand(),
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Command failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
