package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ZanzyTHEbar/review-relay/internal/config"
	"github.com/ZanzyTHEbar/review-relay/internal/prompts"
	"github.com/urfave/cli/v2"
)

func checkConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "check-config",
		Usage: "validate the configuration and print the repository and event matrix",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			printConfig(c.App.Writer, cfg)
			return nil
		},
	}
}

func printConfig(out io.Writer, cfg *config.Config) {
	fmt.Fprintf(out, "Listening on %s%s\n", cfg.Server.Addr(), cfg.Server.WebhookPath)
	fmt.Fprintf(out, "Async processing: %t, signature validation: %t, journal: %s\n\n",
		cfg.Features.AsyncProcessing, cfg.Features.SignatureValidation, cfg.Journal.Driver)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REPOSITORY\t"+strings.Join(config.KnownEvents, "\t"))
	for _, repo := range cfg.Repositories {
		enabled := make(map[string]bool, len(repo.Events))
		for _, ev := range repo.Events {
			enabled[ev] = true
		}
		row := []string{repo.Name}
		for _, ev := range config.KnownEvents {
			mark := "-"
			if enabled[ev] {
				mark = "yes"
			}
			row = append(row, mark)
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()

	fmt.Fprintln(out, "\nPrompt templates:")
	for _, t := range prompts.NewLoader(cfg.Prompts).Available() {
		status := "ok"
		if !t.Exists {
			status = "MISSING"
		}
		fmt.Fprintf(out, "  %s/%s -> %s [%s]\n", t.EventType, t.Action, t.File, status)
	}
}
