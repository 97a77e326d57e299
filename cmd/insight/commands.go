package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"insight/internal/config"
	"insight/internal/output"
	"insight/internal/pipeline"
	"insight/internal/probe"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	var (
		outPath     string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load, join, derive, compare and rank; write the JSON report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			defer setupMetrics(g, cfg.Job)()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			start := time.Now()
			res, err := pipeline.Run(ctx, cfg, pipeline.Options{Verbose: g.verbose, Concurrency: concurrency})
			if err != nil {
				return err
			}
			if err := output.Write(outPath, res); err != nil {
				return err
			}
			if g.verbose {
				log.Printf("completed job=%s run=%s insights=%d in %s",
					res.Job, res.RunID, len(res.Insights), time.Since(start).Truncate(time.Millisecond))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "-", "report path; .gz or .zst compresses; - for stdout")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "max sources loaded in parallel (0 = all)")
	return cmd
}

func newValidateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Lint the configuration, compile formulas and check periods without loading data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			issues := config.Validate(cfg)
			w := cmd.ErrOrStderr()
			for _, iss := range issues {
				fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
			}
			if err := config.Err(issues); err != nil {
				return fmt.Errorf("configuration is invalid: %s", g.configPath)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %s\n", g.configPath)
			return nil
		},
	}
}

func newAnalyzeCmd(g *globalFlags) *cobra.Command {
	var (
		delimiter string
		maxBytes  int
		name      string
		format    string
		outPath   string
	)
	cmd := &cobra.Command{
		Use:   "analyze <file-or-url>",
		Short: "Profile a CSV/JSON file and suggest a configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var delim rune
			if delimiter != "" {
				delim = config.Options{"d": delimiter}.Rune("d", 0)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			a, err := probe.Analyze(ctx, probe.Options{
				Location:  args[0],
				MaxBytes:  maxBytes,
				Delimiter: delim,
				Name:      name,
			})
			if err != nil {
				return err
			}

			var body []byte
			switch format {
			case "summary":
				if outPath == "" || outPath == "-" {
					return a.WriteSummary(cmd.OutOrStdout())
				}
				return fmt.Errorf("--out requires --format json or yaml")
			case "json":
				body, err = a.ConfigJSON()
			case "yaml":
				body, err = a.ConfigYAML()
			default:
				return fmt.Errorf("unknown format %q (want summary, json, yaml)", format)
			}
			if err != nil {
				return err
			}
			if outPath == "" || outPath == "-" {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			if err := os.WriteFile(outPath, body, 0o644); err != nil {
				return err
			}
			if g.verbose {
				log.Printf("analyze: wrote %s", outPath)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&delimiter, "delimiter", "d", "", `CSV delimiter (default: detect; use \t for tab)`)
	f.IntVar(&maxBytes, "max-bytes", probe.DefaultMaxBytes, "bytes sampled from the start of the file")
	f.StringVar(&name, "name", "", "job/source name (default: file name)")
	f.StringVarP(&format, "format", "f", "summary", "output: summary, json, yaml")
	f.StringVarP(&outPath, "out", "o", "-", "write the suggested config here")
	return cmd
}
