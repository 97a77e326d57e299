// Command insight compares two periods of tabular performance data and
// ranks the changes by business impact.
//
//	insight run -c weekly.yaml -o report.json.gz
//	insight validate -c weekly.yaml
//	insight analyze ads.csv
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"insight/internal/metrics"
	"insight/internal/metrics/datadog"
	"insight/internal/metrics/prompush"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "insight/internal/storage/all"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath     string
	envFile        string
	metricsBackend string
	pushGatewayURL string
	statsdAddr     string
	verbose        bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "insight",
		Short:         "Rank period-over-period KPI changes by impact",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv(g.envFile, g.verbose)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "insight.yaml", "configuration file (JSON or YAML)")
	pf.StringVar(&g.envFile, "env-file", "", "dotenv file with credentials for ${VAR} placeholders (default: ./.env when present)")
	pf.StringVar(&g.metricsBackend, "metrics-backend", "", "metrics backend: pushgateway, datadog, none (env METRICS_BACKEND)")
	pf.StringVar(&g.pushGatewayURL, "pushgateway-url", "", "Pushgateway base URL (env PUSHGATEWAY_URL)")
	pf.StringVar(&g.statsdAddr, "statsd-addr", "", "DogStatsD address (env STATSD_ADDR)")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "enable verbose logs")

	root.AddCommand(newRunCmd(g), newValidateCmd(g), newAnalyzeCmd(g))
	return root
}

// loadEnv loads path into the process environment without overriding
// variables that are already set. An empty path loads ./.env if it exists.
func loadEnv(path string, verbose bool) error {
	if path == "" {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		if err == nil && verbose {
			log.Printf("env: loaded .env")
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	if verbose {
		log.Printf("env: loaded %s", path)
	}
	return nil
}

// setupMetrics installs the selected backend and returns a flush function
// for deferred use. Failures fall back to the no-op backend.
func setupMetrics(g *globalFlags, job string) func() {
	name := g.metricsBackend
	if name == "" {
		name = os.Getenv("METRICS_BACKEND")
	}
	flush := func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}

	switch name {
	case "pushgateway":
		gwURL := firstNonEmpty(g.pushGatewayURL, os.Getenv("PUSHGATEWAY_URL"), "http://localhost:9091")
		b, err := prompush.NewBackend(job, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: url=%v, backend=%v, job_name=%v", gwURL, name, job)
		metrics.SetBackend(b)
		return flush

	case "datadog":
		addr := firstNonEmpty(g.statsdAddr, os.Getenv("STATSD_ADDR"), "127.0.0.1:8125")
		b, err := datadog.NewBackend(datadog.Config{Addr: addr, Namespace: "insight."})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: addr=%v, backend=%v, job_name=%v", addr, name, job)
		metrics.SetBackend(b)
		return func() {
			flush()
			if err := b.Close(); err != nil {
				log.Printf("metrics: close error: %v", err)
			}
		}

	case "", "none":
		if g.verbose {
			log.Printf("metrics: disabled (backend=%q)", name)
		}
	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", name)
	}
	return func() {}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
