// Package main provides the ci-tracker CLI: it downloads the CI signal of the
// newest commits, loads it into the results ledger, ranks the tests that hurt
// CI the most and serves the result to the dashboard, the MCP server and the
// terminal viewer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ci-tracker/src/config"
	"ci-tracker/src/logger"
	"ci-tracker/src/provider"
)

var version = "dev"

// cacheFlags select which providers replay their cached responses.
type cacheFlags struct {
	github           bool
	s3               bool
	buildkite        bool
	buildkiteRelease bool
	gha              bool
}

var (
	configPath string
	cached     cacheFlags

	appConfig *config.Config
	log       logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ci-tracker",
	Short: "ci-tracker - rank the tests that hurt CI the most",
	Long: `ci-tracker collects the CI results of the newest commits from GitHub
Actions, Buildkite, Travis and the archived build logs in S3, records them in
a results ledger and ranks every test by how much it hurts CI.

The snapshot is written as JSON (and optionally as a Prometheus textfile) and
published on Redpanda when REDPANDA_BROKERS is set.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = os.Getenv("CI_TRACKER_CONFIG")
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		appConfig = cfg
		log = logger.NewConsoleLogger(cfg.LogLevel)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "YAML configuration file (default $CI_TRACKER_CONFIG)")
	flags.BoolVar(&cached.github, "cached-github", true, "replay the cached commit listing")
	flags.BoolVar(&cached.s3, "cached-s3", true, "replay cached archived build logs")
	flags.BoolVar(&cached.buildkite, "cached-buildkite", true, "replay cached Buildkite branch builds")
	flags.BoolVar(&cached.buildkiteRelease, "cached-buildkite-release", true, "replay cached Buildkite release builds")
	flags.BoolVar(&cached.gha, "cached-gha", true, "replay cached GitHub Actions and Travis statuses")

	rootCmd.AddCommand(downloadCmd, etlCmd, analysisCmd, runCmd, serveMCPCmd, viewCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, provider.WrapError(err))
		os.Exit(1)
	}
}
