package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ci-tracker/src/broker"
	"ci-tracker/src/contracts"
	"ci-tracker/src/logger"
	"ci-tracker/src/mcp"
	"ci-tracker/src/report"
	"ci-tracker/src/tui"
)

// snapshotGroup is the consumer group of readers that follow published
// snapshots. Every reader wants every snapshot, so each process gets its own.
func snapshotGroup(kind string) string {
	return fmt.Sprintf("ci-tracker-%s-%s", kind, uuid.NewString())
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Fetch the CI signal of the commit window into the cache",
	Long: `Fetch every source for the newest commits and store the responses in the
cache directory. Nothing is written to the ledger; run etl afterwards, or use
run to do everything at once.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline(cmd.Context(), appConfig, cached, true)
		if err != nil {
			return err
		}
		d, err := p.Download(cmd.Context())
		if err != nil {
			return err
		}
		log.Info("downloaded %d commits: %d job rows, %d builds, %d PR builds",
			len(d.Commits), len(d.Batch.Jobs), len(d.Batch.Builds), len(d.PRBuildTimes))
		return nil
	},
}

var etlCmd = &cobra.Command{
	Use:   "etl",
	Short: "Load the cached CI signal into the results ledger",
	Long: `Replay the cache filled by download and load it into a staged ledger,
which replaces the published ledger at the configured DSN once every row is
written. Use the --cached-* flags set to false to refetch a provider.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline(cmd.Context(), appConfig, cached, true)
		if err != nil {
			return err
		}
		if err := p.Load(cmd.Context(), appConfig.LedgerDSN); err != nil {
			return err
		}
		log.Info("ledger published at %s", appConfig.LedgerDSN)
		return nil
	},
}

var analysisCmd = &cobra.Command{
	Use:   "analysis",
	Short: "Rank the tests of the published ledger and write the snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline(cmd.Context(), appConfig, cached, false)
		if err != nil {
			return err
		}
		out, closeOut, err := outputs(appConfig)
		if err != nil {
			return err
		}
		defer closeOut()

		snap, err := p.AnalyzePublished(cmd.Context(), appConfig.LedgerDSN, out)
		if err != nil {
			return err
		}
		log.Info("snapshot %s written to %s (%d ranked tests)", snap.ID, appConfig.OutputPath, len(snap.FailedTests))
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Download, load and rank in one go",
	Long: `Download the commit window, load it into a staged ledger, rank it and
write the snapshot. The ledger is published only when every step succeeds, so
a failed run leaves the previous ledger and snapshot in place.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline(cmd.Context(), appConfig, cached, true)
		if err != nil {
			return err
		}
		out, closeOut, err := outputs(appConfig)
		if err != nil {
			return err
		}
		defer closeOut()

		snap, err := p.Run(cmd.Context(), appConfig.LedgerDSN, out)
		if err != nil {
			return err
		}
		log.Info("snapshot %s written to %s (%d ranked tests)", snap.ID, appConfig.OutputPath, len(snap.FailedTests))
		return nil
	},
}

var snapshotPath string

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve the snapshot to MCP clients over stdio",
	Long: `Answer Model Context Protocol tool calls about the ranked tests from the
snapshot file. With REDPANDA_BROKERS set, newly published snapshots replace
the loaded one as they arrive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		// stdout carries the protocol.
		quiet := logger.NewSilentLogger()

		store := mcp.NewSnapshotStore()
		if err := store.LoadFile(snapshotFile()); err != nil && !canWait(err) {
			return err
		}

		if len(appConfig.RedpandaBrokers) > 0 {
			b, err := broker.New(appConfig.RedpandaBrokers, quiet)
			if err != nil {
				return fmt.Errorf("broker: %w", err)
			}
			defer b.Close()
			go store.Follow(ctx, b, snapshotGroup("mcp"), quiet)
		}

		return mcp.NewServer(store, version).Run()
	},
}

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Browse the ranked tests in the terminal",
	Long: `Show the ranked tests of the snapshot file in an interactive viewer. With
REDPANDA_BROKERS set, the view follows newly published snapshots.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		snap, err := report.ReadJSON(snapshotFile())
		if err != nil && !canWait(err) {
			return err
		}

		var updates chan *contracts.Snapshot
		if len(appConfig.RedpandaBrokers) > 0 {
			b, err := broker.New(appConfig.RedpandaBrokers, logger.NewSilentLogger())
			if err != nil {
				return fmt.Errorf("broker: %w", err)
			}
			defer b.Close()

			updates = make(chan *contracts.Snapshot)
			go func() {
				defer close(updates)
				broker.FollowSnapshots(ctx, b, snapshotGroup("view"), func(s *contracts.Snapshot) {
					select {
					case updates <- s:
					case <-ctx.Done():
					}
				}, func(error) {})
			}()
		}

		return tui.Run(snap, updates)
	},
}

func snapshotFile() string {
	if snapshotPath != "" {
		return snapshotPath
	}
	return appConfig.OutputPath
}

// canWait reports whether a missing snapshot file can be replaced by one
// published later on the broker.
func canWait(err error) bool {
	return errors.Is(err, fs.ErrNotExist) && len(appConfig.RedpandaBrokers) > 0
}

func init() {
	for _, c := range []*cobra.Command{serveMCPCmd, viewCmd} {
		c.Flags().StringVar(&snapshotPath, "snapshot", "", "snapshot JSON file (default output_path)")
	}
}
