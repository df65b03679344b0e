package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/graphmill/graphload/cmd/graphload/internal"
	"github.com/graphmill/graphload/internal/batch"
	"github.com/graphmill/graphload/internal/checkpoint"
	"github.com/graphmill/graphload/internal/config"
	"github.com/graphmill/graphload/internal/graph"
	"github.com/graphmill/graphload/internal/job"
	"github.com/graphmill/graphload/internal/pipeline"
)

var loadFlags struct {
	manifest     string
	phases       []int
	skipRowCount bool
	noCheckpoint bool
	list         bool
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Run a load manifest against the target database",
	Long: `Load executes the phases declared in a YAML manifest: schema first,
then lookup tables, nodes, relationships, and verification. Use --phase to
run a subset of the plan, for example to resume after a failure; schema
always reapplies first since the DDL is idempotent.`,
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().StringVarP(&loadFlags.manifest, "manifest", "m", "", "Path to the load manifest (required)")
	loadCmd.Flags().IntSliceVarP(&loadFlags.phases, "phase", "p", nil, "Phase IDs to run (repeatable; default: all)")
	loadCmd.Flags().BoolVar(&loadFlags.skipRowCount, "skip-row-count", false, "Skip the upfront record-counting pass")
	loadCmd.Flags().BoolVar(&loadFlags.noCheckpoint, "no-checkpoint", false, "Disable the local checkpoint store")
	loadCmd.Flags().BoolVar(&loadFlags.list, "list", false, "List the manifest's phases and exit")
	_ = loadCmd.MarkFlagRequired("manifest")
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	formatter := internal.NewFormatter(globalFlags.GetOutputFormat(), cmd.OutOrStdout())

	manifest, err := job.Load(loadFlags.manifest)
	if err != nil {
		return err
	}

	if loadFlags.list {
		plan, err := manifest.Plan()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), plan.Describe())
		return nil
	}

	runner, err := graph.NewNeo4jRunner(runnerConfig(loadedConfig))
	if err != nil {
		return err
	}
	defer runner.Close(ctx)

	var store *checkpoint.Store
	if loadedConfig.Checkpoint.Enabled && !loadFlags.noCheckpoint {
		store, err = checkpoint.Open(checkpoint.Config{
			Path:        loadedConfig.Checkpoint.Path,
			BusyTimeout: loadedConfig.Checkpoint.Timeout,
			WALMode:     loadedConfig.Checkpoint.WALMode,
		})
		if err != nil {
			logger.Warn("checkpoint store unavailable, continuing without it", "error", err)
		} else {
			defer store.Close()
		}
	}

	p, err := pipeline.New(pipeline.Options{
		Config:     loadedConfig,
		Manifest:   manifest,
		Runner:     runner,
		Checkpoint: store,
		Logger:     logger,
		OnProgress: progressPrinter(cmd),
	})
	if err != nil {
		return err
	}

	summary, err := p.Run(ctx, pipeline.RunOptions{
		PhaseIDs:     loadFlags.phases,
		SkipRowCount: loadFlags.skipRowCount,
	})
	if err != nil {
		printSummary(formatter, summary)
		return err
	}

	printSummary(formatter, summary)
	// Partial failure is not fatal: the failed ranges are in the summary and
	// the phases can be re-run by ID without redoing completed work.
	if failed := summary.TotalFailed(); failed > 0 {
		_ = formatter.PrintError(fmt.Sprintf("%d records failed after retries; re-run the affected phases with --phase", failed))
	}
	return nil
}

// progressPrinter reports phase progress on stderr in text mode. JSON mode
// stays quiet; the summary is the machine-readable record.
func progressPrinter(cmd *cobra.Command) func(batch.Snapshot) {
	if globalFlags.Quiet || globalFlags.GetOutputFormat() == internal.FormatJSON {
		return nil
	}
	return func(s batch.Snapshot) {
		if s.Total > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d/%d (%.1f%%) in %s\n",
				s.Phase, s.Processed, s.Total, s.Percent(), s.Elapsed.Round(time.Second))
			return
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d records in %s\n",
			s.Phase, s.Processed, s.Elapsed.Round(time.Second))
	}
}

func printSummary(formatter internal.Formatter, summary *pipeline.Summary) {
	if summary == nil {
		return
	}
	if globalFlags.GetOutputFormat() == internal.FormatJSON {
		_ = formatter.PrintJSON(summary)
		return
	}

	headers := []string{"ID", "Phase", "Kind", "Processed", "Skipped", "Failed", "Chunks", "Elapsed"}
	rows := make([][]string, 0, len(summary.Phases))
	for _, ph := range summary.Phases {
		rows = append(rows, []string{
			fmt.Sprintf("%d", ph.PhaseID),
			ph.Name,
			string(ph.Kind),
			fmt.Sprintf("%d", ph.Processed),
			fmt.Sprintf("%d", ph.Skipped),
			fmt.Sprintf("%d", ph.Failed),
			fmt.Sprintf("%d", ph.Chunks),
			ph.Elapsed.Round(time.Millisecond).String(),
		})
	}
	_ = formatter.PrintTable(headers, rows)

	if summary.Verification != nil {
		for label, count := range summary.Verification.NodeCounts {
			_ = formatter.PrintSuccess(fmt.Sprintf("%s nodes: %d", label, count))
		}
		for relType, count := range summary.Verification.RelationshipCounts {
			_ = formatter.PrintSuccess(fmt.Sprintf("%s relationships: %d", relType, count))
		}
	}
}

// runnerConfig converts the loaded file configuration into the driver's
// connection config.
func runnerConfig(cfg *config.Config) graph.Config {
	return graph.Config{
		URI:                     cfg.Neo4j.URI,
		Username:                cfg.Neo4j.Username,
		Password:                cfg.Neo4j.Password,
		Database:                cfg.Neo4j.Database,
		MaxConnectionPoolSize:   cfg.Neo4j.MaxConnectionPoolSize,
		ConnectionTimeout:       cfg.Neo4j.ConnectionTimeout,
		MaxTransactionRetryTime: cfg.Neo4j.MaxTransactionRetry,
	}
}
