package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/graphmill/graphload/cmd/graphload/internal"
	"github.com/graphmill/graphload/internal/graph"
	"github.com/graphmill/graphload/internal/neoversion"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Probe the target server and show its version profile",
	Long: `Info connects to the configured database, runs the version probe,
and reports the detected version, edition, and the dialect graphload would
use against it.`,
	RunE: runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	formatter := internal.NewFormatter(globalFlags.GetOutputFormat(), cmd.OutOrStdout())

	runner, err := graph.NewNeo4jRunner(runnerConfig(loadedConfig))
	if err != nil {
		return err
	}
	defer runner.Close(ctx)

	if err := runner.Connect(ctx); err != nil {
		return err
	}

	profile, err := neoversion.Probe(ctx, runner)
	if err != nil {
		return err
	}
	dialect, err := neoversion.Select(profile)
	if err != nil {
		// Still show what was detected before reporting the failure.
		_ = formatter.PrintError("server version is not supported")
		_ = formatter.PrintJSON(profile)
		return err
	}

	if globalFlags.GetOutputFormat() == internal.FormatJSON {
		return formatter.PrintJSON(map[string]any{
			"profile": profile,
			"dialect": dialect.ID,
			"features": map[string]bool{
				"node_key":     dialect.Supports(neoversion.FeatureNodeKey),
				"text_index":   dialect.Supports(neoversion.FeatureTextIndex),
				"vector_index": dialect.Supports(neoversion.FeatureVectorIndex),
				"cypher_25":    dialect.Supports(neoversion.FeatureCypher25),
			},
		})
	}

	return formatter.PrintTable(
		[]string{"Field", "Value"},
		[][]string{
			{"Version", profile.FullVersion},
			{"Edition", string(profile.Edition)},
			{"Cypher versions", strings.Join(profile.CypherVersions, ", ")},
			{"Dialect", string(dialect.ID)},
			{"Identity function", dialect.IdentityFunc() + "()"},
		})
}
