package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/graphmill/graphload/cmd/graphload/internal"
	"github.com/graphmill/graphload/internal/graph"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check connectivity to the target database",
	RunE:  runPing,
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	formatter := internal.NewFormatter(globalFlags.GetOutputFormat(), cmd.OutOrStdout())

	runner, err := graph.NewNeo4jRunner(runnerConfig(loadedConfig))
	if err != nil {
		return err
	}
	defer runner.Close(ctx)

	if err := runner.Connect(ctx); err != nil {
		_ = formatter.PrintError(fmt.Sprintf("cannot reach %s", loadedConfig.Neo4j.URI))
		return err
	}

	status := runner.Health(ctx)
	if !status.IsHealthy() {
		_ = formatter.PrintError(status.Message)
		return internal.NewCLIError(internal.ExitConnectionError, status.Message)
	}

	return formatter.PrintSuccess(fmt.Sprintf("connected to %s", loadedConfig.Neo4j.URI))
}
