package main

import (
	"github.com/spf13/cobra"

	"github.com/graphmill/graphload/cmd/graphload/internal"
	"github.com/graphmill/graphload/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if globalFlags.GetOutputFormat() == internal.FormatJSON {
			return internal.NewJSONFormatter(cmd.OutOrStdout()).PrintJSON(version.Info())
		}
		cmd.Println(version.String())
		return nil
	},
}
