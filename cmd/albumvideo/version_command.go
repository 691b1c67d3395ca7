package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"albumvideo/internal/report"
)

func newVersionCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version and build identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			build := report.CurrentBuild()
			if jsonOutput {
				return writeJSON(cmd, build)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "albumvideo %s\n", build.Version)
			fmt.Fprintf(out, "  commit: %s\n", build.Commit)
			fmt.Fprintf(out, "  branch: %s\n", build.Branch)
			if build.Tag != "" {
				fmt.Fprintf(out, "  tag:    %s\n", build.Tag)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")

	return cmd
}
