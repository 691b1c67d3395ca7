package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDiagnosticsCommand(cmdCtx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Write a diagnostics bundle referencing the session log",
		Long: `Diagnostics collects build identity, binary verification state, and
ledger health into a schema-versioned bundle. It never executes the
encoder, so it works even when integrity verification has rendering
disabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := cmdCtx.buildStack(cmd.Context())
			if err != nil {
				return err
			}
			defer stack.close()

			path, err := stack.orch.CollectDiagnostics(cmd.Context(), cmdCtx.configPath)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, map[string]string{"bundle": path})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "diagnostics bundle: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the bundle path as JSON")
	return cmd
}
