package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"albumvideo/internal/deps"
	"albumvideo/internal/integrity"
	"albumvideo/internal/ledger"
	"albumvideo/internal/logging"
	"albumvideo/internal/report"
)

func newStatusCommand(cmdCtx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show binary availability, integrity state, and ledger health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}

			statuses := deps.CheckBinaries(deps.Requirements(cfg))

			gate, err := integrity.NewGate(cfg, report.Packaged(), logging.NewNop())
			if err != nil {
				return err
			}
			integrityMode := "verification-failed"
			var binaries []report.Binary
			if result, verifyErr := gate.Verify(cmd.Context()); verifyErr == nil {
				integrityMode = string(result.Mode)
				for _, record := range result.Records {
					binaries = append(binaries, report.Binary{
						Name:     record.Name,
						Path:     record.BinaryPath,
						SHA256:   record.ActualDigest,
						Verified: record.Verified,
						Bypassed: record.Bypassed,
					})
				}
			}

			store, err := ledger.Open(cfg, logging.NewNop())
			if err != nil {
				return err
			}
			defer store.Close()
			incomplete, err := store.ListIncomplete(cmd.Context())
			if err != nil {
				return err
			}
			lastExport, err := store.LastExportDir(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, map[string]any{
					"build":           report.CurrentBuild(),
					"binaries":        statuses,
					"integrity_mode":  integrityMode,
					"verified":        binaries,
					"orphan_entries":  len(incomplete),
					"last_export_dir": lastExport,
				})
			}

			rows := make([][]string, 0, len(statuses))
			for _, status := range statuses {
				availability := "ok"
				if !status.Available {
					availability = status.Detail
				}
				rows = append(rows, []string{status.Name, status.Command, availability})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Binary", "Command", "Status"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft}))

			fmt.Fprintf(cmd.OutOrStdout(), "integrity mode: %s\n", integrityMode)
			if len(incomplete) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "orphaned ledger entries: %d (cleaned at next startup)\n", len(incomplete))
			}
			if lastExport != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "last export folder: %s\n", lastExport)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit status as JSON")
	return cmd
}
