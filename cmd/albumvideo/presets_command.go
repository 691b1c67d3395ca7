package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"albumvideo/internal/preset"
)

func newPresetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List available encoder presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := preset.NewRegistry()
			rows := make([][]string, 0)
			for _, name := range registry.Names() {
				p, err := registry.Lookup(name)
				if err != nil {
					return err
				}
				label := name
				if name == preset.DefaultName {
					label += " *"
				}
				rows = append(rows, []string{label, p.Description(), strings.Join(preset.VideoArgs(p), " ")})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Preset", "Description", "Video args"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft}))
			return nil
		},
	}
}
