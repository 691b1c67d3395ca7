package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"albumvideo/internal/config"
)

func newConfigCommand(cmdCtx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}
	cmd.AddCommand(newConfigShowCommand(cmdCtx))
	cmd.AddCommand(newConfigInitCommand())
	return cmd
}

func newConfigShowCommand(cmdCtx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, map[string]any{
					"path":   cmdCtx.configPath,
					"config": cfg,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config file:    %s\n", cmdCtx.configPath)
			fmt.Fprintf(out, "export dir:     %s\n", cfg.Paths.ExportDir)
			fmt.Fprintf(out, "staging dir:    %s\n", cfg.Paths.StagingDir)
			fmt.Fprintf(out, "log dir:        %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "ffmpeg:         %s\n", cfg.FFmpegBinary())
			fmt.Fprintf(out, "ffprobe:        %s\n", cfg.FFprobeBinary())
			fmt.Fprintf(out, "watchdog:       %ds\n", cfg.Workflow.WatchdogTimeout)
			fmt.Fprintf(out, "log format:     %s\n", cfg.Logging.Format)
			fmt.Fprintf(out, "log level:      %s\n", cfg.Logging.Level)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the configuration as JSON")
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a sample configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				path string
				err  error
			)
			if len(args) == 1 {
				path, err = config.ExpandPath(args[0])
			} else {
				path, err = config.DefaultConfigPath()
			}
			if err != nil {
				return err
			}
			if !force {
				if _, statErr := os.Stat(path); statErr == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
			}
			if err := config.CreateSample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
