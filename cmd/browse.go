package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mabhi256/dllcheck/internal/tui"
	"github.com/mabhi256/dllcheck/utils"
)

var browseCmd = &cobra.Command{
	Use:               "browse [config-file]",
	Short:             "Run a check and explore the result interactively",
	Args:              cobra.MaximumNArgs(1),
	ValidArgsFunction: utils.CompleteFilesByExtension(configExtensions),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(args)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		tp, err := startTracing(ctx, cfg)
		if err != nil {
			return err
		}
		defer tp.Shutdown(context.Background())

		result, err := runOnce(ctx, cfg)
		if err != nil {
			return err
		}

		title := fmt.Sprintf("%s • %s", cfg.File, utils.FormatDuration(result.Elapsed))
		if err := tui.StartTUI(result.Report, title); err != nil {
			return fmt.Errorf("unable to start TUI: %w", err)
		}

		if !result.Passed() {
			return errValidationFailed
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(browseCmd)
}
