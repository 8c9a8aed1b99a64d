package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mabhi256/dllcheck/internal/config"
	"github.com/mabhi256/dllcheck/internal/watch"
	"github.com/mabhi256/dllcheck/utils"
)

var debounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [config-file]",
	Short: "Re-run the check whenever a DLL changes",
	Long: `Watch runs a check, then runs it again from scratch each time a DLL in one of
the configured Paths or SystemPaths is created, written, renamed or removed.
Bursts of changes are coalesced into a single run.

Examples:
  dllcheck watch                      # uses ./dllcheck.json
  dllcheck watch deploy.json          # explicit config
  dllcheck watch -o json --out-file r.json`,
	Args:              cobra.MaximumNArgs(1),
	ValidArgsFunction: utils.CompleteFilesByExtension(configExtensions),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(); err != nil {
			return err
		}

		cfg, err := loadConfig(args)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		tp, err := startTracing(ctx, cfg)
		if err != nil {
			return err
		}
		defer tp.Shutdown(context.Background())

		rerun := func(ctx context.Context, changed []string) error {
			logger.Info("change detected, re-running", "files", len(changed))
			return checkAndReport(ctx, cmd, cfg)
		}

		w, err := watch.New(watch.Config{
			Dirs:     cfg.Paths,
			Optional: cfg.SystemPaths,
			Debounce: debounce,
			OnChange: rerun,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("unable to start watcher: %w", err)
		}

		if err := checkAndReport(ctx, cmd, cfg); err != nil {
			logger.Error(err.Error())
		}
		logger.Info("watching for changes, press Ctrl-C to stop", "dirs", len(w.Dirs()))
		return w.Run(ctx)
	},
}

// checkAndReport runs one full check. A failed validation is not an error
// here: watch keeps going until interrupted.
func checkAndReport(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	result, err := runOnce(ctx, cfg)
	if err != nil {
		return err
	}
	if err := writeReport(ctx, cmd.OutOrStdout(), cfg, result); err != nil {
		return err
	}
	logger.Debug("check finished", "passed", result.Passed(), "elapsed", utils.FormatDuration(result.Elapsed))
	return nil
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before re-running after a change")
}
