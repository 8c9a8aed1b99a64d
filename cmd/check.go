package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mabhi256/dllcheck/internal/check"
	"github.com/mabhi256/dllcheck/internal/config"
	"github.com/mabhi256/dllcheck/internal/html"
	"github.com/mabhi256/dllcheck/internal/observability"
	"github.com/mabhi256/dllcheck/internal/report"
	"github.com/mabhi256/dllcheck/utils"
)

const (
	formatCLI  = "cli"
	formatJSON = "json"
	formatHTML = "html"
)

var (
	outputFormat string
	validFormats = []string{formatCLI, formatJSON, formatHTML}
)

var checkCmd = &cobra.Command{
	Use:               "check [config-file]",
	Short:             "Run a single dependency check",
	Args:              cobra.MaximumNArgs(1),
	ValidArgsFunction: utils.CompleteFilesByExtension(configExtensions),
	RunE:              runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	if err := validateFormat(); err != nil {
		return err
	}

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

	if err := writeReport(ctx, cmd.OutOrStdout(), cfg, result); err != nil {
		return err
	}
	if !result.Passed() {
		return errValidationFailed
	}
	return nil
}

func validateFormat() error {
	if !slices.Contains(validFormats, outputFormat) {
		return fmt.Errorf("invalid output format: %s. Valid options: %v", outputFormat, validFormats)
	}
	return nil
}

func startTracing(ctx context.Context, cfg *config.Config) (*observability.TracerProvider, error) {
	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to start tracing: %w", err)
	}
	if tp.Enabled() {
		logger.Debug("tracing enabled")
	}
	return tp, nil
}

func runOnce(ctx context.Context, cfg *config.Config) (*check.Result, error) {
	return check.Run(ctx, cfg, check.Options{
		Jobs:    jobs,
		Timeout: timeout,
		Logger:  logger,
	})
}

// writeReport renders result in the selected format to --out-file, or to w
func writeReport(ctx context.Context, w io.Writer, cfg *config.Config, result *check.Result) error {
	_, span := observability.StartSpan(ctx, "report.render",
		attribute.String("dllcheck.format", outputFormat),
	)
	defer span.End()

	var buf bytes.Buffer
	var err error
	switch outputFormat {
	case formatJSON:
		err = report.WriteJSON(&buf, result.Report)
	case formatHTML:
		err = html.WriteHTML(&buf, result.Report, html.Meta{
			ConfigFile: cfg.File,
			Elapsed:    result.Elapsed,
		})
	default:
		err = report.WriteText(&buf, result.Report, report.TextOptions{
			Styled: outputFile == "" && useColor(w),
		})
	}
	if err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("failed to render report: %w", err)
	}

	if outputFile == "" && outputFormat != formatHTML {
		_, err = w.Write(buf.Bytes())
		return err
	}

	path := outputFile
	if outputFormat == formatHTML {
		// html always goes to a file, generated name if none was given
		if path, err = html.GetOutputPath(outputFile); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("failed to write report: %w", err)
	}
	logger.Info("report written", "file", path)
	return nil
}

// useColor is true only for a real terminal without --no-color or NO_COLOR
func useColor(w io.Writer) bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
