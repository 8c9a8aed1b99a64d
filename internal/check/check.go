// Package check runs one full validation: scan, link, classify, report.
package check

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mabhi256/dllcheck/internal/assembly/analyzer"
	"github.com/mabhi256/dllcheck/internal/assembly/parser"
	"github.com/mabhi256/dllcheck/internal/assembly/registry"
	"github.com/mabhi256/dllcheck/internal/config"
	"github.com/mabhi256/dllcheck/internal/observability"
	"github.com/mabhi256/dllcheck/internal/report"
)

// Options tunes a run
type Options struct {
	// Jobs bounds concurrent module parses, 0 means one per CPU
	Jobs int
	// Timeout bounds the whole run, 0 means none
	Timeout time.Duration
	Logger  *log.Logger
	// Reader overrides the module reader, for tests
	Reader parser.Reader
}

// Result is the outcome of one run
type Result struct {
	Report  *report.Report
	Graph   *analyzer.Graph
	Elapsed time.Duration
}

// Passed reports whether the run found nothing missing, failed or duplicated
func (r *Result) Passed() bool {
	return r.Report.Summary.Passed
}

// Run scans cfg.Paths from scratch and builds the report. Only configuration
// and scan-level problems are returned as errors; per-module problems end up
// in the report.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Result, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	ctx, span := observability.StartSpan(ctx, "dllcheck.check",
		attribute.String("dllcheck.config", cfg.File),
	)
	defer span.End()

	logger := observability.OrDiscard(opts.Logger)
	start := time.Now()

	idx, err := registry.Build(ctx, cfg.Paths, registry.Options{
		Reader: opts.Reader,
		Jobs:   opts.Jobs,
		Logger: logger,
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	graph, err := analyzer.NewGraphBuilder(logger).Link(ctx, idx)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	resolver := analyzer.NewResolver(cfg.SystemPaths, cfg.Excluded(), analyzer.ResolverOptions{
		Reader: opts.Reader,
		Logger: logger,
	})
	rep := report.Build(ctx, graph, resolver)

	result := &Result{
		Report:  rep,
		Graph:   graph,
		Elapsed: time.Since(start),
	}

	observability.RecordCounts(span, idx.Len(), rep.Summary.Missing, rep.Summary.Failed, rep.Summary.Duplicates)
	logger.Debug("validation finished", "modules", idx.Len(), "roots", len(graph.Roots),
		"passed", rep.Summary.Passed, "elapsed", result.Elapsed)

	return result, nil
}
