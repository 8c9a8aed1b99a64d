package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/mabhi256/dllcheck/internal/assembly/model"
	"github.com/mabhi256/dllcheck/internal/assembly/parser"
	"github.com/mabhi256/dllcheck/internal/observability"
)

// DirectoryError is a scan directory that could not be listed. It aborts the run.
type DirectoryError struct {
	Path string
	Err  error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("unable to scan directory %s: %v", e.Path, e.Err)
}

func (e *DirectoryError) Unwrap() error {
	return e.Err
}

// Options tunes Build
type Options struct {
	// Reader parses module files, defaults to parser.FileReader
	Reader parser.Reader
	// Jobs bounds concurrent parses, defaults to runtime.NumCPU()
	Jobs   int
	Logger *log.Logger
}

type scanResult struct {
	path string
	md   *parser.Metadata
	err  error
}

// Build lists every module file in paths (non-recursive) and indexes them.
// Files are parsed concurrently but merged in directory order, then file name
// order, so duplicate locations come out the same as a sequential scan.
func Build(ctx context.Context, paths []string, opts Options) (*Index, error) {
	ctx, span := observability.StartSpan(ctx, "registry.build", attribute.Int("dllcheck.dirs", len(paths)))
	defer span.End()

	logger := observability.OrDiscard(opts.Logger)
	reader := opts.Reader
	if reader == nil {
		reader = parser.NewFileReader()
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	start := time.Now()

	files, err := listModules(paths, logger)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	results := make([]scanResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			md, err := reader.Read(path)
			results[i] = scanResult{path: path, md: md, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("scan interrupted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("scan interrupted: %w", err)
	}

	idx := NewIndex()
	for _, res := range results {
		if res.err != nil {
			logger.Debug("failed to load", "path", res.path, "err", res.err)
			idx.Add(model.NewFailedRecord(res.path, res.err))
			continue
		}

		logger.Debug("loaded", "path", res.path, "module", res.md.Identity, "refs", len(res.md.References))
		record := idx.Add(model.NewRecord(res.md.Identity, res.path, res.md.References))
		if record.IsDuplicate() {
			logger.Debug("duplicate", "module", record, "count", len(record.Locations))
		}
	}

	span.SetAttributes(
		attribute.Int("dllcheck.files", idx.FileCount()),
		attribute.Int("dllcheck.modules", idx.Len()),
	)
	logger.Debug("scan complete", "files", idx.FileCount(), "modules", idx.Len(),
		"failed", idx.FailedCount(), "elapsed", time.Since(start))

	return idx, nil
}

// listModules returns the module files of every directory, directories in the
// given order and files sorted by name within each
func listModules(paths []string, logger *log.Logger) ([]string, error) {
	var files []string
	for _, dir := range paths {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, &DirectoryError{Path: dir, Err: err}
		}

		count := 0
		for _, entry := range entries {
			if entry.IsDir() || !model.HasModuleExtension(entry.Name()) {
				continue
			}
			files = append(files, filepath.Join(dir, entry.Name()))
			count++
		}
		logger.Debug("listed directory", "dir", dir, "modules", count)
	}
	return files, nil
}

// IsDirectoryError reports whether err came from an unreadable scan directory
func IsDirectoryError(err error) bool {
	var de *DirectoryError
	return errors.As(err, &de)
}
