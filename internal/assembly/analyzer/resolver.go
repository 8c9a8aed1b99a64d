package analyzer

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/charmbracelet/log"

	"github.com/mabhi256/dllcheck/internal/assembly/model"
	"github.com/mabhi256/dllcheck/internal/assembly/parser"
	"github.com/mabhi256/dllcheck/internal/observability"
)

// Classifier answers the two questions the reporter asks about unresolved records
type Classifier interface {
	// Locate finds a fallback module satisfying record and returns its path
	Locate(record *model.Record) (string, bool)
	// IsExcluded reports whether a module name is exempt from missing/failed reporting
	IsExcluded(name string) bool
}

type located struct {
	path string
	ok   bool
}

// Resolver searches the system directories and applies the exclusion patterns.
// Answers are memoized for the lifetime of the Resolver, so build a new one
// per run. It is not safe for concurrent use.
type Resolver struct {
	systemPaths []string
	excluded    []*regexp.Regexp
	reader      parser.Reader
	logger      *log.Logger

	locateCache  map[string]located
	excludeCache map[string]bool
}

// ResolverOptions tunes NewResolver
type ResolverOptions struct {
	// Reader parses fallback candidates, defaults to parser.FileReader
	Reader parser.Reader
	Logger *log.Logger
}

// NewResolver builds a resolver over systemPaths, searched in order. Directories
// that do not exist are dropped with a warning, since they can only make a
// lookup fail.
func NewResolver(systemPaths []string, excluded []*regexp.Regexp, opts ResolverOptions) *Resolver {
	logger := observability.OrDiscard(opts.Logger)
	reader := opts.Reader
	if reader == nil {
		reader = parser.NewFileReader()
	}

	dirs := make([]string, 0, len(systemPaths))
	for _, dir := range systemPaths {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			logger.Warn("skipping system directory", "dir", dir, "err", err)
			continue
		}
		dirs = append(dirs, dir)
	}

	return &Resolver{
		systemPaths:  dirs,
		excluded:     excluded,
		reader:       reader,
		logger:       logger,
		locateCache:  make(map[string]located),
		excludeCache: make(map[string]bool),
	}
}

// Locate checks the system directories in order for a file named exactly like
// record whose version is at least the requested one. A candidate that fails
// to parse or is too old does not stop the search.
func (r *Resolver) Locate(record *model.Record) (string, bool) {
	key := record.Identity().Key()
	if hit, ok := r.locateCache[key]; ok {
		return hit.path, hit.ok
	}

	result := r.locate(record)
	r.locateCache[key] = result
	return result.path, result.ok
}

func (r *Resolver) locate(record *model.Record) located {
	for _, dir := range r.systemPaths {
		path := filepath.Join(dir, record.Name)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}

		md, err := r.reader.Read(path)
		if err != nil {
			r.logger.Debug("system candidate failed to load", "path", path, "err", err)
			continue
		}
		if !md.Identity.Version.AtLeast(record.Version) {
			r.logger.Debug("system candidate too old", "path", path,
				"have", md.Identity.Version, "want", record.Version)
			continue
		}

		r.logger.Debug("resolved from system directory", "module", record, "path", path)
		return located{path: path, ok: true}
	}
	return located{}
}

// IsExcluded runs an unanchored match of every exclusion pattern against name
func (r *Resolver) IsExcluded(name string) bool {
	if hit, ok := r.excludeCache[name]; ok {
		return hit
	}

	excluded := false
	for _, re := range r.excluded {
		if re.MatchString(name) {
			excluded = true
			break
		}
	}
	r.excludeCache[name] = excluded
	return excluded
}
