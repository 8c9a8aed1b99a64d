// Package watch re-runs a check whenever modules in the scanned directories change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/mabhi256/dllcheck/internal/observability"
)

const DefaultDebounce = 500 * time.Millisecond

var (
	// DefaultPatterns select module files by base name
	DefaultPatterns = []string{"*.[dD][lL][lL]"}
	// DefaultIgnores drop editor and copy leftovers
	DefaultIgnores = []string{"*~", "*.tmp", ".#*"}
)

type Config struct {
	// Dirs are watched non-recursively, like the scan itself
	Dirs []string
	// Optional dirs are watched when they can be. One that cannot be added
	// is skipped with a warning instead of failing New.
	Optional []string
	// Patterns and Ignore are doublestar globs matched against the base name
	Patterns []string
	Ignore   []string
	Debounce time.Duration
	// OnChange receives the sorted, deduplicated paths that changed during
	// one debounce window. It is never called concurrently.
	OnChange func(ctx context.Context, changed []string) error
	Logger   *log.Logger
}

type Watcher struct {
	cfg    Config
	fsw    *fsnotify.Watcher
	logger *log.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	fire    chan struct{}
}

func New(cfg Config) (*Watcher, error) {
	if len(cfg.Dirs) == 0 {
		return nil, errors.New("watch: no directories to watch")
	}
	if len(cfg.Patterns) == 0 {
		cfg.Patterns = DefaultPatterns
	}
	if cfg.Ignore == nil {
		cfg.Ignore = DefaultIgnores
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if err := validatePatterns(cfg.Patterns, "watch"); err != nil {
		return nil, err
	}
	if err := validatePatterns(cfg.Ignore, "ignore"); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		cfg:     cfg,
		fsw:     fsw,
		logger:  observability.OrDiscard(cfg.Logger),
		pending: make(map[string]struct{}),
		fire:    make(chan struct{}, 1),
	}

	for _, dir := range cfg.Dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch: add directory %s: %w", dir, err)
		}
		w.logger.Debug("watching", "dir", dir)
	}
	for _, dir := range cfg.Optional {
		if err := fsw.Add(dir); err != nil {
			w.logger.Warn("skipping watch directory", "dir", dir, "err", err)
			continue
		}
		w.logger.Debug("watching", "dir", dir)
	}
	return w, nil
}

// Run blocks until ctx is cancelled. Callback errors are logged, not returned.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			if evt.Has(fsnotify.Chmod) && !evt.Has(fsnotify.Write) {
				continue
			}
			if !w.Matches(evt.Name) {
				continue
			}
			w.logger.Debug("change", "path", evt.Name, "op", evt.Op.String())
			w.schedule(evt.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// events were dropped, so run anyway
				w.logger.Warn("event queue overflowed")
				w.schedule("")
				continue
			}
			w.logger.Error("watch error", "err", err)

		case <-w.fire:
			changed := w.drain()
			if len(changed) == 0 || w.cfg.OnChange == nil {
				continue
			}
			if err := w.cfg.OnChange(ctx, changed); err != nil {
				w.logger.Error("re-run failed", "err", err)
			}
		}
	}
}

// Matches reports whether a change to path should trigger a re-run
// Dirs lists the directories actually being watched
func (w *Watcher) Dirs() []string {
	dirs := w.fsw.WatchList()
	slices.Sort(dirs)
	return dirs
}

func (w *Watcher) Matches(path string) bool {
	name := filepath.Base(path)
	if matchAny(w.cfg.Ignore, name) {
		return false
	}
	return matchAny(w.cfg.Patterns, name)
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if path != "" {
		w.pending[path] = struct{}{}
	} else {
		w.pending["."] = struct{}{}
	}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.cfg.Debounce, w.signal)
	} else {
		w.timer.Reset(w.cfg.Debounce)
	}
}

func (w *Watcher) signal() {
	select {
	case w.fire <- struct{}{}:
	default:
	}
}

func (w *Watcher) drain() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	changed := slices.Sorted(maps.Keys(w.pending))
	clear(w.pending)
	return changed
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func matchAny(patterns []string, name string) bool {
	for _, pat := range patterns {
		if ok, err := doublestar.Match(pat, name); err == nil && ok {
			return true
		}
	}
	return false
}

func validatePatterns(patterns []string, label string) error {
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("watch: invalid %s pattern %q", label, pat)
		}
	}
	return nil
}
