// SPDX-License-Identifier: MPL-2.0

// Package watch provides the hot-reload subsystem: a filesystem watcher that
// classifies changes into categories, debounces each category independently,
// and hands coalesced batches to a reload handler while a session preserves
// per-module state across reloads.
//
// Events within a category's debounce window are coalesced so the handler
// fires once per burst. A single reentrancy guard serializes reloads; a batch
// arriving while a reload is in progress is dropped and counted, and the
// category timer is re-armed so the pending events are not permanently lost.
package watch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// defaultIgnores lists path patterns that are always excluded from watching,
// regardless of user-supplied ignore patterns. These cover VCS metadata,
// dependency caches, editor swap files, and OS metadata files that generate
// high-frequency noise.
var defaultIgnores = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/__pycache__/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
}

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// Paths are the root directories to watch. Each is walked
		// recursively. An empty slice defaults to the current working
		// directory.
		Paths []string

		// Ignore are additional doublestar-compatible glob patterns for
		// paths that should never trigger reloads. These are merged with
		// the built-in default ignores.
		Ignore []string

		// Debounce maps a category to its quiet period. Missing or
		// non-positive entries fall back to per-category defaults.
		Debounce map[Category]time.Duration

		// OnBatch is called after a category's debounce window closes with
		// the coalesced events of that category. A nil handler is a no-op.
		OnBatch func(ctx context.Context, batch Batch) error

		// OnDrop is called when a batch is skipped because a reload is
		// already in progress. A nil callback is a no-op.
		OnDrop func(batch Batch)

		// Stderr is the writer for watcher diagnostics. nil defaults to
		// os.Stderr.
		Stderr io.Writer
	}

	// Watcher monitors filesystem paths, classifies events, and fires
	// per-category debounced batches. Run must be called exactly once;
	// calling it a second time returns an error.
	Watcher struct {
		cfg     Config
		fsw     *fsnotify.Watcher
		ignores []string
		stderr  io.Writer
		roots   []string
		started atomic.Bool
	}
)

// New creates a Watcher from the given Config. It resolves every watch root
// to an absolute path, initialises the underlying fsnotify watcher, and
// registers all non-ignored directories under each root for monitoring.
func New(cfg Config) (*Watcher, error) {
	paths := cfg.Paths
	if len(paths) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("watch: determine working directory: %w", err)
		}
		paths = []string{wd}
	}

	roots := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("watch: resolve watch root %q: %w", p, err)
		}
		roots = append(roots, abs)
	}
	// Longest root first so rel-path resolution picks the most specific root.
	sort.Slice(roots, func(i, j int) bool { return len(roots[i]) > len(roots[j]) })

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	stderr := cfg.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	// Validate all patterns eagerly so invalid globs fail at construction
	// time rather than silently failing to match at runtime.
	if err := validatePatterns(cfg.Ignore, "ignore"); err != nil {
		fsw.Close() //nolint:errcheck // best-effort cleanup
		return nil, err
	}

	// Merge user ignores with built-in defaults.
	ignores := make([]string, 0, len(defaultIgnores)+len(cfg.Ignore))
	ignores = append(ignores, defaultIgnores...)
	ignores = append(ignores, cfg.Ignore...)

	w := &Watcher{
		cfg:     cfg,
		fsw:     fsw,
		ignores: ignores,
		stderr:  stderr,
		roots:   roots,
	}

	if err := w.addDirectories(); err != nil {
		if closeErr := fsw.Close(); closeErr != nil {
			fmt.Fprintf(stderr, "watch: close after init failure: %v\n", closeErr)
		}
		return nil, err
	}

	return w, nil
}

// debounceFor resolves the quiet window for a category.
func (w *Watcher) debounceFor(category Category) time.Duration {
	if d, ok := w.cfg.Debounce[category]; ok && d > 0 {
		return d
	}
	return debounceDefaults[category]
}

// Run blocks until ctx is cancelled, processing filesystem events and
// dispatching debounced per-category batches. It returns nil on clean context
// cancellation and propagates any fatal watcher errors. Run must be called
// exactly once; a second call returns an error immediately.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return fmt.Errorf("watch: Run called more than once")
	}

	var (
		mu      sync.Mutex
		pending = make(map[Category]map[string]ChangeEvent)
		timers  = make(map[Category]*time.Timer)
		running atomic.Bool
	)

	// fire drains one category's pending set and invokes the OnBatch
	// handler. It may be scheduled by time.AfterFunc after the context is
	// cancelled, so check ctx.Err() as a best-effort guard. The atomic
	// "skip-if-busy" guard keeps at most one reload pipeline executing at a
	// time; a skipped batch is reported via OnDrop and the category timer
	// is re-armed so pending events are retried rather than lost.
	var fire func(category Category)
	fire = func(category Category) {
		if ctx.Err() != nil {
			return
		}

		mu.Lock()
		events := pending[category]
		if len(events) == 0 {
			mu.Unlock()
			return
		}
		batch := Batch{Category: category, Events: make([]ChangeEvent, 0, len(events))}
		for _, evt := range events {
			batch.Events = append(batch.Events, evt)
		}
		sort.Slice(batch.Events, func(i, j int) bool { return batch.Events[i].Path < batch.Events[j].Path })
		mu.Unlock()

		if !running.CompareAndSwap(false, true) {
			fmt.Fprintf(w.stderr, "watch: skipping %s reload (previous reload still in progress)\n", category)
			if w.cfg.OnDrop != nil {
				w.cfg.OnDrop(batch)
			}
			mu.Lock()
			if timer := timers[category]; timer != nil {
				timer.Reset(w.debounceFor(category))
			}
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		delete(pending, category)
		mu.Unlock()

		if w.cfg.OnBatch != nil {
			if err := w.cfg.OnBatch(ctx, batch); err != nil {
				fmt.Fprintf(w.stderr, "watch: %s reload error: %v\n", category, err)
			}
		}
	}

	// Ensure all timer channels are drained on exit. Timers are accessed
	// under mu because they are written by the event loop under the same lock.
	defer func() {
		mu.Lock()
		local := make([]*time.Timer, 0, len(timers))
		for _, timer := range timers {
			local = append(local, timer)
		}
		mu.Unlock()
		for _, timer := range local {
			if timer != nil && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		if closeErr := w.fsw.Close(); closeErr != nil {
			fmt.Fprintf(w.stderr, "watch: close fsnotify: %v\n", closeErr)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("watch: fsnotify event channel closed unexpectedly")
			}

			changeType, relevant := classifyOp(evt.Op)
			if !relevant {
				continue
			}

			rel := w.relPath(evt.Name)
			if w.isIgnored(rel) {
				continue
			}

			// Auto-add newly created directories so recursive watches
			// extend to directories created after startup.
			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(evt.Name)
			}

			category := Classify(rel)
			change := ChangeEvent{
				Path:     rel,
				Category: category,
				Type:     changeType,
				Time:     time.Now(),
			}

			mu.Lock()
			if pending[category] == nil {
				pending[category] = make(map[string]ChangeEvent)
			}
			pending[category][rel] = change
			if timer := timers[category]; timer == nil {
				cat := category
				timers[category] = time.AfterFunc(w.debounceFor(category), func() { fire(cat) })
			} else {
				timer.Reset(w.debounceFor(category))
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("watch: fsnotify error channel closed unexpectedly")
			}
			// Classify the error: resource exhaustion (inotify limit, file
			// descriptor limits) indicates the watcher is fundamentally broken.
			// isFatalFsnotifyError is platform-specific (see watcher_fatal_*.go).
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: fatal fsnotify error: %w", err)
			}
			fmt.Fprintf(w.stderr, "watch: fsnotify error: %v\n", err)
		}
	}
}

// classifyOp maps an fsnotify op to a ChangeType. Chmod-only events carry no
// content change and are filtered out.
func classifyOp(op fsnotify.Op) (ChangeType, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return ChangeAdd, true
	case op.Has(fsnotify.Write):
		return ChangeModify, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return ChangeRemove, true
	default:
		return "", false
	}
}

// relPath resolves an absolute event path against the most specific watch
// root. Paths outside every root are returned unchanged.
func (w *Watcher) relPath(path string) string {
	for _, root := range w.roots {
		if rel, err := filepath.Rel(root, path); err == nil && filepath.IsLocal(rel) {
			return rel
		}
	}
	return path
}

// addDirectories walks every watch root and adds each non-ignored directory
// to the fsnotify watcher. Category filtering is applied when events arrive.
func (w *Watcher) addDirectories() error {
	for _, root := range w.roots {
		walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, walkDirErr error) error {
			if walkDirErr != nil {
				// Best-effort: skip directories we cannot access rather than
				// aborting the entire walk. Permission errors on individual
				// dirs are common and should not prevent watching.
				fmt.Fprintf(w.stderr, "watch: skipping inaccessible path %q: %v\n", path, walkDirErr)
				return nil //nolint:nilerr // intentional skip of inaccessible paths
			}
			if !d.IsDir() {
				return nil
			}

			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return nil //nolint:nilerr // skip paths that cannot be made relative
			}

			// Skip ignored directories entirely to avoid descending into them.
			if w.isIgnored(rel) || w.isIgnored(rel+"/") {
				return filepath.SkipDir
			}

			if addErr := w.fsw.Add(path); addErr != nil {
				return fmt.Errorf("watch: add directory %q: %w", path, addErr)
			}
			return nil
		})
		if walkErr != nil {
			return fmt.Errorf("watch: walk directory tree: %w", walkErr)
		}
	}
	return nil
}

// maybeAddDir adds path to the fsnotify watcher if it is a directory and is
// not ignored. This enables automatic monitoring of directories created after
// the initial walk.
func (w *Watcher) maybeAddDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}

	rel := w.relPath(path)
	if w.isIgnored(rel) || w.isIgnored(rel+"/") {
		return
	}

	if addErr := w.fsw.Add(path); addErr != nil {
		fmt.Fprintf(w.stderr, "watch: add new directory %q: %v\n", path, addErr)
	}
}

// isIgnored returns true if the given path (relative to a watch root) matches
// any ignore pattern.
func (w *Watcher) isIgnored(rel string) bool {
	// Normalise to forward slashes for consistent glob matching.
	normalized := filepath.ToSlash(rel)
	for _, pat := range w.ignores {
		if matched, matchErr := doublestar.Match(pat, normalized); matchErr == nil && matched {
			return true
		}
	}
	return false
}

// DefaultIgnores returns a copy of the built-in ignore patterns. This is
// useful for tests and tooling that need to verify the default behaviour.
func DefaultIgnores() []string {
	out := make([]string, len(defaultIgnores))
	copy(out, defaultIgnores)
	return out
}

// validatePatterns checks that every pattern in the slice is a valid doublestar
// glob. The label (e.g., "ignore") is used in error messages.
func validatePatterns(patterns []string, label string) error {
	for _, pat := range patterns {
		if _, err := doublestar.Match(pat, ""); err != nil {
			return fmt.Errorf("watch: invalid %s pattern %q: %w", label, pat, err)
		}
	}
	return nil
}
