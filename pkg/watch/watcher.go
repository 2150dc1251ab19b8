// Package watch ingests files as they are created or modified under a
// directory.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/panbanda/clonestream/pkg/config"
	"github.com/panbanda/clonestream/pkg/pipeline"
)

// DefaultDebounce is how long a file must be quiet before it is handed on.
const DefaultDebounce = 500 * time.Millisecond

// Change is a settled file change.
type Change struct {
	// Path is the filesystem path of the file.
	Path string
	// Name is the slash-separated path relative to the watched root.
	Name string
}

// Watcher monitors a directory tree and reports settled changes to files
// the policy accepts.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	config    *config.Config
	policy    *pipeline.Policy
	logger    zerolog.Logger
	debounce  time.Duration
	path      string
	callback  func(ctx context.Context, c Change)
	mu        sync.Mutex
	pending   map[string]time.Time
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period. Non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithPolicy sets the accepted-file policy.
func WithPolicy(p *pipeline.Policy) Option {
	return func(w *Watcher) {
		if p != nil {
			w.policy = p
		}
	}
}

// NewWatcher creates a new file watcher.
func NewWatcher(path string, cfg *config.Config, opts ...Option) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		config:    cfg,
		policy:    pipeline.DefaultPolicy(),
		logger:    zerolog.Nop(),
		debounce:  DefaultDebounce,
		path:      path,
		pending:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// SetCallback sets the function called for each settled change. Calls are
// made one at a time, in name order within a batch.
func (w *Watcher) SetCallback(cb func(ctx context.Context, c Change)) {
	w.callback = cb
}

// Start watches until ctx is done. It returns nil on cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.path); err != nil {
		return err
	}
	w.logger.Info().Str("path", w.path).Int("dirs", len(w.fsWatcher.WatchList())).Msg("watching for files")

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.processDebounced(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watch error")
		}
	}
}

// addTree watches root and every non-excluded directory below it.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && slices.Contains(w.config.Exclude.Dirs, d.Name()) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

// handleEvent processes a filesystem event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	path := event.Name

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !slices.Contains(w.config.Exclude.Dirs, info.Name()) {
				if err := w.addTree(path); err != nil {
					w.logger.Warn().Err(err).Str("path", path).Msg("watching new directory")
				}
			}
			return
		}
	}

	name := w.name(path)
	if w.config.ShouldExclude(filepath.FromSlash(name)) || !w.policy.Accepts(name) {
		return
	}

	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) name(path string) string {
	rel, err := filepath.Rel(w.path, path)
	if err != nil {
		rel = path
	}
	return filepath.ToSlash(rel)
}

// processDebounced processes pending changes after debounce period.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(w.debounce / 5)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range w.ready(time.Now()) {
				if ctx.Err() != nil {
					return
				}
				if w.callback != nil {
					w.callback(ctx, c)
				}
			}
		}
	}
}

// ready removes and returns the changes that have been quiet for the
// debounce period, sorted by name.
func (w *Watcher) ready(now time.Time) []Change {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []Change
	for path, lastMod := range w.pending {
		if now.Sub(lastMod) >= w.debounce {
			out = append(out, Change{Path: path, Name: w.name(path)})
			delete(w.pending, path)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.fsWatcher.Close()
}

// WatchedDirs returns the list of watched directories.
func (w *Watcher) WatchedDirs() []string {
	return w.fsWatcher.WatchList()
}
