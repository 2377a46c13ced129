// Package watch keeps the file lists of sources in step with their
// directories. Changes are debounced per source and then handed to the
// navigator, which collects the files again and refreshes what it shows.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"datainspect/pkg/source"
)

// DefaultDebounce is the quiet period used when none is configured
const DefaultDebounce = 200 * time.Millisecond

// Target is what the watcher observes and refreshes; *navigator.Navigator
// implements it
type Target interface {
	// Sources returns the currently registered sources
	Sources() []*source.Source

	// RescanSource collects the named source's files again
	RescanSource(ctx context.Context, name string) error
}

// Watcher watches the directories of every source of a Target
type Watcher struct {
	target   Target
	logger   *slog.Logger
	debounce time.Duration
	resync   time.Duration
}

// Option configures a Watcher
type Option func(*Watcher)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce sets how long a source's directory must be quiet before the
// source is rescanned
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithResync sets how often the watched directory list is compared with the
// registered sources, so that sources added later get watched too
func WithResync(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.resync = d
		}
	}
}

// New creates a watcher for target
func New(target Target, opts ...Option) *Watcher {
	w := &Watcher{
		target:   target,
		logger:   slog.Default(),
		debounce: DefaultDebounce,
		resync:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes file change events until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	watched := make(map[string]bool)
	w.sync(fw, watched)

	w.logger.Info("watcher: started", slog.Int("dirs", len(watched)))

	// rescans are debounced per source and run on this loop, so they never
	// run concurrently
	deb := newDebouncer(w.debounce)
	defer deb.stop()

	resync := time.NewTicker(w.resync)
	defer resync.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher: stopped")
			return nil

		case <-resync.C:
			w.sync(fw, watched)

		case f := <-deb.fired:
			if !deb.accept(f) {
				continue
			}
			name := f.name
			if err := w.target.RescanSource(ctx, name); err != nil {
				w.logger.Warn("watcher: rescan failed",
					slog.String("source", name),
					slog.String("error", err.Error()))
				continue
			}
			w.logger.Debug("watcher: rescanned", slog.String("source", name))

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}
			for _, name := range w.affected(ev.Name) {
				deb.schedule(name)
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// affected returns the sources whose directory contains path and whose
// pattern matches its base name
func (w *Watcher) affected(path string) []string {
	dir, base := filepath.Dir(path), filepath.Base(path)

	var names []string
	for _, src := range w.target.Sources() {
		if src.Path == "" || filepath.Clean(src.Path) != dir {
			continue
		}
		if ok, _ := filepath.Match(src.Pattern(), base); !ok {
			continue
		}
		names = append(names, src.Name)
	}
	return names
}

// sync adds the directories of new sources and drops directories that no
// source uses any more. Directories that do not exist yet are retried on
// the next pass.
func (w *Watcher) sync(fw *fsnotify.Watcher, watched map[string]bool) {
	want := make(map[string]bool)
	for _, src := range w.target.Sources() {
		if src.Path != "" {
			want[filepath.Clean(src.Path)] = true
		}
	}

	for dir := range want {
		if watched[dir] {
			continue
		}
		if err := fw.Add(dir); err != nil {
			w.logger.Debug("watcher: cannot watch dir",
				slog.String("path", dir),
				slog.String("error", err.Error()))
			continue
		}
		watched[dir] = true
		w.logger.Debug("watcher: watching dir", slog.String("path", dir))
	}

	for dir := range watched {
		if want[dir] {
			continue
		}
		_ = fw.Remove(dir)
		delete(watched, dir)
	}
}
