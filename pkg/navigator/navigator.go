// Package navigator owns the shared navigation index of a data-inspection
// project and keeps the presentation sink and the prefetch cache consistent
// with it.
//
// A navigation step runs on the caller's goroutine in a fixed order: prune
// the cache, move the data currently on screen into the cache, display the
// new index (from the cache or by decoding synchronously), then schedule
// background decodes of the neighbouring indices. Background tasks only
// ever write to the cache. A step requested while any of them is still
// running is rejected with inspecterr.ErrCacheBusy instead of racing them.
package navigator

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/jmgilman/go/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"datainspect/internal/models"
	"datainspect/pkg/cache"
	"datainspect/pkg/decode"
	"datainspect/pkg/inspecterr"
	"datainspect/pkg/source"
)

// Sink is the presentation side of the viewer: the list of displayed layers.
// It is only called from the foreground, never from prefetch tasks.
type Sink interface {
	// HasLayer reports whether the layer for key is currently displayed
	HasLayer(key models.Key) bool

	// LayerData returns the data of the displayed layer for key
	LayerData(key models.Key) (*models.Array, *models.Transform, bool)

	// SetLayer displays layer, replacing whatever its source showed before
	SetLayer(layer models.Layer)

	// RemoveLayer removes the layer for key if it is displayed
	RemoveLayer(key models.Key)

	// RemoveSource removes any layer of the named source
	RemoveSource(name string)
}

// Navigator steps all sources through a shared index
type Navigator struct {
	// mu serializes foreground operations: navigation, display and source changes
	mu sync.Mutex

	sources *source.Set
	decoder decode.Decoder
	sink    Sink
	cache   *cache.PrefetchCache
	fsys    billy.Filesystem
	logger  *slog.Logger

	current  int
	length   int
	warning  error
	forward  bool
	backward bool

	maxWorkers int
	workers    *semaphore.Weighted

	// flightMu guards inFlight and batch, which prefetch tasks also touch
	flightMu sync.Mutex
	inFlight map[models.Key]struct{}
	batch    *errgroup.Group
}

// Option configures a Navigator
type Option func(*Navigator)

// WithLogger sets the logger; nil keeps slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(n *Navigator) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithPrefetch enables background decoding of the next and previous index
func WithPrefetch(forward, backward bool) Option {
	return func(n *Navigator) {
		n.forward = forward
		n.backward = backward
	}
}

// WithMaxWorkers bounds the number of concurrent prefetch decodes.
// Values below 1 use runtime.NumCPU().
func WithMaxWorkers(workers int) Option {
	return func(n *Navigator) {
		n.maxWorkers = workers
	}
}

// WithCache injects the prefetch cache, mainly for inspection in tests
func WithCache(c *cache.PrefetchCache) Option {
	return func(n *Navigator) {
		if c != nil {
			n.cache = c
		}
	}
}

// WithFilesystem sets the filesystem RescanSource collects files from.
// The default is the local disk.
func WithFilesystem(fsys billy.Filesystem) Option {
	return func(n *Navigator) {
		if fsys != nil {
			n.fsys = fsys
		}
	}
}

// New creates a navigator positioned at index 0. The navigator takes
// ownership of sources; change them only through the navigator afterwards.
func New(sources *source.Set, dec decode.Decoder, sink Sink, opts ...Option) *Navigator {
	n := &Navigator{
		sources:  sources,
		decoder:  dec,
		sink:     sink,
		cache:    cache.New(),
		logger:   slog.Default(),
		inFlight: make(map[models.Key]struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.sources == nil {
		n.sources, _ = source.NewSet()
	}
	if n.fsys == nil {
		n.fsys = osfs.New("/")
	}
	if n.maxWorkers < 1 {
		n.maxWorkers = runtime.NumCPU()
	}
	n.workers = semaphore.NewWeighted(int64(n.maxWorkers))

	n.updateBounds()
	n.cache.Prune(n.current, n.sources.Names())

	return n
}

// Index returns the current navigation index
func (n *Navigator) Index() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.current
}

// Length returns the effective length of the navigation range
func (n *Navigator) Length() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.length
}

// SetPrefetch changes which neighbours later steps prefetch
func (n *Navigator) SetPrefetch(forward, backward bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.forward = forward
	n.backward = backward
}

// SetIndex navigates to target, clamped into the navigable range, and
// returns the index now shown.
//
// It fails with ErrCacheBusy, changing nothing, while a prefetch task is in
// flight; callers should re-present the returned (unchanged) index. Decode
// failures for individual sources are joined into the returned error but
// do not stop the step.
func (n *Navigator) SetIndex(ctx context.Context, target int) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.setIndex(ctx, target)
}

// Step moves the index by delta, typically +1 or -1
func (n *Navigator) Step(ctx context.Context, delta int) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.setIndex(ctx, n.current+delta)
}

// JumpTo navigates to the first index whose file name, in any source,
// contains fragment. Sources are searched in registration order.
func (n *Navigator) JumpTo(ctx context.Context, fragment string) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, src := range n.sources.All() {
		if i, ok := src.Search(fragment); ok {
			return n.setIndex(ctx, i)
		}
	}
	return n.current, errors.Newf(errors.CodeNotFound, "no file matches %q", fragment)
}

func (n *Navigator) setIndex(ctx context.Context, target int) (int, error) {
	if keys := n.inFlightKeys(); len(keys) > 0 {
		n.logger.InfoContext(ctx, "navigator: prefetch running, retry when finished",
			slog.Int("index", n.current),
			slog.Int("requested", target),
			slog.Any("in_flight", keyStrings(keys)))
		return n.current, errors.WrapWithContext(inspecterr.ErrCacheBusy, errors.CodeUnavailable,
			"navigation deferred", map[string]interface{}{
				"index":     n.current,
				"requested": target,
				"in_flight": keyStrings(keys),
			})
	}

	target = n.clamp(target)
	if target == n.current {
		return n.current, nil
	}

	previous := n.current
	active := n.activeSources()

	n.cache.Prune(target, n.sources.Names())

	for _, src := range active {
		n.pushToCache(models.Key{Source: src.Name, Index: previous})
	}

	var errs []error
	for _, src := range active {
		if err := n.display(ctx, src, target); err != nil {
			errs = append(errs, err)
		}
	}

	n.current = target
	n.logger.DebugContext(ctx, "navigator: index changed",
		slog.Int("from", previous),
		slog.Int("to", target))

	n.schedule(active, target)

	return n.current, stderrors.Join(errs...)
}

// Display shows the named source at index, from the cache when possible.
// It does nothing if the sink already shows that key.
func (n *Navigator) Display(ctx context.Context, name string, index int) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	src, ok := n.sources.Get(name)
	if !ok {
		return unknownSource(name)
	}
	if index < 0 || index >= src.Len() {
		return errors.Newf(errors.CodeInvalidInput, "index %d out of range for source %q with %d files",
			index, name, src.Len())
	}
	return n.display(ctx, src, index)
}

func (n *Navigator) display(ctx context.Context, src *source.Source, index int) error {
	key := models.Key{Source: src.Name, Index: index}
	if n.sink.HasLayer(key) {
		return nil
	}

	entry, hit := n.cache.Take(key)
	if !hit {
		path := src.File(index)
		arr, tf, err := n.decode(key, path, src.TypeTag)
		if err != nil {
			n.logger.WarnContext(ctx, "navigator: decode failed",
				slog.String("key", key.String()),
				slog.String("path", path),
				slog.String("error", err.Error()))
			return decodeError(err, key, path)
		}
		entry = cache.Entry{Data: arr, Transform: tf}
	}

	n.logger.DebugContext(ctx, "navigator: display",
		slog.String("key", key.String()),
		slog.Bool("cache_hit", hit))

	n.sink.SetLayer(models.Layer{
		Key:       key,
		Name:      models.LayerName(key, src.Stem(index)),
		Kind:      src.Kind,
		Data:      entry.Data,
		Transform: entry.Transform,
	})
	return nil
}

// pushToCache moves the displayed data for key into the cache so that
// stepping straight back needs no decode
func (n *Navigator) pushToCache(key models.Key) {
	arr, tf, ok := n.sink.LayerData(key)
	if !ok || arr == nil {
		return
	}
	n.cache.Put(key, cache.Entry{Data: arr, Transform: tf})
}

// Refresh displays the current index for every source with files and
// schedules prefetch of its neighbours
func (n *Navigator) Refresh(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	active := n.activeSources()
	err := n.displayAll(ctx, active)
	n.schedule(active, n.current)
	return err
}

func (n *Navigator) displayAll(ctx context.Context, active []*source.Source) error {
	var errs []error
	for _, src := range active {
		if n.current >= src.Len() {
			continue
		}
		if err := n.display(ctx, src, n.current); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Status is a snapshot of the navigation state
type Status struct {
	Index      int                  `json:"index"`
	Length     int                  `json:"length"`
	Forward    bool                 `json:"prefetch_forward"`
	Backward   bool                 `json:"prefetch_backward"`
	InFlight   []string             `json:"in_flight"`
	Cached     []string             `json:"cached"`
	CacheBytes int                  `json:"cache_bytes"`
	Sources    []source.NamedLength `json:"sources"`
	Warning    string               `json:"warning,omitempty"`
}

// Status returns a snapshot of the navigation state
func (n *Navigator) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()

	st := Status{
		Index:      n.current,
		Length:     n.length,
		Forward:    n.forward,
		Backward:   n.backward,
		InFlight:   keyStrings(n.inFlightKeys()),
		Cached:     keyStrings(n.cache.Keys()),
		CacheBytes: n.cache.SizeBytes(),
		Sources:    n.sources.Lengths(),
	}
	if n.warning != nil {
		st.Warning = n.warning.Error()
	}
	return st
}

// Sources returns copies of the registered sources in order
func (n *Navigator) Sources() []*source.Source {
	n.mu.Lock()
	defer n.mu.Unlock()

	all := n.sources.All()
	out := make([]*source.Source, len(all))
	for i, src := range all {
		out[i] = src.Clone()
	}
	return out
}

// activeSources returns the sources that have files, in order
func (n *Navigator) activeSources() []*source.Source {
	var out []*source.Source
	for _, src := range n.sources.All() {
		if src.Len() > 0 {
			out = append(out, src)
		}
	}
	return out
}

func (n *Navigator) clamp(i int) int {
	if i >= n.length {
		i = n.length - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

// updateBounds recomputes the effective length and clamps the index into it
func (n *Navigator) updateBounds() {
	length, err := n.sources.Bounds()
	n.length = length
	n.warning = err
	n.current = n.clamp(n.current)

	switch {
	case err == nil:
	case stderrors.Is(err, inspecterr.ErrSourceMismatch):
		n.logger.Warn("navigator: source lengths do not match",
			slog.Int("length", length),
			slog.Any("sources", n.sources.Lengths()))
	case stderrors.Is(err, inspecterr.ErrEmptySourceSet):
		n.logger.Info("navigator: no source has files, index pinned to 0")
	}
}

func decodeError(err error, key models.Key, path string) error {
	code := errors.GetCode(err)
	if code == errors.CodeUnknown {
		code = errors.CodeExecutionFailed
	}
	return errors.WrapWithContext(err, code, fmt.Sprintf("failed to load %s", key),
		map[string]interface{}{"source": key.Source, "index": key.Index, "path": path})
}

func unknownSource(name string) error {
	return errors.WrapWithContext(inspecterr.ErrUnknownSource, errors.CodeNotFound,
		"no such source", map[string]interface{}{"source": name})
}

func keyStrings(keys []models.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}
