package navigator

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"datainspect/internal/models"
	"datainspect/pkg/cache"
	"datainspect/pkg/source"
)

// Prefetch schedules a background decode of the named source at index.
// It reports false when nothing was scheduled: the index is out of range,
// the source is unknown, or the key is already in flight.
func (n *Navigator) Prefetch(name string, index int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	src, ok := n.sources.Get(name)
	if !ok {
		return false
	}
	return n.spawn(src, index)
}

// Wait blocks until every scheduled prefetch task has finished and returns
// the first error of the current batch. Failures are already logged, so
// callers may ignore the result.
func (n *Navigator) Wait() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.drain()
}

// Busy reports whether any prefetch task is in flight
func (n *Navigator) Busy() bool {
	n.flightMu.Lock()
	defer n.flightMu.Unlock()

	return len(n.inFlight) > 0
}

// drain waits for the current batch; the caller holds n.mu so no task can
// be added meanwhile
func (n *Navigator) drain() error {
	n.flightMu.Lock()
	g := n.batch
	n.flightMu.Unlock()

	if g == nil {
		return nil
	}
	return g.Wait()
}

// schedule spawns the configured neighbour prefetches for every source
func (n *Navigator) schedule(active []*source.Source, index int) {
	for _, src := range active {
		if n.forward {
			n.spawn(src, index+1)
		}
		if n.backward {
			n.spawn(src, index-1)
		}
	}
}

// spawn registers the key as in flight before the task starts, so a
// navigation request issued right after this step always observes it.
func (n *Navigator) spawn(src *source.Source, index int) bool {
	if index < 0 || index >= src.Len() {
		return false
	}
	key := models.Key{Source: src.Name, Index: index}
	path, tag := src.File(index), src.TypeTag

	n.flightMu.Lock()
	if _, running := n.inFlight[key]; running {
		n.flightMu.Unlock()
		return false
	}
	if len(n.inFlight) == 0 || n.batch == nil {
		n.batch = &errgroup.Group{}
	}
	n.inFlight[key] = struct{}{}
	g := n.batch
	n.flightMu.Unlock()

	// the worker limit is taken inside the task so scheduling never blocks
	// the foreground
	g.Go(func() error {
		if err := n.workers.Acquire(context.Background(), 1); err != nil {
			n.release(key)
			return err
		}
		defer n.workers.Release(1)
		return n.prefetch(key, path, tag)
	})
	return true
}

// prefetch decodes one file into the cache. It never touches the sink.
func (n *Navigator) prefetch(key models.Key, path, tag string) error {
	defer n.release(key)

	if n.cache.Has(key) {
		return nil
	}

	arr, tf, err := n.decode(key, path, tag)
	if err != nil {
		n.logger.Warn("navigator: prefetch failed",
			slog.String("key", key.String()),
			slog.String("path", path),
			slog.String("error", err.Error()))
		return decodeError(err, key, path)
	}

	if !n.cache.Put(key, cache.Entry{Data: arr, Transform: tf}) {
		n.logger.Debug("navigator: prefetch result discarded", slog.String("key", key.String()))
		return nil
	}
	n.logger.Debug("navigator: prefetched", slog.String("key", key.String()))
	return nil
}

// decode runs the decoder and turns a panic into an error, so a broken
// file fails one key on both the foreground and the background path.
func (n *Navigator) decode(key models.Key, path, tag string) (arr *models.Array, tf *models.Transform, err error) {
	defer func() {
		if r := recover(); r != nil {
			arr, tf = nil, nil
			err = fmt.Errorf("decoder panicked on %s: %v", key, r)
			n.logger.Error("navigator: decoder panicked",
				slog.String("key", key.String()),
				slog.String("path", path),
				slog.Any("panic", r))
		}
	}()
	return n.decoder.Decode(path, tag)
}

func (n *Navigator) release(key models.Key) {
	n.flightMu.Lock()
	defer n.flightMu.Unlock()

	delete(n.inFlight, key)
}

func (n *Navigator) inFlightKeys() []models.Key {
	n.flightMu.Lock()
	keys := make([]models.Key, 0, len(n.inFlight))
	for k := range n.inFlight {
		keys = append(keys, k)
	}
	n.flightMu.Unlock()

	models.SortKeys(keys)
	return keys
}
