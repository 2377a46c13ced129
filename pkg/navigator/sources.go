package navigator

import (
	"context"
	"log/slog"
	"slices"

	"datainspect/pkg/source"
)

// Source mutations drain in-flight prefetch tasks first, so no task can
// write an entry for a source after it has been removed or reconfigured.

// AddSource registers src and shows it at the current index.
// Files are used as given; call Collect beforehand or RescanSource afterwards.
func (n *Navigator) AddSource(ctx context.Context, src *source.Source) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	_ = n.drain()
	if err := n.sources.Add(src); err != nil {
		return err
	}
	n.logger.InfoContext(ctx, "navigator: source added",
		slog.String("source", src.Name),
		slog.Int("files", src.Len()))

	return n.afterMutation(ctx, src)
}

// RemoveSource unregisters the named source, removes its layer and drops its
// cached entries
func (n *Navigator) RemoveSource(ctx context.Context, name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	_ = n.drain()
	if _, err := n.sources.Remove(name); err != nil {
		return err
	}
	n.sink.RemoveSource(name)
	n.cache.DropSource(name)
	n.logger.InfoContext(ctx, "navigator: source removed", slog.String("source", name))

	return n.afterMutation(ctx, nil)
}

// ReplaceSource reconfigures the named source (path, type tag, kind or
// name) and shows the new configuration at the current index
func (n *Navigator) ReplaceSource(ctx context.Context, name string, src *source.Source) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	_ = n.drain()
	old, err := n.sources.Replace(name, src)
	if err != nil {
		return err
	}
	n.sink.RemoveSource(old.Name)
	n.cache.DropSource(old.Name)
	n.logger.InfoContext(ctx, "navigator: source reconfigured",
		slog.String("source", old.Name),
		slog.String("new_name", src.Name),
		slog.Int("files", src.Len()))

	return n.afterMutation(ctx, src)
}

// RescanSource collects the named source's files again. If the file list
// changed, the source's layer and cached entries are refreshed.
func (n *Navigator) RescanSource(ctx context.Context, name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	src, ok := n.sources.Get(name)
	if !ok {
		return unknownSource(name)
	}

	fresh := src.Clone()
	if err := fresh.Collect(n.fsys); err != nil {
		return err
	}
	if slices.Equal(fresh.Files, src.Files) {
		return nil
	}

	_ = n.drain()
	if _, err := n.sources.Replace(name, fresh); err != nil {
		return err
	}
	n.sink.RemoveSource(name)
	n.cache.DropSource(name)
	n.logger.InfoContext(ctx, "navigator: source rescanned",
		slog.String("source", name),
		slog.Int("files", fresh.Len()))

	return n.afterMutation(ctx, fresh)
}

// afterMutation recomputes the bounds and prunes the cache to the active
// sources. If the index had to be clamped every source is shown again;
// otherwise only changed is (re)displayed.
func (n *Navigator) afterMutation(ctx context.Context, changed *source.Source) error {
	before := n.current
	n.updateBounds()
	n.cache.Prune(n.current, n.sources.Names())

	if n.current != before {
		return n.displayAll(ctx, n.activeSources())
	}

	if changed == nil || n.current >= changed.Len() {
		return nil
	}
	err := n.display(ctx, changed, n.current)
	n.schedule([]*source.Source{changed}, n.current)
	return err
}
