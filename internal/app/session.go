// Package app wires configuration, sources, the navigator and the
// presentation sink together, and runs the control server.
package app

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"datainspect/pkg/config"
	"datainspect/pkg/decode"
	"datainspect/pkg/navigator"
	"datainspect/pkg/source"
	"datainspect/pkg/visualization"
)

// Session is one opened project: its sources behind a navigator, the layer
// list the navigator displays into, and the decoder they share
type Session struct {
	Navigator *navigator.Navigator
	Layers    *visualization.LayerList
	Decoder   *decode.Counting
	FS        billy.Filesystem
	Project   config.Project
}

// NewLogger builds the process logger: JSON for the server, text otherwise
func NewLogger(w io.Writer, level slog.Level, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ResolvePath makes a source directory absolute so it can be read through
// a filesystem rooted at "/"
func ResolvePath(p string) (string, error) {
	if p == "" || filepath.IsAbs(p) {
		return p, nil
	}
	return filepath.Abs(p)
}

// BuildSources creates the sources of a project and collects their files.
// Relative paths are resolved with resolve when it is not nil.
func BuildSources(fsys billy.Filesystem, project config.Project, resolve func(string) (string, error)) (*source.Set, error) {
	set, err := source.NewSet()
	if err != nil {
		return nil, err
	}

	for _, lc := range project.Layers {
		dir := lc.Path
		if resolve != nil {
			if dir, err = resolve(lc.Path); err != nil {
				return nil, fmt.Errorf("resolve path of %s: %w", lc.Name, err)
			}
		}

		src := source.New(lc.Name, dir, lc.Type, lc.Kind)
		if err := src.Collect(fsys); err != nil {
			return nil, fmt.Errorf("collect files of %s: %w", lc.Name, err)
		}
		if err := set.Add(src); err != nil {
			return nil, err
		}
	}

	return set, nil
}

// NewSession opens the project of cfg. A nil fsys reads from the local disk.
// Nothing is displayed until the caller refreshes the navigator.
func NewSession(cfg *config.Config, logger *slog.Logger, fsys billy.Filesystem) (*Session, error) {
	resolve := ResolvePath
	if fsys == nil {
		fsys = osfs.New("/")
	} else {
		resolve = nil
	}

	sources, err := BuildSources(fsys, cfg.Project, resolve)
	if err != nil {
		return nil, err
	}

	registry := decode.NewRegistry(fsys)
	for _, src := range sources.All() {
		if src.TypeTag != "" && !registry.Supports(src.TypeTag) {
			logger.Warn("no decoder for type tag, files of this source will fail to load",
				slog.String("source", src.Name),
				slog.String("type_tag", src.TypeTag),
				slog.Any("supported", registry.Tags()))
		}
	}

	dec := decode.NewCounting(registry)
	layers := visualization.NewLayerList(visualization.Options{
		KeepCamera:     cfg.Project.KeepCamera,
		KeepColor:      cfg.Project.KeepColor,
		KeepProperties: cfg.Project.KeepProperties,
	})

	nav := navigator.New(sources, dec, layers,
		navigator.WithLogger(logger),
		navigator.WithFilesystem(fsys),
		navigator.WithPrefetch(cfg.Project.PrefetchNext, cfg.Project.PrefetchPrevious),
		navigator.WithMaxWorkers(cfg.Prefetch.MaxWorkers))

	return &Session{
		Navigator: nav,
		Layers:    layers,
		Decoder:   dec,
		FS:        fsys,
		Project:   cfg.Project,
	}, nil
}

// Close waits for background decodes to finish
func (s *Session) Close() error {
	return s.Navigator.Wait()
}
