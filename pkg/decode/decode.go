// Package decode turns data files into arrays.
//
// The navigation core only depends on the Decoder interface. Registry is the
// production implementation: it dispatches on the declared type tag of a
// source and reads files through a billy.Filesystem so tests can run
// against an in-memory tree.
package decode

import (
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/jmgilman/go/errors"

	"datainspect/internal/models"
	"datainspect/pkg/inspecterr"
)

// Decoder decodes one file into an array and an optional transform.
// Implementations must be safe for concurrent use: background prefetch
// tasks call Decode in parallel.
type Decoder interface {
	Decode(path, typeTag string) (*models.Array, *models.Transform, error)
}

// Func decodes the file at path read from fsys
type Func func(fsys billy.Filesystem, path string) (*models.Array, *models.Transform, error)

// Registry maps type tags to decode functions
type Registry struct {
	fsys billy.Filesystem

	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates a registry reading from fsys with the built-in formats:
// PNG and JPEG (identity transform), TIFF (no transform) and MetaImage
// .mha/.mhd (affine from spacing, origin and direction).
func NewRegistry(fsys billy.Filesystem) *Registry {
	r := &Registry{
		fsys:  fsys,
		funcs: make(map[string]Func),
	}
	r.Register(".png", decodeImage)
	r.Register(".jpg", decodeImage)
	r.Register(".jpeg", decodeImage)
	r.Register(".gif", decodeImage)
	r.Register(".bmp", decodeImage)
	r.Register(".tif", decodeTIFF)
	r.Register(".tiff", decodeTIFF)
	r.Register(".mha", decodeMetaImage)
	r.Register(".mhd", decodeMetaImage)
	return r
}

// Register adds or replaces the decoder for a tag such as ".nii.gz"
func (r *Registry) Register(tag string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.funcs[normalizeTag(tag)] = fn
}

// Tags returns the registered tags in sorted order
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, 0, len(r.funcs))
	for t := range r.funcs {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// Supports reports whether a decoder is registered for typeTag
func (r *Registry) Supports(typeTag string) bool {
	return r.lookup(typeTag) != nil
}

// Decode implements Decoder. A tag that matches no registered suffix fails
// with ErrUnsupportedFormat.
func (r *Registry) Decode(path, typeTag string) (*models.Array, *models.Transform, error) {
	fn := r.lookup(typeTag)
	if fn == nil {
		return nil, nil, errors.WrapWithContext(inspecterr.ErrUnsupportedFormat, errors.CodeNotImplemented,
			"no decoder for type tag", map[string]interface{}{"type_tag": typeTag, "path": path})
	}
	return fn(r.fsys, path)
}

// lookup resolves a tag by its longest registered suffix, so a glob tag
// like "*_seg.mha" resolves to the ".mha" decoder.
func (r *Registry) lookup(typeTag string) Func {
	tag := normalizeTag(typeTag)
	if tag == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if fn, ok := r.funcs[tag]; ok {
		return fn
	}
	var best string
	for t := range r.funcs {
		if strings.HasSuffix(tag, t) && len(t) > len(best) {
			best = t
		}
	}
	if best == "" {
		return nil
	}
	return r.funcs[best]
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
