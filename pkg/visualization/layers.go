// Package visualization is the headless presentation side of the viewer:
// an in-memory layer list that the navigator displays into, plus slice
// extraction for previews of the displayed arrays.
package visualization

import (
	"fmt"
	"image"
	"sync"

	"datainspect/internal/models"
)

// Options controls which visual state carries over when a source's layer
// is replaced by the layer of another index
type Options struct {
	// KeepCamera is accepted for project compatibility; a headless list has no camera
	KeepCamera bool `json:"keep_camera"`

	// KeepColor carries the colormap over
	KeepColor bool `json:"keep_color"`

	// KeepProperties carries opacity and contrast limits over
	KeepProperties bool `json:"keep_properties"`
}

// LayerList holds at most one displayed layer per source, in the order the
// sources were first shown. It is safe for concurrent use.
type LayerList struct {
	mu     sync.RWMutex
	opts   Options
	layers []models.Layer
}

// NewLayerList creates an empty layer list
func NewLayerList(opts Options) *LayerList {
	return &LayerList{opts: opts}
}

// SetOptions changes the carry-over behaviour for later replacements
func (l *LayerList) SetOptions(opts Options) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.opts = opts
}

// Options returns the carry-over behaviour
func (l *LayerList) Options() Options {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.opts
}

// HasLayer reports whether the layer for key is displayed
func (l *LayerList) HasLayer(key models.Key) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := l.find(key.Source)
	return i >= 0 && l.layers[i].Key == key
}

// LayerData returns the data of the displayed layer for key
func (l *LayerList) LayerData(key models.Key) (*models.Array, *models.Transform, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := l.find(key.Source)
	if i < 0 || l.layers[i].Key != key {
		return nil, nil, false
	}
	return l.layers[i].Data, l.layers[i].Transform, true
}

// SetLayer displays layer in place of its source's previous layer.
// Properties start from the defaults for the new data; the colormap and the
// remaining properties are copied from the replaced layer when KeepColor and
// KeepProperties are set.
func (l *LayerList) SetLayer(layer models.Layer) {
	l.mu.Lock()
	defer l.mu.Unlock()

	props := models.DefaultProperties(layer.Kind, layer.Data)

	i := l.find(layer.Key.Source)
	if i >= 0 {
		prev := l.layers[i].Properties
		if l.opts.KeepColor {
			props.Colormap = prev.Colormap
		}
		if l.opts.KeepProperties {
			props.Opacity = prev.Opacity
			props.ContrastMin = prev.ContrastMin
			props.ContrastMax = prev.ContrastMax
		}
	}
	layer.Properties = props

	if i >= 0 {
		l.layers[i] = layer
		return
	}
	l.layers = append(l.layers, layer)
}

// SetProperties overrides the visual properties of a source's layer
func (l *LayerList) SetProperties(source string, props models.LayerProperties) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.find(source)
	if i < 0 {
		return fmt.Errorf("no layer displayed for source %q", source)
	}
	l.layers[i].Properties = props
	return nil
}

// RemoveLayer removes the layer for key if it is displayed
func (l *LayerList) RemoveLayer(key models.Key) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if i := l.find(key.Source); i >= 0 && l.layers[i].Key == key {
		l.layers = append(l.layers[:i], l.layers[i+1:]...)
	}
}

// RemoveSource removes the layer of the named source
func (l *LayerList) RemoveSource(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if i := l.find(name); i >= 0 {
		l.layers = append(l.layers[:i], l.layers[i+1:]...)
	}
}

// Layers returns the displayed layers in display order
func (l *LayerList) Layers() []models.Layer {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return append([]models.Layer(nil), l.layers...)
}

// Layer returns the layer displayed for the named source
func (l *LayerList) Layer(source string) (models.Layer, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := l.find(source)
	if i < 0 {
		return models.Layer{}, false
	}
	return l.layers[i], true
}

// Preview renders a plane of the named source's layer using its contrast limits.
// A negative position selects the middle plane.
func (l *LayerList) Preview(source, axis string, position int) (image.Image, error) {
	layer, ok := l.Layer(source)
	if !ok {
		return nil, fmt.Errorf("no layer displayed for source %q", source)
	}
	if position < 0 {
		position = MiddlePosition(layer.Data, axis)
	}
	return ExtractSlice(layer.Data, axis, position, layer.Properties.ContrastMin, layer.Properties.ContrastMax)
}

func (l *LayerList) find(source string) int {
	for i := range l.layers {
		if l.layers[i].Key.Source == source {
			return i
		}
	}
	return -1
}
