package api

import (
	"datainspect/internal/models"
	"datainspect/pkg/navigator"
	"datainspect/pkg/visualization"
)

// IndexRequest is the body of PUT /api/index
type IndexRequest struct {
	Index *int `json:"index"`
}

// SearchRequest is the body of POST /api/search
type SearchRequest struct {
	Name string `json:"name"`
}

// PrefetchRequest is the body of PUT /api/prefetch
type PrefetchRequest struct {
	Forward  bool `json:"forward"`
	Backward bool `json:"backward"`
}

// SourceRequest is the body of POST /api/sources and PUT /api/sources/{name}
type SourceRequest struct {
	Name string      `json:"name"`
	Path string      `json:"path"`
	Type string      `json:"dtype"`
	Kind models.Kind `json:"ltype"`
}

// SourceInfo describes one registered source
type SourceInfo struct {
	Name  string      `json:"name"`
	Path  string      `json:"path"`
	Type  string      `json:"dtype"`
	Kind  models.Kind `json:"ltype"`
	Files int         `json:"files"`
}

// NavigationResponse reports the state after a navigation request.
// Errors lists sources that could not be displayed at the new index.
type NavigationResponse struct {
	navigator.Status
	Errors []string `json:"errors,omitempty"`
}

// BusyResponse is returned with 503 while prefetch is in flight; Index is
// the unchanged index the client should show again
type BusyResponse struct {
	errResponse
	Index int `json:"index"`
}

// LayerInfo describes one displayed layer
type LayerInfo struct {
	Key        string                 `json:"key"`
	Name       string                 `json:"name"`
	Kind       models.Kind            `json:"kind"`
	Shape      []int                  `json:"shape"`
	Mean       float64                `json:"mean"`
	Std        float64                `json:"std"`
	Properties models.LayerProperties `json:"properties"`
	Affine     [][]float64            `json:"affine,omitempty"`
}

// LayersResponse is the body of GET /api/layers
type LayersResponse struct {
	Options visualization.Options `json:"options"`
	Layers  []LayerInfo           `json:"layers"`
}
