// Package api implements the headless control surface of the viewer using chi.
// Every button and shortcut of the interactive viewer has an endpoint here.
package api

import (
	stderrors "errors"
	"image/png"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-git/go-billy/v5"
	"github.com/jmgilman/go/errors"
	"gonum.org/v1/gonum/mat"

	"datainspect/internal/models"
	"datainspect/pkg/config"
	"datainspect/pkg/inspecterr"
	"datainspect/pkg/navigator"
	"datainspect/pkg/source"
	"datainspect/pkg/visualization"
)

// retryAfter is the Retry-After value sent with busy rejections, in seconds
const retryAfter = "1"

// Handler holds API route handlers.
type Handler struct {
	nav         *navigator.Navigator
	layers      *visualization.LayerList
	fsys        billy.Filesystem
	projectName string
	resolve     func(string) (string, error)
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithPathResolver sets how source paths from requests are turned into
// paths on the filesystem, for example filepath.Abs for the local disk
func WithPathResolver(fn func(string) (string, error)) HandlerOption {
	return func(h *Handler) {
		if fn != nil {
			h.resolve = fn
		}
	}
}

// WithProjectName sets the name reported by GET /api/project
func WithProjectName(name string) HandlerOption {
	return func(h *Handler) {
		h.projectName = name
	}
}

// NewHandler creates a new Handler. fsys is where new and reconfigured
// sources collect their files.
func NewHandler(nav *navigator.Navigator, layers *visualization.LayerList, fsys billy.Filesystem, opts ...HandlerOption) *Handler {
	h := &Handler{
		nav:     nav,
		layers:  layers,
		fsys:    fsys,
		resolve: func(p string) (string, error) { return p, nil },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// State handles GET /api/state.
func (h *Handler) State(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.nav.Status())
}

// SetIndex handles PUT /api/index.
func (h *Handler) SetIndex(w http.ResponseWriter, r *http.Request) {
	var req IndexRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Index == nil {
		writeError(w, errors.New(errors.CodeInvalidInput, "index is required"))
		return
	}

	idx, err := h.nav.SetIndex(r.Context(), *req.Index)
	h.navigated(w, idx, err)
}

// Next handles POST /api/next.
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	idx, err := h.nav.Step(r.Context(), 1)
	h.navigated(w, idx, err)
}

// Prev handles POST /api/prev.
func (h *Handler) Prev(w http.ResponseWriter, r *http.Request) {
	idx, err := h.nav.Step(r.Context(), -1)
	h.navigated(w, idx, err)
}

// Search handles POST /api/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Name == "" {
		writeError(w, errors.New(errors.CodeInvalidInput, "name is required"))
		return
	}

	idx, err := h.nav.JumpTo(r.Context(), req.Name)
	if err != nil && errors.GetCode(err) == errors.CodeNotFound && !stderrors.Is(err, inspecterr.ErrUnknownSource) {
		writeError(w, err)
		return
	}
	h.navigated(w, idx, err)
}

// Refresh handles POST /api/refresh: every source collects its files again
// and the current index is displayed.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var errs []error
	for _, src := range h.nav.Sources() {
		if err := h.nav.RescanSource(r.Context(), src.Name); err != nil {
			errs = append(errs, err)
		}
	}
	if err := h.nav.Refresh(r.Context()); err != nil {
		errs = append(errs, err)
	}
	h.navigated(w, h.nav.Index(), stderrors.Join(errs...))
}

// navigated writes the outcome of a navigation step. Display failures do
// not undo the step, so they are reported alongside the new state.
func (h *Handler) navigated(w http.ResponseWriter, idx int, err error) {
	if stderrors.Is(err, inspecterr.ErrCacheBusy) {
		w.Header().Set("Retry-After", retryAfter)
		writeJSON(w, http.StatusServiceUnavailable, BusyResponse{
			errResponse: errorBody(err),
			Index:       idx,
		})
		return
	}

	resp := NavigationResponse{Status: h.nav.Status()}
	if err != nil {
		resp.Errors = splitErrors(err)
		slog.Warn("navigation completed with errors",
			slog.Int("index", idx),
			slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListSources handles GET /api/sources.
func (h *Handler) ListSources(w http.ResponseWriter, _ *http.Request) {
	srcs := h.nav.Sources()
	out := make([]SourceInfo, len(srcs))
	for i, src := range srcs {
		out[i] = SourceInfo{
			Name:  src.Name,
			Path:  src.Path,
			Type:  src.TypeTag,
			Kind:  src.Kind,
			Files: src.Len(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": out})
}

// CreateSource handles POST /api/sources.
func (h *Handler) CreateSource(w http.ResponseWriter, r *http.Request) {
	src, err := h.sourceFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	h.mutated(w, http.StatusCreated, h.nav.AddSource(r.Context(), src))
}

// UpdateSource handles PUT /api/sources/{name}.
func (h *Handler) UpdateSource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	src, err := h.sourceFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	h.mutated(w, http.StatusOK, h.nav.ReplaceSource(r.Context(), name, src))
}

// DeleteSource handles DELETE /api/sources/{name}.
func (h *Handler) DeleteSource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	h.mutated(w, http.StatusOK, h.nav.RemoveSource(r.Context(), name))
}

// mutated writes the outcome of a source change. A change that was
// rejected by the registry is an error; display failures after an accepted
// change are reported alongside the new state.
func (h *Handler) mutated(w http.ResponseWriter, status int, err error) {
	if rejected(err) {
		writeError(w, err)
		return
	}
	resp := NavigationResponse{Status: h.nav.Status()}
	if err != nil {
		resp.Errors = splitErrors(err)
	}
	writeJSON(w, status, resp)
}

// sourceFromRequest decodes a source description and collects its files
func (h *Handler) sourceFromRequest(r *http.Request) (*source.Source, error) {
	var req SourceRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, errors.New(errors.CodeInvalidInput, "name is required")
	}

	dir := req.Path
	if dir != "" {
		resolved, err := h.resolve(dir)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidInput, "invalid path")
		}
		dir = resolved
	}

	src := source.New(req.Name, dir, req.Type, req.Kind)
	if err := src.Collect(h.fsys); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "failed to collect files")
	}
	return src, nil
}

// ListLayers handles GET /api/layers.
func (h *Handler) ListLayers(w http.ResponseWriter, _ *http.Request) {
	layers := h.layers.Layers()
	out := make([]LayerInfo, len(layers))
	for i, l := range layers {
		mean, std := l.Data.Stats()
		out[i] = LayerInfo{
			Key:        l.Key.String(),
			Name:       l.Name,
			Kind:       l.Kind,
			Shape:      l.Data.Shape,
			Mean:       mean,
			Std:        std,
			Properties: l.Properties,
			Affine:     affineRows(l.Transform),
		}
	}
	writeJSON(w, http.StatusOK, LayersResponse{Options: h.layers.Options(), Layers: out})
}

func affineRows(tf *models.Transform) [][]float64 {
	if tf == nil {
		return nil
	}
	m := tf.Matrix()
	r, c := m.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(make([]float64, c), i, m)
	}
	return rows
}

// Slice handles GET /api/layers/{source}/slice.png.
// Query parameters: axis (x, y or z; default z) and pos (default: middle plane).
func (h *Handler) Slice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "source")
	q := r.URL.Query()

	axis := q.Get("axis")
	if axis == "" {
		axis = "z"
	}
	pos := -1
	if raw := q.Get("pos"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 0 {
			writeError(w, errors.Newf(errors.CodeInvalidInput, "invalid pos %q", raw))
			return
		}
		pos = p
	}

	if _, ok := h.layers.Layer(name); !ok {
		writeError(w, errors.Newf(errors.CodeNotFound, "no layer displayed for source %q", name))
		return
	}
	img, err := h.layers.Preview(name, axis, pos)
	if err != nil {
		writeError(w, errors.Wrap(err, errors.CodeInvalidInput, "cannot extract slice"))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if err := png.Encode(w, img); err != nil {
		slog.Error("png encode failed", slog.String("error", err.Error()))
	}
}

// SetLayerOptions handles PUT /api/layers/options.
func (h *Handler) SetLayerOptions(w http.ResponseWriter, r *http.Request) {
	var opts visualization.Options
	if err := decodeJSON(r, &opts); err != nil {
		writeError(w, err)
		return
	}
	h.layers.SetOptions(opts)
	writeJSON(w, http.StatusOK, opts)
}

// SetLayerProperties handles PUT /api/layers/{source}/properties.
func (h *Handler) SetLayerProperties(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "source")
	var props models.LayerProperties
	if err := decodeJSON(r, &props); err != nil {
		writeError(w, err)
		return
	}
	if props.Opacity < 0 || props.Opacity > 1 {
		writeError(w, errors.Newf(errors.CodeInvalidInput, "opacity %v out of [0, 1]", props.Opacity))
		return
	}
	if err := h.layers.SetProperties(name, props); err != nil {
		writeError(w, errors.Wrap(err, errors.CodeNotFound, "cannot set properties"))
		return
	}
	writeJSON(w, http.StatusOK, props)
}

// SetPrefetch handles PUT /api/prefetch.
func (h *Handler) SetPrefetch(w http.ResponseWriter, r *http.Request) {
	var req PrefetchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.nav.SetPrefetch(req.Forward, req.Backward)
	writeJSON(w, http.StatusOK, h.nav.Status())
}

// Project handles GET /api/project: the current session as a project
// document that config.SaveProject can persist.
func (h *Handler) Project(w http.ResponseWriter, _ *http.Request) {
	st := h.nav.Status()
	opts := h.layers.Options()

	p := config.Project{
		Name:             h.projectName,
		KeepCamera:       opts.KeepCamera,
		KeepColor:        opts.KeepColor,
		KeepProperties:   opts.KeepProperties,
		PrefetchPrevious: st.Backward,
		PrefetchNext:     st.Forward,
	}
	for _, src := range h.nav.Sources() {
		p.Layers = append(p.Layers, config.LayerConfig{
			Name: src.Name,
			Path: src.Path,
			Type: src.TypeTag,
			Kind: src.Kind,
		})
	}
	writeJSON(w, http.StatusOK, p)
}

// rejected reports whether err means a source change did not happen
func rejected(err error) bool {
	return stderrors.Is(err, inspecterr.ErrDuplicateSource) ||
		stderrors.Is(err, inspecterr.ErrUnknownSource)
}

func splitErrors(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
