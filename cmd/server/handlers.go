package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bbiangul/kgraph"
	"github.com/bbiangul/kgraph/render"
)

// maxTextBytes caps inline text submitted to POST /extract.
const maxTextBytes = 10 << 20

type handler struct {
	engine  kgraph.Engine
	metrics *metrics
}

func newHandler(e kgraph.Engine, m *metrics) *handler {
	return &handler{engine: e, metrics: m}
}

func (h *handler) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /extract", h.handleExtract)
	mux.HandleFunc("GET /documents", h.handleListDocuments)
	mux.HandleFunc("GET /documents/{id}/graph", h.handleGraph)
	mux.HandleFunc("GET /documents/{id}/render", h.handleRender)
	mux.HandleFunc("DELETE /documents/{id}", h.handleDeleteDocument)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.Handle("GET /metrics", h.metrics.handler())
	return mux
}

// POST /extract
// Accepts JSON with inline "text" or a server-side "path".
func (h *handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	var req struct {
		Text   string `json:"text"`
		Path   string `json:"path"`
		Source string `json:"source,omitempty"`
		Force  bool   `json:"force,omitempty"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTextBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: expected JSON with 'text' or 'path'")
		return
	}
	if (req.Text == "") == (req.Path == "") {
		writeError(w, http.StatusBadRequest, "exactly one of text or path is required")
		return
	}

	var opts []kgraph.ExtractOption
	if req.Force {
		opts = append(opts, kgraph.WithForce())
	}
	if req.Source != "" {
		opts = append(opts, kgraph.WithSource(req.Source))
	}

	var (
		ex  *kgraph.Extraction
		err error
	)
	if req.Text != "" {
		ex, err = h.engine.Extract(ctx, req.Text, opts...)
	} else {
		absPath, perr := filepath.Abs(req.Path)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "invalid path")
			return
		}
		info, serr := os.Stat(absPath)
		if serr != nil || info.IsDir() {
			writeError(w, http.StatusBadRequest, "path must be an existing file")
			return
		}
		ex, err = h.engine.ExtractFile(ctx, absPath, opts...)
	}
	if err != nil {
		h.metrics.runs.WithLabelValues("error").Inc()
		switch {
		case errors.Is(err, kgraph.ErrUnsupportedFormat), errors.Is(err, kgraph.ErrParsingFailed):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "extraction failed")
		}
		slog.Error("extract error", "error", err)
		return
	}
	h.metrics.observe(ex)

	writeJSON(w, http.StatusOK, ex)
}

// GET /documents
func (h *handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.engine.ListDocuments(r.Context())
	if err != nil {
		h.writeEngineError(w, err, "failed to list documents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// GET /documents/{id}/graph[?focus=name&depth=n]
func (h *handler) handleGraph(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	g, communities, err := h.engine.Graph(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, err, "failed to load graph")
		return
	}
	resp := map[string]any{
		"document_id": id,
		"graph":       g,
		"communities": communities,
	}
	// ?focus=a&focus=b[&depth=n] adds the entities within n hops of the seeds.
	if focus := r.URL.Query()["focus"]; len(focus) > 0 {
		depth := 1
		if v := r.URL.Query().Get("depth"); v != "" {
			if depth, err = strconv.Atoi(v); err != nil || depth < 0 {
				writeError(w, http.StatusBadRequest, "depth must be a non-negative integer")
				return
			}
		}
		resp["neighbourhood"] = g.Neighbourhood(focus, depth)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /documents/{id}/render
func (h *handler) handleRender(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	opts := render.Options{ColorByCommunity: r.URL.Query().Get("color") == "community"}

	// Render into memory first so errors can still produce a JSON response.
	var buf bytes.Buffer
	if err := h.engine.Render(r.Context(), id, &buf, opts); err != nil {
		h.writeEngineError(w, err, "failed to render graph")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// DELETE /documents/{id}
func (h *handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	if err := h.engine.Delete(r.Context(), id); err != nil {
		h.writeEngineError(w, err, "delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func documentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return 0, false
	}
	return id, true
}

func (h *handler) writeEngineError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, kgraph.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, "document not found")
	case errors.Is(err, kgraph.ErrNoTriples):
		writeError(w, http.StatusNotFound, "document has no graph")
	case errors.Is(err, kgraph.ErrStoreDisabled):
		writeError(w, http.StatusNotImplemented, "store disabled")
	default:
		writeError(w, http.StatusInternalServerError, msg)
		slog.Error(msg, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
