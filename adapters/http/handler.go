// Package http exposes the engine over HTTP for serve mode: parse,
// validate, and run endpoints plus health and metrics.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sigmos-lang/sigmos/app"
	"github.com/sigmos-lang/sigmos/core/exporter"
	"github.com/sigmos-lang/sigmos/core/parser"
	"github.com/sigmos-lang/sigmos/domain/diag"
	"github.com/sigmos-lang/sigmos/domain/value"
)

// Handler serves the engine API.
type Handler struct {
	log    zerolog.Logger
	engine *app.Engine
	prom   *prometheus.Registry
}

// NewHandler builds the HTTP handler. prom may be nil to disable /metrics.
func NewHandler(logger zerolog.Logger, engine *app.Engine, prom *prometheus.Registry) http.Handler {
	h := &Handler{log: logger, engine: engine, prom: prom}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/healthz", h.health)
	if prom != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(prom, promhttp.HandlerOpts{}))
	}
	r.Post("/v1/parse", h.parse)
	r.Post("/v1/validate", h.validate)
	r.Post("/v1/run", h.run)
	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type specRequest struct {
	Source string         `json:"source"`
	Inputs map[string]any `json:"inputs"`
}

func (h *Handler) parse(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	s, ds := parser.Parse(req.Source)
	if ds != nil {
		writeDiagnostics(w, ds)
		return
	}
	writeJSON(w, http.StatusOK, exporter.Build(s))
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if _, ds := parser.Parse(req.Source); ds != nil {
		writeDiagnostics(w, ds)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	s, ds := parser.Parse(req.Source)
	if ds != nil {
		writeDiagnostics(w, ds)
		return
	}

	provided := make(map[string]value.Value, len(req.Inputs))
	for k, raw := range req.Inputs {
		v, err := value.FromGo(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "input " + k + ": " + err.Error()})
			return
		}
		provided[k] = v
	}

	res, err := h.engine.Execute(r.Context(), s, provided)
	if err != nil {
		writeExecutionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"execution_id": res.ExecutionID,
		"inputs":       value.Obj(res.Inputs).ToGo(),
		"computed":     value.Obj(res.Computed).ToGo(),
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (specRequest, bool) {
	var req specRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return req, false
	}
	if req.Source == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source is required"})
		return req, false
	}
	return req, true
}

func writeDiagnostics(w http.ResponseWriter, ds diag.Diagnostics) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"diagnostics": ds})
}

func writeExecutionError(w http.ResponseWriter, err error) {
	var de *diag.Error
	if errors.As(err, &de) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": errorDoc(de)})
		return
	}
	var ds diag.Diagnostics
	if errors.As(err, &ds) {
		writeDiagnostics(w, ds)
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func errorDoc(de *diag.Error) map[string]any {
	doc := map[string]any{
		"kind":    string(de.Kind),
		"message": de.Message,
	}
	if de.Span != nil {
		doc["span"] = de.Span
	}
	if de.Field != "" {
		doc["field"] = de.Field
	}
	if len(de.Secondary) > 0 {
		var secs []map[string]any
		for _, s := range de.Secondary {
			secs = append(secs, errorDoc(s))
		}
		doc["secondary"] = secs
	}
	return doc
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
