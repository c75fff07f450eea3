package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/obsidianstack/lookerhealth/agent/internal/render"
	"github.com/obsidianstack/lookerhealth/agent/internal/store"
	"github.com/obsidianstack/lookerhealth/pkg/types"
)

// ErrRunInProgress is returned by a Trigger when a run is already executing.
var ErrRunInProgress = errors.New("api: run already in progress")

// Trigger runs one report and returns its stored entry.
type Trigger func(ctx context.Context) (*store.Entry, error)

// Options wires the handler's collaborators. Store is required; a nil
// Trigger disables POST /api/v1/runs, a nil Metrics disables /metrics.
type Options struct {
	Store   *store.Store
	Trigger Trigger
	Metrics http.Handler
	Auth    mux.MiddlewareFunc
	HTML    render.Renderer
}

// Handler is the HTTP handler for /api/v1/* and /metrics.
type Handler struct {
	opts   Options
	router *mux.Router
}

// New creates a Handler and registers all routes.
func New(opts Options) http.Handler {
	h := &Handler{opts: opts, router: mux.NewRouter()}

	h.router.HandleFunc("/api/v1/health", h.health).Methods(http.MethodGet)
	if opts.Metrics != nil {
		h.router.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}

	v1 := h.router.PathPrefix("/api/v1").Subrouter()
	if opts.Auth != nil {
		v1.Use(opts.Auth)
	}
	v1.HandleFunc("/report", h.latest).Methods(http.MethodGet)
	v1.HandleFunc("/report.html", h.latestHTML).Methods(http.MethodGet)
	v1.HandleFunc("/report/{kind}", h.latestKind).Methods(http.MethodGet)
	v1.HandleFunc("/reports", h.listReports).Methods(http.MethodGet)
	v1.HandleFunc("/reports/{id}", h.getReport).Methods(http.MethodGet)
	v1.HandleFunc("/runs", h.trigger).Methods(http.MethodPost)

	h.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	h.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: liveness plus the latest run summary.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "ok", ReportCount: h.opts.Store.Count()}
	if e, ok := h.opts.Store.Latest(); ok {
		s := toRunSummary(e)
		resp.LastRun = &s
	}
	jsonResp(w, http.StatusOK, resp)
}

// latest returns GET /api/v1/report: the most recent full report.
func (h *Handler) latest(w http.ResponseWriter, _ *http.Request) {
	e, ok := h.opts.Store.Latest()
	if !ok {
		jsonErr(w, http.StatusNotFound, "no report yet")
		return
	}
	jsonResp(w, http.StatusOK, e.Report)
}

// latestHTML returns GET /api/v1/report.html: the e-mail body of the most
// recent report.
func (h *Handler) latestHTML(w http.ResponseWriter, _ *http.Request) {
	if h.opts.HTML == nil {
		jsonErr(w, http.StatusNotFound, "html rendering not configured")
		return
	}
	e, ok := h.opts.Store.Latest()
	if !ok {
		jsonErr(w, http.StatusNotFound, "no report yet")
		return
	}
	var b strings.Builder
	if err := h.opts.HTML.Render(&b, e.Report); err != nil {
		slog.Error("api: render html", "run_id", e.Report.RunID, "err", err)
		jsonErr(w, http.StatusInternalServerError, "render failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(b.String()))
}

// latestKind returns GET /api/v1/report/{kind}: one kind of the latest
// report. Both singular and plural kind names are accepted.
func (h *Handler) latestKind(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(mux.Vars(r)["kind"])
	if !ok {
		jsonErr(w, http.StatusBadRequest, "kind must be dashboards or looks")
		return
	}
	e, ok := h.opts.Store.Latest()
	if !ok {
		jsonErr(w, http.StatusNotFound, "no report yet")
		return
	}
	jsonResp(w, http.StatusOK, e.Report.Kind(kind))
}

// listReports returns GET /api/v1/reports: summaries of stored runs.
func (h *Handler) listReports(w http.ResponseWriter, _ *http.Request) {
	entries := h.opts.Store.List()
	out := make([]RunSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, toRunSummary(e))
	}
	jsonResp(w, http.StatusOK, out)
}

// getReport returns GET /api/v1/reports/{id}: one stored report.
func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid run id")
		return
	}
	e, ok := h.opts.Store.Get(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "report not found")
		return
	}
	jsonResp(w, http.StatusOK, e.Report)
}

// trigger handles POST /api/v1/runs: runs a report synchronously.
func (h *Handler) trigger(w http.ResponseWriter, r *http.Request) {
	if h.opts.Trigger == nil {
		jsonErr(w, http.StatusNotImplemented, "manual runs disabled")
		return
	}
	e, err := h.opts.Trigger(r.Context())
	switch {
	case errors.Is(err, ErrRunInProgress):
		jsonErr(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		slog.Error("api: triggered run failed", "err", err)
		jsonErr(w, http.StatusBadGateway, err.Error())
		return
	}
	jsonResp(w, http.StatusCreated, toRunSummary(e))
}

// --- helpers ----------------------------------------------------------------

func parseKind(s string) (types.Kind, bool) {
	for _, k := range types.Kinds {
		if s == string(k) || s == k.Plural() {
			return k, true
		}
	}
	return "", false
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
