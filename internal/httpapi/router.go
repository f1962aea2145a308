// Package httpapi serves the ops endpoints: health, readiness, metrics,
// status, a calendar feed and manual job triggers. Bind it to loopback.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"remindbot/internal/deadline"
	"remindbot/internal/notifier"
	"remindbot/internal/task/scheduler"
	"remindbot/pkg/logx"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Jobs interface {
	Snapshot() scheduler.Snapshot
	RunNow(name string) error
}

type Deliveries interface {
	Snapshot() []notifier.HistoryItem
}

// HTTPObserver records request metrics. Optional.
type HTTPObserver interface {
	ObserveHTTP(path, method string, status int, took time.Duration)
}

type Deps struct {
	Source     deadline.Source
	Store      Pinger
	Jobs       Jobs
	Deliveries Deliveries
	Metrics    http.Handler
	Observer   HTTPObserver
	Log        logx.Logger
	Now        func() time.Time
	// Location is advertised as the calendar timezone; events are written in UTC.
	Location *time.Location
	// Pprof mounts net/http/pprof under /debug.
	Pprof bool
}

type handler struct {
	d   Deps
	log logx.Logger
}

func NewRouter(d Deps) http.Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &handler{d: d, log: log.With(logx.String("comp", "httpapi"))}

	r := chi.NewRouter()
	if d.Observer != nil {
		r.Use(metricsMiddleware(d.Observer))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.liveness)
	r.Get("/readyz", h.readiness)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}
	r.Get("/status", h.status)
	r.Get("/deadlines.ics", h.calendar)
	r.Post("/jobs/{name}/run", h.runJob)
	if d.Pprof {
		r.Mount("/debug", middleware.Profiler())
	}
	return r
}

// metricsMiddleware labels requests by route pattern, not raw path.
func metricsMiddleware(o HTTPObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			path := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				path = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			o.ObserveHTTP(path, r.Method, status, time.Since(start))
		})
	}
}

func (h *handler) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handler) readiness(w http.ResponseWriter, r *http.Request) {
	if h.d.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := h.d.Store.Ping(ctx); err != nil {
			h.log.Warn("readiness check failed", logx.Err(err))
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

type statusResponse struct {
	Now        time.Time              `json:"now"`
	Scheduler  *scheduler.Snapshot    `json:"scheduler,omitempty"`
	Deliveries []notifier.HistoryItem `json:"deliveries,omitempty"`
}

func (h *handler) status(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Now: h.d.Now()}
	if h.d.Jobs != nil {
		snap := h.d.Jobs.Snapshot()
		resp.Scheduler = &snap
	}
	if h.d.Deliveries != nil {
		resp.Deliveries = h.d.Deliveries.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) runJob(w http.ResponseWriter, r *http.Request) {
	if h.d.Jobs == nil {
		http.Error(w, "scheduler disabled", http.StatusNotFound)
		return
	}
	name := chi.URLParam(r, "name")
	err := h.d.Jobs.RunNow(name)
	switch {
	case err == nil:
		h.log.Info("job triggered over http", logx.String("job", name), logx.String("request_id", middleware.GetReqID(r.Context())))
		writeJSON(w, http.StatusAccepted, map[string]string{"job": name, "status": "started"})
	case errors.Is(err, scheduler.ErrUnknownJob):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, scheduler.ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
