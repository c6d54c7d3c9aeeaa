package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"print-scheduler/internal/models"
	"print-scheduler/internal/queue"
	"print-scheduler/internal/ratelimit"
	"print-scheduler/internal/scheduler"
	"print-scheduler/internal/telemetry"
)

// EventQueue accepts printer state snapshots for the worker.
type EventQueue interface {
	Push(ctx context.Context, state models.PrinterState) (queue.Event, error)
	DLQPeek(ctx context.Context, count int64) ([]queue.DeadLetter, error)
}

// AuditLog reads a job's recorded events.
type AuditLog interface {
	ListJobEvents(ctx context.Context, jobID string) ([]models.JobEvent, error)
}

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

type namedCheck struct {
	name  string
	check ReadinessCheck
}

// Server wires HTTP handlers for the print scheduler.
type Server struct {
	svc     *scheduler.Service
	events  EventQueue
	audit   AuditLog
	limiter *ratelimit.TokenBucket
	logger  *slog.Logger
	checks  []namedCheck
}

// New constructs the API server. limiter may be nil.
func New(svc *scheduler.Service, events EventQueue, audit AuditLog, limiter *ratelimit.TokenBucket, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		svc:     svc,
		events:  events,
		audit:   audit,
		limiter: limiter,
		logger:  logger,
	}
}

// AddReadinessCheck registers a dependency checked by /readyz.
func (s *Server) AddReadinessCheck(name string, check ReadinessCheck) {
	s.checks = append(s.checks, namedCheck{name: name, check: check})
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/readyz", s.handleReady)

	r.Mount("/metrics", telemetry.Handler())

	r.Route("/items/{id}", func(r chi.Router) {
		r.Put("/print-config", s.handleUpdatePrintConfig)
		r.Get("/print-jobs", s.handleItemJobs)
		r.Post("/print-jobs/regenerate", s.handleRegenerate)
	})
	r.Get("/printers/{id}/queue", s.handlePrinterQueue)
	r.Put("/printers/{id}/queue/order", s.handleReorder)
	r.Route("/jobs/{id}", func(r chi.Router) {
		r.Post("/start", s.handleStart)
		r.Post("/complete", s.handleComplete)
		r.Post("/cancel", s.handleCancel)
		r.Patch("/printer", s.handleReassign)
		r.Get("/events", s.handleJobEvents)
	})
	r.Post("/printer-events", s.handlePrinterEvent)
	r.Get("/printer-events/dlq", s.handleDLQ)
	return r
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for _, c := range s.checks {
		if err := c.check(ctx); err != nil {
			s.logger.Warn("readiness check failed", "check", c.name, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "check": c.name})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// requestLogger logs one line per request through slog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// statusFor maps scheduler errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, scheduler.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scheduler.ErrConfiguration), errors.Is(err, scheduler.ErrNoEligiblePrinter):
		return http.StatusUnprocessableEntity
	case errors.Is(err, scheduler.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, scheduler.ErrInvalidReorder):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err,
			"request_id", middleware.GetReqID(r.Context()))
		msg = "internal error"
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
