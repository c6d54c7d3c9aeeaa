package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"print-scheduler/internal/models"
	"print-scheduler/internal/scheduler"
	"print-scheduler/internal/telemetry"
)

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func orEmpty[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func (s *Server) handleUpdatePrintConfig(w http.ResponseWriter, r *http.Request) {
	var req scheduler.UpdatePrintConfigRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	item, err := s.svc.UpdatePrintConfig(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Regenerate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, scheduler.ErrNoEligiblePrinter) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error(), "deleted": res.Deleted})
			return
		}
		s.writeError(w, r, err)
		return
	}
	res.Jobs = orEmpty(res.Jobs)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleItemJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.svc.ListItemJobs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(jobs))
}

func (s *Server) handlePrinterQueue(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.svc.PrinterQueue(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(jobs))
}

type reorderRequest struct {
	JobIDs []string `json:"job_ids"`
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	jobs, err := s.svc.Reorder(r.Context(), chi.URLParam(r, "id"), req.JobIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(jobs))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.Start(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type reassignRequest struct {
	PrinterID string `json:"printer_id"`
}

func (s *Server) handleReassign(w http.ResponseWriter, r *http.Request) {
	var req reassignRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if strings.TrimSpace(req.PrinterID) == "" {
		badRequest(w, "printer_id is required")
		return
	}
	job, err := s.svc.Reassign(r.Context(), chi.URLParam(r, "id"), req.PrinterID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "audit log not configured"})
		return
	}
	events, err := s.audit.ListJobEvents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(events))
}

func (s *Server) handlePrinterEvent(w http.ResponseWriter, r *http.Request) {
	var state models.PrinterState
	if err := decode(r, &state); err != nil {
		badRequest(w, "invalid json")
		return
	}
	state.GcodeState = strings.ToUpper(strings.TrimSpace(state.GcodeState))
	if state.PrinterID == "" || state.GcodeState == "" {
		badRequest(w, "printer_id and gcode_state are required")
		return
	}
	if state.ObservedAt.IsZero() {
		state.ObservedAt = time.Now().UTC()
	}
	allowed, err := s.limiter.Allow(r.Context(), state.PrinterID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !allowed {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limited"})
		return
	}
	ev, err := s.events.Push(r.Context(), state)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	telemetry.PrinterEventsQueued.Inc()
	writeJSON(w, http.StatusAccepted, map[string]string{"event_id": ev.ID})
}

// handleDLQ returns the dead-lettered printer events.
func (s *Server) handleDLQ(w http.ResponseWriter, r *http.Request) {
	items, err := s.events.DLQPeek(r.Context(), 100)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
