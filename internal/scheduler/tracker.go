package scheduler

import (
	"context"

	"print-scheduler/internal/models"
	"print-scheduler/internal/naming"
)

// TrackOutcome is what a printer state change did to the queue.
type TrackOutcome string

const (
	TrackNone      TrackOutcome = "none"
	TrackStarted   TrackOutcome = "started"
	TrackCompleted TrackOutcome = "completed"
	TrackCancelled TrackOutcome = "cancelled"
	TrackSkipped   TrackOutcome = "skipped"
)

// TrackResult reports the outcome and the job it touched, if any.
type TrackResult struct {
	Outcome TrackOutcome `json:"outcome"`
	JobID   string       `json:"job_id,omitempty"`
	Reason  string       `json:"reason,omitempty"`
}

// TrackPrinterState applies a printer's state change to its queue:
//   - into RUNNING: the lowest-position queued job starts printing
//   - RUNNING to FINISH or IDLE: the printing job completes
//   - RUNNING to FAILED: the printing job is cancelled
//
// Without a previous snapshot nothing happens.
func (s *Service) TrackPrinterState(ctx context.Context, prev *models.PrinterState, curr models.PrinterState) (TrackResult, error) {
	if prev == nil {
		return TrackResult{Outcome: TrackNone}, nil
	}
	wasRunning := prev.GcodeState == models.GcodeRunning
	isRunning := curr.GcodeState == models.GcodeRunning

	switch {
	case isRunning && !wasRunning:
		return s.startNext(ctx, curr)
	case wasRunning && (curr.GcodeState == models.GcodeFinish || curr.GcodeState == models.GcodeIdle):
		return s.finishCurrent(ctx, curr.PrinterID, false)
	case wasRunning && curr.GcodeState == models.GcodeFailed:
		return s.finishCurrent(ctx, curr.PrinterID, true)
	}
	return TrackResult{Outcome: TrackNone}, nil
}

func (s *Service) startNext(ctx context.Context, curr models.PrinterState) (TrackResult, error) {
	active, err := s.store.ListActiveJobs(ctx, []string{curr.PrinterID})
	if err != nil {
		return TrackResult{}, err
	}
	var next *models.Job
	for i := range active {
		if active[i].Status == models.StatusPrinting {
			return TrackResult{Outcome: TrackSkipped, JobID: active[i].ID, Reason: "printer already has a printing job"}, nil
		}
		if next == nil {
			next = &active[i]
		}
	}
	if next == nil {
		return TrackResult{Outcome: TrackNone, Reason: "no queued job"}, nil
	}
	if mismatchedProject(curr.CurrentFile, next.GcodeFilename) {
		s.logger.Info("running file does not match next job, skipping auto-start",
			"printer_id", curr.PrinterID, "file", curr.CurrentFile, "expected", next.GcodeFilename)
		return TrackResult{Outcome: TrackSkipped, JobID: next.ID, Reason: "running file belongs to another project"}, nil
	}
	job, err := s.Start(ctx, next.ID)
	if err != nil {
		return TrackResult{}, err
	}
	return TrackResult{Outcome: TrackStarted, JobID: job.ID}, nil
}

func (s *Service) finishCurrent(ctx context.Context, printerID string, failed bool) (TrackResult, error) {
	active, err := s.store.ListActiveJobs(ctx, []string{printerID})
	if err != nil {
		return TrackResult{}, err
	}
	for _, j := range active {
		if j.Status != models.StatusPrinting {
			continue
		}
		if failed {
			if _, err := s.Cancel(ctx, j.ID); err != nil {
				return TrackResult{}, err
			}
			return TrackResult{Outcome: TrackCancelled, JobID: j.ID}, nil
		}
		if _, err := s.Complete(ctx, j.ID); err != nil {
			return TrackResult{}, err
		}
		return TrackResult{Outcome: TrackCompleted, JobID: j.ID}, nil
	}
	return TrackResult{Outcome: TrackNone, Reason: "no printing job"}, nil
}

// mismatchedProject is true only when both names follow the naming
// convention and point at different projects.
func mismatchedProject(running, expected string) bool {
	if running == "" || expected == "" {
		return false
	}
	r, ok := naming.Parse(running)
	if !ok {
		return false
	}
	e, ok := naming.Parse(expected)
	if !ok {
		return false
	}
	return r.ProjectShortID != e.ProjectShortID
}
