package scheduler

import (
	"context"
	"fmt"
	"slices"

	"print-scheduler/internal/models"
	"print-scheduler/internal/telemetry"
)

// Start moves a queued job to printing.
func (s *Service) Start(ctx context.Context, jobID string) (models.Job, error) {
	var job models.Job
	err := s.store.InTx(ctx, func(repo Repository) error {
		var err error
		job, err = s.transition(ctx, repo, jobID, models.StatusQueued, models.StatusPrinting)
		return err
	})
	if err != nil {
		return models.Job{}, err
	}
	s.logger.Info("print job started", "job_id", job.ID, "printer_id", job.PrinterID, "item_id", job.WorkItemID)
	return job, nil
}

// CompleteResult is a finished job and its item's new completed count.
type CompleteResult struct {
	Job           models.Job `json:"job"`
	ItemCompleted int        `json:"item_completed"`
}

// Complete marks a printing job done and credits its pieces to the owning
// item, never beyond the item's quantity.
func (s *Service) Complete(ctx context.Context, jobID string) (CompleteResult, error) {
	var res CompleteResult
	err := s.store.InTx(ctx, func(repo Repository) error {
		job, err := s.transition(ctx, repo, jobID, models.StatusPrinting, models.StatusDone)
		if err != nil {
			return err
		}
		completed, err := repo.IncrementCompleted(ctx, job.WorkItemID, job.PiecesInBatch)
		if err != nil {
			return fmt.Errorf("update item %s completed: %w", job.WorkItemID, err)
		}
		res = CompleteResult{Job: job, ItemCompleted: completed}
		return nil
	})
	if err != nil {
		return CompleteResult{}, err
	}
	telemetry.PiecesCompleted.Add(float64(res.Job.PiecesInBatch))
	s.logger.Info("print job completed",
		"job_id", res.Job.ID,
		"printer_id", res.Job.PrinterID,
		"item_id", res.Job.WorkItemID,
		"pieces", res.Job.PiecesInBatch,
		"item_completed", res.ItemCompleted,
	)
	return res, nil
}

// Cancel cancels a queued or printing job. Cancelling an already cancelled
// job is a no-op. Positions of the remaining jobs are left untouched.
func (s *Service) Cancel(ctx context.Context, jobID string) (models.Job, error) {
	var job models.Job
	err := s.store.InTx(ctx, func(repo Repository) error {
		current, err := repo.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if current.Status == models.StatusCancelled {
			job = current
			return nil
		}
		job, err = s.transition(ctx, repo, jobID, current.Status, models.StatusCancelled)
		return err
	})
	if err != nil {
		return models.Job{}, err
	}
	s.logger.Info("print job cancelled", "job_id", job.ID, "printer_id", job.PrinterID, "item_id", job.WorkItemID)
	return job, nil
}

// transition performs a compare-and-set status change and records it.
func (s *Service) transition(ctx context.Context, repo Repository, jobID string, from, to models.JobStatus) (models.Job, error) {
	job, err := repo.GetJob(ctx, jobID)
	if err != nil {
		return models.Job{}, err
	}
	if job.Status != from || !models.CanTransition(from, to) {
		return models.Job{}, fmt.Errorf("%w: job %s is %s, cannot move to %s", ErrInvalidTransition, jobID, job.Status, to)
	}
	now := s.now()
	ok, err := repo.TransitionJob(ctx, jobID, from, to, now)
	if err != nil {
		return models.Job{}, fmt.Errorf("update job %s: %w", jobID, err)
	}
	if !ok {
		return models.Job{}, fmt.Errorf("%w: job %s changed concurrently", ErrInvalidTransition, jobID)
	}
	if err := repo.AppendEvent(ctx, jobID, string(to), fmt.Sprintf("from=%s", from)); err != nil {
		return models.Job{}, fmt.Errorf("append event: %w", err)
	}
	telemetry.JobTransitions.WithLabelValues(string(to)).Inc()

	job.Status = to
	job.UpdatedAt = now
	switch to {
	case models.StatusPrinting:
		job.StartedAt = &now
	case models.StatusDone:
		job.CompletedAt = &now
	}
	return job, nil
}

// Reassign moves a queued or printing job to another printer, keeping its
// status, schedule and position.
func (s *Service) Reassign(ctx context.Context, jobID, printerID string) (models.Job, error) {
	var job models.Job
	err := s.store.InTx(ctx, func(repo Repository) error {
		var err error
		job, err = repo.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if !job.Status.Active() {
			return fmt.Errorf("%w: job %s is %s and cannot be reassigned", ErrInvalidTransition, jobID, job.Status)
		}
		if _, err := repo.GetPrinter(ctx, printerID); err != nil {
			return err
		}
		if job.PrinterID == printerID {
			return nil
		}
		if err := repo.UpdateJobPrinter(ctx, jobID, printerID); err != nil {
			return fmt.Errorf("update job printer: %w", err)
		}
		detail := fmt.Sprintf("from=%s to=%s", job.PrinterID, printerID)
		if err := repo.AppendEvent(ctx, jobID, "reassigned", detail); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		job.PrinterID = printerID
		return nil
	})
	if err != nil {
		return models.Job{}, err
	}
	s.logger.Info("print job reassigned", "job_id", job.ID, "printer_id", printerID)
	return job, nil
}

// Reorder rewrites the positions of a printer's queue. orderedJobIDs must
// list exactly the printer's queued jobs; printing jobs stay at the front.
// Scheduled start times are not recomputed.
func (s *Service) Reorder(ctx context.Context, printerID string, orderedJobIDs []string) ([]models.Job, error) {
	var out []models.Job
	err := s.store.InTx(ctx, func(repo Repository) error {
		if _, err := repo.GetPrinter(ctx, printerID); err != nil {
			return err
		}
		active, err := repo.ListActiveJobs(ctx, []string{printerID})
		if err != nil {
			return fmt.Errorf("list active jobs: %w", err)
		}

		var printing []models.Job
		queued := make(map[string]models.Job)
		for _, j := range active {
			if j.Status == models.StatusPrinting {
				printing = append(printing, j)
			} else {
				queued[j.ID] = j
			}
		}
		if len(orderedJobIDs) != len(queued) {
			return fmt.Errorf("%w: got %d jobs, printer %s has %d queued", ErrInvalidReorder, len(orderedJobIDs), printerID, len(queued))
		}
		slices.SortFunc(printing, func(a, b models.Job) int { return a.Position - b.Position })

		out = make([]models.Job, 0, len(active))
		out = append(out, printing...)
		seen := make(map[string]bool, len(orderedJobIDs))
		for _, id := range orderedJobIDs {
			j, ok := queued[id]
			if !ok || seen[id] {
				return fmt.Errorf("%w: job %s is not a queued job of printer %s", ErrInvalidReorder, id, printerID)
			}
			seen[id] = true
			out = append(out, j)
		}

		positions := make(map[string]int, len(out))
		for i := range out {
			out[i].Position = i
			positions[out[i].ID] = i
		}
		if err := repo.UpdateJobPositions(ctx, positions); err != nil {
			return fmt.Errorf("update positions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("printer queue reordered", "printer_id", printerID, "jobs", len(out))
	return out, nil
}
