package models

import (
	"time"
)

// JobStatus enumerates print job lifecycle states persisted in Postgres.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusPrinting  JobStatus = "printing"
	StatusDone      JobStatus = "done"
	StatusCancelled JobStatus = "cancelled"
)

// validTransitions defines the allowed state machine transitions for print jobs.
// printing -> cancelled covers a failed run reported by the printer.
var validTransitions = map[JobStatus][]JobStatus{
	StatusQueued:    {StatusPrinting, StatusCancelled},
	StatusPrinting:  {StatusDone, StatusCancelled},
	StatusDone:      {},
	StatusCancelled: {},
}

// CanTransition reports whether a job may move from current to next.
func CanTransition(current, next JobStatus) bool {
	for _, s := range validTransitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// Active reports whether the job still occupies its printer.
func (s JobStatus) Active() bool {
	return s == StatusQueued || s == StatusPrinting
}

// Job is one scheduled batch of a work item on one printer.
type Job struct {
	ID               string     `json:"id"`
	WorkItemID       string     `json:"work_item_id"`
	PrinterID        string     `json:"printer_id"`
	PrinterTypeID    string     `json:"printer_type_id"`
	BatchNumber      int        `json:"batch_number"`
	PiecesInBatch    int        `json:"pieces_in_batch"`
	EstimatedMinutes int        `json:"estimated_minutes"`
	Status           JobStatus  `json:"status"`
	Position         int        `json:"position"`
	GcodeFilename    string     `json:"gcode_filename,omitempty"`
	ScheduledStart   time.Time  `json:"scheduled_start"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// JobEvent is an audit row recorded for every lifecycle change.
type JobEvent struct {
	JobID    string    `json:"job_id"`
	Event    string    `json:"event"`
	Detail   string    `json:"detail"`
	Recorded time.Time `json:"recorded_at"`
}
