package scheduler

import (
	"context"
	"time"

	"print-scheduler/internal/models"
)

// Repository is the persistence surface the scheduler reads and writes through.
// Lookups of missing rows return an error wrapping ErrNotFound.
type Repository interface {
	GetWorkItem(ctx context.Context, id string) (models.WorkItem, error)
	UpdatePrintConfig(ctx context.Context, id string, cfg PrintConfig) error
	// IncrementCompleted adds pieces to the item's completed count, clamped to
	// its quantity, and returns the new count.
	IncrementCompleted(ctx context.Context, itemID string, pieces int) (int, error)

	GetPrinter(ctx context.Context, id string) (models.Printer, error)
	ListPrintersByType(ctx context.Context, printerTypeID string) ([]models.Printer, error)

	GetJob(ctx context.Context, id string) (models.Job, error)
	ListJobsByItem(ctx context.Context, itemID string) ([]models.Job, error)
	// ListActiveJobs returns queued and printing jobs on the given printers ordered by position.
	ListActiveJobs(ctx context.Context, printerIDs []string) ([]models.Job, error)
	DeleteQueuedJobs(ctx context.Context, itemID string) (int, error)
	InsertJobs(ctx context.Context, jobs []models.Job) error
	// TransitionJob moves a job from one status to another and stamps the
	// matching timestamp. It reports false when the job was not in from.
	TransitionJob(ctx context.Context, id string, from, to models.JobStatus, at time.Time) (bool, error)
	UpdateJobPrinter(ctx context.Context, id, printerID string) error
	UpdateJobPositions(ctx context.Context, positions map[string]int) error

	AppendEvent(ctx context.Context, jobID, event, detail string) error
}

// Store is a Repository that can run a unit of work in a single transaction.
type Store interface {
	Repository
	InTx(ctx context.Context, fn func(repo Repository) error) error
}

// PrintConfig is the print setup of a work item. PrintTimeMinutes and
// PrinterTypeID are written as given, nil clearing them; a nil StlVolumeCm3
// keeps the stored volume.
type PrintConfig struct {
	PrintTimeMinutes *int
	PrinterTypeID    *string
	StlVolumeCm3     *float64
}
