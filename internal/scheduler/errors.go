package scheduler

import "errors"

var (
	// ErrNotFound is returned when a job, item or printer id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConfiguration is returned when an item lacks print time or printer type.
	ErrConfiguration = errors.New("item print configuration incomplete")
	// ErrNoEligiblePrinter is returned when no printer matches the item's printer type.
	ErrNoEligiblePrinter = errors.New("no eligible printers")
	// ErrInvalidTransition is returned when a lifecycle operation does not apply to the job's status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidReorder is returned when a reorder list does not match the printer's queued jobs.
	ErrInvalidReorder = errors.New("invalid queue order")
)
