package models

import "time"

// WorkItem is a deliverable within a production project: a quantity of
// identical pieces produced in batches on one printer type.
type WorkItem struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	Name             string    `json:"name"`
	Quantity         int       `json:"quantity"`
	BatchSize        int       `json:"batch_size"`
	Completed        int       `json:"completed"`
	PrinterTypeID    *string   `json:"printer_type_id,omitempty"`
	PrintTimeMinutes *int      `json:"print_time_minutes,omitempty"`
	StlVolumeCm3     *float64  `json:"stl_volume_cm3,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// EffectiveBatchSize returns the batch size, defaulting to 1.
func (w WorkItem) EffectiveBatchSize() int {
	if w.BatchSize < 1 {
		return 1
	}
	return w.BatchSize
}

// AddCompleted returns the completed count after adding pieces, clamped to quantity.
func (w WorkItem) AddCompleted(pieces int) int {
	n := w.Completed + pieces
	if n > w.Quantity {
		return w.Quantity
	}
	if n < 0 {
		return 0
	}
	return n
}
