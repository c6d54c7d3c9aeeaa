package testsupport

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"print-scheduler/internal/models"
	"print-scheduler/internal/scheduler"
)

// MemStore is an in-memory scheduler.Store. InTx runs transactions one at a
// time and restores the previous state when fn fails.
type MemStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	printers map[string]models.Printer
	items    map[string]models.WorkItem
	jobs     map[string]models.Job
	events   []models.JobEvent

	// FailInsert, when set, is returned by InsertJobs.
	FailInsert error
}

var _ scheduler.Store = (*MemStore)(nil)

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		printers: make(map[string]models.Printer),
		items:    make(map[string]models.WorkItem),
		jobs:     make(map[string]models.Job),
	}
}

// AddPrinter seeds a printer of the given type; an empty type leaves it unset.
func (m *MemStore) AddPrinter(id, printerTypeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := models.Printer{ID: id, Name: id, SerialNumber: "SN-" + id}
	if printerTypeID != "" {
		p.PrinterTypeID = &printerTypeID
	}
	m.printers[id] = p
}

// AddItem seeds a work item.
func (m *MemStore) AddItem(item models.WorkItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
}

// AddJob seeds a job.
func (m *MemStore) AddJob(job models.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
}

// Item returns the stored item.
func (m *MemStore) Item(id string) models.WorkItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id]
}

// Job returns the stored job.
func (m *MemStore) Job(id string) models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

// Jobs returns all stored jobs sorted by id.
func (m *MemStore) Jobs() []models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Collect(maps.Values(m.jobs))
	slices.SortFunc(out, func(a, b models.Job) int { return compareStrings(a.ID, b.ID) })
	return out
}

// Events returns the recorded audit events.
func (m *MemStore) Events() []models.JobEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

// InTx implements scheduler.Store.
func (m *MemStore) InTx(ctx context.Context, fn func(repo scheduler.Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	items, jobs, events := maps.Clone(m.items), maps.Clone(m.jobs), slices.Clone(m.events)
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.items, m.jobs, m.events = items, jobs, events
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *MemStore) GetWorkItem(_ context.Context, id string) (models.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return models.WorkItem{}, fmt.Errorf("work item %s: %w", id, scheduler.ErrNotFound)
	}
	return item, nil
}

func (m *MemStore) UpdatePrintConfig(_ context.Context, id string, cfg scheduler.PrintConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return fmt.Errorf("work item %s: %w", id, scheduler.ErrNotFound)
	}
	item.PrintTimeMinutes = cfg.PrintTimeMinutes
	item.PrinterTypeID = cfg.PrinterTypeID
	if cfg.StlVolumeCm3 != nil {
		item.StlVolumeCm3 = cfg.StlVolumeCm3
	}
	m.items[id] = item
	return nil
}

func (m *MemStore) IncrementCompleted(_ context.Context, itemID string, pieces int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok {
		return 0, fmt.Errorf("work item %s: %w", itemID, scheduler.ErrNotFound)
	}
	item.Completed = item.AddCompleted(pieces)
	m.items[itemID] = item
	return item.Completed, nil
}

func (m *MemStore) GetPrinter(_ context.Context, id string) (models.Printer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.printers[id]
	if !ok {
		return models.Printer{}, fmt.Errorf("printer %s: %w", id, scheduler.ErrNotFound)
	}
	return p, nil
}

func (m *MemStore) ListPrintersByType(_ context.Context, printerTypeID string) ([]models.Printer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Printer
	for _, p := range m.printers {
		if p.PrinterTypeID != nil && *p.PrinterTypeID == printerTypeID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b models.Printer) int { return compareStrings(a.ID, b.ID) })
	return out, nil
}

func (m *MemStore) GetJob(_ context.Context, id string) (models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return models.Job{}, fmt.Errorf("job %s: %w", id, scheduler.ErrNotFound)
	}
	return j, nil
}

func (m *MemStore) ListJobsByItem(_ context.Context, itemID string) ([]models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Job
	for _, j := range m.jobs {
		if j.WorkItemID == itemID {
			out = append(out, j)
		}
	}
	slices.SortFunc(out, func(a, b models.Job) int {
		if a.BatchNumber != b.BatchNumber {
			return a.BatchNumber - b.BatchNumber
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (m *MemStore) ListActiveJobs(_ context.Context, printerIDs []string) ([]models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Job
	for _, j := range m.jobs {
		if j.Status.Active() && slices.Contains(printerIDs, j.PrinterID) {
			out = append(out, j)
		}
	}
	slices.SortFunc(out, func(a, b models.Job) int {
		if a.Position != b.Position {
			return a.Position - b.Position
		}
		return compareStrings(a.ID, b.ID)
	})
	return out, nil
}

func (m *MemStore) DeleteQueuedJobs(_ context.Context, itemID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, j := range m.jobs {
		if j.WorkItemID == itemID && j.Status == models.StatusQueued {
			delete(m.jobs, id)
			n++
		}
	}
	return n, nil
}

func (m *MemStore) InsertJobs(_ context.Context, jobs []models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailInsert != nil {
		return m.FailInsert
	}
	for _, j := range jobs {
		m.jobs[j.ID] = j
	}
	return nil
}

func (m *MemStore) TransitionJob(_ context.Context, id string, from, to models.JobStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != from {
		return false, nil
	}
	j.Status = to
	j.UpdatedAt = at
	switch to {
	case models.StatusPrinting:
		j.StartedAt = &at
	case models.StatusDone:
		j.CompletedAt = &at
	}
	m.jobs[id] = j
	return true, nil
}

func (m *MemStore) UpdateJobPrinter(_ context.Context, id, printerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, scheduler.ErrNotFound)
	}
	j.PrinterID = printerID
	m.jobs[id] = j
	return nil
}

func (m *MemStore) UpdateJobPositions(_ context.Context, positions map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, pos := range positions {
		j, ok := m.jobs[id]
		if !ok {
			return fmt.Errorf("job %s: %w", id, scheduler.ErrNotFound)
		}
		j.Position = pos
		m.jobs[id] = j
	}
	return nil
}

func (m *MemStore) AppendEvent(_ context.Context, jobID, event, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, models.JobEvent{JobID: jobID, Event: event, Detail: detail, Recorded: time.Now()})
	return nil
}

// ListJobEvents returns the audit trail of a job, oldest first.
func (m *MemStore) ListJobEvents(_ context.Context, jobID string) ([]models.JobEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.JobEvent
	for _, e := range m.events {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
