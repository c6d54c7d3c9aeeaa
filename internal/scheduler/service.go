package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"print-scheduler/internal/estimate"
	"print-scheduler/internal/models"
	"print-scheduler/internal/naming"
	"print-scheduler/internal/schedule"
	"print-scheduler/internal/telemetry"
)

// Service generates print queues and drives job lifecycles.
type Service struct {
	store  Store
	locker Locker
	cal    schedule.Calendar
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithCalendar sets the working calendar used for projected times.
func WithCalendar(cal schedule.Calendar) Option {
	return func(s *Service) { s.cal = cal }
}

// WithLocker sets the lock used to serialize regenerations per printer type.
func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides job id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New builds a Service over store. Defaults: continuous calendar, in-process
// locking, wall clock, random UUIDs.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		locker: NewKeyedMutex(),
		cal:    schedule.Continuous{},
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegenerateResult describes a finished regeneration.
type RegenerateResult struct {
	ItemID  string       `json:"item_id"`
	Deleted int          `json:"deleted"`
	Jobs    []models.Job `json:"jobs"`
}

// Regenerate discards the item's queued jobs and plans new ones against the
// current load of every printer of the item's type.
//
// Configuration errors are reported before anything is written. When no
// printer of the type exists the deletion is still committed and
// ErrNoEligiblePrinter is returned, so the item is left without queued jobs.
func (s *Service) Regenerate(ctx context.Context, itemID string) (RegenerateResult, error) {
	started := time.Now()
	res, err := s.regenerate(ctx, itemID)
	telemetry.RegenerateDuration.Observe(time.Since(started).Seconds())
	telemetry.Regenerations.WithLabelValues(regenerateResult(err)).Inc()
	if err != nil {
		s.logger.Warn("queue regeneration failed", "item_id", itemID, "deleted", res.Deleted, "error", err)
		return res, err
	}
	telemetry.JobsGenerated.Add(float64(len(res.Jobs)))
	s.logger.Info("queue regenerated", "item_id", itemID, "deleted", res.Deleted, "created", len(res.Jobs))
	return res, nil
}

func (s *Service) regenerate(ctx context.Context, itemID string) (RegenerateResult, error) {
	res := RegenerateResult{ItemID: itemID}
	item, err := s.store.GetWorkItem(ctx, itemID)
	if err != nil {
		return res, err
	}
	if err := validatePrintConfig(item); err != nil {
		return res, err
	}
	typeID := *item.PrinterTypeID

	unlock, err := s.locker.Lock(ctx, printerTypeLockKey(typeID))
	if err != nil {
		return res, fmt.Errorf("lock printer type %s: %w", typeID, err)
	}
	defer unlock()

	noPrinters := false
	err = s.store.InTx(ctx, func(repo Repository) error {
		res = RegenerateResult{ItemID: itemID}
		// Re-read under the lock so a concurrent config change is honored.
		item, err := repo.GetWorkItem(ctx, itemID)
		if err != nil {
			return err
		}
		if err := validatePrintConfig(item); err != nil {
			return err
		}
		if *item.PrinterTypeID != typeID {
			return fmt.Errorf("%w: printer type changed during regeneration", ErrConfiguration)
		}

		deleted, err := repo.DeleteQueuedJobs(ctx, itemID)
		if err != nil {
			return fmt.Errorf("delete queued jobs: %w", err)
		}
		res.Deleted = deleted

		printers, err := repo.ListPrintersByType(ctx, typeID)
		if err != nil {
			return fmt.Errorf("list printers: %w", err)
		}
		if len(printers) == 0 {
			noPrinters = true
			return nil
		}
		ids := make([]string, len(printers))
		for i, p := range printers {
			ids[i] = p.ID
		}

		active, err := repo.ListActiveJobs(ctx, ids)
		if err != nil {
			return fmt.Errorf("list active jobs: %w", err)
		}
		now := s.now()
		load := baselineLoad(s.cal, now, ids, active)

		minutes := *item.PrintTimeMinutes
		batches := PlanBatches(item.Quantity, item.EffectiveBatchSize())
		assignments, err := Assign(s.cal, now, batches, ids, load, minutes)
		if err != nil {
			return err
		}

		jobs := make([]models.Job, len(assignments))
		for i, a := range assignments {
			jobs[i] = models.Job{
				ID:               s.newID(),
				WorkItemID:       item.ID,
				PrinterID:        a.PrinterID,
				PrinterTypeID:    typeID,
				BatchNumber:      a.BatchNumber,
				PiecesInBatch:    a.Pieces,
				EstimatedMinutes: minutes,
				Status:           models.StatusQueued,
				Position:         a.Position,
				GcodeFilename:    naming.JobFilename(item.ProjectID, item.Name, a.BatchNumber),
				ScheduledStart:   a.ScheduledStart,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
		}
		if err := repo.InsertJobs(ctx, jobs); err != nil {
			return fmt.Errorf("insert jobs: %w", err)
		}
		for _, j := range jobs {
			detail := fmt.Sprintf("batch=%d pieces=%d printer=%s position=%d", j.BatchNumber, j.PiecesInBatch, j.PrinterID, j.Position)
			if err := repo.AppendEvent(ctx, j.ID, "queued", detail); err != nil {
				return fmt.Errorf("append event: %w", err)
			}
		}
		res.Jobs = jobs
		return nil
	})
	if err != nil {
		return RegenerateResult{ItemID: itemID}, err
	}
	if noPrinters {
		return res, fmt.Errorf("%w for printer type %s", ErrNoEligiblePrinter, typeID)
	}
	return res, nil
}

func validatePrintConfig(item models.WorkItem) error {
	if item.PrintTimeMinutes == nil {
		return fmt.Errorf("%w: print time not set on item %s", ErrConfiguration, item.ID)
	}
	if *item.PrintTimeMinutes < 0 {
		return fmt.Errorf("%w: negative print time on item %s", ErrConfiguration, item.ID)
	}
	if item.PrinterTypeID == nil || *item.PrinterTypeID == "" {
		return fmt.Errorf("%w: printer type not set on item %s", ErrConfiguration, item.ID)
	}
	if item.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1 on item %s", ErrConfiguration, item.ID)
	}
	return nil
}

func regenerateResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConfiguration):
		return "config_error"
	case errors.Is(err, ErrNoEligiblePrinter):
		return "no_printer"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// UpdatePrintConfigRequest sets an item's print configuration. When
// PrintTimeMinutes is nil and a volume is given, the time is estimated
// from the volume and Material.
type UpdatePrintConfigRequest struct {
	PrintTimeMinutes *int     `json:"print_time_minutes"`
	PrinterTypeID    *string  `json:"printer_type_id"`
	StlVolumeCm3     *float64 `json:"stl_volume_cm3,omitempty"`
	Material         string   `json:"material,omitempty"`
}

// UpdatePrintConfig stores the print configuration of an item. It does not
// regenerate the item's queue.
func (s *Service) UpdatePrintConfig(ctx context.Context, itemID string, req UpdatePrintConfigRequest) (models.WorkItem, error) {
	if req.PrintTimeMinutes != nil && *req.PrintTimeMinutes < 0 {
		return models.WorkItem{}, fmt.Errorf("%w: print_time_minutes must not be negative", ErrConfiguration)
	}
	if req.PrintTimeMinutes == nil && req.StlVolumeCm3 != nil {
		m := estimate.PrintMinutes(*req.StlVolumeCm3, req.Material)
		req.PrintTimeMinutes = &m
	}
	if req.PrinterTypeID != nil && *req.PrinterTypeID == "" {
		req.PrinterTypeID = nil
	}
	if _, err := s.store.GetWorkItem(ctx, itemID); err != nil {
		return models.WorkItem{}, err
	}
	cfg := PrintConfig{
		PrintTimeMinutes: req.PrintTimeMinutes,
		PrinterTypeID:    req.PrinterTypeID,
		StlVolumeCm3:     req.StlVolumeCm3,
	}
	if err := s.store.UpdatePrintConfig(ctx, itemID, cfg); err != nil {
		return models.WorkItem{}, fmt.Errorf("update print config: %w", err)
	}
	return s.store.GetWorkItem(ctx, itemID)
}

// ListItemJobs returns every job of an item ordered by batch number.
func (s *Service) ListItemJobs(ctx context.Context, itemID string) ([]models.Job, error) {
	if _, err := s.store.GetWorkItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.store.ListJobsByItem(ctx, itemID)
}

// PrinterQueue returns the printer's queued and printing jobs ordered by position.
func (s *Service) PrinterQueue(ctx context.Context, printerID string) ([]models.Job, error) {
	if _, err := s.store.GetPrinter(ctx, printerID); err != nil {
		return nil, err
	}
	return s.store.ListActiveJobs(ctx, []string{printerID})
}
