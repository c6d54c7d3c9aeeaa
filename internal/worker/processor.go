package worker

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"print-scheduler/internal/config"
	"print-scheduler/internal/models"
	"print-scheduler/internal/queue"
	"print-scheduler/internal/scheduler"
	"print-scheduler/internal/telemetry"
)

// EventQueue is the printer event queue the processor drains.
type EventQueue interface {
	DequeueWithLease(ctx context.Context) (queue.Event, bool, error)
	ExtendLease(ctx context.Context, id string, extension time.Duration) error
	Ack(ctx context.Context, id string) error
	Retry(ctx context.Context, ev queue.Event, runAt time.Time) error
	PromoteScheduled(ctx context.Context, now time.Time, limit int64) (int, error)
	RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error)
	DLQPush(ctx context.Context, ev queue.Event, reason string) error
	ReadyDepth(ctx context.Context) (int64, error)
	InFlight(ctx context.Context) (int64, error)
}

// StateStore remembers the last applied state per printer.
type StateStore interface {
	Get(ctx context.Context, printerID string) (*models.PrinterState, error)
	Set(ctx context.Context, state models.PrinterState) error
}

// Tracker applies a printer state change to the print queue.
type Tracker interface {
	TrackPrinterState(ctx context.Context, prev *models.PrinterState, curr models.PrinterState) (scheduler.TrackResult, error)
}

// Processor drives the worker execution loop.
type Processor struct {
	cfg     config.Config
	queue   EventQueue
	states  StateStore
	tracker Tracker
	logger  *slog.Logger
}

func NewProcessor(cfg config.Config, q EventQueue, states StateStore, tracker Tracker, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{cfg: cfg, queue: q, states: states, tracker: tracker, logger: logger}
}

// Run starts the main worker loop until context cancellation.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		processed, err := p.Step(ctx)
		if err != nil {
			p.logger.Warn("poll printer events", "error", err)
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.WorkerPollInterval):
		}
	}
}

// Step performs one pass: housekeeping, then at most one event. It reports
// whether an event was handled.
func (p *Processor) Step(ctx context.Context) (bool, error) {
	now := time.Now()
	if _, err := p.queue.PromoteScheduled(ctx, now, int64(p.cfg.ScheduledBatchSize)); err != nil {
		p.logger.Warn("promote scheduled events", "error", err)
	}
	if reclaimed, err := p.queue.RequeueExpired(ctx, now, 100); err != nil {
		p.logger.Warn("requeue expired events", "error", err)
	} else if len(reclaimed) > 0 {
		p.logger.Info("reclaimed expired event leases", "count", len(reclaimed))
	}
	if depth, err := p.queue.ReadyDepth(ctx); err == nil {
		telemetry.EventQueueDepth.Set(float64(depth))
	}
	if n, err := p.queue.InFlight(ctx); err == nil {
		telemetry.InFlightGauge.Set(float64(n))
	}

	ev, ok, err := p.queue.DequeueWithLease(ctx)
	if err != nil || !ok {
		return false, err
	}

	res, err := p.handle(ctx, ev)
	if err == nil {
		_ = p.queue.Ack(ctx, ev.ID)
		telemetry.PrinterEvents.WithLabelValues(string(res.Outcome)).Inc()
		if res.Outcome != scheduler.TrackNone {
			p.logger.Info("printer event applied",
				"printer_id", ev.State.PrinterID,
				"gcode_state", ev.State.GcodeState,
				"outcome", res.Outcome,
				"job_id", res.JobID,
				"reason", res.Reason,
			)
		}
		return true, nil
	}

	attempts := ev.Attempts + 1
	if attempts >= p.cfg.MaxAttempts || !retryable(err) {
		_ = p.queue.DLQPush(ctx, ev, err.Error())
		telemetry.EventDeadLetter.Inc()
		p.logger.Error("printer event dead-lettered",
			"event_id", ev.ID, "printer_id", ev.State.PrinterID, "attempts", attempts, "error", err)
		return true, nil
	}

	backoff := backoffWithJitter(p.cfg.BackoffInitial, p.cfg.BackoffMax, attempts)
	_ = p.queue.Retry(ctx, ev, time.Now().Add(backoff))
	telemetry.EventFailures.Inc()
	p.logger.Warn("printer event failed, retry scheduled",
		"event_id", ev.ID, "printer_id", ev.State.PrinterID, "attempts", attempts, "backoff", backoff, "error", err)
	return true, nil
}

// handle compares the snapshot with the printer's previous state, applies the
// transition, and records the snapshot as the new previous state. Snapshots
// older than the stored state are ignored.
func (p *Processor) handle(ctx context.Context, ev queue.Event) (scheduler.TrackResult, error) {
	curr := ev.State
	prev, err := p.states.Get(ctx, curr.PrinterID)
	if err != nil {
		return scheduler.TrackResult{}, err
	}
	if prev != nil && curr.ObservedAt.Before(prev.ObservedAt) {
		return scheduler.TrackResult{Outcome: scheduler.TrackNone, Reason: "stale snapshot"}, nil
	}
	// The tracker runs Postgres transactions; keep the lease for their duration.
	if p.cfg.VisibilityTimeout > 0 {
		if err := p.queue.ExtendLease(ctx, ev.ID, p.cfg.VisibilityTimeout); err != nil {
			p.logger.Warn("extend event lease", "event_id", ev.ID, "error", err)
		}
	}
	res, err := p.tracker.TrackPrinterState(ctx, prev, curr)
	if err != nil {
		if !retryable(err) {
			// The printer did move; later snapshots compare against this one.
			_ = p.states.Set(ctx, curr)
		}
		return scheduler.TrackResult{}, err
	}
	if err := p.states.Set(ctx, curr); err != nil {
		return scheduler.TrackResult{}, err
	}
	return res, nil
}

// retryable is false for errors a retry cannot fix.
func retryable(err error) bool {
	return !errors.Is(err, scheduler.ErrNotFound) && !errors.Is(err, scheduler.ErrInvalidTransition)
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	wait := time.Duration(exp)
	if wait > max {
		wait = max
	}
	if wait < 2 {
		return wait
	}
	jitter := time.Duration(rand.Int63n(int64(wait / 2)))
	return wait/2 + jitter
}
