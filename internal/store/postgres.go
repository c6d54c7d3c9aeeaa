package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"print-scheduler/internal/models"
	"print-scheduler/internal/scheduler"
)

// querier is the subset of pgx shared by the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store wraps pgxpool for Postgres persistence.
type Store struct {
	repo
	pool *pgxpool.Pool
}

var _ scheduler.Store = (*Store)(nil)

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{repo: repo{q: pool}, pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InTx runs fn inside a transaction, committing when it returns nil.
func (s *Store) InTx(ctx context.Context, fn func(repo scheduler.Repository) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	if err := fn(&repo{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// repo implements scheduler.Repository over a pool or a transaction.
type repo struct {
	q querier
}

const jobColumns = `id, work_item_id, printer_id, printer_type_id, batch_number, pieces_in_batch,
	estimated_minutes, status, position, gcode_filename, scheduled_start, started_at, completed_at,
	created_at, updated_at`

func (r *repo) GetWorkItem(ctx context.Context, id string) (models.WorkItem, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, project_id, name, quantity, batch_size, completed, printer_type_id,
		       print_time_minutes, stl_volume_cm3, created_at, updated_at
		FROM work_items WHERE id = $1
	`, id)

	var item models.WorkItem
	var printerType pgtype.Text
	var minutes pgtype.Int4
	var volume pgtype.Float8
	if err := row.Scan(&item.ID, &item.ProjectID, &item.Name, &item.Quantity, &item.BatchSize, &item.Completed,
		&printerType, &minutes, &volume, &item.CreatedAt, &item.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.WorkItem{}, fmt.Errorf("work item %s: %w", id, scheduler.ErrNotFound)
		}
		return models.WorkItem{}, fmt.Errorf("scan work item: %w", err)
	}
	item.PrinterTypeID = textPtr(printerType)
	item.PrintTimeMinutes = intPtr(minutes)
	item.StlVolumeCm3 = floatPtr(volume)
	return item, nil
}

func (r *repo) UpdatePrintConfig(ctx context.Context, id string, cfg scheduler.PrintConfig) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE work_items
		SET print_time_minutes = $2, printer_type_id = $3,
		    stl_volume_cm3 = COALESCE($4, stl_volume_cm3), updated_at = NOW()
		WHERE id = $1
	`, id, cfg.PrintTimeMinutes, cfg.PrinterTypeID, cfg.StlVolumeCm3)
	if err != nil {
		return fmt.Errorf("update print config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("work item %s: %w", id, scheduler.ErrNotFound)
	}
	return nil
}

func (r *repo) IncrementCompleted(ctx context.Context, itemID string, pieces int) (int, error) {
	var completed int
	err := r.q.QueryRow(ctx, `
		UPDATE work_items
		SET completed = LEAST(quantity, GREATEST(0, completed + $2)), updated_at = NOW()
		WHERE id = $1
		RETURNING completed
	`, itemID, pieces).Scan(&completed)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("work item %s: %w", itemID, scheduler.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("increment completed: %w", err)
	}
	return completed, nil
}

func (r *repo) GetPrinter(ctx context.Context, id string) (models.Printer, error) {
	var p models.Printer
	var printerType pgtype.Text
	err := r.q.QueryRow(ctx, `
		SELECT id, name, serial_number, printer_type_id, created_at FROM printers WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.SerialNumber, &printerType, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Printer{}, fmt.Errorf("printer %s: %w", id, scheduler.ErrNotFound)
	}
	if err != nil {
		return models.Printer{}, fmt.Errorf("scan printer: %w", err)
	}
	p.PrinterTypeID = textPtr(printerType)
	return p, nil
}

func (r *repo) ListPrintersByType(ctx context.Context, printerTypeID string) ([]models.Printer, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, name, serial_number, printer_type_id, created_at
		FROM printers WHERE printer_type_id = $1 ORDER BY id
	`, printerTypeID)
	if err != nil {
		return nil, fmt.Errorf("query printers: %w", err)
	}
	defer rows.Close()

	var out []models.Printer
	for rows.Next() {
		var p models.Printer
		var printerType pgtype.Text
		if err := rows.Scan(&p.ID, &p.Name, &p.SerialNumber, &printerType, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan printer: %w", err)
		}
		p.PrinterTypeID = textPtr(printerType)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repo) GetJob(ctx context.Context, id string) (models.Job, error) {
	job, err := scanJob(r.q.QueryRow(ctx, `SELECT `+jobColumns+` FROM print_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, fmt.Errorf("job %s: %w", id, scheduler.ErrNotFound)
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("scan job: %w", err)
	}
	return job, nil
}

func (r *repo) ListJobsByItem(ctx context.Context, itemID string) ([]models.Job, error) {
	return r.queryJobs(ctx, `
		SELECT `+jobColumns+` FROM print_jobs
		WHERE work_item_id = $1
		ORDER BY batch_number, created_at
	`, itemID)
}

func (r *repo) ListActiveJobs(ctx context.Context, printerIDs []string) ([]models.Job, error) {
	return r.queryJobs(ctx, `
		SELECT `+jobColumns+` FROM print_jobs
		WHERE printer_id = ANY($1) AND status IN ($2, $3)
		ORDER BY position, id
	`, printerIDs, models.StatusQueued, models.StatusPrinting)
}

func (r *repo) DeleteQueuedJobs(ctx context.Context, itemID string) (int, error) {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM print_jobs WHERE work_item_id = $1 AND status = $2
	`, itemID, models.StatusQueued)
	if err != nil {
		return 0, fmt.Errorf("delete queued jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *repo) InsertJobs(ctx context.Context, jobs []models.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, j := range jobs {
		b.Queue(`
			INSERT INTO print_jobs (id, work_item_id, printer_id, printer_type_id, batch_number, pieces_in_batch,
				estimated_minutes, status, position, gcode_filename, scheduled_start, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, j.ID, j.WorkItemID, j.PrinterID, j.PrinterTypeID, j.BatchNumber, j.PiecesInBatch,
			j.EstimatedMinutes, j.Status, j.Position, j.GcodeFilename, j.ScheduledStart, j.CreatedAt, j.UpdatedAt)
	}
	return execBatch(ctx, r.q, b, "insert job")
}

func (r *repo) TransitionJob(ctx context.Context, id string, from, to models.JobStatus, at time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE print_jobs
		SET status = $3::text,
		    updated_at = $4::timestamptz,
		    started_at = CASE WHEN $3::text = 'printing' THEN $4::timestamptz ELSE started_at END,
		    completed_at = CASE WHEN $3::text = 'done' THEN $4::timestamptz ELSE completed_at END
		WHERE id = $1 AND status = $2
	`, id, from, to, at)
	if err != nil {
		return false, fmt.Errorf("transition job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repo) UpdateJobPrinter(ctx context.Context, id, printerID string) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE print_jobs SET printer_id = $2, updated_at = NOW() WHERE id = $1
	`, id, printerID)
	if err != nil {
		return fmt.Errorf("update job printer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", id, scheduler.ErrNotFound)
	}
	return nil
}

func (r *repo) UpdateJobPositions(ctx context.Context, positions map[string]int) error {
	if len(positions) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for id, pos := range positions {
		b.Queue(`UPDATE print_jobs SET position = $2, updated_at = NOW() WHERE id = $1`, id, pos)
	}
	return execBatch(ctx, r.q, b, "update position")
}

// AppendEvent adds an audit row.
func (r *repo) AppendEvent(ctx context.Context, jobID, event, detail string) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO job_events (job_id, event, detail, ts)
		VALUES ($1, $2, $3, NOW())
	`, jobID, event, detail)
	return err
}

// ListJobEvents returns the audit trail of a job, oldest first.
func (s *Store) ListJobEvents(ctx context.Context, jobID string) ([]models.JobEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT job_id, event, detail, ts FROM job_events WHERE job_id = $1 ORDER BY ts, id
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query job events: %w", err)
	}
	defer rows.Close()

	var out []models.JobEvent
	for rows.Next() {
		var e models.JobEvent
		if err := rows.Scan(&e.JobID, &e.Event, &e.Detail, &e.Recorded); err != nil {
			return nil, fmt.Errorf("scan job event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repo) queryJobs(ctx context.Context, sql string, args ...any) ([]models.Job, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func scanJob(row pgx.Row) (models.Job, error) {
	var job models.Job
	var started, completed pgtype.Timestamptz
	err := row.Scan(&job.ID, &job.WorkItemID, &job.PrinterID, &job.PrinterTypeID, &job.BatchNumber,
		&job.PiecesInBatch, &job.EstimatedMinutes, &job.Status, &job.Position, &job.GcodeFilename,
		&job.ScheduledStart, &started, &completed, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return models.Job{}, err
	}
	if !job.Status.Valid() {
		return models.Job{}, fmt.Errorf("job %s: unknown status %q", job.ID, job.Status)
	}
	job.StartedAt = timePtr(started)
	job.CompletedAt = timePtr(completed)
	return job, nil
}

func execBatch(ctx context.Context, q querier, b *pgx.Batch, what string) error {
	br := q.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("%s: %w", what, err)
		}
	}
	return br.Close()
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}

func intPtr(v pgtype.Int4) *int {
	if v.Valid {
		n := int(v.Int32)
		return &n
	}
	return nil
}

func floatPtr(v pgtype.Float8) *float64 {
	if v.Valid {
		return &v.Float64
	}
	return nil
}

func timePtr(v pgtype.Timestamptz) *time.Time {
	if v.Valid {
		return &v.Time
	}
	return nil
}
