package scheduler_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"print-scheduler/internal/models"
	"print-scheduler/internal/scheduler"
	"print-scheduler/internal/testsupport"
)

func lifecycleFixture(t *testing.T) (*testsupport.MemStore, *scheduler.Service) {
	t.Helper()
	store := testsupport.NewMemStore()
	store.AddPrinter("A", "x1c")
	store.AddPrinter("B", "x1c")
	item := newItem("item-1", 10, 3, 60, "x1c")
	item.Completed = 8
	store.AddItem(item)
	store.AddJob(models.Job{ID: "j1", WorkItemID: "item-1", PrinterID: "A", PiecesInBatch: 3, Status: models.StatusQueued, Position: 0})
	store.AddJob(models.Job{ID: "j2", WorkItemID: "item-1", PrinterID: "A", PiecesInBatch: 3, Status: models.StatusQueued, Position: 1})
	store.AddJob(models.Job{ID: "j3", WorkItemID: "item-1", PrinterID: "A", PiecesInBatch: 1, Status: models.StatusQueued, Position: 2})
	return store, newService(t, store)
}

func TestStartThenCompleteClampsCompleted(t *testing.T) {
	ctx := context.Background()
	store, svc := lifecycleFixture(t)

	job, err := svc.Start(ctx, "j1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if job.Status != models.StatusPrinting || job.StartedAt == nil || !job.StartedAt.Equal(t0) {
		t.Fatalf("unexpected started job %+v", job)
	}
	res, err := svc.Complete(ctx, "j1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.ItemCompleted != 10 || store.Item("item-1").Completed != 10 {
		t.Fatalf("completed = %d, want 10", res.ItemCompleted)
	}
	if got := store.Job("j1"); got.Status != models.StatusDone || got.CompletedAt == nil {
		t.Fatalf("job not done: %+v", got)
	}
}

func TestLifecycleRejectsInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	store, svc := lifecycleFixture(t)

	if _, err := svc.Complete(ctx, "j1"); !errors.Is(err, scheduler.ErrInvalidTransition) {
		t.Fatalf("complete of queued job: %v", err)
	}
	if _, err := svc.Start(ctx, "j1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Start(ctx, "j1"); !errors.Is(err, scheduler.ErrInvalidTransition) {
		t.Fatalf("double start: %v", err)
	}
	if _, err := svc.Complete(ctx, "j1"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := svc.Cancel(ctx, "j1"); !errors.Is(err, scheduler.ErrInvalidTransition) {
		t.Fatalf("cancel of done job: %v", err)
	}
	if _, err := svc.Start(ctx, "missing"); !errors.Is(err, scheduler.ErrNotFound) {
		t.Fatalf("start of unknown job: %v", err)
	}
	if store.Item("item-1").Completed != 10 {
		t.Fatalf("failed transitions changed the item")
	}
}

func TestCancelIsIdempotentAndKeepsPositions(t *testing.T) {
	ctx := context.Background()
	store, svc := lifecycleFixture(t)

	for i := 0; i < 2; i++ {
		job, err := svc.Cancel(ctx, "j2")
		if err != nil {
			t.Fatalf("cancel %d: %v", i, err)
		}
		if job.Status != models.StatusCancelled {
			t.Fatalf("status %s", job.Status)
		}
	}
	if store.Job("j3").Position != 2 || store.Job("j1").Position != 0 {
		t.Fatalf("cancel reindexed siblings")
	}
	if store.Item("item-1").Completed != 8 {
		t.Fatalf("cancel changed completed count")
	}
	events := 0
	for _, e := range store.Events() {
		if e.JobID == "j2" && e.Event == string(models.StatusCancelled) {
			events++
		}
	}
	if events != 1 {
		t.Fatalf("recorded %d cancel events, want 1", events)
	}
}

func TestCancelPrintingJob(t *testing.T) {
	ctx := context.Background()
	_, svc := lifecycleFixture(t)
	if _, err := svc.Start(ctx, "j1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	job, err := svc.Cancel(ctx, "j1")
	if err != nil || job.Status != models.StatusCancelled {
		t.Fatalf("cancel printing job: %+v %v", job, err)
	}
}

func TestReassign(t *testing.T) {
	ctx := context.Background()
	store, svc := lifecycleFixture(t)

	job, err := svc.Reassign(ctx, "j2", "B")
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if job.PrinterID != "B" || store.Job("j2").PrinterID != "B" || store.Job("j2").Position != 1 {
		t.Fatalf("unexpected job after reassign %+v", store.Job("j2"))
	}
	if _, err := svc.Reassign(ctx, "j2", "Z"); !errors.Is(err, scheduler.ErrNotFound) {
		t.Fatalf("reassign to unknown printer: %v", err)
	}
	if _, err := svc.Cancel(ctx, "j3"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Reassign(ctx, "j3", "B"); !errors.Is(err, scheduler.ErrInvalidTransition) {
		t.Fatalf("reassign of cancelled job: %v", err)
	}
}

func TestReorder(t *testing.T) {
	ctx := context.Background()
	store, svc := lifecycleFixture(t)
	if _, err := svc.Start(ctx, "j2"); err != nil {
		t.Fatalf("start: %v", err)
	}

	jobs, err := svc.Reorder(ctx, "A", []string{"j3", "j1"})
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	var ids []string
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	if !slices.Equal(ids, []string{"j2", "j3", "j1"}) {
		t.Fatalf("order = %v", ids)
	}
	for i, id := range ids {
		if store.Job(id).Position != i {
			t.Fatalf("job %s position %d, want %d", id, store.Job(id).Position, i)
		}
	}

	bad := [][]string{
		{"j3"},
		{"j3", "j3"},
		{"j3", "j2"},
		{"j3", "j1", "nope"},
	}
	for _, order := range bad {
		if _, err := svc.Reorder(ctx, "A", order); !errors.Is(err, scheduler.ErrInvalidReorder) {
			t.Fatalf("reorder %v: expected ErrInvalidReorder, got %v", order, err)
		}
	}
	if store.Job("j3").Position != 1 {
		t.Fatalf("rejected reorder changed positions")
	}
	if _, err := svc.Reorder(ctx, "Z", nil); !errors.Is(err, scheduler.ErrNotFound) {
		t.Fatalf("reorder of unknown printer: %v", err)
	}
}

func TestQueueViews(t *testing.T) {
	ctx := context.Background()
	_, svc := lifecycleFixture(t)
	if _, err := svc.Cancel(ctx, "j2"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	queue, err := svc.PrinterQueue(ctx, "A")
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(queue) != 2 || queue[0].ID != "j1" || queue[1].ID != "j3" {
		t.Fatalf("unexpected queue %+v", queue)
	}
	all, err := svc.ListItemJobs(ctx, "item-1")
	if err != nil || len(all) != 3 {
		t.Fatalf("item jobs: %d %v", len(all), err)
	}
	if _, err := svc.PrinterQueue(ctx, "Z"); !errors.Is(err, scheduler.ErrNotFound) {
		t.Fatalf("queue of unknown printer: %v", err)
	}
}
