package scheduler_test

import (
	"context"
	"testing"

	"print-scheduler/internal/models"
	"print-scheduler/internal/scheduler"
	"print-scheduler/internal/testsupport"
)

func state(gcode, file string) models.PrinterState {
	return models.PrinterState{PrinterID: "A", GcodeState: gcode, CurrentFile: file}
}

func trackerFixture(t *testing.T) (*testsupport.MemStore, *scheduler.Service) {
	t.Helper()
	store := testsupport.NewMemStore()
	store.AddPrinter("A", "x1c")
	store.AddItem(newItem("item-1", 4, 2, 30, "x1c"))
	store.AddJob(models.Job{ID: "j1", WorkItemID: "item-1", PrinterID: "A", PiecesInBatch: 2, Status: models.StatusQueued, Position: 0, GcodeFilename: "PRJ-3f9a1c-WallBracket-B1.3mf"})
	store.AddJob(models.Job{ID: "j2", WorkItemID: "item-1", PrinterID: "A", PiecesInBatch: 2, Status: models.StatusQueued, Position: 1, GcodeFilename: "PRJ-3f9a1c-WallBracket-B2.3mf"})
	return store, newService(t, store)
}

func TestTrackRunFinishCycle(t *testing.T) {
	ctx := context.Background()
	store, svc := trackerFixture(t)

	idle := state(models.GcodeIdle, "")
	running := state(models.GcodeRunning, "PRJ-3f9a1c-WallBracket-B1.3mf")
	res, err := svc.TrackPrinterState(ctx, &idle, running)
	if err != nil {
		t.Fatalf("track start: %v", err)
	}
	if res.Outcome != scheduler.TrackStarted || res.JobID != "j1" {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = svc.TrackPrinterState(ctx, &running, running)
	if err != nil || res.Outcome != scheduler.TrackNone {
		t.Fatalf("steady running: %+v %v", res, err)
	}

	res, err = svc.TrackPrinterState(ctx, &running, state(models.GcodeFinish, ""))
	if err != nil {
		t.Fatalf("track finish: %v", err)
	}
	if res.Outcome != scheduler.TrackCompleted || res.JobID != "j1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if store.Job("j1").Status != models.StatusDone || store.Item("item-1").Completed != 2 {
		t.Fatalf("completion not applied")
	}
}

func TestTrackFailureCancels(t *testing.T) {
	ctx := context.Background()
	store, svc := trackerFixture(t)
	if _, err := svc.Start(ctx, "j1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	running := state(models.GcodeRunning, "")
	res, err := svc.TrackPrinterState(ctx, &running, state(models.GcodeFailed, ""))
	if err != nil || res.Outcome != scheduler.TrackCancelled {
		t.Fatalf("track failure: %+v %v", res, err)
	}
	if store.Job("j1").Status != models.StatusCancelled {
		t.Fatalf("job not cancelled")
	}
}

func TestTrackSkipsForeignProjectFile(t *testing.T) {
	ctx := context.Background()
	store, svc := trackerFixture(t)
	idle := state(models.GcodeIdle, "")
	res, err := svc.TrackPrinterState(ctx, &idle, state(models.GcodeRunning, "PRJ-abcdef-Other-B1.3mf"))
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if res.Outcome != scheduler.TrackSkipped || store.Job("j1").Status != models.StatusQueued {
		t.Fatalf("expected skip, got %+v", res)
	}

	// Files outside the naming convention do not block auto-start.
	res, err = svc.TrackPrinterState(ctx, &idle, state(models.GcodeRunning, "calibration.gcode"))
	if err != nil || res.Outcome != scheduler.TrackStarted {
		t.Fatalf("expected start, got %+v %v", res, err)
	}
}

func TestTrackSkipsWhenAlreadyPrinting(t *testing.T) {
	ctx := context.Background()
	_, svc := trackerFixture(t)
	if _, err := svc.Start(ctx, "j1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	paused := state(models.GcodePause, "")
	res, err := svc.TrackPrinterState(ctx, &paused, state(models.GcodeRunning, ""))
	if err != nil || res.Outcome != scheduler.TrackSkipped || res.JobID != "j1" {
		t.Fatalf("expected skip for printing job, got %+v %v", res, err)
	}
}

func TestTrackWithoutPreviousState(t *testing.T) {
	_, svc := trackerFixture(t)
	res, err := svc.TrackPrinterState(context.Background(), nil, state(models.GcodeRunning, ""))
	if err != nil || res.Outcome != scheduler.TrackNone {
		t.Fatalf("expected no-op, got %+v %v", res, err)
	}
}
