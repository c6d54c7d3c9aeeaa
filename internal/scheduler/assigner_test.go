package scheduler_test

import (
	"errors"
	"testing"
	"time"

	"print-scheduler/internal/schedule"
	"print-scheduler/internal/scheduler"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestAssignSpreadsAcrossIdlePrinters(t *testing.T) {
	got, err := scheduler.Assign(schedule.Continuous{}, t0, []int{1, 1, 1, 1}, []string{"B", "A"}, scheduler.Load{}, 60)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	want := []scheduler.Assignment{
		{BatchNumber: 1, Pieces: 1, PrinterID: "A", ScheduledStart: t0, Position: 0},
		{BatchNumber: 2, Pieces: 1, PrinterID: "B", ScheduledStart: t0, Position: 0},
		{BatchNumber: 3, Pieces: 1, PrinterID: "A", ScheduledStart: t0.Add(time.Hour), Position: 1},
		{BatchNumber: 4, Pieces: 1, PrinterID: "B", ScheduledStart: t0.Add(time.Hour), Position: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d assignments, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("assignment %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestAssignHonorsExistingLoad(t *testing.T) {
	load := scheduler.Load{
		FreeAt:       map[string]time.Time{"A": t0.Add(3 * time.Hour)},
		NextPosition: map[string]int{"A": 4},
	}
	got, err := scheduler.Assign(schedule.Continuous{}, t0, []int{2, 2, 1}, []string{"A", "B"}, load, 90)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	wantPrinters := []string{"B", "B", "A"}
	wantStarts := []time.Time{t0, t0.Add(90 * time.Minute), t0.Add(3 * time.Hour)}
	wantPos := []int{0, 1, 4}
	for i, a := range got {
		if a.PrinterID != wantPrinters[i] || !a.ScheduledStart.Equal(wantStarts[i]) || a.Position != wantPos[i] {
			t.Fatalf("assignment %d = %+v", i, a)
		}
	}
}

func TestAssignStartsAreMonotonicPerPrinter(t *testing.T) {
	batches := scheduler.PlanBatches(23, 2)
	got, err := scheduler.Assign(schedule.DefaultOfficeHours(time.UTC), t0, batches, []string{"A", "B", "C"}, scheduler.Load{}, 45)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	last := map[string]scheduler.Assignment{}
	for _, a := range got {
		if prev, ok := last[a.PrinterID]; ok {
			if a.ScheduledStart.Before(prev.ScheduledStart) {
				t.Fatalf("printer %s went back in time: %v then %v", a.PrinterID, prev.ScheduledStart, a.ScheduledStart)
			}
			if a.Position != prev.Position+1 {
				t.Fatalf("printer %s positions not contiguous: %d then %d", a.PrinterID, prev.Position, a.Position)
			}
		}
		last[a.PrinterID] = a
	}
}

func TestAssignWithoutPrinters(t *testing.T) {
	_, err := scheduler.Assign(schedule.Continuous{}, t0, []int{1}, nil, scheduler.Load{}, 10)
	if !errors.Is(err, scheduler.ErrNoEligiblePrinter) {
		t.Fatalf("expected ErrNoEligiblePrinter, got %v", err)
	}
}
