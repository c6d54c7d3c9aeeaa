package scheduler

import (
	"slices"
	"time"

	"print-scheduler/internal/models"
	"print-scheduler/internal/schedule"
)

// Assignment places one planned batch on a printer.
type Assignment struct {
	BatchNumber    int
	Pieces         int
	PrinterID      string
	ScheduledStart time.Time
	Position       int
}

// Load is the outstanding work on the eligible printers when assignment starts.
// Printers missing from FreeAt are free now; missing from NextPosition start at 0.
type Load struct {
	FreeAt       map[string]time.Time
	NextPosition map[string]int
}

// Assign distributes batches greedily: each batch goes to the printer that is
// free earliest, ties going to the lowest printer id. Batches are taken in
// planner order and each occupies its printer for perBatchMinutes of calendar time.
func Assign(cal schedule.Calendar, now time.Time, batches []int, printerIDs []string, load Load, perBatchMinutes int) ([]Assignment, error) {
	if len(printerIDs) == 0 {
		return nil, ErrNoEligiblePrinter
	}
	ids := slices.Clone(printerIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	freeAt := make(map[string]time.Time, len(ids))
	next := make(map[string]int, len(ids))
	for _, id := range ids {
		freeAt[id] = now
		if t, ok := load.FreeAt[id]; ok {
			freeAt[id] = t
		}
		next[id] = load.NextPosition[id]
	}

	out := make([]Assignment, 0, len(batches))
	for i, pieces := range batches {
		chosen := ids[0]
		for _, id := range ids[1:] {
			if freeAt[id].Before(freeAt[chosen]) {
				chosen = id
			}
		}
		start := freeAt[chosen]
		out = append(out, Assignment{
			BatchNumber:    i + 1,
			Pieces:         pieces,
			PrinterID:      chosen,
			ScheduledStart: start,
			Position:       next[chosen],
		})
		next[chosen]++
		freeAt[chosen] = cal.AddWorkMinutes(start, perBatchMinutes)
	}
	return out, nil
}

// baselineLoad projects each printer's free-at instant from the estimated
// minutes of its active jobs and finds its next free queue position.
func baselineLoad(cal schedule.Calendar, now time.Time, printerIDs []string, active []models.Job) Load {
	minutes := make(map[string]int, len(printerIDs))
	maxPos := make(map[string]int, len(printerIDs))
	for _, id := range printerIDs {
		maxPos[id] = -1
	}
	for _, j := range active {
		if _, ok := maxPos[j.PrinterID]; !ok || !j.Status.Active() {
			continue
		}
		minutes[j.PrinterID] += j.EstimatedMinutes
		maxPos[j.PrinterID] = max(maxPos[j.PrinterID], j.Position)
	}
	load := Load{
		FreeAt:       make(map[string]time.Time, len(printerIDs)),
		NextPosition: make(map[string]int, len(printerIDs)),
	}
	for _, id := range printerIDs {
		load.FreeAt[id] = cal.AddWorkMinutes(now, minutes[id])
		load.NextPosition[id] = maxPos[id] + 1
	}
	return load
}
