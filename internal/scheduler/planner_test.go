package scheduler_test

import (
	"slices"
	"testing"

	"print-scheduler/internal/scheduler"
)

func TestPlanBatches(t *testing.T) {
	cases := []struct {
		quantity, batchSize int
		want                []int
	}{
		{10, 3, []int{3, 3, 3, 1}},
		{5, 5, []int{5}},
		{4, 1, []int{1, 1, 1, 1}},
		{1, 10, []int{1}},
		{7, 0, []int{1, 1, 1, 1, 1, 1, 1}},
		{0, 3, nil},
	}
	for _, tc := range cases {
		got := scheduler.PlanBatches(tc.quantity, tc.batchSize)
		if !slices.Equal(got, tc.want) {
			t.Fatalf("PlanBatches(%d, %d) = %v, want %v", tc.quantity, tc.batchSize, got, tc.want)
		}
	}
}

func TestPlanBatchesCoversQuantity(t *testing.T) {
	for q := 1; q <= 40; q++ {
		for b := 1; b <= 12; b++ {
			batches := scheduler.PlanBatches(q, b)
			if want := (q + b - 1) / b; len(batches) != want {
				t.Fatalf("q=%d b=%d: %d batches, want %d", q, b, len(batches), want)
			}
			sum := 0
			for i, p := range batches {
				if p < 1 || p > b {
					t.Fatalf("q=%d b=%d: batch %d has %d pieces", q, b, i+1, p)
				}
				if i < len(batches)-1 && p != b {
					t.Fatalf("q=%d b=%d: non-final batch %d is partial", q, b, i+1)
				}
				sum += p
			}
			if sum != q {
				t.Fatalf("q=%d b=%d: pieces sum to %d", q, b, sum)
			}
		}
	}
}
