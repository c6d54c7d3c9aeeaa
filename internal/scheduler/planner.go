package scheduler

// PlanBatches splits quantity into printer runs of at most batchSize pieces.
// Every batch but the last is full; the last holds the remainder.
// A batchSize below 1 is treated as 1; a quantity below 1 yields no batches.
func PlanBatches(quantity, batchSize int) []int {
	if quantity < 1 {
		return nil
	}
	if batchSize < 1 {
		batchSize = 1
	}
	total := (quantity + batchSize - 1) / batchSize
	out := make([]int, total)
	for b := 0; b < total; b++ {
		out[b] = min(batchSize, quantity-b*batchSize)
	}
	return out
}
