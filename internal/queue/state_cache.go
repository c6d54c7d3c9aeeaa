package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"print-scheduler/internal/models"
)

// StateCache remembers the last applied state of each printer so the worker
// can detect transitions.
type StateCache struct {
	client *redis.Client
	prefix string
}

func NewStateCache(client *redis.Client) *StateCache {
	return &StateCache{client: client, prefix: "printer-state:"}
}

// Get returns the last stored state, or nil when none was recorded.
func (c *StateCache) Get(ctx context.Context, printerID string) (*models.PrinterState, error) {
	raw, err := c.client.Get(ctx, c.prefix+printerID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st models.PrinterState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("unmarshal printer state: %w", err)
	}
	return &st, nil
}

// Set stores state as the printer's latest.
func (c *StateCache) Set(ctx context.Context, state models.PrinterState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal printer state: %w", err)
	}
	return c.client.Set(ctx, c.prefix+state.PrinterID, raw, 0).Err()
}
