package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"print-scheduler/internal/config"
	"print-scheduler/internal/models"
)

// Event is a printer state snapshot waiting to be applied to the print queue.
type Event struct {
	ID       string              `json:"id"`
	State    models.PrinterState `json:"state"`
	Attempts int                 `json:"attempts"`
}

// DeadLetter is an event that exhausted its attempts.
type DeadLetter struct {
	Event  Event     `json:"event"`
	Reason string    `json:"reason"`
	Failed time.Time `json:"failed_at"`
}

// RedisQueue coordinates ready, in-flight, and scheduled printer events in Redis.
type RedisQueue struct {
	client        *redis.Client
	readyKey      string
	inflightKey   string
	scheduledKey  string
	eventPrefix   string
	visibilityTTL time.Duration
	dlqKey        string
}

// NewClient opens the Redis client shared by the queue, the state cache and the lock.
func NewClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// NewRedisQueue builds a queue over client from config.
func NewRedisQueue(client *redis.Client, cfg config.Config) *RedisQueue {
	visibility := cfg.VisibilityTimeout
	if visibility == 0 {
		visibility = 30 * time.Second
	}
	base := cfg.EventQueueKey
	if base == "" {
		base = "printer-events"
	}
	dlq := cfg.EventDLQKey
	if dlq == "" {
		dlq = base + ":dlq"
	}
	return &RedisQueue{
		client:        client,
		readyKey:      base + ":ready",
		inflightKey:   base + ":inflight",
		scheduledKey:  base + ":scheduled",
		eventPrefix:   base + ":event:",
		visibilityTTL: visibility,
		dlqKey:        dlq,
	}
}

func (q *RedisQueue) eventKey(id string) string {
	return q.eventPrefix + id
}

// Push stores a snapshot and appends it to the ready list.
func (q *RedisQueue) Push(ctx context.Context, state models.PrinterState) (Event, error) {
	ev := Event{ID: uuid.New().String(), State: state}
	payload, err := json.Marshal(state)
	if err != nil {
		return Event{}, fmt.Errorf("marshal printer state: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.eventKey(ev.ID), "state", payload, "attempts", 0)
	pipe.RPush(ctx, q.readyKey, ev.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// DequeueWithLease pops the oldest ready event and leases it for the visibility
// timeout. ok is false when nothing is ready.
func (q *RedisQueue) DequeueWithLease(ctx context.Context) (Event, bool, error) {
	res, err := dequeueScript.Run(ctx, q.client, []string{q.readyKey, q.inflightKey}, time.Now().Add(q.visibilityTTL).UnixMilli()).Result()
	if errors.Is(err, redis.Nil) {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, err
	}
	id, ok := res.(string)
	if !ok {
		return Event{}, false, fmt.Errorf("unexpected type from dequeue script: %T", res)
	}
	ev, err := q.load(ctx, id)
	if err != nil {
		// Payload is gone; drop the lease so the id does not cycle forever.
		_ = q.Ack(ctx, id)
		return Event{}, false, err
	}
	return ev, true, nil
}

func (q *RedisQueue) load(ctx context.Context, id string) (Event, error) {
	fields, err := q.client.HGetAll(ctx, q.eventKey(id)).Result()
	if err != nil {
		return Event{}, err
	}
	raw, ok := fields["state"]
	if !ok {
		return Event{}, fmt.Errorf("event %s has no payload", id)
	}
	ev := Event{ID: id}
	if err := json.Unmarshal([]byte(raw), &ev.State); err != nil {
		return Event{}, fmt.Errorf("unmarshal event %s: %w", id, err)
	}
	ev.Attempts, _ = strconv.Atoi(fields["attempts"])
	return ev, nil
}

// ExtendLease pushes the visibility deadline forward for an in-flight event.
func (q *RedisQueue) ExtendLease(ctx context.Context, id string, extension time.Duration) error {
	return q.client.ZAdd(ctx, q.inflightKey, redis.Z{
		Score:  float64(time.Now().Add(extension).UnixMilli()),
		Member: id,
	}).Err()
}

// Ack removes an event from in-flight tracking along with its payload.
func (q *RedisQueue) Ack(ctx context.Context, id string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey, id)
	pipe.Del(ctx, q.eventKey(id))
	_, err := pipe.Exec(ctx)
	return err
}

// Retry releases the lease and schedules the event for runAt with its
// attempt count incremented.
func (q *RedisQueue) Retry(ctx context.Context, ev Event, runAt time.Time) error {
	pipe := q.client.TxPipeline()
	pipe.HIncrBy(ctx, q.eventKey(ev.ID), "attempts", 1)
	pipe.ZRem(ctx, q.inflightKey, ev.ID)
	pipe.ZAdd(ctx, q.scheduledKey, redis.Z{Score: float64(runAt.UnixMilli()), Member: ev.ID})
	_, err := pipe.Exec(ctx)
	return err
}

// PromoteScheduled moves due retries into the ready list. It returns how many were promoted.
func (q *RedisQueue) PromoteScheduled(ctx context.Context, now time.Time, limit int64) (int, error) {
	ids, err := q.dueMembers(ctx, q.scheduledKey, now, limit)
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, q.scheduledKey, id)
		pipe.RPush(ctx, q.readyKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// RequeueExpired reclaims leases that timed out, re-enqueuing them at the front.
func (q *RedisQueue) RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	ids, err := q.dueMembers(ctx, q.inflightKey, now, limit)
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	pipe := q.client.TxPipeline()
	for i := len(ids) - 1; i >= 0; i-- {
		pipe.ZRem(ctx, q.inflightKey, ids[i])
		pipe.LPush(ctx, q.readyKey, ids[i])
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func (q *RedisQueue) dueMembers(ctx context.Context, key string, now time.Time, limit int64) ([]string, error) {
	return q.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    strconv.FormatInt(now.UnixMilli(), 10),
		Offset: 0,
		Count:  limit,
	}).Result()
}

// DLQPush records a failed event on the dead-letter list and acks it.
func (q *RedisQueue) DLQPush(ctx context.Context, ev Event, reason string) error {
	entry, err := json.Marshal(DeadLetter{Event: ev, Reason: reason, Failed: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.RPush(ctx, q.dlqKey, entry)
	pipe.ZRem(ctx, q.inflightKey, ev.ID)
	pipe.Del(ctx, q.eventKey(ev.ID))
	_, err = pipe.Exec(ctx)
	return err
}

// DLQPeek reads the oldest dead-lettered events.
func (q *RedisQueue) DLQPeek(ctx context.Context, count int64) ([]DeadLetter, error) {
	raw, err := q.client.LRange(ctx, q.dlqKey, 0, count-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]DeadLetter, 0, len(raw))
	for _, r := range raw {
		var d DeadLetter
		if err := json.Unmarshal([]byte(r), &d); err != nil {
			return nil, fmt.Errorf("unmarshal dead letter: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}

// ReadyDepth returns the length of the ready list.
func (q *RedisQueue) ReadyDepth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.readyKey).Result()
}

// InFlight returns the number of leased events.
func (q *RedisQueue) InFlight(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.inflightKey).Result()
}

var dequeueScript = redis.NewScript(`
local id = redis.call('LPOP', KEYS[1])
if id then
  redis.call('ZADD', KEYS[2], ARGV[1], id)
  return id
end
return nil
`)
