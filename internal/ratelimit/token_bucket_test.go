package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestTokenBucket(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bucket := NewTokenBucket(client, 2, 1, time.Minute)
	clock := time.Unix(1_700_000_000, 0)
	bucket.now = func() time.Time { return clock }

	for i := 0; i < 2; i++ {
		allowed, err := bucket.Allow(ctx, "A")
		if err != nil || !allowed {
			t.Fatalf("expected token %d allowed got allowed=%v err=%v", i+1, allowed, err)
		}
	}
	if allowed, _ := bucket.Allow(ctx, "A"); allowed {
		t.Fatalf("expected third token to be rejected")
	}
	if allowed, _ := bucket.Allow(ctx, "B"); !allowed {
		t.Fatalf("printers must not share a bucket")
	}

	// The script takes time from the caller, so refill is driven by the clock.
	clock = clock.Add(1500 * time.Millisecond)
	if allowed, _ := bucket.Allow(ctx, "A"); !allowed {
		t.Fatalf("expected refilled token")
	}
	if allowed, _ := bucket.Allow(ctx, "A"); allowed {
		t.Fatalf("expected only one refilled token")
	}
}

func TestTokenBucketDisabled(t *testing.T) {
	bucket := NewTokenBucket(nil, 0, 0, 0)
	if allowed, err := bucket.Allow(context.Background(), "A"); err != nil || !allowed {
		t.Fatalf("disabled bucket should allow, got %v %v", allowed, err)
	}
}
