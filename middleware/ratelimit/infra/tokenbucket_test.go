package infra

import (
	"context"
	"testing"
	"time"

	"directory-gateway/middleware/ratelimit/domain"
)

func TestTokenBucket_BurstThenRejects(t *testing.T) {
	clock := newFakeClock()
	b := NewTokenBucket(3, time.Minute, WithBucketClock(clock.Now))

	for i := 0; i < 3; i++ {
		dec, err := b.Check(context.Background(), domain.Key("k"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !dec.Allowed {
			t.Fatalf("expected request %d to be allowed", i+1)
		}
	}

	dec, _ := b.Check(context.Background(), domain.Key("k"))
	if dec.Allowed {
		t.Fatalf("expected 4th immediate request to be rejected")
	}
	if dec.RetryAfter <= 0 || dec.RetryAfter > 21*time.Second {
		t.Fatalf("expected RetryAfter in (0, 21s], got %s", dec.RetryAfter)
	}
}

func TestTokenBucket_RefillsOverTime(t *testing.T) {
	clock := newFakeClock()
	b := NewTokenBucket(3, time.Minute, WithBucketClock(clock.Now))

	for i := 0; i < 3; i++ {
		_, _ = b.Check(context.Background(), "k")
	}
	// 3/min => um token a cada 20s
	clock.Advance(21 * time.Second)
	if dec, _ := b.Check(context.Background(), "k"); !dec.Allowed {
		t.Fatalf("expected request to be allowed after refill")
	}
}

func TestTokenBucket_RateFromWindow(t *testing.T) {
	b := NewTokenBucket(30, time.Minute)
	if b.RPS() != 0.5 {
		t.Fatalf("expected 0.5 rps, got %v", b.RPS())
	}
	if b.Burst() != 30 {
		t.Fatalf("expected burst 30, got %d", b.Burst())
	}
}

func TestTokenBucket_CleanupRemovesIdleEntries(t *testing.T) {
	clock := newFakeClock()
	b := NewTokenBucket(10, time.Minute, WithBucketClock(clock.Now), WithIdleTTL(time.Minute), WithCleanupEvery(0))

	_, _ = b.Check(context.Background(), "idle")
	clock.Advance(90 * time.Second)
	_, _ = b.Check(context.Background(), "busy")

	if removed := b.Cleanup(); removed != 1 {
		t.Fatalf("expected 1 removed entry, got %d", removed)
	}
	if b.Tracked() != 1 {
		t.Fatalf("expected 1 tracked entry, got %d", b.Tracked())
	}
}
