package infra

import (
	"context"
	"math"
	"sync"
	"time"

	"directory-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// TokenBucket é um guard alternativo baseado em token-bucket (x/time/rate)
// com um limiter por chave e limpeza de chaves ociosas.
//
// maxRequests por window vira rate = maxRequests/window e burst = maxRequests:
// a rajada inicial é a mesma do SlidingWindow, mas a recarga é contínua.
type TokenBucket struct {
	mu           sync.Mutex
	entries      map[string]*bucketEntry
	limit        rate.Limit
	burst        int
	window       time.Duration
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type bucketEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type BucketOption func(*TokenBucket)

func WithIdleTTL(d time.Duration) BucketOption {
	return func(b *TokenBucket) { b.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) BucketOption {
	return func(b *TokenBucket) { b.cleanupEvery = d }
}

func WithBucketClock(now func() time.Time) BucketOption {
	return func(b *TokenBucket) {
		if now != nil {
			b.now = now
		}
	}
}

func NewTokenBucket(maxRequests int, window time.Duration, opts ...BucketOption) *TokenBucket {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	b := &TokenBucket{
		entries:      make(map[string]*bucketEntry),
		limit:        rate.Limit(float64(maxRequests) / window.Seconds()),
		burst:        maxRequests,
		window:       window,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *TokenBucket) RPS() float64                { return float64(b.limit) }
func (b *TokenBucket) Burst() int                  { return b.burst }
func (b *TokenBucket) Window() time.Duration       { return b.window }
func (b *TokenBucket) CleanupEvery() time.Duration { return b.cleanupEvery }

// Check implementa domain.Guard. Nunca retorna erro.
func (b *TokenBucket) Check(_ context.Context, key domain.Key) (domain.Decision, error) {
	now := b.now()
	lim := b.limiter(string(key.OrUnknown()), now)

	dec := domain.Decision{Limit: b.burst}
	if lim.AllowN(now, 1) {
		dec.Allowed = true
		dec.Remaining = int(math.Floor(lim.TokensAt(now)))
		return dec, nil
	}

	missing := 1 - lim.TokensAt(now)
	if b.limit > 0 && missing > 0 {
		dec.RetryAfter = time.Duration(missing / float64(b.limit) * float64(time.Second))
	}
	return dec, nil
}

func (b *TokenBucket) limiter(key string, now time.Time) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ent, ok := b.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(b.limit, b.burst)
	b.entries[key] = &bucketEntry{lim: lim, lastSeen: now}
	return lim
}

// Cleanup remove chaves sem atividade há mais de idleTTL.
func (b *TokenBucket) Cleanup() int {
	cutoff := b.now().Add(-b.idleTTL)

	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for k, ent := range b.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(b.entries, k)
			removed++
		}
	}
	return removed
}

func (b *TokenBucket) Tracked() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (b *TokenBucket) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, b.cleanupEvery, func() { b.Cleanup() })
}
