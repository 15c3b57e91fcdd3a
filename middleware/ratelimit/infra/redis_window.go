package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"directory-gateway/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// windowScript executa poda + contagem + registro de forma atômica.
//
// KEYS[1] = zset da chave
// ARGV    = now(ms), windowStart(ms), maxRequests, ttl(ms), member
//
// Retorno: {allowed(0|1), count, oldest(ms)}.
var windowScript = redis.NewScript(`
local key = KEYS[1]
local maxRequests = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. ARGV[2])
local count = redis.call('ZCARD', key)
if count >= maxRequests then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local oldestScore = 0
  if oldest[2] then
    oldestScore = tonumber(oldest[2])
  end
  return {0, count, oldestScore}
end

redis.call('ZADD', key, ARGV[1], ARGV[5])
redis.call('PEXPIRE', key, ARGV[4])
return {1, count + 1, 0}
`)

// RedisWindow é o mesmo algoritmo do SlidingWindow, mas com o estado em
// Redis (um sorted set por chave, score = instante em ms). Serve para
// compartilhar a cota entre várias instâncias do gateway.
//
// O TTL de cada zset é a própria janela, então chaves inativas expiram sem
// varredura.
type RedisWindow struct {
	rdb redis.Scripter

	prefix      string
	maxRequests int
	window      time.Duration
	now         func() time.Time
}

type RedisWindowOption func(*RedisWindow)

func WithRedisPrefix(prefix string) RedisWindowOption {
	return func(w *RedisWindow) {
		if p := strings.Trim(prefix, ":"); p != "" {
			w.prefix = p
		}
	}
}

func WithRedisWindow(d time.Duration) RedisWindowOption {
	return func(w *RedisWindow) {
		if d > 0 {
			w.window = d
		}
	}
}

func WithRedisClock(now func() time.Time) RedisWindowOption {
	return func(w *RedisWindow) {
		if now != nil {
			w.now = now
		}
	}
}

func NewRedisWindow(rdb redis.Scripter, maxRequests int, opts ...RedisWindowOption) *RedisWindow {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	w := &RedisWindow{
		rdb:         rdb,
		prefix:      "ratelimit:window",
		maxRequests: maxRequests,
		window:      DefaultWindow,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *RedisWindow) MaxRequests() int      { return w.maxRequests }
func (w *RedisWindow) Window() time.Duration { return w.window }

// Check implementa domain.Guard. Erros de Redis são devolvidos sem decisão
// de admissão; a camada application decide fail-open ou fail-closed.
func (w *RedisWindow) Check(ctx context.Context, key domain.Key) (domain.Decision, error) {
	if w == nil || w.rdb == nil {
		return domain.Decision{}, fmt.Errorf("redis window: no client")
	}

	now := w.now()
	nowMs := now.UnixMilli()
	windowMs := w.window.Milliseconds()

	res, err := windowScript.Run(ctx, w.rdb,
		[]string{w.prefix + ":" + string(key.OrUnknown())},
		nowMs, nowMs-windowMs, w.maxRequests, windowMs, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return domain.Decision{}, fmt.Errorf("redis window: %w", err)
	}
	if len(res) != 3 {
		return domain.Decision{}, fmt.Errorf("redis window: unexpected reply %v", res)
	}

	dec := domain.Decision{Limit: w.maxRequests}
	if res[0] == 1 {
		dec.Allowed = true
		dec.Remaining = w.maxRequests - int(res[1])
		return dec, nil
	}
	if oldest := res[2]; oldest > 0 {
		dec.RetryAfter = time.Duration(oldest+windowMs-nowMs) * time.Millisecond
	}
	return dec, nil
}
