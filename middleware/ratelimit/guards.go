package ratelimit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"directory-gateway/middleware/ratelimit/domain"
	"directory-gateway/middleware/ratelimit/infra"

	"github.com/redis/go-redis/v9"
)

const (
	AlgorithmSliding = "sliding"
	AlgorithmToken   = "token"
	AlgorithmRedis   = "redis"
)

type GuardConfig struct {
	// Algorithm: "sliding" (padrão), "token" ou "redis".
	Algorithm     string
	SweepInterval time.Duration

	Redis       redis.Scripter
	RedisPrefix string

	// Janitor, se não nil, liga a limpeza periódica em background até ser
	// encerrado. Sem ele o sliding window ainda varre de forma oportunista.
	Janitor infra.DoneContext

	Clock func() time.Time
}

// NewGuardFactory devolve a fábrica de guards do algoritmo configurado.
func NewGuardFactory(cfg GuardConfig) (GuardFactory, error) {
	algo := strings.ToLower(strings.TrimSpace(cfg.Algorithm))
	switch algo {
	case "", AlgorithmSliding:
		return func(p Policy) (domain.Guard, error) {
			w := infra.NewSlidingWindow(p.MaxRequests,
				infra.WithWindow(p.Window),
				infra.WithSweepInterval(cfg.SweepInterval),
				infra.WithClock(cfg.Clock),
			)
			if cfg.Janitor != nil {
				w.StartJanitor(cfg.Janitor)
			}
			return w, nil
		}, nil

	case AlgorithmToken:
		return func(p Policy) (domain.Guard, error) {
			b := infra.NewTokenBucket(p.MaxRequests, p.Window, infra.WithBucketClock(cfg.Clock))
			if cfg.Janitor != nil {
				b.StartJanitor(cfg.Janitor)
			}
			return b, nil
		}, nil

	case AlgorithmRedis:
		if cfg.Redis == nil {
			return nil, errors.New("redis algorithm requires a redis client")
		}
		prefix := strings.Trim(cfg.RedisPrefix, ":")
		if prefix == "" {
			prefix = "ratelimit:window"
		}
		return func(p Policy) (domain.Guard, error) {
			return infra.NewRedisWindow(cfg.Redis, p.MaxRequests,
				infra.WithRedisPrefix(prefix+":"+routeSlug(p)),
				infra.WithRedisWindow(p.Window),
				infra.WithRedisClock(cfg.Clock),
			), nil
		}, nil
	}
	return nil, fmt.Errorf("unknown rate limit algorithm %q", cfg.Algorithm)
}

// routeSlug transforma o rótulo da política num pedaço de chave Redis.
func routeSlug(p Policy) string {
	r := strings.NewReplacer(" ", "_", "/", ".", "{", "", "}", "", ":", "")
	slug := strings.Trim(r.Replace(p.Label()), "._")
	if slug == "" {
		return "root"
	}
	return slug
}
