package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"directory-gateway/middleware/ratelimit/application"
	"directory-gateway/middleware/ratelimit/domain"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type KeyFunc func(r *http.Request) string

type Options struct {
	Guard               domain.Guard
	Stats               domain.StatsStore
	Logger              *zap.Logger
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RejectStatus        int
	RetryAfter          time.Duration
	FailOpen            bool
	AddRateLimitHeaders bool

	// Route rotula stats e logs (ex: "GET /employees/"). Vazio => Method + Path.
	Route string
}

// windowInfo é implementado pelos guards que conhecem a própria janela.
type windowInfo interface {
	Window() time.Duration
}

// UnavailableMessage é o corpo do 503 quando o guard falha em modo fail-closed.
const UnavailableMessage = "Rate limiter unavailable. Try again later."

type rejectBody struct {
	Detail string `json:"detail"`
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		// fallback: RemoteAddr
		addr := strings.TrimSpace(r.RemoteAddr)
		host, _, err := net.SplitHostPort(addr)
		if err == nil && host != "" {
			return host
		}
		if addr != "" {
			return addr
		}
		return string(domain.UnknownKey)
	}
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	var window time.Duration
	if wi, ok := opts.Guard.(windowInfo); ok {
		window = wi.Window()
	}

	svc := application.Service{
		Guard:      opts.Guard,
		RetryAfter: opts.RetryAfter,
		FailOpen:   opts.FailOpen,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := domain.Key(opts.KeyFn(r)).OrUnknown()
			route := opts.Route
			if route == "" {
				route = r.Method + " " + r.URL.Path
			}

			dec, err := svc.Decide(r.Context(), key)
			if err != nil {
				opts.Logger.Error("rate limit guard failed",
					zap.String("key", string(key)),
					zap.String("route", route),
					zap.Bool("fail_open", opts.FailOpen),
					zap.String("request_id", chimw.GetReqID(r.Context())),
					zap.Error(err))

				// falha do guard com fail-closed não é throttle: 503 próprio,
				// sem warn de excedido e sem contar como negado.
				if !opts.FailOpen {
					w.Header().Set("Retry-After", formatInt(retryAfterSeconds(dec.RetryAfter)))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusServiceUnavailable)
					_ = json.NewEncoder(w).Encode(rejectBody{Detail: UnavailableMessage})
					return
				}
			}

			if opts.Stats != nil {
				serr := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     key,
					Allowed: dec.Allowed,
					Method:  r.Method,
					Path:    r.URL.Path,
					Route:   opts.Route,
					At:      time.Now(),
				})
				if serr != nil {
					opts.Logger.Debug("rate limit stats failed", zap.Error(serr))
				}
			}

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", string(key))
				if dec.Limit > 0 {
					w.Header().Set("X-RateLimit-Limit", formatInt(dec.Limit))
					w.Header().Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
				}
			}

			if !dec.Allowed {
				opts.Logger.Warn("rate limit exceeded",
					zap.String("key", string(key)),
					zap.String("route", route),
					zap.Int("limit", dec.Limit),
					zap.Duration("retry_after", dec.RetryAfter),
					zap.String("request_id", chimw.GetReqID(r.Context())))

				w.Header().Set("Retry-After", formatInt(retryAfterSeconds(dec.RetryAfter)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(opts.RejectStatus)
				_ = json.NewEncoder(w).Encode(rejectBody{Detail: RejectMessage(dec.Limit, window)})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
