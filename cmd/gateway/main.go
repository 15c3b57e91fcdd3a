package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"directory-gateway/middleware/ratelimit"
	"directory-gateway/middleware/ratelimit/domain"
	"directory-gateway/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := newLogger(cfg.logLevel, cfg.logDevelopment)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("gateway stopped", zap.Error(err))
	}
}

func run(cfg config, logger *zap.Logger) error {
	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		return errors.New("invalid UPSTREAM_URL: " + err.Error())
	}

	policies := ratelimit.DefaultPolicies()
	policies.Default.MaxRequests = cfg.rateMaxRequests
	policies.Default.Window = cfg.rateWindow
	if cfg.ratePolicyFile != "" {
		policies, err = ratelimit.LoadPolicies(cfg.ratePolicyFile)
		if err != nil {
			return err
		}
	}

	proxy := newProxy(target, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var rdb *redis.Client
	if cfg.rateAlgorithm == ratelimit.AlgorithmRedis || cfg.rateStatsEnabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancelPing()
		if err != nil {
			return errors.New("redis ping error: " + err.Error())
		}
	}

	memStats := infra.NewMemoryStatsStore()
	var statsStore domain.StatsStore = memStats
	if cfg.rateStatsEnabled {
		statsStore = infra.TeeStatsStore{memStats, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.rateStatsPrefix),
			infra.WithStatsTTL(cfg.rateStatsTTL),
			infra.WithStatsBucket(cfg.rateStatsBucket),
			infra.WithStatsTrackKeys(cfg.rateStatsTrackKeys),
		)}
	}

	guardCfg := ratelimit.GuardConfig{
		Algorithm:     cfg.rateAlgorithm,
		SweepInterval: cfg.rateSweepInterval,
		RedisPrefix:   cfg.redisPrefix,
	}
	if rdb != nil {
		guardCfg.Redis = rdb
	}
	if cfg.rateJanitor {
		guardCfg.Janitor = ctx
	}
	factory, err := ratelimit.NewGuardFactory(guardCfg)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.Recoverer)
	r.Get("/_gateway/stats", statsHandler(memStats))

	if cfg.rateEnabled {
		err = ratelimit.Mount(r, policies, proxy, factory, ratelimit.Options{
			Stats:               statsStore,
			Logger:              logger,
			KeyHeader:           cfg.rateKeyHeader,
			TrustXForwardedFor:  cfg.trustXFF,
			RejectStatus:        http.StatusTooManyRequests,
			RetryAfter:          cfg.retryAfter,
			FailOpen:            cfg.rateFailOpen,
			AddRateLimitHeaders: cfg.addHeaders,
		})
		if err != nil {
			return err
		}
	} else {
		r.NotFound(proxy.ServeHTTP)
		r.MethodNotAllowed(proxy.ServeHTTP)
	}

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening",
		zap.String("addr", cfg.listenAddr),
		zap.String("upstream", target.String()))
	logger.Info("rate limit",
		zap.Bool("enabled", cfg.rateEnabled),
		zap.String("algorithm", cfg.rateAlgorithm),
		zap.Int("default_max_requests", policies.Default.MaxRequests),
		zap.Duration("default_window", policies.Default.Window),
		zap.Int("routes", len(policies.Routes)),
		zap.String("key_header", cfg.rateKeyHeader),
		zap.Bool("trust_xff", cfg.trustXFF),
		zap.Bool("fail_open", cfg.rateFailOpen))
	logger.Info("rate stats",
		zap.Bool("redis", cfg.rateStatsEnabled),
		zap.String("bucket", cfg.rateStatsBucket),
		zap.Duration("ttl", cfg.rateStatsTTL),
		zap.Bool("track_keys", cfg.rateStatsTrackKeys))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newProxy(target *url.URL, logger *zap.Logger) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("proxy error",
			zap.String("path", r.URL.Path),
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}
	return proxy
}

func statsHandler(stats *infra.MemoryStatsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"total":    stats.Total(),
			"by_route": stats.ByRoute(),
		})
	}
}

func newLogger(level string, development bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if development {
		zcfg = zap.NewDevelopmentConfig()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

type config struct {
	listenAddr  string
	upstreamURL string

	rateEnabled       bool
	rateAlgorithm     string
	rateMaxRequests   int
	rateWindow        time.Duration
	rateSweepInterval time.Duration
	rateJanitor       bool
	ratePolicyFile    string
	rateKeyHeader     string
	trustXFF          bool
	retryAfter        time.Duration
	rateFailOpen      bool
	addHeaders        bool

	redisAddr     string
	redisPassword string
	redisDB       int
	redisPrefix   string

	rateStatsEnabled   bool
	rateStatsPrefix    string
	rateStatsTTL       time.Duration
	rateStatsBucket    string
	rateStatsTrackKeys bool

	logLevel       string
	logDevelopment bool
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")

	cfg.rateEnabled = getenvBoolDefault("RATE_ENABLED", true)
	cfg.rateAlgorithm = strings.ToLower(getenvDefault("RATE_ALGORITHM", ratelimit.AlgorithmSliding))
	cfg.rateMaxRequests = getenvIntDefault("RATE_MAX_REQUESTS", ratelimit.DefaultMaxRequests)
	cfg.rateWindow = getenvDurationDefault("RATE_WINDOW", time.Minute)
	cfg.rateSweepInterval = getenvDurationDefault("RATE_SWEEP_INTERVAL", 5*time.Minute)
	cfg.rateJanitor = getenvBoolDefault("RATE_JANITOR", false)
	cfg.ratePolicyFile = os.Getenv("RATE_POLICY_FILE")
	cfg.rateKeyHeader = os.Getenv("RATE_KEY_HEADER")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.retryAfter = getenvDurationDefault("RETRY_AFTER", 1*time.Second)
	cfg.rateFailOpen = getenvBoolDefault("RATE_FAIL_OPEN", true)
	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", false)

	cfg.redisAddr = getenvDefault("RATE_REDIS_ADDR", "")
	cfg.redisPassword = os.Getenv("RATE_REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("RATE_REDIS_DB", 0)
	cfg.redisPrefix = getenvDefault("RATE_REDIS_PREFIX", "ratelimit:window")

	cfg.rateStatsEnabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.rateStatsPrefix = getenvDefault("RATE_STATS_PREFIX", "ratelimit:stats")
	cfg.rateStatsTTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.rateStatsBucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	cfg.rateStatsTrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", false)

	cfg.logLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.logDevelopment = getenvBoolDefault("LOG_DEVELOPMENT", false)

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	switch cfg.rateAlgorithm {
	case ratelimit.AlgorithmSliding, ratelimit.AlgorithmToken, ratelimit.AlgorithmRedis:
	default:
		return config{}, errors.New("RATE_ALGORITHM must be sliding, token or redis")
	}
	if (cfg.rateAlgorithm == ratelimit.AlgorithmRedis || cfg.rateStatsEnabled) && strings.TrimSpace(cfg.redisAddr) == "" {
		return config{}, errors.New("RATE_REDIS_ADDR is required when RATE_ALGORITHM=redis or RATE_STATS_ENABLED=true")
	}
	if cfg.rateMaxRequests <= 0 {
		return config{}, errors.New("RATE_MAX_REQUESTS must be > 0")
	}
	if cfg.rateWindow <= 0 {
		return config{}, errors.New("RATE_WINDOW must be > 0")
	}
	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
