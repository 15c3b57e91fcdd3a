package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"directory-gateway/middleware/ratelimit"
	"directory-gateway/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type employee struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
}

// directory é um diretório em memória, só para demonstrar o middleware
// embutido direto no webserver (sem proxy).
type directory struct {
	mu        sync.RWMutex
	employees map[string]employee
}

func (d *directory) list(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))

	d.mu.RLock()
	out := make([]employee, 0, len(d.employees))
	for _, e := range d.employees {
		if q == "" || strings.Contains(strings.ToLower(e.Name), q) || strings.Contains(strings.ToLower(e.Department), q) {
			out = append(out, e)
		}
	}
	d.mu.RUnlock()

	writeJSON(w, http.StatusOK, out)
}

func (d *directory) create(w http.ResponseWriter, r *http.Request) {
	var e employee
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil || strings.TrimSpace(e.Name) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "name is required"})
		return
	}
	e.ID = uuid.NewString()

	d.mu.Lock()
	d.employees[e.ID] = e
	d.mu.Unlock()

	writeJSON(w, http.StatusCreated, e)
}

func (d *directory) get(w http.ResponseWriter, r *http.Request) {
	d.mu.RLock()
	e, ok := d.employees[chi.URLParam(r, "id")]
	d.mu.RUnlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Employee not found"})
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Employee Search Directory API",
		"version": "1.0.0",
		"status":  "running",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// newRouter monta o diretório com um guard por rota: a cota de uma rota
// não consome a de outra.
func newRouter(ctx context.Context, logger *zap.Logger) http.Handler {
	healthGuard := infra.NewSlidingWindow(100)
	searchGuard := infra.NewSlidingWindow(50)
	lookupGuard := infra.NewSlidingWindow(50)
	writeGuard := infra.NewSlidingWindow(20)
	for _, g := range []*infra.SlidingWindow{healthGuard, searchGuard, lookupGuard, writeGuard} {
		g.StartJanitor(ctx)
	}

	limit := func(g *infra.SlidingWindow, route string) func(http.Handler) http.Handler {
		return ratelimit.Middleware(ratelimit.Options{
			Guard:               g,
			Logger:              logger,
			KeyHeader:           "X-Api-Key", // ou vazio para usar IP
			TrustXForwardedFor:  true,
			AddRateLimitHeaders: true,
			Route:               route,
		})
	}

	dir := &directory{employees: map[string]employee{}}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.With(limit(healthGuard, "GET /")).Get("/", health)
	r.With(limit(searchGuard, "GET /employees/")).Get("/employees/", dir.list)
	r.With(limit(lookupGuard, "GET /employees/{id}")).Get("/employees/{id}", dir.get)
	r.With(limit(writeGuard, "POST /employees/")).Post("/employees/", dir.create)

	return r
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	r := newRouter(ctx, logger)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
