package infra

import (
	"context"
	"sort"
	"sync"
	"time"

	"directory-gateway/middleware/ratelimit/domain"
)

const (
	DefaultMaxRequests   = 30
	DefaultWindow        = time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

// SlidingWindow é o guard de admissão por cliente: para cada chave guarda os
// instantes dos requests admitidos dentro da janela móvel [now-window, now].
//
// Todo Check poda a lista da chave, então o tamanho fica limitado a
// maxRequests. Chaves sem atividade são removidas por Sweep, chamado de forma
// oportunista pelo próprio Check (a cada sweepInterval) ou por StartJanitor.
//
// Um único mutex protege o mapa inteiro; poda, contagem e append de um Check
// acontecem na mesma seção crítica.
type SlidingWindow struct {
	mu            sync.Mutex
	logs          map[string][]time.Time
	lastSweep     time.Time
	maxRequests   int
	window        time.Duration
	sweepInterval time.Duration
	now           func() time.Time
}

type WindowOption func(*SlidingWindow)

// WithWindow altera a duração da janela (padrão: 1 minuto).
func WithWindow(d time.Duration) WindowOption {
	return func(w *SlidingWindow) {
		if d > 0 {
			w.window = d
		}
	}
}

// WithSweepInterval altera o intervalo mínimo entre varreduras oportunistas.
// Com d <= 0 o Check nunca varre; use StartJanitor ou Sweep manualmente.
func WithSweepInterval(d time.Duration) WindowOption {
	return func(w *SlidingWindow) { w.sweepInterval = d }
}

// WithClock injeta a fonte de tempo (testes simulam o relógio por aqui).
func WithClock(now func() time.Time) WindowOption {
	return func(w *SlidingWindow) {
		if now != nil {
			w.now = now
		}
	}
}

// NewSlidingWindow cria um guard que admite até maxRequests por janela e por
// chave. maxRequests <= 0 cai para DefaultMaxRequests.
func NewSlidingWindow(maxRequests int, opts ...WindowOption) *SlidingWindow {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	w := &SlidingWindow{
		logs:          make(map[string][]time.Time),
		maxRequests:   maxRequests,
		window:        DefaultWindow,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.lastSweep = w.now()
	return w
}

func (w *SlidingWindow) MaxRequests() int             { return w.maxRequests }
func (w *SlidingWindow) Window() time.Duration        { return w.window }
func (w *SlidingWindow) SweepInterval() time.Duration { return w.sweepInterval }

// Check implementa domain.Guard. Nunca retorna erro.
func (w *SlidingWindow) Check(_ context.Context, key domain.Key) (domain.Decision, error) {
	return w.check(string(key.OrUnknown())), nil
}

// Allow é o atalho booleano de Check.
func (w *SlidingWindow) Allow(key string) bool {
	return w.check(string(domain.Key(key).OrUnknown())).Allowed
}

func (w *SlidingWindow) check(key string) domain.Decision {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	windowStart := now.Add(-w.window)

	log := prune(w.logs[key], windowStart)

	dec := domain.Decision{Limit: w.maxRequests}
	if len(log) >= w.maxRequests {
		// rejeitado não entra na lista: não consome nem estende a janela
		w.logs[key] = log
		dec.RetryAfter = log[0].Add(w.window).Sub(now)
	} else {
		log = append(log, now)
		w.logs[key] = log
		dec.Allowed = true
		dec.Remaining = w.maxRequests - len(log)
	}

	if w.sweepInterval > 0 && now.Sub(w.lastSweep) > w.sweepInterval {
		w.sweepLocked(windowStart)
		w.lastSweep = now
	}
	return dec
}

// Sweep poda todas as chaves e remove as que ficaram sem requests na janela.
// Retorna quantas chaves foram removidas.
func (w *SlidingWindow) Sweep() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	removed := w.sweepLocked(now.Add(-w.window))
	w.lastSweep = now
	return removed
}

func (w *SlidingWindow) sweepLocked(windowStart time.Time) int {
	removed := 0
	for k, log := range w.logs {
		log = prune(log, windowStart)
		if len(log) == 0 {
			delete(w.logs, k)
			removed++
			continue
		}
		w.logs[k] = log
	}
	return removed
}

// Tracked retorna quantas chaves estão em memória.
func (w *SlidingWindow) Tracked() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.logs)
}

// Count retorna quantos requests admitidos da chave ainda estão na janela.
func (w *SlidingWindow) Count(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	log := prune(w.logs[key], w.now().Add(-w.window))
	if len(log) == 0 {
		return 0
	}
	w.logs[key] = log
	return len(log)
}

// StartJanitor varre periodicamente (a cada sweepInterval) até o contexto
// encerrar. É opcional: o Check já varre de forma oportunista.
func (w *SlidingWindow) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, w.sweepInterval, func() { w.Sweep() })
}

// prune remove, in place, os instantes estritamente anteriores a windowStart.
// A lista está em ordem cronológica.
func prune(log []time.Time, windowStart time.Time) []time.Time {
	i := sort.Search(len(log), func(i int) bool { return !log[i].Before(windowStart) })
	if i == 0 {
		return log
	}
	n := copy(log, log[i:])
	return log[:n]
}
