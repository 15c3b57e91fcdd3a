package infra

import "time"

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
// (Permite reuso em libs sem acoplar.)
type DoneContext interface {
	Done() <-chan struct{}
}

// startJanitor chama fn a cada `every` numa goroutine até ctx encerrar.
// every <= 0 desliga o janitor.
func startJanitor(ctx DoneContext, every time.Duration, fn func()) {
	if every <= 0 || fn == nil {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				fn()
			}
		}
	}()
}
