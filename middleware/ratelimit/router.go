package ratelimit

import (
	"fmt"
	"net/http"

	"directory-gateway/middleware/ratelimit/domain"

	"github.com/go-chi/chi/v5"
)

// GuardFactory cria o guard de uma política. Cada rota recebe uma instância
// própria, então a cota de uma rota não consome a de outra.
type GuardFactory func(p Policy) (domain.Guard, error)

// Mount registra no router cada rota de set com seu próprio limite, todas
// apontando para h. O que não casar com nenhuma rota (inclusive método
// diferente num padrão conhecido) cai no limite Default.
//
// opts.Guard e opts.Route são preenchidos por política.
func Mount(r chi.Router, set PolicySet, h http.Handler, newGuard GuardFactory, opts Options) error {
	if err := set.Validate(); err != nil {
		return err
	}

	wrap := func(p Policy) (http.Handler, error) {
		g, err := newGuard(p)
		if err != nil {
			return nil, fmt.Errorf("guard for %s: %w", p.Label(), err)
		}
		o := opts
		o.Guard = g
		o.Route = p.Label()
		return Middleware(o)(h), nil
	}

	for _, p := range set.Routes {
		limited, err := wrap(p)
		if err != nil {
			return err
		}
		if p.Method == "" {
			r.Handle(p.Pattern, limited)
		} else {
			r.Method(p.Method, p.Pattern, limited)
		}
	}

	fallback, err := wrap(set.Default)
	if err != nil {
		return err
	}
	r.NotFound(fallback.ServeHTTP)
	r.MethodNotAllowed(fallback.ServeHTTP)
	return nil
}
