package main

import (
	"context"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// requestID garante um X-Request-Id em toda requisição: reaproveita o do
// cliente ou gera um uuid. O header vai para o upstream (o proxy copia os
// headers de entrada) e volta na resposta; o mesmo valor fica no contexto
// do chi para os logs do gateway.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(chimw.RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}

		r.Header.Set(chimw.RequestIDHeader, id)
		w.Header().Set(chimw.RequestIDHeader, id)

		ctx := context.WithValue(r.Context(), chimw.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
