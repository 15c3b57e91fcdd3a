package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"strings"
	"time"
)

type Key string

// UnknownKey é a identidade usada quando não foi possível derivar uma chave
// do request (ex: RemoteAddr vazio).
const UnknownKey Key = "unknown"

// OrUnknown devolve a própria chave ou UnknownKey quando vazia.
func (k Key) OrUnknown() Key {
	if strings.TrimSpace(string(k)) == "" {
		return UnknownKey
	}
	return k
}

// Guard decide se um request da chave pode seguir agora.
//
// A decisão já registra o request admitido (a contagem é feita pelo próprio
// guard). Implementações em memória nunca retornam erro; implementações
// remotas (ex: Redis) podem falhar e deixam a política fail-open/fail-closed
// para a camada application.
type Guard interface {
	Check(ctx context.Context, key Key) (Decision, error)
}

type Decision struct {
	Allowed bool

	// Limit é a capacidade da janela (requests por janela).
	// Remaining é quanto ainda cabe na janela após esta decisão.
	Limit     int
	Remaining int

	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
