package domain

import (
	"context"
	"time"
)

// StatsEvent representa um evento de decisão do rate limit.
//
// Method/Path são strings genéricas; Route é o padrão da política que
// atendeu o request (ex: "GET /employees/{id}"), com cardinalidade
// controlada. Quando Route está vazio os stores caem para Method + Path.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis).
type StatsEvent struct {
	Key     Key
	Allowed bool

	Method string
	Path   string
	Route  string

	At time.Time
}

// RouteLabel devolve o rótulo usado para agregar por rota.
func (ev StatsEvent) RouteLabel() string {
	if ev.Route != "" {
		return ev.Route
	}
	if ev.Method == "" && ev.Path == "" {
		return ""
	}
	if ev.Method == "" {
		return ev.Path
	}
	return ev.Method + " " + ev.Path
}

// StatsStore é a estratégia de persistência para estatísticas do rate limit.
//
// O middleware trata erro como best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
