package application

import (
	"context"
	"time"

	"directory-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Chave vazia vira domain.UnknownKey; erro do guard vira allow (FailOpen) ou
// deny, e é devolvido junto para quem quiser logar.
type Service struct {
	Guard      domain.Guard
	RetryAfter time.Duration
	FailOpen   bool
}

func (s Service) Decide(ctx context.Context, key domain.Key) (domain.Decision, error) {
	if s.Guard == nil {
		return domain.Decision{Allowed: true}, nil
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	dec, err := s.Guard.Check(ctx, key.OrUnknown())
	if err != nil {
		if s.FailOpen {
			return domain.Decision{Allowed: true}, err
		}
		return domain.Decision{Allowed: false, RetryAfter: s.RetryAfter}, err
	}
	if !dec.Allowed && dec.RetryAfter <= 0 {
		dec.RetryAfter = s.RetryAfter
	}
	return dec, nil
}
