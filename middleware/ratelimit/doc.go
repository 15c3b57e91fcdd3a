// Package ratelimit fornece o adapter HTTP (net/http) do controle de admissão
// por cliente que fica na frente da API de diretório.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: caso de uso (decisão allow/deny, fail-open/closed) sem net/http
//   - infra: implementações concretas (janela deslizante, token bucket, Redis, stats)
//   - ratelimit (este pacote): middleware HTTP + extração de chave + resposta 429,
//     políticas por rota (YAML) e montagem no chi
//
// Fluxo no gateway:
//
//  1. Extrai a chave do cliente (header/XFF/RemoteAddr, ou "unknown")
//  2. Chama a camada application para obter a decisão
//  3. Se bloqueado, responde 429 com Retry-After e {"detail": "..."}
//  4. Se permitido, chama o próximo handler (ex: reverse proxy)
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como RATE_ALGORITHM, RATE_MAX_REQUESTS, RATE_WINDOW e RATE_POLICY_FILE.
package ratelimit
