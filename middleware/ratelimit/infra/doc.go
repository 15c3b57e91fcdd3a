// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - SlidingWindow: janela deslizante por chave em memória (guard padrão)
//   - TokenBucket: token bucket por chave usando golang.org/x/time/rate
//   - RedisWindow: janela deslizante compartilhada entre instâncias (sorted set + Lua)
//   - MemoryStatsStore / RedisStatsStore: contadores de decisões
package infra
