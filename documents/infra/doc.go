// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - PermitPool: pool de permissões com espera FIFO e recarga periódica
//   - JSONSerializer: corpo da requisição via json-iterator
//   - PacerStore: token bucket por grupo de produto usando golang.org/x/time/rate
//   - MemoryStatsStore / RedisStatsStore: estatísticas de envio
package infra
