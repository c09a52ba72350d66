// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryStore: registros de janela fixa em memória, com janitor
//   - KVStore: registros persistidos num storage.KV
//   - ChanPool: semáforo simples para limite de concorrência
//   - *StatsStore: estatísticas de decisão (memória, Redis, Prometheus)
package infra
