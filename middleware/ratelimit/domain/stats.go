package domain

import (
	"context"
	"time"
)

// StatsEvent representa um evento de decisão do rate limit.
//
// Ele é propositalmente "agnóstico de HTTP": Category identifica a ação,
// não a rota.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type StatsEvent struct {
	Category Category
	Key      Key
	Allowed  bool

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do rate limit.
//
// Implementações podem armazenar em Redis, Prometheus, memória, etc.
// O chamador deve tratar erro como best-effort (não bloquear a ação).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
