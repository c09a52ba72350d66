package domain

import (
	"context"
	"time"
)

// Tipos de operação conhecidos pelo agente.
const (
	TypeApplyToGig    = "apply_to_gig"
	TypeCreateGig     = "create_gig"
	TypeSendMessage   = "send_message"
	TypeUpdateProfile = "update_profile"
	TypeSaveGig       = "save_gig"
)

// Operation é a entrada de uma escrita: tipo + payload opaco.
type Operation struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// QueuedOperation é uma escrita feita sem conectividade, persistida para replay.
// Timestamp é serializado em ISO-8601 (RFC 3339).
type QueuedOperation struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// Handler executa uma operação contra o backend.
type Handler interface {
	Handle(ctx context.Context, payload map[string]any) error
}

type HandlerFunc func(ctx context.Context, payload map[string]any) error

func (f HandlerFunc) Handle(ctx context.Context, payload map[string]any) error {
	return f(ctx, payload)
}

// Connectivity informa o estado de rede atual, observado externamente.
type Connectivity interface {
	Connected() bool
}

// Recorder recebe métricas da fila (implementado por metrics.Metrics).
type Recorder interface {
	Enqueued(opType string)
	Replayed(opType, outcome string)
	Depth(n int)
	PassCompleted()
}
