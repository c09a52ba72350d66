package domain

import (
	"errors"
	"time"
)

var (
	// ErrStorage: falha de leitura/escrita/parse da fila persistida.
	ErrStorage = errors.New("offline queue storage failure")
	// ErrAction: o handler de uma operação falhou durante o replay.
	ErrAction = errors.New("offline queue action failed")
	// ErrOffline: replay pedido sem conectividade; a fila fica intacta.
	ErrOffline = errors.New("offline: connectivity unavailable")
	// ErrUnknownType: não há handler para o tipo da operação.
	ErrUnknownType = errors.New("no handler for operation type")
	// ErrInvalidOperation: operação sem tipo.
	ErrInvalidOperation = errors.New("operation type is required")

	// ErrRejected: o backend recusou a escrita (não adianta repetir).
	ErrRejected = errors.New("backend rejected operation")
	// ErrUnreachable: o backend não foi alcançado (rede); a escrita pode ir para a fila.
	ErrUnreachable = errors.New("backend unreachable")
)

type Outcome string

const (
	OutcomeDispatched Outcome = "dispatched"
	OutcomeFailed     Outcome = "failed"
	OutcomeSkipped    Outcome = "skipped"
)

// OperationResult é o resultado do replay de uma operação.
type OperationResult struct {
	Operation QueuedOperation
	Outcome   Outcome
	Attempts  int
	Err       error
}

// ReplayReport resume uma passada completa de replay, em ordem de inserção.
type ReplayReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []OperationResult
}

func (r ReplayReport) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Failed retorna só os resultados com falha (ex: para avisar o usuário).
func (r ReplayReport) Failed() []OperationResult {
	var out []OperationResult
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			out = append(out, res)
		}
	}
	return out
}

// SubmitResult diz o que aconteceu com uma escrita submetida.
type SubmitResult struct {
	// Queued é true quando a escrita foi guardada para replay.
	Queued bool
	// Operation é preenchida quando Queued.
	Operation QueuedOperation
}
