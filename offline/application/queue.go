package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gigsync/offline/domain"
	"gigsync/storage"
)

const DefaultKey = "offline_queue"

// Queue é a fila offline persistida num storage.KV.
//
// Enqueue, ProcessQueue e Clear são serializados por instância: uma escrita
// enfileirada durante um replay espera o replay terminar, e não é apagada
// pela limpeza final.
type Queue struct {
	kv         storage.KV
	key        string
	dispatcher *Dispatcher

	clock    clock.Clock
	newID    func() string
	conn     domain.Connectivity
	recorder domain.Recorder
	logger   *zap.Logger

	actionTimeout time.Duration
	maxAttempts   int
	retryBase     time.Duration
	pacer         *rate.Limiter

	mu sync.Mutex
}

type Option func(*Queue)

func WithKey(key string) Option {
	return func(q *Queue) { q.key = key }
}

func WithLogger(l *zap.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

func WithClock(c clock.Clock) Option {
	return func(q *Queue) { q.clock = c }
}

func WithIDGenerator(fn func() string) Option {
	return func(q *Queue) { q.newID = fn }
}

// WithConnectivity faz ProcessQueue recusar (ErrOffline) e Submit enfileirar
// quando c reporta sem rede.
func WithConnectivity(c domain.Connectivity) Option {
	return func(q *Queue) { q.conn = c }
}

func WithRecorder(r domain.Recorder) Option {
	return func(q *Queue) { q.recorder = r }
}

// WithActionTimeout limita cada chamada de handler. 0 = sem limite.
func WithActionTimeout(d time.Duration) Option {
	return func(q *Queue) { q.actionTimeout = d }
}

// WithRetry faz até maxAttempts tentativas por operação no replay, com
// backoff exponencial a partir de base. Erros ErrRejected não são repetidos.
func WithRetry(maxAttempts int, base time.Duration) Option {
	return func(q *Queue) {
		q.maxAttempts = maxAttempts
		q.retryBase = base
	}
}

// WithReplayRate cadencia o replay em rps operações/s (burst b).
// Evita inundar o backend com um backlog grande. rps <= 0 desliga.
func WithReplayRate(rps float64, b int) Option {
	return func(q *Queue) {
		if rps <= 0 {
			q.pacer = nil
			return
		}
		if b <= 0 {
			b = 1
		}
		q.pacer = rate.NewLimiter(rate.Limit(rps), b)
	}
}

func New(kv storage.KV, dispatcher *Dispatcher, opts ...Option) *Queue {
	q := &Queue{
		kv:          kv,
		key:         DefaultKey,
		dispatcher:  dispatcher,
		clock:       clock.NewClock(),
		newID:       func() string { return uuid.NewString() },
		logger:      zap.NewNop(),
		maxAttempts: 1,
		retryBase:   500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.dispatcher == nil {
		q.dispatcher = NewDispatcher()
	}
	q.logger = q.logger.With(zap.String("queue_key", q.key))
	return q
}

// Enqueue acrescenta a operação (com id e timestamp gerados) à fila persistida.
// Faz read-modify-write da lista inteira; não deduplica.
func (q *Queue) Enqueue(ctx context.Context, op domain.Operation) (domain.QueuedOperation, error) {
	if strings.TrimSpace(op.Type) == "" {
		return domain.QueuedOperation{}, domain.ErrInvalidOperation
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	ops, err := q.load(ctx)
	if err != nil {
		q.logger.Error("enqueue: read queue failed", zap.String("type", op.Type), zap.Error(err))
		return domain.QueuedOperation{}, err
	}

	payload := op.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	qo := domain.QueuedOperation{
		ID:        q.newID(),
		Type:      op.Type,
		Payload:   payload,
		Timestamp: q.clock.Now().UTC(),
	}
	ops = append(ops, qo)

	if err := q.save(ctx, ops); err != nil {
		q.logger.Error("enqueue: write queue failed", zap.String("type", op.Type), zap.Error(err))
		return domain.QueuedOperation{}, err
	}

	if q.recorder != nil {
		q.recorder.Enqueued(qo.Type)
		q.recorder.Depth(len(ops))
	}
	q.logger.Info("operation queued",
		zap.String("id", qo.ID),
		zap.String("type", qo.Type),
		zap.Int("depth", len(ops)))
	return qo, nil
}

// GetQueue devolve a fila persistida em ordem de inserção.
// Ausência ou conteúdo corrompido equivalem a fila vazia; só falha de I/O
// do backend retorna erro.
func (q *Queue) GetQueue(ctx context.Context) ([]domain.QueuedOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops, err := q.load(ctx)
	if err != nil {
		return nil, err
	}
	if ops == nil {
		ops = []domain.QueuedOperation{}
	}
	return ops, nil
}

// ProcessQueue reexecuta toda a fila em ordem de inserção e depois a limpa.
//
//   - tipo sem handler: OutcomeSkipped, sem erro
//   - falha do handler: logada, OutcomeFailed, segue para a próxima
//   - ao final, a fila inteira é removida, qualquer que seja o resultado
//
// Sem conectividade, retorna ErrOffline e não toca na fila. Uma vez iniciado,
// o replay não é cancelado pelo ctx do chamador; só o timeout por ação vale.
func (q *Queue) ProcessQueue(ctx context.Context) (domain.ReplayReport, error) {
	if q.conn != nil && !q.conn.Connected() {
		return domain.ReplayReport{}, domain.ErrOffline
	}
	ctx = context.WithoutCancel(ctx)

	q.mu.Lock()
	defer q.mu.Unlock()

	report := domain.ReplayReport{StartedAt: q.clock.Now()}

	ops, err := q.load(ctx)
	if err != nil {
		q.logger.Error("replay: read queue failed", zap.Error(err))
		return report, err
	}
	if len(ops) == 0 {
		report.FinishedAt = q.clock.Now()
		return report, nil
	}

	q.logger.Info("replay started", zap.Int("operations", len(ops)))
	report.Results = make([]domain.OperationResult, 0, len(ops))
	for _, op := range ops {
		res := q.replay(ctx, op)
		report.Results = append(report.Results, res)
		if q.recorder != nil {
			q.recorder.Replayed(op.Type, string(res.Outcome))
		}
	}

	if err := q.kv.Remove(ctx, q.key); err != nil {
		report.FinishedAt = q.clock.Now()
		q.logger.Error("replay: clear queue failed", zap.Error(err))
		return report, fmt.Errorf("%w: clear: %w", domain.ErrStorage, err)
	}
	if q.recorder != nil {
		q.recorder.Depth(0)
		q.recorder.PassCompleted()
	}

	report.FinishedAt = q.clock.Now()
	q.logger.Info("replay finished",
		zap.Int("dispatched", report.Count(domain.OutcomeDispatched)),
		zap.Int("failed", report.Count(domain.OutcomeFailed)),
		zap.Int("skipped", report.Count(domain.OutcomeSkipped)),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

// Submit executa a escrita já, se houver rede; senão, enfileira.
// Se o backend estiver inalcançável (ErrUnreachable), a escrita também vai
// para a fila.
func (q *Queue) Submit(ctx context.Context, op domain.Operation) (domain.SubmitResult, error) {
	if strings.TrimSpace(op.Type) == "" {
		return domain.SubmitResult{}, domain.ErrInvalidOperation
	}
	h, ok := q.dispatcher.Lookup(op.Type)
	if !ok {
		return domain.SubmitResult{}, fmt.Errorf("%w: %s", domain.ErrUnknownType, op.Type)
	}

	if q.conn == nil || q.conn.Connected() {
		err := q.call(ctx, h, op.Payload)
		if err == nil {
			return domain.SubmitResult{}, nil
		}
		if !errors.Is(err, domain.ErrUnreachable) {
			return domain.SubmitResult{}, fmt.Errorf("%w: %s: %w", domain.ErrAction, op.Type, err)
		}
		q.logger.Warn("backend unreachable, queueing operation", zap.String("type", op.Type), zap.Error(err))
	}

	qo, err := q.Enqueue(ctx, op)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	return domain.SubmitResult{Queued: true, Operation: qo}, nil
}

// Clear descarta a fila inteira sem replay.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.kv.Remove(ctx, q.key); err != nil {
		return fmt.Errorf("%w: clear: %w", domain.ErrStorage, err)
	}
	if q.recorder != nil {
		q.recorder.Depth(0)
	}
	return nil
}

func (q *Queue) Types() []string { return q.dispatcher.Types() }

func (q *Queue) replay(ctx context.Context, op domain.QueuedOperation) domain.OperationResult {
	res := domain.OperationResult{Operation: op}

	h, ok := q.dispatcher.Lookup(op.Type)
	if !ok {
		res.Outcome = domain.OutcomeSkipped
		q.logger.Debug("replay: no handler, skipping", zap.String("id", op.ID), zap.String("type", op.Type))
		return res
	}

	if q.pacer != nil {
		if err := q.pacer.Wait(ctx); err != nil {
			q.logger.Debug("replay: pacer wait failed", zap.String("id", op.ID), zap.Error(err))
		}
	}

	attempt := func() error {
		res.Attempts++
		err := q.call(ctx, h, op.Payload)
		if errors.Is(err, domain.ErrRejected) {
			return backoff.Permanent(err)
		}
		return err
	}

	var err error
	if q.maxAttempts <= 1 {
		err = attempt()
	} else {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = q.retryBase
		b.MaxElapsedTime = 0
		err = backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(b, uint64(q.maxAttempts-1)), ctx))
	}

	if err != nil {
		res.Outcome = domain.OutcomeFailed
		res.Err = fmt.Errorf("%w: %s %s: %w", domain.ErrAction, op.Type, op.ID, err)
		q.logger.Warn("replay: operation failed",
			zap.String("id", op.ID),
			zap.String("type", op.Type),
			zap.Int("attempts", res.Attempts),
			zap.Error(err))
		return res
	}

	res.Outcome = domain.OutcomeDispatched
	return res
}

func (q *Queue) call(ctx context.Context, h domain.Handler, payload map[string]any) error {
	if q.actionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.actionTimeout)
		defer cancel()
	}
	return h.Handle(ctx, payload)
}

// load lê a fila persistida. Deve ser chamado com q.mu.
func (q *Queue) load(ctx context.Context) ([]domain.QueuedOperation, error) {
	raw, ok, err := q.kv.Get(ctx, q.key)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", domain.ErrStorage, err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var ops []domain.QueuedOperation
	if err := json.Unmarshal([]byte(raw), &ops); err != nil {
		q.logger.Warn("persisted queue is corrupt, treating as empty", zap.Error(err))
		return nil, nil
	}
	return ops, nil
}

// save grava a fila inteira. Deve ser chamado com q.mu.
func (q *Queue) save(ctx context.Context, ops []domain.QueuedOperation) error {
	b, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", domain.ErrStorage, err)
	}
	if err := q.kv.Set(ctx, q.key, string(b)); err != nil {
		return fmt.Errorf("%w: write: %w", domain.ErrStorage, err)
	}
	return nil
}
