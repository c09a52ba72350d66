package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"gigsync/offline/domain"
)

// Backend é o cliente REST do backend-as-a-service (estilo PostgREST).
// Cada tipo de operação vira um handler que escreve numa tabela.
type Backend struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

type BackendOption func(*Backend)

func WithHTTPClient(c *http.Client) BackendOption {
	return func(b *Backend) { b.client = c }
}

func WithBackendTimeout(d time.Duration) BackendOption {
	return func(b *Backend) { b.client = &http.Client{Timeout: d} }
}

func WithBackendLogger(l *zap.Logger) BackendOption {
	return func(b *Backend) { b.logger = l }
}

func NewBackend(baseURL, apiKey string, opts ...BackendOption) *Backend {
	b := &Backend{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// HealthURL é a URL usada pelo Prober.
func (b *Backend) HealthURL() string { return b.baseURL + "/rest/v1/" }

// Handlers devolve o conjunto fixo de handlers por tipo de operação.
func (b *Backend) Handlers() map[string]domain.Handler {
	return map[string]domain.Handler{
		domain.TypeApplyToGig:    domain.HandlerFunc(b.ApplyToGig),
		domain.TypeCreateGig:     domain.HandlerFunc(b.CreateGig),
		domain.TypeSendMessage:   domain.HandlerFunc(b.SendMessage),
		domain.TypeUpdateProfile: domain.HandlerFunc(b.UpdateProfile),
		domain.TypeSaveGig:       domain.HandlerFunc(b.SaveGig),
	}
}

func (b *Backend) ApplyToGig(ctx context.Context, p map[string]any) error {
	gigID, err := requireString(p, "gigId")
	if err != nil {
		return err
	}
	body := map[string]any{
		"gig_id": gigID,
		"status": "pending",
	}
	copyOptional(p, body, "talentId", "talent_id")
	copyOptional(p, body, "coverLetter", "cover_letter")
	copyOptional(p, body, "proposedRate", "proposed_rate")
	return b.send(ctx, http.MethodPost, "/rest/v1/applications", nil, body)
}

func (b *Backend) CreateGig(ctx context.Context, p map[string]any) error {
	if _, err := requireString(p, "title"); err != nil {
		return err
	}
	body := map[string]any{}
	for _, f := range [][2]string{
		{"title", "title"},
		{"description", "description"},
		{"clientId", "client_id"},
		{"category", "category"},
		{"budget", "budget"},
		{"location", "location"},
		{"startsAt", "starts_at"},
	} {
		copyOptional(p, body, f[0], f[1])
	}
	return b.send(ctx, http.MethodPost, "/rest/v1/gigs", nil, body)
}

func (b *Backend) SendMessage(ctx context.Context, p map[string]any) error {
	convID, err := requireString(p, "conversationId")
	if err != nil {
		return err
	}
	content, err := requireString(p, "content")
	if err != nil {
		return err
	}
	body := map[string]any{"conversation_id": convID, "content": content}
	copyOptional(p, body, "senderId", "sender_id")
	return b.send(ctx, http.MethodPost, "/rest/v1/messages", nil, body)
}

func (b *Backend) UpdateProfile(ctx context.Context, p map[string]any) error {
	userID, err := requireString(p, "userId")
	if err != nil {
		return err
	}
	body := map[string]any{}
	for k, v := range p {
		if k != "userId" {
			body[k] = v
		}
	}
	q := url.Values{"id": {"eq." + userID}}
	return b.send(ctx, http.MethodPatch, "/rest/v1/profiles", q, body)
}

func (b *Backend) SaveGig(ctx context.Context, p map[string]any) error {
	gigID, err := requireString(p, "gigId")
	if err != nil {
		return err
	}
	body := map[string]any{"gig_id": gigID}
	copyOptional(p, body, "userId", "user_id")
	return b.send(ctx, http.MethodPost, "/rest/v1/saved_gigs", nil, body)
}

// send classifica falhas:
//   - transporte: domain.ErrUnreachable
//   - 4xx (exceto 408/429): domain.ErrRejected
//   - demais: erro comum (pode ser repetido)
func (b *Backend) send(ctx context.Context, method, path string, query url.Values, body any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encode body: %w", domain.ErrRejected, err)
	}

	u := b.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("%w: build request: %w", domain.ErrRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")
	if b.apiKey != "" {
		req.Header.Set("apikey", b.apiKey)
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		// só o ctx do chamador encerrado não é falha de rede; timeout do
		// client conta como backend inalcançável
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %s %s: %w", domain.ErrUnreachable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	b.logger.Debug("backend write failed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.ByteString("body", msg))

	err = fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", domain.ErrRejected, err)
	}
	return err
}

func requireString(p map[string]any, field string) (string, error) {
	v, ok := p[field].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%w: payload field %q is required", domain.ErrRejected, field)
	}
	return v, nil
}

func copyOptional(src, dst map[string]any, from, to string) {
	if v, ok := src[from]; ok && v != nil {
		dst[to] = v
	}
}
