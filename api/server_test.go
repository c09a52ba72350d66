package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigsync/metrics"
	"gigsync/middleware/ratelimit/application"
	"gigsync/middleware/ratelimit/domain"
	"gigsync/middleware/ratelimit/infra"
	offapp "gigsync/offline/application"
	offline "gigsync/offline/domain"
	offinfra "gigsync/offline/infra"
	"gigsync/storage"
)

type calls struct {
	mu  sync.Mutex
	got []string
}

func (c *calls) handler(opType string, fail error) offline.Handler {
	return offline.HandlerFunc(func(_ context.Context, p map[string]any) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.got = append(c.got, fmt.Sprintf("%s:%v", opType, p["gigId"]))
		return fail
	})
}

func (c *calls) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.got...)
}

type fixture struct {
	srv     *httptest.Server
	queue   *offapp.Queue
	watcher *offinfra.Watcher
	calls   *calls
}

func newFixture(t *testing.T, policies map[domain.Category]domain.Policy, createGigErr error) *fixture {
	t.Helper()

	c := &calls{}
	disp := offapp.NewDispatcher().
		Register(offline.TypeApplyToGig, c.handler(offline.TypeApplyToGig, nil)).
		Register(offline.TypeCreateGig, c.handler(offline.TypeCreateGig, createGigErr)).
		Register(offline.TypeSaveGig, c.handler(offline.TypeSaveGig, nil)).
		Register(offline.TypeSendMessage, c.handler(offline.TypeSendMessage, nil)).
		Register(offline.TypeUpdateProfile, c.handler(offline.TypeUpdateProfile, nil))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	watcher := offinfra.NewWatcher(nil)
	q := offapp.New(storage.NewMemory(), disp,
		offapp.WithConnectivity(watcher),
		offapp.WithRecorder(m))
	watcher.OnReconnect(func(ctx context.Context) { _, _ = q.ProcessQueue(ctx) })

	lims, err := application.NewLimiters(policies,
		func(domain.Category) domain.RecordStore { return infra.NewMemoryStore() },
		nil,
		application.WithStats(infra.NewPrometheusStatsStore(m)))
	require.NoError(t, err)

	h := New(Options{
		Queue:            q,
		Limiters:         lims,
		Connectivity:     watcher,
		Gatherer:         reg,
		KeyHeader:        "X-User-ID",
		RateLimitHeaders: true,
	})
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, queue: q, watcher: watcher, calls: c}
}

func (f *fixture) do(t *testing.T, method, path, body string, header ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestWrite_OfflineIsQueued(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp := f.do(t, http.MethodPost, "/v1/gigs/g1/applications", `{"coverLetter":"hi"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := decode[writeResponse](t, resp)
	require.Equal(t, "queued", body.Status)
	require.NotNil(t, body.Operation)
	assert.Equal(t, offline.TypeApplyToGig, body.Operation.Type)
	assert.Equal(t, "g1", body.Operation.Payload["gigId"])
	assert.Equal(t, "hi", body.Operation.Payload["coverLetter"])
	assert.Empty(t, f.calls.list())

	list := f.do(t, http.MethodGet, "/v1/queue", "")
	require.Equal(t, http.StatusOK, list.StatusCode)
	got := decode[struct {
		Operations []queuedOperationView `json:"operations"`
		Count      int                   `json:"count"`
	}](t, list)
	require.Equal(t, 1, got.Count)
	assert.Equal(t, body.Operation.ID, got.Operations[0].ID)
}

func TestWrite_OnlineIsDispatched(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.watcher.Update(context.Background(), true)

	resp := f.do(t, http.MethodPost, "/v1/gigs/g9/saves", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "dispatched", decode[writeResponse](t, resp).Status)
	assert.Equal(t, []string{"save_gig:g9"}, f.calls.list())

	ops, err := f.queue.GetQueue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestWrite_RejectedIsBadGateway(t *testing.T) {
	f := newFixture(t, nil, fmt.Errorf("%w: status 400", offline.ErrRejected))
	f.watcher.Update(context.Background(), true)

	resp := f.do(t, http.MethodPost, "/v1/gigs", `{"title":"DJ"}`)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "rejected", decode[errorBody](t, resp).Error)
}

func TestWrite_InvalidBody(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp := f.do(t, http.MethodPost, "/v1/messages", `[1,2]`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimit_PerCategoryAndKey(t *testing.T) {
	f := newFixture(t, map[domain.Category]domain.Policy{
		domain.CategoryMessage: {Limit: 2, Window: time.Minute},
	}, nil)

	for i := 0; i < 2; i++ {
		resp := f.do(t, http.MethodPost, "/v1/messages", `{"content":"x"}`, "X-User-ID", "u1")
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, "message", resp.Header.Get("X-RateLimit-Category"))
	}

	denied := f.do(t, http.MethodPost, "/v1/messages", `{"content":"x"}`, "X-User-ID", "u1")
	require.Equal(t, http.StatusTooManyRequests, denied.StatusCode)
	assert.NotEmpty(t, denied.Header.Get("Retry-After"))
	assert.Equal(t, "0", denied.Header.Get("X-RateLimit-Remaining"))

	other := f.do(t, http.MethodPost, "/v1/messages", `{"content":"x"}`, "X-User-ID", "u2")
	assert.Equal(t, http.StatusAccepted, other.StatusCode)

	// categoria sem política não é limitada
	for i := 0; i < 5; i++ {
		resp := f.do(t, http.MethodPost, "/v1/gigs", `{"title":"t"}`, "X-User-ID", "u1")
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}

	ops, err := f.queue.GetQueue(context.Background())
	require.NoError(t, err)
	assert.Len(t, ops, 8)
}

func TestAuthAttempts(t *testing.T) {
	f := newFixture(t, map[domain.Category]domain.Policy{
		domain.CategoryAuth: {Limit: 1, Window: 15 * time.Minute},
	}, nil)

	first := f.do(t, http.MethodPost, "/v1/auth/attempts", "", "X-User-ID", "ana@example.com")
	require.Equal(t, http.StatusNoContent, first.StatusCode)

	second := f.do(t, http.MethodPost, "/v1/auth/attempts", "", "X-User-ID", "ana@example.com")
	require.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}

func TestConnectivity_ReconnectReplaysInOrder(t *testing.T) {
	f := newFixture(t, nil, nil)

	f.do(t, http.MethodPost, "/v1/gigs/g1/applications", "")
	f.do(t, http.MethodPost, "/v1/gigs/g2/applications", "")
	ops, err := f.queue.GetQueue(context.Background())
	require.NoError(t, err)
	require.Len(t, ops, 2)

	resp := f.do(t, http.MethodPut, "/v1/connectivity", `{"connected":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, connectivityResponse{Connected: true, Reconnected: true}, decode[connectivityResponse](t, resp))

	assert.Equal(t, []string{"apply_to_gig:g1", "apply_to_gig:g2"}, f.calls.list())
	ops, err = f.queue.GetQueue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ops)

	again := f.do(t, http.MethodPut, "/v1/connectivity", `{"connected":true}`)
	assert.False(t, decode[connectivityResponse](t, again).Reconnected)
}

func TestConnectivity_RequiresField(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp := f.do(t, http.MethodPut, "/v1/connectivity", `{}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, f.watcher.Connected())
}

func TestReplay_OfflineKeepsQueue(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.do(t, http.MethodPatch, "/v1/profile", `{"userId":"u1","bio":"x"}`)

	resp := f.do(t, http.MethodPost, "/v1/queue/replay", "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	ops, err := f.queue.GetQueue(context.Background())
	require.NoError(t, err)
	assert.Len(t, ops, 1)
}

func TestReplay_Report(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	f.watcher.Update(ctx, true)

	_, err := f.queue.Enqueue(ctx, offline.Operation{Type: offline.TypeSaveGig, Payload: map[string]any{"gigId": "g1"}})
	require.NoError(t, err)
	_, err = f.queue.Enqueue(ctx, offline.Operation{Type: "legacy_op"})
	require.NoError(t, err)
	_, err = f.queue.Enqueue(ctx, offline.Operation{Type: offline.TypeSaveGig, Payload: map[string]any{"gigId": "g2"}})
	require.NoError(t, err)

	resp := f.do(t, http.MethodPost, "/v1/queue/replay", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rep := decode[replayResponse](t, resp)
	assert.Equal(t, 2, rep.Dispatched)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 0, rep.Failed)
	require.Len(t, rep.Results, 3)
	assert.Equal(t, "legacy_op", rep.Results[1].Type)
	assert.Equal(t, []string{"save_gig:g1", "save_gig:g2"}, f.calls.list())

	ops, err := f.queue.GetQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestClearQueue(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.do(t, http.MethodPost, "/v1/gigs", `{"title":"t"}`)

	resp := f.do(t, http.MethodDelete, "/v1/queue", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	ops, err := f.queue.GetQueue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, map[domain.Category]domain.Policy{
		domain.CategoryGigCreation: {Limit: 5, Window: time.Hour},
	}, nil)
	f.do(t, http.MethodPost, "/v1/gigs", `{"title":"t"}`)

	health := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, health.StatusCode)
	assert.Equal(t, false, decode[map[string]any](t, health)["connected"])

	m := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, m.StatusCode)
	raw, err := io.ReadAll(m.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `gigsync_ratelimit_decisions_total{category="gig_creation",outcome="allowed"} 1`)
	assert.Contains(t, string(raw), `gigsync_queue_enqueued_total{type="create_gig"} 1`)
}

func TestNotFound(t *testing.T) {
	f := newFixture(t, nil, nil)
	resp := f.do(t, http.MethodGet, "/v1/nope", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decode[errorBody](t, resp).Error)
}
