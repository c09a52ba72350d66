package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigsync/middleware/ratelimit/infra"
)

func TestConcurrencyMiddleware_RejectsWhenWriteSlotsBusy(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var startedOnce sync.Once

	// escrita lenta que segura a vaga até liberarmos
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedOnce.Do(func() { close(started) })
		<-release
		w.WriteHeader(http.StatusCreated)
	})

	h := ConcurrencyMiddleware(ConcurrencyOptions{
		Max:            1,
		AcquireTimeout: 25 * time.Millisecond,
	})(next)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "http://agent/v1/messages", nil))
		assert.Equal(t, http.StatusCreated, w.Code)
	}()

	select {
	case <-started:
	case <-time.After(200 * time.Millisecond):
		close(release)
		wg.Wait()
		t.Fatalf("timeout waiting first request to start")
	}

	// a segunda escrita não consegue vaga e deve falhar por timeout
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, httptest.NewRequest(http.MethodPost, "http://agent/v1/messages", nil))
	require.Equal(t, http.StatusServiceUnavailable, w2.Code)
	require.Equal(t, "1", w2.Header().Get("Retry-After"))

	close(release)
	wg.Wait()
}

func TestConcurrencyMiddleware_DisabledWhenMaxZero(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	w := httptest.NewRecorder()
	ConcurrencyMiddleware(ConcurrencyOptions{})(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://agent/", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestConcurrencyMiddleware_SharedPool(t *testing.T) {
	pool := infra.NewChanPool(1)
	held, ok := pool.Acquire(context.Background())
	require.True(t, ok)
	defer held()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	h := ConcurrencyMiddleware(ConcurrencyOptions{Pool: pool, AcquireTimeout: 10 * time.Millisecond})(next)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "http://agent/v1/gigs", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
