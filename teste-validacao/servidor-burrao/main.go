package main

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// Backend falso no formato PostgREST (/rest/v1/<tabela>) para validar o
// agente à mão. PUT /falhar?status=503 faz as próximas escritas devolverem
// esse status; status=0 volta ao normal.
func main() {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	var failWith atomic.Int64
	var writes atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/v1/", func(w http.ResponseWriter, r *http.Request) {
		table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
		if r.Method == http.MethodHead || table == "" {
			w.WriteHeader(http.StatusOK)
			return
		}

		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		if st := failWith.Load(); st != 0 {
			logger.Warn("write refused", zap.String("table", table), zap.Int64("status", st))
			w.WriteHeader(int(st))
			return
		}
		n := writes.Add(1)
		logger.Info("write received",
			zap.Int64("n", n),
			zap.String("method", r.Method),
			zap.String("table", table),
			zap.String("query", r.URL.RawQuery),
			zap.Bool("api_key", r.Header.Get("apikey") != ""),
			zap.Any("body", body))
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("PUT /falhar", func(w http.ResponseWriter, r *http.Request) {
		var st int64
		if v := r.URL.Query().Get("status"); v != "" {
			if err := json.Unmarshal([]byte(v), &st); err != nil {
				http.Error(w, "status inválido", http.StatusBadRequest)
				return
			}
		}
		failWith.Store(st)
		w.WriteHeader(http.StatusNoContent)
	})

	addr := ":8082"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	logger.Info("fake backend listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
