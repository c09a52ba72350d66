package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	offline "gigsync/offline/domain"
)

const maxBodyBytes = 1 << 20

type queuedOperationView struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

type writeResponse struct {
	Status    string               `json:"status"`
	Operation *queuedOperationView `json:"operation,omitempty"`
}

type resultView struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Outcome  string `json:"outcome"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

type replayResponse struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Dispatched int          `json:"dispatched"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
	Results    []resultView `json:"results"`
}

type connectivityRequest struct {
	Connected *bool `json:"connected"`
}

type connectivityResponse struct {
	Connected   bool `json:"connected"`
	Reconnected bool `json:"reconnected"`
}

func viewOf(op offline.QueuedOperation) queuedOperationView {
	return queuedOperationView(op)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	connected := false
	if h.conn != nil {
		connected = h.conn.Connected()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "connected": connected})
}

// write cria o handler de uma escrita do tipo opType. Parâmetros de rota
// entram no payload (gigID vira "gigId").
func (h *Handler) write(opType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{}
		if r.ContentLength != 0 {
			dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err := dec.Decode(&payload); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_body", "body must be a JSON object")
				return
			}
			if payload == nil {
				payload = map[string]any{}
			}
		}
		if gigID := chi.URLParam(r, "gigID"); gigID != "" {
			payload["gigId"] = gigID
		}

		res, err := h.queue.Submit(r.Context(), offline.Operation{Type: opType, Payload: payload})
		if err != nil {
			h.writeSubmitError(w, opType, err)
			return
		}
		if res.Queued {
			v := viewOf(res.Operation)
			writeJSON(w, http.StatusAccepted, writeResponse{Status: "queued", Operation: &v})
			return
		}
		writeJSON(w, http.StatusCreated, writeResponse{Status: "dispatched"})
	}
}

func (h *Handler) writeSubmitError(w http.ResponseWriter, opType string, err error) {
	switch {
	case errors.Is(err, offline.ErrInvalidOperation), errors.Is(err, offline.ErrUnknownType):
		writeError(w, http.StatusBadRequest, "invalid_operation", err.Error())
	case errors.Is(err, offline.ErrRejected):
		writeError(w, http.StatusBadGateway, "rejected", err.Error())
	case errors.Is(err, offline.ErrAction):
		h.logger.Warn("write failed", zap.String("type", opType), zap.Error(err))
		writeError(w, http.StatusBadGateway, "backend_error", err.Error())
	default:
		h.logger.Error("write could not be stored", zap.String("type", opType), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage_error", "operation could not be stored")
	}
}

func (h *Handler) handleListQueue(w http.ResponseWriter, r *http.Request) {
	ops, err := h.queue.GetQueue(r.Context())
	if err != nil {
		h.logger.Error("list queue failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage_error", "queue could not be read")
		return
	}
	out := make([]queuedOperationView, 0, len(ops))
	for _, op := range ops {
		out = append(out, viewOf(op))
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": out, "count": len(out)})
}

func (h *Handler) handleReplay(w http.ResponseWriter, r *http.Request) {
	report, err := h.queue.ProcessQueue(r.Context())
	switch {
	case errors.Is(err, offline.ErrOffline):
		writeError(w, http.StatusConflict, "offline", "device is offline, queue kept")
		return
	case err != nil:
		h.logger.Error("replay failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, replayView(report))
}

func (h *Handler) handleClearQueue(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Clear(r.Context()); err != nil {
		h.logger.Error("clear queue failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage_error", "queue could not be cleared")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	if h.conn == nil {
		writeError(w, http.StatusNotImplemented, "unsupported", "connectivity is not tracked")
		return
	}
	var req connectivityRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil || req.Connected == nil {
		writeError(w, http.StatusBadRequest, "invalid_body", `body must be {"connected": bool}`)
		return
	}
	reconnected := h.conn.Update(r.Context(), *req.Connected)
	writeJSON(w, http.StatusOK, connectivityResponse{Connected: *req.Connected, Reconnected: reconnected})
}

func replayView(rep offline.ReplayReport) replayResponse {
	out := replayResponse{
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
		Dispatched: rep.Count(offline.OutcomeDispatched),
		Failed:     rep.Count(offline.OutcomeFailed),
		Skipped:    rep.Count(offline.OutcomeSkipped),
		Results:    make([]resultView, 0, len(rep.Results)),
	}
	for _, res := range rep.Results {
		v := resultView{
			ID:       res.Operation.ID,
			Type:     res.Operation.Type,
			Outcome:  string(res.Outcome),
			Attempts: res.Attempts,
		}
		if res.Err != nil {
			v.Error = res.Err.Error()
		}
		out.Results = append(out.Results, v)
	}
	return out
}
