package runtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/voxdlabs/voxd/internal/fault"
)

func (r *Runtime) buildMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", r.handleHealth)
	mux.HandleFunc("GET /readyz", r.handleReady)
	mux.HandleFunc("POST /v1/dictation/start", r.handleStart)
	mux.HandleFunc("POST /v1/dictation/stop", r.handleStop)
	mux.HandleFunc("POST /v1/dictation/cancel", r.handleCancel)
	mux.HandleFunc("GET /v1/dictation/status", r.handleStatus)
	mux.HandleFunc("GET /v1/sessions/{id}/events", r.handleSessionEvents)
	return mux
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.dictation != nil && r.dictation.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleStart(w http.ResponseWriter, _ *http.Request) {
	id, err := r.dictation.Start()
	if err != nil {
		r.writeError(w, err)
		return
	}
	r.writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

func (r *Runtime) handleStop(w http.ResponseWriter, _ *http.Request) {
	id, err := r.dictation.Stop()
	if err != nil {
		r.writeError(w, err)
		return
	}
	r.writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

func (r *Runtime) handleCancel(w http.ResponseWriter, _ *http.Request) {
	id, err := r.dictation.Cancel()
	if err != nil {
		r.writeError(w, err)
		return
	}
	r.writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

func (r *Runtime) handleStatus(w http.ResponseWriter, _ *http.Request) {
	r.writeJSON(w, http.StatusOK, r.dictation.Status())
}

func (r *Runtime) handleSessionEvents(w http.ResponseWriter, req *http.Request) {
	sessionID := req.PathValue("id")
	events, err := r.dictation.SessionEvents(req.Context(), sessionID, 200)
	if err != nil {
		r.writeError(w, err)
		return
	}

	type eventView struct {
		ID        int64           `json:"id"`
		Type      string          `json:"type"`
		Payload   json.RawMessage `json:"payload,omitempty"`
		CreatedAt string          `json:"created_at"`
	}
	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, eventView{
			ID:        e.ID,
			Type:      e.Type,
			Payload:   json.RawMessage(e.Payload),
			CreatedAt: e.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	body := map[string]any{
		"session_id": sessionID,
		"events":     views,
	}
	if sess, err := r.dictation.StoredSession(req.Context(), sessionID); err == nil {
		body["state"] = sess.State
	}
	r.writeJSON(w, http.StatusOK, body)
}

func (r *Runtime) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.logger.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

func (r *Runtime) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := map[string]any{"error": err.Error()}

	if kind := fault.KindOf(err); kind != "" {
		body["kind"] = string(kind)
		switch kind {
		case fault.NotRecording:
			status = http.StatusConflict
		case fault.DeviceUnavailable:
			status = http.StatusServiceUnavailable
		}
	}
	r.writeJSON(w, status, body)
}
