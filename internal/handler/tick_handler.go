package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/unclebandit/campaign-dispatcher/internal/queue"
	"github.com/unclebandit/campaign-dispatcher/internal/service"
)

const secretHeader = "x-auto-secret"

// RequireSecret rejects requests whose x-auto-secret header does not match
// secret. An unset secret is a server misconfiguration.
func RequireSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				WriteJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "AUTO_SECRET not configured"})
				return
			}
			got := r.Header.Get(secretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				WriteJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "Unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TickHandler runs one tick inline, or with ?async=1 publishes a trigger for
// a worker.
type TickHandler struct {
	Engine service.Ticker
	Queue  queue.Queue
	Topic  string
	Logger *slog.Logger
}

func (h *TickHandler) Tick(w http.ResponseWriter, r *http.Request) {
	if async := r.URL.Query().Get("async"); async == "1" || async == "true" {
		if h.Queue == nil {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": "no trigger queue configured"})
			return
		}
		if err := h.Queue.Publish(h.Topic, queue.NewTickTrigger("http")); err != nil {
			WriteError(w, h.Logger, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, map[string]any{"success": true, "queued": true})
		return
	}

	res, err := h.Engine.Tick(r.Context())
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"success": true, "result": res})
}
