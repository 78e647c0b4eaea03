package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/campaign-dispatcher/internal/errors"
	"github.com/unclebandit/campaign-dispatcher/internal/service"
)

type AccountHandler struct {
	Accounts *service.AccountService
	Logger   *slog.Logger
}

func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.Accounts.List(r.Context())
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"success": true, "accounts": views})
}

func (h *AccountHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Connected *bool  `json:"connected"`
		LastError string `json:"lastError"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, h.Logger, appErrors.NewValidation("invalid body: %v", err))
		return
	}
	if body.Connected == nil {
		WriteError(w, h.Logger, appErrors.NewValidation("connected is required"))
		return
	}

	view, err := h.Accounts.SetStatus(r.Context(), chi.URLParam(r, "id"), *body.Connected, body.LastError)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"success": true, "account": view})
}

// Verify tests the account's SMTP login. A rejected login is reported in the
// body, not as an HTTP error.
func (h *AccountHandler) Verify(w http.ResponseWriter, r *http.Request) {
	err := h.Accounts.Verify(r.Context(), chi.URLParam(r, "id"))
	if appErrors.IsValidation(err) {
		WriteError(w, h.Logger, err)
		return
	}
	if err != nil {
		WriteJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}
