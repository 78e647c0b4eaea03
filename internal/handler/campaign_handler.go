// internal/handler/campaign_handler.go
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/campaign-dispatcher/internal/service"
)

// CampaignHandler serves the read-only campaign views.
type CampaignHandler struct {
	Service *service.CampaignService
	Logger  *slog.Logger
}

func NewCampaignHandler(svc *service.CampaignService, logger *slog.Logger) *CampaignHandler {
	return &CampaignHandler{Service: svc, Logger: logger}
}

// GetCampaignHandlerWithStats returns the campaign with stats, live state, events and backlog size.
func (h *CampaignHandler) GetCampaignHandlerWithStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	details, err := h.Service.Details(r.Context(), id)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, details)
}

// ListCampaignsHandler returns every campaign, newest first.
func (h *CampaignHandler) ListCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.Service.List(r.Context())
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    campaigns,
	})
}

func (h *CampaignHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.Status(r.Context())
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"activeId": view.ActiveID,
		"campaign": view.Campaign,
		"stats":    view.Stats,
		"live":     view.Live,
	})
}

// CleanupHandler wipes the deployment namespace. Mount it behind RequireSecret.
func (h *CampaignHandler) CleanupHandler(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.Service.Cleanup(r.Context())
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": deleted})
}
