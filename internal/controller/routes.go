package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/unclebandit/campaign-dispatcher/internal/handler"
	"github.com/unclebandit/campaign-dispatcher/internal/metrics"
)

type Routes struct {
	Campaigns  *CampaignController
	Views      *handler.CampaignHandler
	Ticks      *handler.TickHandler
	Accounts   *handler.AccountHandler
	AutoSecret string
}

func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		handler.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Campaign lifecycle
	r.Post("/auto/start", rt.Campaigns.Start)
	r.Post("/auto/stop", rt.Campaigns.Stop)
	r.Get("/auto/status", rt.Views.StatusHandler)

	r.Get("/campaigns", rt.Views.ListCampaignsHandler)
	r.Get("/campaigns/{id}", rt.Views.GetCampaignHandlerWithStats)
	r.Post("/campaigns/{id}/personalized-preview", rt.Campaigns.PersonalizedPreview)
	r.Post("/preview", rt.Campaigns.PersonalizedPreview)

	// Accounts
	r.Get("/accounts", rt.Accounts.List)
	r.Post("/accounts/{id}/status", rt.Accounts.SetStatus)
	r.Post("/accounts/{id}/verify", rt.Accounts.Verify)

	r.Group(func(r chi.Router) {
		r.Use(handler.RequireSecret(rt.AutoSecret))
		r.Post("/auto/tick", rt.Ticks.Tick)
		r.Post("/admin/cleanup", rt.Views.CleanupHandler)
	})

	return r
}
