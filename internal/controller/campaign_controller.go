// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/campaign-dispatcher/internal/errors"
	"github.com/unclebandit/campaign-dispatcher/internal/handler"
	"github.com/unclebandit/campaign-dispatcher/internal/model"
	"github.com/unclebandit/campaign-dispatcher/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	Logger          *slog.Logger
}

// stringList accepts either a JSON string or an array of strings.
type stringList []string

func (s *stringList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one == "" {
			*s = nil
		} else {
			*s = []string{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

type templateBody struct {
	Subject stringList `json:"subject"`
	Content stringList `json:"content"`
}

type startBody struct {
	Name                    string           `json:"name"`
	Contacts                []model.Contact  `json:"contacts"`
	BrandName               stringList       `json:"brandName"`
	Brands                  []string         `json:"brands"`
	Template                *templateBody    `json:"template"`
	Templates               []model.Template `json:"templates"`
	EmailsPerAccountPerHour int              `json:"emailsPerAccountPerHour"`
	PerEmailDelayMs         int              `json:"perEmailDelayMs"`
}

// input flattens the body. Subject and content lists expand to every pairing,
// so picking one template uniformly picks subject and content independently.
func (b startBody) input() service.StartInput {
	in := service.StartInput{
		Name:                    b.Name,
		Contacts:                b.Contacts,
		Brands:                  append(append([]string{}, b.Brands...), b.BrandName...),
		Templates:               append([]model.Template{}, b.Templates...),
		EmailsPerAccountPerHour: b.EmailsPerAccountPerHour,
		PerEmailDelayMs:         b.PerEmailDelayMs,
	}
	if b.Template != nil {
		for _, subject := range b.Template.Subject {
			for _, body := range b.Template.Content {
				in.Templates = append(in.Templates, model.Template{Subject: subject, Body: body})
			}
		}
		if len(b.Template.Subject) == 0 || len(b.Template.Content) == 0 {
			// Keep the variant so validation reports the missing half.
			in.Templates = append(in.Templates, model.Template{Subject: first(b.Template.Subject), Body: first(b.Template.Content)})
		}
	}
	return in
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// Start starts a new campaign or resumes the stopped one with the same contacts.
func (c *CampaignController) Start(w http.ResponseWriter, r *http.Request) {
	var body startBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handler.WriteError(w, c.Logger, appErrors.NewValidation("invalid body: %v", err))
		return
	}

	res, err := c.CampaignService.Start(r.Context(), body.input())
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"campaignId": res.CampaignID,
		"resumed":    res.Resumed,
	})
}

func (c *CampaignController) Stop(w http.ResponseWriter, r *http.Request) {
	id, err := c.CampaignService.Stop(r.Context())
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	if id == "" {
		handler.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "No active campaign"})
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "campaignId": id, "message": "Stopped (campaign saved)"})
}

// PersonalizedPreview renders the campaign's template for a contact. Any
// field in the body overrides the campaign's own.
func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Contact    model.Contact   `json:"contact"`
		Template   *model.Template `json:"template"`
		Brand      string          `json:"brandName"`
		SenderName string          `json:"senderName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handler.WriteError(w, c.Logger, appErrors.NewValidation("invalid body: %v", err))
		return
	}

	in := service.PreviewInput{
		CampaignID: chi.URLParam(r, "id"),
		Contact:    body.Contact,
		Brand:      body.Brand,
		SenderName: body.SenderName,
	}
	if body.Template != nil {
		in.Template = *body.Template
	}

	rendered, err := c.CampaignService.Preview(r.Context(), in)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, rendered)
}
