// internal/service/campaign_service.go
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/unclebandit/campaign-dispatcher/internal/config"
	appErrors "github.com/unclebandit/campaign-dispatcher/internal/errors"
	"github.com/unclebandit/campaign-dispatcher/internal/model"
	"github.com/unclebandit/campaign-dispatcher/internal/repository"
	"github.com/unclebandit/campaign-dispatcher/internal/store"
)

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	ActivityRepo repository.ActivityRepositoryInterface
	Store        store.Store
	Defaults     config.DispatchConfig
	Logger       *slog.Logger

	now func() time.Time
}

func NewCampaignService(campaigns repository.CampaignRepositoryInterface, activity repository.ActivityRepositoryInterface, s store.Store, defaults config.DispatchConfig, logger *slog.Logger) *CampaignService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CampaignService{
		CampaignRepo: campaigns,
		ActivityRepo: activity,
		Store:        s,
		Defaults:     defaults,
		Logger:       logger.With("component", "campaigns"),
		now:          time.Now,
	}
}

// StartInput describes a campaign to start or resume.
type StartInput struct {
	Name                    string
	Contacts                []model.Contact
	Brands                  []string
	Templates               []model.Template
	EmailsPerAccountPerHour int
	PerEmailDelayMs         int
}

type StartResult struct {
	CampaignID string `json:"campaignId"`
	Resumed    bool   `json:"resumed"`
}

// CampaignStatusView answers "what is running". Campaign falls back to the
// last campaign when nothing is active.
type CampaignStatusView struct {
	ActiveID string                 `json:"activeId"`
	Campaign *model.CampaignSummary `json:"campaign"`
	Stats    *model.Stats           `json:"stats,omitempty"`
	Live     *model.LiveState       `json:"live,omitempty"`
}

type CampaignDetails struct {
	Campaign     model.CampaignSummary `json:"campaign"`
	Brands       []string              `json:"brands"`
	Templates    []model.Template      `json:"templates"`
	Stats        *model.Stats          `json:"stats"`
	Live         *model.LiveState      `json:"live"`
	Events       []model.Event         `json:"events"`
	RetryBacklog int                   `json:"retryBacklog"`
}

func (in StartInput) validate() error {
	if len(in.Contacts) == 0 {
		return appErrors.NewValidation("contacts array is required")
	}
	if len(cleanBrands(in.Brands)) == 0 {
		return appErrors.NewValidation("brandName is required")
	}
	if len(in.Templates) == 0 {
		return appErrors.NewValidation("template is required")
	}
	for i, t := range in.Templates {
		if strings.TrimSpace(t.Subject) == "" || strings.TrimSpace(t.Body) == "" {
			return appErrors.NewValidation("template %d: subject and content are required", i)
		}
	}
	if in.EmailsPerAccountPerHour < 0 || in.PerEmailDelayMs < 0 {
		return appErrors.NewValidation("caps must not be negative")
	}
	return nil
}

func cleanBrands(brands []string) []string {
	out := make([]string, 0, len(brands))
	for _, b := range brands {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// ContactsDigest fingerprints a contact list. Equal lists give equal digests.
func ContactsDigest(contacts []model.Contact) (string, error) {
	// Maps marshal with sorted keys, so the encoding is canonical.
	raw, err := json.Marshal(contacts)
	if err != nil {
		return "", fmt.Errorf("digest contacts: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Start resumes the last campaign when it is stopped and has the same contact
// list, and creates a new one otherwise.
func (s *CampaignService) Start(ctx context.Context, in StartInput) (*StartResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	if activeID, err := s.CampaignRepo.ActiveID(ctx); err != nil {
		return nil, err
	} else if activeID != "" {
		active, err := s.CampaignRepo.GetByID(ctx, activeID)
		switch {
		case appErrors.IsNotFound(err):
			if err := s.CampaignRepo.ClearActive(ctx); err != nil {
				return nil, err
			}
		case err != nil:
			return nil, err
		case active.Status == model.StatusRunning:
			return nil, appErrors.ErrCampaignRunning
		}
	}

	digest, err := ContactsDigest(in.Contacts)
	if err != nil {
		return nil, err
	}

	lastID, err := s.CampaignRepo.LastID(ctx)
	if err != nil {
		return nil, err
	}
	if lastID != "" {
		last, err := s.CampaignRepo.GetByID(ctx, lastID)
		if err != nil && !appErrors.IsNotFound(err) {
			return nil, err
		}
		if err == nil && last.Status == model.StatusStopped && last.ContactsDigest == digest {
			return s.resume(ctx, last)
		}
	}
	return s.create(ctx, in, digest)
}

func (s *CampaignService) resume(ctx context.Context, c *model.Campaign) (*StartResult, error) {
	now := s.now()
	c.Status = model.StatusRunning
	c.UpdatedAt = now
	if err := s.CampaignRepo.Save(ctx, c); err != nil {
		return nil, err
	}
	if err := s.CampaignRepo.SetActive(ctx, c.ID); err != nil {
		return nil, err
	}
	if err := s.CampaignRepo.SetLast(ctx, c.ID); err != nil {
		return nil, err
	}
	ev := model.Event{Ts: now, Status: model.EventCampaignResumed, CampaignID: c.ID}
	if err := s.ActivityRepo.AppendEvent(ctx, c.ID, ev, s.Defaults.MaxEvents); err != nil {
		return nil, err
	}
	if err := s.ActivityRepo.SetLive(ctx, c.ID, model.LiveState{State: model.LiveIdle, UpdatedAt: now}); err != nil {
		return nil, err
	}

	s.Logger.Info("campaign resumed", "campaign", c.ID, "cursor", c.Cursor, "total", c.Total)
	return &StartResult{CampaignID: c.ID, Resumed: true}, nil
}

func (s *CampaignService) create(ctx context.Context, in StartInput, digest string) (*StartResult, error) {
	now := s.now()
	perAccount := in.EmailsPerAccountPerHour
	if perAccount == 0 {
		perAccount = s.Defaults.EmailsPerAccountPerHour
	}
	delayMs := in.PerEmailDelayMs
	if delayMs == 0 {
		delayMs = int(s.Defaults.PerEmailDelay / time.Millisecond)
	}

	c := &model.Campaign{
		ID:                      "c_" + ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Name:                    strings.TrimSpace(in.Name),
		Status:                  model.StatusRunning,
		Contacts:                in.Contacts,
		ContactsDigest:          digest,
		Brands:                  cleanBrands(in.Brands),
		Templates:               in.Templates,
		Cursor:                  0,
		Total:                   len(in.Contacts),
		EmailsPerAccountPerHour: perAccount,
		PerEmailDelayMs:         delayMs,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	if err := s.CampaignRepo.Save(ctx, c); err != nil {
		return nil, err
	}
	if err := s.ActivityRepo.SaveStats(ctx, model.NewStats(c.ID)); err != nil {
		return nil, err
	}
	if err := s.ActivityRepo.SaveRetry(ctx, c.ID, nil); err != nil {
		return nil, err
	}
	started := model.Event{Ts: now, Status: model.EventCampaignStarted, CampaignID: c.ID}
	if err := s.ActivityRepo.SaveEvents(ctx, c.ID, []model.Event{started}); err != nil {
		return nil, err
	}
	if err := s.ActivityRepo.SetLive(ctx, c.ID, model.LiveState{State: model.LiveIdle, UpdatedAt: now}); err != nil {
		return nil, err
	}
	if err := s.CampaignRepo.SetActive(ctx, c.ID); err != nil {
		return nil, err
	}
	if err := s.CampaignRepo.SetLast(ctx, c.ID); err != nil {
		return nil, err
	}

	s.Logger.Info("campaign started", "campaign", c.ID, "total", c.Total, "brands", len(c.Brands), "templates", len(c.Templates))
	return &StartResult{CampaignID: c.ID}, nil
}

// Stop stops the active campaign. It returns "" when nothing was active.
func (s *CampaignService) Stop(ctx context.Context) (string, error) {
	activeID, err := s.CampaignRepo.ActiveID(ctx)
	if err != nil || activeID == "" {
		return "", err
	}

	c, err := s.CampaignRepo.GetByID(ctx, activeID)
	if err != nil && !appErrors.IsNotFound(err) {
		return "", err
	}
	if err == nil && c.Status == model.StatusRunning {
		now := s.now()
		c.Status = model.StatusStopped
		c.UpdatedAt = now
		if err := s.CampaignRepo.Save(ctx, c); err != nil {
			return "", err
		}
		ev := model.Event{Ts: now, Status: model.EventCampaignStopped, CampaignID: c.ID}
		if err := s.ActivityRepo.AppendEvent(ctx, c.ID, ev, s.Defaults.MaxEvents); err != nil {
			return "", err
		}
		if err := s.ActivityRepo.SetLive(ctx, c.ID, model.LiveState{State: model.LiveStopped, UpdatedAt: now}); err != nil {
			return "", err
		}
		s.Logger.Info("campaign stopped", "campaign", c.ID, "cursor", c.Cursor, "total", c.Total)
	}

	if err := s.CampaignRepo.ClearActive(ctx); err != nil {
		return "", err
	}
	return activeID, nil
}

func (s *CampaignService) Status(ctx context.Context) (*CampaignStatusView, error) {
	activeID, err := s.CampaignRepo.ActiveID(ctx)
	if err != nil {
		return nil, err
	}
	view := &CampaignStatusView{ActiveID: activeID}

	id := activeID
	if id == "" {
		if id, err = s.CampaignRepo.LastID(ctx); err != nil {
			return nil, err
		}
	}
	if id == "" {
		return view, nil
	}

	c, err := s.CampaignRepo.GetByID(ctx, id)
	if appErrors.IsNotFound(err) {
		return view, nil
	}
	if err != nil {
		return nil, err
	}
	summary := c.Summary()
	view.Campaign = &summary

	if view.Stats, err = s.ActivityRepo.GetStats(ctx, id); err != nil {
		return nil, err
	}
	if view.Live, err = s.ActivityRepo.GetLive(ctx, id); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *CampaignService) Details(ctx context.Context, id string) (*CampaignDetails, error) {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &CampaignDetails{
		Campaign:  c.Summary(),
		Brands:    c.Brands,
		Templates: c.Templates,
	}
	if d.Stats, err = s.ActivityRepo.GetStats(ctx, id); err != nil {
		return nil, err
	}
	if d.Live, err = s.ActivityRepo.GetLive(ctx, id); err != nil {
		return nil, err
	}
	if d.Events, err = s.ActivityRepo.GetEvents(ctx, id); err != nil {
		return nil, err
	}
	retry, err := s.ActivityRepo.GetRetry(ctx, id)
	if err != nil {
		return nil, err
	}
	d.RetryBacklog = len(retry)
	return d, nil
}

func (s *CampaignService) List(ctx context.Context) ([]model.CampaignSummary, error) {
	return s.CampaignRepo.List(ctx)
}

// PreviewInput renders a template for one contact. When CampaignID is set its
// first template and brand fill whatever is left empty.
type PreviewInput struct {
	CampaignID string
	Contact    model.Contact
	Template   model.Template
	Brand      string
	SenderName string
}

func (s *CampaignService) Preview(ctx context.Context, in PreviewInput) (*RenderedMessage, error) {
	if in.CampaignID != "" {
		c, err := s.CampaignRepo.GetByID(ctx, in.CampaignID)
		if err != nil {
			return nil, err
		}
		if in.Template.Subject == "" && in.Template.Body == "" && len(c.Templates) > 0 {
			in.Template = c.Templates[0]
		}
		if in.Brand == "" && len(c.Brands) > 0 {
			in.Brand = c.Brands[0]
		}
		if in.Contact == nil && len(c.Contacts) > 0 {
			in.Contact = c.Contacts[0]
		}
	}
	if strings.TrimSpace(in.Template.Subject) == "" && strings.TrimSpace(in.Template.Body) == "" {
		return nil, appErrors.NewValidation("template cannot be empty")
	}
	msg := Render(in.Template, in.Contact, in.Brand, in.SenderName)
	return &msg, nil
}

// Cleanup deletes every key in the deployment namespace. It refuses while a
// campaign is running.
func (s *CampaignService) Cleanup(ctx context.Context) (int, error) {
	activeID, err := s.CampaignRepo.ActiveID(ctx)
	if err != nil {
		return 0, err
	}
	if activeID != "" {
		return 0, appErrors.ErrCampaignRunning
	}

	keys, err := s.Store.Scan(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("scan keys: %w", err)
	}
	deleted := 0
	for _, key := range keys {
		if err := s.Store.Delete(ctx, key); err != nil {
			return deleted, fmt.Errorf("delete %s: %w", key, err)
		}
		deleted++
	}
	s.Logger.Warn("namespace cleaned", "deleted", deleted)
	return deleted, nil
}
