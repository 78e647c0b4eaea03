package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	appErrors "github.com/unclebandit/campaign-dispatcher/internal/errors"
	"github.com/unclebandit/campaign-dispatcher/internal/model"
	"github.com/unclebandit/campaign-dispatcher/internal/store"
)

type CampaignRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	Save(ctx context.Context, c *model.Campaign) error
	List(ctx context.Context) ([]model.CampaignSummary, error)

	// Pointers
	ActiveID(ctx context.Context) (string, error)
	SetActive(ctx context.Context, id string) error
	ClearActive(ctx context.Context) error
	LastID(ctx context.Context) (string, error)
	SetLast(ctx context.Context, id string) error
}

type CampaignRepository struct {
	Store store.Store
}

// ====================== Campaign records ======================

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	var c model.Campaign
	found, err := getJSON(ctx, r.Store, CampaignKey(id), &c)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return &c, nil
}

func (r *CampaignRepository) Save(ctx context.Context, c *model.Campaign) error {
	if c.ID == "" {
		return fmt.Errorf("save campaign: empty id")
	}
	return setJSON(ctx, r.Store, CampaignKey(c.ID), c)
}

// List returns every campaign record, newest first.
func (r *CampaignRepository) List(ctx context.Context) ([]model.CampaignSummary, error) {
	keys, err := r.Store.Scan(ctx, campaignPrefix)
	if err != nil {
		return nil, fmt.Errorf("scan campaigns: %w", err)
	}

	summaries := []model.CampaignSummary{}
	for _, key := range keys {
		id := strings.TrimPrefix(key, campaignPrefix)
		if id == "active" || id == "last" || strings.Contains(id, ":") {
			continue
		}
		c, err := r.GetByID(ctx, id)
		if appErrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, c.Summary())
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// ====================== Pointers ======================

func (r *CampaignRepository) ActiveID(ctx context.Context) (string, error) {
	return getString(ctx, r.Store, KeyActive)
}

func (r *CampaignRepository) SetActive(ctx context.Context, id string) error {
	return r.Store.Set(ctx, KeyActive, []byte(id))
}

func (r *CampaignRepository) ClearActive(ctx context.Context) error {
	return r.Store.Delete(ctx, KeyActive)
}

func (r *CampaignRepository) LastID(ctx context.Context) (string, error) {
	return getString(ctx, r.Store, KeyLast)
}

func (r *CampaignRepository) SetLast(ctx context.Context, id string) error {
	return r.Store.Set(ctx, KeyLast, []byte(id))
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
