package repository

import (
	"context"

	"github.com/unclebandit/campaign-dispatcher/internal/model"
	"github.com/unclebandit/campaign-dispatcher/internal/store"
)

// HealthRepositoryInterface persists the global account health registry, one
// record shared by every campaign.
type HealthRepositoryInterface interface {
	Load(ctx context.Context) (model.HealthRegistry, error)
	Save(ctx context.Context, h model.HealthRegistry) error
}

type HealthRepository struct {
	Store store.Store
}

func (r *HealthRepository) Load(ctx context.Context) (model.HealthRegistry, error) {
	h := model.HealthRegistry{}
	if _, err := getJSON(ctx, r.Store, KeyHealth, &h); err != nil {
		return nil, err
	}
	if h == nil {
		h = model.HealthRegistry{}
	}
	return h, nil
}

func (r *HealthRepository) Save(ctx context.Context, h model.HealthRegistry) error {
	return setJSON(ctx, r.Store, KeyHealth, h)
}

var _ HealthRepositoryInterface = (*HealthRepository)(nil)
