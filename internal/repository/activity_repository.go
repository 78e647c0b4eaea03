package repository

import (
	"context"

	"github.com/unclebandit/campaign-dispatcher/internal/model"
	"github.com/unclebandit/campaign-dispatcher/internal/store"
)

// ActivityRepositoryInterface covers the four records derived from a
// campaign: stats, live state, event ring and retry backlog.
type ActivityRepositoryInterface interface {
	GetStats(ctx context.Context, campaignID string) (*model.Stats, error)
	SaveStats(ctx context.Context, s *model.Stats) error

	GetLive(ctx context.Context, campaignID string) (*model.LiveState, error)
	SetLive(ctx context.Context, campaignID string, live model.LiveState) error

	GetEvents(ctx context.Context, campaignID string) ([]model.Event, error)
	SaveEvents(ctx context.Context, campaignID string, events []model.Event) error
	AppendEvent(ctx context.Context, campaignID string, ev model.Event, capacity int) error

	GetRetry(ctx context.Context, campaignID string) ([]model.WorkItem, error)
	SaveRetry(ctx context.Context, campaignID string, items []model.WorkItem) error
}

type ActivityRepository struct {
	Store store.Store
}

// GetStats returns zeroed stats when none were recorded yet.
func (r *ActivityRepository) GetStats(ctx context.Context, campaignID string) (*model.Stats, error) {
	s := model.NewStats(campaignID)
	if _, err := getJSON(ctx, r.Store, StatsKey(campaignID), s); err != nil {
		return nil, err
	}
	if s.ByAccount == nil {
		s.ByAccount = map[string]*model.AccountStats{}
	}
	return s, nil
}

func (r *ActivityRepository) SaveStats(ctx context.Context, s *model.Stats) error {
	return setJSON(ctx, r.Store, StatsKey(s.CampaignID), s)
}

// GetLive returns nil when no snapshot exists.
func (r *ActivityRepository) GetLive(ctx context.Context, campaignID string) (*model.LiveState, error) {
	var live model.LiveState
	found, err := getJSON(ctx, r.Store, LiveKey(campaignID), &live)
	if err != nil || !found {
		return nil, err
	}
	return &live, nil
}

func (r *ActivityRepository) SetLive(ctx context.Context, campaignID string, live model.LiveState) error {
	return setJSON(ctx, r.Store, LiveKey(campaignID), live)
}

func (r *ActivityRepository) GetEvents(ctx context.Context, campaignID string) ([]model.Event, error) {
	events := []model.Event{}
	if _, err := getJSON(ctx, r.Store, EventsKey(campaignID), &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *ActivityRepository) SaveEvents(ctx context.Context, campaignID string, events []model.Event) error {
	return setJSON(ctx, r.Store, EventsKey(campaignID), events)
}

// AppendEvent adds ev to the ring and evicts the oldest entries beyond capacity.
func (r *ActivityRepository) AppendEvent(ctx context.Context, campaignID string, ev model.Event, capacity int) error {
	events, err := r.GetEvents(ctx, campaignID)
	if err != nil {
		return err
	}
	return r.SaveEvents(ctx, campaignID, TrimEvents(append(events, ev), capacity))
}

func (r *ActivityRepository) GetRetry(ctx context.Context, campaignID string) ([]model.WorkItem, error) {
	items := []model.WorkItem{}
	if _, err := getJSON(ctx, r.Store, RetryKey(campaignID), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *ActivityRepository) SaveRetry(ctx context.Context, campaignID string, items []model.WorkItem) error {
	if items == nil {
		items = []model.WorkItem{}
	}
	return setJSON(ctx, r.Store, RetryKey(campaignID), items)
}

// TrimEvents keeps the newest capacity events.
func TrimEvents(events []model.Event, capacity int) []model.Event {
	if capacity > 0 && len(events) > capacity {
		return events[len(events)-capacity:]
	}
	return events
}

var _ ActivityRepositoryInterface = (*ActivityRepository)(nil)
