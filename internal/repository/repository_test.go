package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/campaign-dispatcher/internal/errors"
	"github.com/unclebandit/campaign-dispatcher/internal/model"
	"github.com/unclebandit/campaign-dispatcher/internal/store"
)

func TestCampaignRepositoryRoundTripAndPointers(t *testing.T) {
	ctx := context.Background()
	repo := &CampaignRepository{Store: store.NewMemory()}

	_, err := repo.GetByID(ctx, "c_missing")
	assert.True(t, appErrors.IsNotFound(err))

	c := &model.Campaign{ID: "c_1", Status: model.StatusRunning, Contacts: []model.Contact{{"email": "a@x.io"}}, Total: 1}
	require.NoError(t, repo.Save(ctx, c))

	got, err := repo.GetByID(ctx, "c_1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, got.Status)
	assert.Equal(t, "a@x.io", got.Contacts[0].Email())

	id, err := repo.ActiveID(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, repo.SetActive(ctx, "c_1"))
	require.NoError(t, repo.SetLast(ctx, "c_1"))
	id, _ = repo.ActiveID(ctx)
	assert.Equal(t, "c_1", id)

	require.NoError(t, repo.ClearActive(ctx))
	id, _ = repo.ActiveID(ctx)
	assert.Empty(t, id)
	last, _ := repo.LastID(ctx)
	assert.Equal(t, "c_1", last)
}

func TestCampaignRepositoryListSkipsDerivedRecords(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	repo := &CampaignRepository{Store: s}
	activity := &ActivityRepository{Store: s}

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Save(ctx, &model.Campaign{
			ID:        fmt.Sprintf("c_%d", i),
			Status:    model.StatusCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
		require.NoError(t, activity.SaveStats(ctx, model.NewStats(fmt.Sprintf("c_%d", i))))
	}
	require.NoError(t, repo.SetActive(ctx, "c_2"))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "c_2", list[0].ID)
	assert.Equal(t, "c_0", list[2].ID)
}

func TestActivityRepositoryEventRingEvictsOldest(t *testing.T) {
	ctx := context.Background()
	repo := &ActivityRepository{Store: store.NewMemory()}

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.AppendEvent(ctx, "c_1", model.Event{Status: model.EventSent, To: fmt.Sprintf("%d@x.io", i)}, 3))
	}
	events, err := repo.GetEvents(ctx, "c_1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "2@x.io", events[0].To)
	assert.Equal(t, "4@x.io", events[2].To)
}

func TestActivityRepositoryDefaults(t *testing.T) {
	ctx := context.Background()
	repo := &ActivityRepository{Store: store.NewMemory()}

	stats, err := repo.GetStats(ctx, "c_1")
	require.NoError(t, err)
	assert.Equal(t, "c_1", stats.CampaignID)
	assert.NotNil(t, stats.ByAccount)

	live, err := repo.GetLive(ctx, "c_1")
	require.NoError(t, err)
	assert.Nil(t, live)

	retry, err := repo.GetRetry(ctx, "c_1")
	require.NoError(t, err)
	assert.Empty(t, retry)

	items := []model.WorkItem{{Contact: model.Contact{"email": "a@x.io"}, RetryCount: 2}}
	require.NoError(t, repo.SaveRetry(ctx, "c_1", items))
	retry, err = repo.GetRetry(ctx, "c_1")
	require.NoError(t, err)
	assert.Equal(t, items, retry)
}

func TestHealthRepository(t *testing.T) {
	ctx := context.Background()
	repo := &HealthRepository{Store: store.NewMemory()}

	h, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, h)

	h["7"] = model.AccountHealth{Connected: false, LastError: "535-5.7.8 bad credentials"}
	require.NoError(t, repo.Save(ctx, h))

	h, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.False(t, h.Connected("7"))
	assert.True(t, h.Connected("8"))
}
