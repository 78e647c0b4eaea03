package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/unclebandit/campaign-dispatcher/internal/model"
	"github.com/unclebandit/campaign-dispatcher/internal/repository"
)

// activityRecorder persists stats, events and live state for one tick. Account
// workers share it; every write is serialized and flushed immediately so
// readers see progress while the tick runs.
type activityRecorder struct {
	repo       repository.ActivityRepositoryInterface
	campaignID string
	maxEvents  int
	now        func() time.Time
	logger     *slog.Logger

	mu    sync.Mutex
	stats *model.Stats
}

func newActivityRecorder(ctx context.Context, repo repository.ActivityRepositoryInterface, campaignID string, maxEvents int, now func() time.Time, logger *slog.Logger) (*activityRecorder, error) {
	stats, err := repo.GetStats(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return &activityRecorder{
		repo:       repo,
		campaignID: campaignID,
		maxEvents:  maxEvents,
		now:        now,
		logger:     logger,
		stats:      stats,
	}, nil
}

func (r *activityRecorder) sending(ctx context.Context, a model.Account, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setLive(ctx, model.LiveState{
		State:             model.LiveSending,
		CurrentAccountID:  a.ID,
		CurrentEmail:      a.Email,
		CurrentSenderName: a.SenderName,
		CurrentTo:         to,
		UpdatedAt:         r.now(),
	})
}

func (r *activityRecorder) sent(ctx context.Context, a model.Account, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	st := r.stats.Account(a)
	st.Sent++
	st.LastSentAt = now
	r.stats.TotalSent++
	r.flushStats(ctx)

	r.appendEvent(ctx, model.Event{
		Ts:         now,
		Status:     model.EventSent,
		CampaignID: r.campaignID,
		AccountID:  a.ID,
		From:       a.Email,
		SenderName: a.SenderName,
		To:         to,
	})
}

// failed records one failed attempt. dropped marks the contact as given up on.
func (r *activityRecorder) failed(ctx context.Context, a model.Account, to, errMsg, note string, dropped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.Account(a).Failed++
	r.stats.TotalFailed++
	if dropped {
		r.stats.TotalDropped++
	}
	r.flushStats(ctx)

	r.appendEvent(ctx, model.Event{
		Ts:         r.now(),
		Status:     model.EventFailed,
		CampaignID: r.campaignID,
		AccountID:  a.ID,
		From:       a.Email,
		SenderName: a.SenderName,
		To:         to,
		Error:      errMsg,
		Note:       note,
	})
}

func (r *activityRecorder) flushStats(ctx context.Context) {
	if err := r.repo.SaveStats(ctx, r.stats); err != nil {
		r.logger.Warn("failed to persist stats", "campaign", r.campaignID, "error", err)
	}
}

func (r *activityRecorder) appendEvent(ctx context.Context, ev model.Event) {
	if err := r.repo.AppendEvent(ctx, r.campaignID, ev, r.maxEvents); err != nil {
		r.logger.Warn("failed to append event", "campaign", r.campaignID, "status", ev.Status, "error", err)
	}
}

func (r *activityRecorder) setLive(ctx context.Context, live model.LiveState) {
	if err := r.repo.SetLive(ctx, r.campaignID, live); err != nil {
		r.logger.Warn("failed to update live state", "campaign", r.campaignID, "error", err)
	}
}
