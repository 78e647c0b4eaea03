// internal/service/dispatcher.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/campaign-dispatcher/internal/config"
	appErrors "github.com/unclebandit/campaign-dispatcher/internal/errors"
	"github.com/unclebandit/campaign-dispatcher/internal/mailer"
	"github.com/unclebandit/campaign-dispatcher/internal/metrics"
	"github.com/unclebandit/campaign-dispatcher/internal/model"
	"github.com/unclebandit/campaign-dispatcher/internal/repository"
	"github.com/unclebandit/campaign-dispatcher/internal/store"
)

// Result of one account's batch within a tick.
type AccountResult struct {
	AccountID string      `json:"accountId"`
	Email     string      `json:"email"`
	Assigned  int         `json:"assigned"`
	Sent      int         `json:"sent"`
	Failed    int         `json:"failed"`
	Leftover  int         `json:"leftover"`
	Disabled  bool        `json:"disabled"`
	Errors    []SendError `json:"errors,omitempty"`
}

type SendError struct {
	To    string `json:"to"`
	Error string `json:"error"`
}

// TickResult is the structured outcome of one tick.
type TickResult struct {
	Outcome      string               `json:"outcome"`
	CampaignID   string               `json:"campaignId,omitempty"`
	Status       model.CampaignStatus `json:"status,omitempty"`
	Assigned     int                  `json:"assigned"`
	FromRetry    int                  `json:"fromRetry"`
	FromContacts int                  `json:"fromContacts"`
	Sent         int                  `json:"sent"`
	Failed       int                  `json:"failed"`
	RetryQueued  int                  `json:"retryQueued"`
	Cursor       int                  `json:"cursor"`
	Total        int                  `json:"total"`
	Accounts     []AccountResult      `json:"accounts"`
}

// Dispatcher is the dispatch tick engine. One Tick call runs one tick.
type Dispatcher struct {
	Campaigns repository.CampaignRepositoryInterface
	Activity  repository.ActivityRepositoryInterface
	Accounts  *AccountService
	Transport mailer.Transport
	Lock      *TickLock
	Config    config.DispatchConfig
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
	pick  func(n int) int
}

func NewDispatcher(
	campaigns repository.CampaignRepositoryInterface,
	activity repository.ActivityRepositoryInterface,
	accounts *AccountService,
	transport mailer.Transport,
	lockStore store.Store,
	cfg config.DispatchConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.GetMetrics()
	}
	logger = logger.With("component", "dispatcher")
	return &Dispatcher{
		Campaigns: campaigns,
		Activity:  activity,
		Accounts:  accounts,
		Transport: transport,
		Lock:      &TickLock{Store: lockStore, TTL: cfg.LockTTL, Logger: logger},
		Config:    cfg,
		Metrics:   m,
		Logger:    logger,
		now:       time.Now,
		sleep:     sleepContext,
		pick:      rand.Intn,
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Tick runs one tick. Nothing to do, a non-running campaign, no accounts and
// a held lock are reported through TickResult.Outcome, not as errors.
func (d *Dispatcher) Tick(ctx context.Context) (*TickResult, error) {
	start := d.now()
	res, err := d.tick(ctx)
	if err != nil {
		d.Metrics.TicksTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		d.Logger.Error("tick failed", "error", err)
		return nil, err
	}
	d.Metrics.TicksTotal.WithLabelValues(res.Outcome).Inc()
	if res.Outcome == metrics.OutcomeDispatched {
		d.Metrics.TickDuration.Observe(d.now().Sub(start).Seconds())
	}
	return res, nil
}

func (d *Dispatcher) tick(ctx context.Context) (*TickResult, error) {
	activeID, err := d.Campaigns.ActiveID(ctx)
	if err != nil {
		return nil, err
	}
	if activeID == "" {
		return &TickResult{Outcome: metrics.OutcomeNoCampaign}, nil
	}

	campaign, err := d.Campaigns.GetByID(ctx, activeID)
	if appErrors.IsNotFound(err) {
		d.Logger.Warn("active pointer references a missing campaign, clearing", "campaign", activeID)
		if err := d.Campaigns.ClearActive(ctx); err != nil {
			return nil, err
		}
		return &TickResult{Outcome: metrics.OutcomeNoCampaign}, nil
	}
	if err != nil {
		return nil, err
	}

	res := &TickResult{
		CampaignID: campaign.ID,
		Status:     campaign.Status,
		Cursor:     campaign.Cursor,
		Total:      campaign.Total,
		Accounts:   []AccountResult{},
	}
	if campaign.Status != model.StatusRunning {
		res.Outcome = metrics.OutcomeNotRunning
		return res, nil
	}

	connected, _, err := d.Accounts.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if len(connected) == 0 {
		return d.idleNoAccounts(ctx, res)
	}

	backlog, err := d.Activity.GetRetry(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}
	drained := campaign.Exhausted() && len(backlog) == 0

	// Completion also runs under the lock: an in-flight final batch may still
	// return transient failures to the backlog.
	release, ok, err := d.Lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		d.Metrics.TickLockContention.Inc()
		d.Logger.Info("tick already in flight, skipping", "campaign", campaign.ID)
		res.Outcome = metrics.OutcomeLocked
		return res, nil
	}
	defer release()

	if drained {
		return d.completeIfDrained(ctx, campaign.ID, res)
	}
	return d.dispatch(ctx, campaign.ID, res)
}

// completeIfDrained completes the campaign when nothing is left to send. A
// tick that finished while we waited for the lock may have refilled the
// backlog, in which case this tick dispatches it. The caller holds the lock.
func (d *Dispatcher) completeIfDrained(ctx context.Context, campaignID string, res *TickResult) (*TickResult, error) {
	campaign, err := d.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.StatusRunning {
		res.Outcome = metrics.OutcomeNotRunning
		res.Status = campaign.Status
		return res, nil
	}
	backlog, err := d.Activity.GetRetry(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}
	if !campaign.Exhausted() || len(backlog) > 0 {
		return d.dispatch(ctx, campaign.ID, res)
	}

	if err := d.complete(ctx, campaign); err != nil {
		return nil, err
	}
	res.Outcome = metrics.OutcomeCompleted
	res.Status = model.StatusCompleted
	res.Cursor = campaign.Cursor
	return res, nil
}

// dispatch runs the send phase. The caller holds the tick lock.
func (d *Dispatcher) dispatch(ctx context.Context, campaignID string, res *TickResult) (*TickResult, error) {
	// Re-read under the lock: a tick that finished while we waited may have
	// moved the cursor or the backlog.
	campaign, err := d.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.StatusRunning {
		res.Outcome = metrics.OutcomeNotRunning
		res.Status = campaign.Status
		return res, nil
	}
	backlog, err := d.Activity.GetRetry(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}

	connected, _, err := d.Accounts.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	accounts := d.usableAccounts(ctx, connected)
	if len(accounts) == 0 {
		return d.idleNoAccounts(ctx, res)
	}

	perAccount := campaign.EmailsPerAccountPerHour
	if perAccount <= 0 {
		perAccount = d.Config.EmailsPerAccountPerHour
	}
	delay := time.Duration(campaign.PerEmailDelayMs) * time.Millisecond
	if campaign.PerEmailDelayMs <= 0 {
		delay = d.Config.PerEmailDelay
	}
	d.warnIfTickOutlivesLock(len(accounts), perAccount, delay)

	capacity := len(accounts) * perAccount
	wq := BuildWorkQueue(capacity, backlog, campaign.Contacts, campaign.Cursor)

	// Re-read right before the commit so a stop that landed while accounts
	// were resolved is not overwritten.
	latest, err := d.Campaigns.GetByID(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}
	if latest.Status != model.StatusRunning {
		d.Logger.Info("campaign left running before dispatch, skipping", "campaign", campaign.ID, "status", latest.Status)
		res.Outcome = metrics.OutcomeNotRunning
		res.Status = latest.Status
		return res, nil
	}
	campaign = latest

	// The cursor is committed before any send so a crash never re-sends fresh
	// contacts.
	campaign.Cursor = wq.NextCursor
	campaign.UpdatedAt = d.now()
	if err := d.Campaigns.Save(ctx, campaign); err != nil {
		return nil, err
	}
	if err := d.Activity.SaveRetry(ctx, campaign.ID, wq.Remaining); err != nil {
		return nil, err
	}

	d.Logger.Info("tick work queue built",
		"campaign", campaign.ID,
		"accounts", len(accounts),
		"capacity", capacity,
		"fromRetry", wq.FromRetry,
		"fromContacts", wq.FromContacts,
		"queue", len(wq.Items),
		"cursor", campaign.Cursor,
		"total", campaign.Total,
	)

	rec, err := newActivityRecorder(ctx, d.Activity, campaign.ID, d.Config.MaxEvents, d.now, d.Logger)
	if err != nil {
		return nil, err
	}

	batches, overflow := Partition(wq.Items, accounts, perAccount)
	results := make([]AccountResult, len(accounts))
	leftovers := make([][]model.WorkItem, len(accounts))

	var g errgroup.Group
	g.SetLimit(max(d.Config.Concurrency, 1))
	for i, account := range accounts {
		i, account := i, account
		batch := batches[account.ID]
		if len(batch) == 0 {
			results[i] = AccountResult{AccountID: account.ID, Email: account.Email}
			continue
		}
		g.Go(func() error {
			results[i], leftovers[i] = d.runAccount(ctx, campaign, account, batch, delay, rec)
			return nil
		})
	}
	_ = g.Wait()

	// Persist the outcome even if the caller gave up on us.
	ctx = context.WithoutCancel(ctx)

	var retry []model.WorkItem
	for i := range leftovers {
		retry = append(retry, leftovers[i]...)
	}
	retry = append(retry, overflow...)
	merged := MergeBacklog(wq.Remaining, retry, d.Config.MaxRetryBacklog)
	if err := d.Activity.SaveRetry(ctx, campaign.ID, merged); err != nil {
		return nil, err
	}
	d.Metrics.RetryBacklogSize.Set(float64(len(merged)))

	res.Outcome = metrics.OutcomeDispatched
	res.Assigned = len(wq.Items)
	res.FromRetry = wq.FromRetry
	res.FromContacts = wq.FromContacts
	res.RetryQueued = len(merged)
	res.Cursor = campaign.Cursor
	res.Accounts = results
	for _, r := range results {
		res.Sent += r.Sent
		res.Failed += r.Failed
	}

	// Stop may have landed mid-tick; only a still-running campaign moves on.
	current, err := d.Campaigns.GetByID(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}
	res.Status = current.Status
	if current.Status == model.StatusRunning {
		if current.Exhausted() && len(merged) == 0 {
			if err := d.complete(ctx, current); err != nil {
				return nil, err
			}
			res.Status = model.StatusCompleted
		} else {
			live := model.LiveState{State: model.LiveIdleWaitingNextTick, UpdatedAt: d.now()}
			if err := d.Activity.SetLive(ctx, campaign.ID, live); err != nil {
				return nil, err
			}
		}
	}

	d.Logger.Info("tick finished",
		"campaign", campaign.ID,
		"sent", res.Sent,
		"failed", res.Failed,
		"retryBacklog", len(merged),
		"cursor", campaign.Cursor,
		"status", res.Status,
	)
	return res, nil
}

// runAccount sends batch through one account, strictly in order. It returns
// the items to carry into the retry backlog.
func (d *Dispatcher) runAccount(ctx context.Context, campaign *model.Campaign, account model.Account, batch []model.WorkItem, delay time.Duration, rec *activityRecorder) (AccountResult, []model.WorkItem) {
	result := AccountResult{AccountID: account.ID, Email: account.Email, Assigned: len(batch)}
	var leftovers []model.WorkItem
	logger := d.Logger.With("campaign", campaign.ID, "account", account.ID)

	for i, item := range batch {
		if ctx.Err() != nil {
			leftovers = append(leftovers, batch[i:]...)
			break
		}

		to := item.Contact.Email()
		if to == "" {
			result.Failed++
			rec.failed(ctx, account, "", "Missing email in contact row", model.NoteMissingEmail, true)
			d.Metrics.EmailsFailed.WithLabelValues(account.ID, PermanentRecipient.String()).Inc()
			continue
		}

		rec.sending(ctx, account, to)
		msg := Render(d.pickTemplate(campaign), item.Contact, d.pickBrand(campaign), account.SenderName)
		_, err := d.Transport.Send(ctx, account, mailer.Message{To: to, Subject: msg.Subject, HTML: msg.HTML})
		if err == nil {
			result.Sent++
			rec.sent(ctx, account, to)
			d.Metrics.EmailsSent.WithLabelValues(account.ID).Inc()
			d.sleep(ctx, delay)
			continue
		}

		errMsg := err.Error()
		class := Classify(err)
		result.Failed++
		result.Errors = append(result.Errors, SendError{To: to, Error: errMsg})
		d.Metrics.EmailsFailed.WithLabelValues(account.ID, class.String()).Inc()

		switch class {
		case AccountLevel:
			if err := d.Accounts.Disable(ctx, account.ID, errMsg); err != nil {
				logger.Error("failed to disable account", "error", err)
			}
			d.Metrics.AccountsDisabled.WithLabelValues(account.ID).Inc()
			rec.failed(ctx, account, to, errMsg, model.NoteAccountDisabled, false)
			logger.Warn("account disabled after send failure", "error", errMsg, "returned", len(batch)-i)
			result.Disabled = true
			leftovers = append(leftovers, batch[i:]...)
			result.Leftover = len(leftovers)
			return result, leftovers

		case PermanentRecipient:
			rec.failed(ctx, account, to, errMsg, model.NotePermanentDropped, true)

		default:
			item.RetryCount++
			if item.RetryCount > d.Config.MaxRetries {
				rec.failed(ctx, account, to, errMsg, model.NoteRetryExhausted, true)
				logger.Warn("retry budget exhausted, dropping contact", "to", to, "retries", item.RetryCount-1)
				continue
			}
			rec.failed(ctx, account, to, errMsg, model.NoteTransientRetry, false)
			leftovers = append(leftovers, item)
		}
	}

	result.Leftover = len(leftovers)
	return result, leftovers
}

// usableAccounts benches connected accounts that cannot authenticate.
func (d *Dispatcher) usableAccounts(ctx context.Context, connected []model.Account) []model.Account {
	usable := make([]model.Account, 0, len(connected))
	for _, a := range connected {
		reason := missingCredentials(a)
		if reason == "" {
			usable = append(usable, a)
			continue
		}
		if err := d.Accounts.Disable(ctx, a.ID, reason); err != nil {
			d.Logger.Error("failed to disable account", "account", a.ID, "error", err)
		}
		d.Metrics.AccountsDisabled.WithLabelValues(a.ID).Inc()
		d.Logger.Warn("account disabled, missing credentials", "account", a.ID)
	}
	return usable
}

func (d *Dispatcher) idleNoAccounts(ctx context.Context, res *TickResult) (*TickResult, error) {
	live := model.LiveState{State: model.LiveIdleNoAccounts, UpdatedAt: d.now()}
	if err := d.Activity.SetLive(ctx, res.CampaignID, live); err != nil {
		return nil, err
	}
	d.Logger.Warn("no connected accounts", "campaign", res.CampaignID)
	res.Outcome = metrics.OutcomeNoAccounts
	return res, nil
}

// complete moves a running campaign to its terminal state. The last pointer is kept.
func (d *Dispatcher) complete(ctx context.Context, campaign *model.Campaign) error {
	now := d.now()
	campaign.Status = model.StatusCompleted
	campaign.UpdatedAt = now
	if err := d.Campaigns.Save(ctx, campaign); err != nil {
		return err
	}
	if err := d.Campaigns.ClearActive(ctx); err != nil {
		return err
	}
	ev := model.Event{Ts: now, Status: model.EventCampaignCompleted, CampaignID: campaign.ID}
	if err := d.Activity.AppendEvent(ctx, campaign.ID, ev, d.Config.MaxEvents); err != nil {
		return err
	}
	if err := d.Activity.SetLive(ctx, campaign.ID, model.LiveState{State: model.LiveCompleted, UpdatedAt: now}); err != nil {
		return err
	}
	d.Logger.Info("campaign completed", "campaign", campaign.ID, "total", campaign.Total)
	return nil
}

func (d *Dispatcher) warnIfTickOutlivesLock(accounts, perAccount int, delay time.Duration) {
	concurrency := max(d.Config.Concurrency, 1)
	waves := (accounts + concurrency - 1) / concurrency
	estimate := time.Duration(waves*perAccount) * delay
	if d.Config.LockTTL > 0 && estimate >= d.Config.LockTTL {
		d.Logger.Warn("estimated tick duration exceeds the tick lock TTL",
			"estimate", estimate.String(),
			"ttl", d.Config.LockTTL.String(),
		)
	}
}

func (d *Dispatcher) pickTemplate(c *model.Campaign) model.Template {
	if len(c.Templates) == 0 {
		return model.Template{}
	}
	return c.Templates[d.pick(len(c.Templates))]
}

func (d *Dispatcher) pickBrand(c *model.Campaign) string {
	if len(c.Brands) == 0 {
		return ""
	}
	return c.Brands[d.pick(len(c.Brands))]
}

// String is used by the CLI.
func (r *TickResult) String() string {
	return fmt.Sprintf("outcome=%s campaign=%s assigned=%d sent=%d failed=%d retry=%d cursor=%d/%d",
		r.Outcome, r.CampaignID, r.Assigned, r.Sent, r.Failed, r.RetryQueued, r.Cursor, r.Total)
}
