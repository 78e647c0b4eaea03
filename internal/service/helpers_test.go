package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-dispatcher/internal/config"
	"github.com/unclebandit/campaign-dispatcher/internal/directory"
	"github.com/unclebandit/campaign-dispatcher/internal/mailer"
	"github.com/unclebandit/campaign-dispatcher/internal/metrics"
	"github.com/unclebandit/campaign-dispatcher/internal/model"
	"github.com/unclebandit/campaign-dispatcher/internal/repository"
	"github.com/unclebandit/campaign-dispatcher/internal/store"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type sentMail struct {
	AccountID string
	To        string
	Subject   string
	HTML      string
}

// fakeTransport records sends and fails them according to fail.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []sentMail
	attempts map[string]int
	inflight map[string]int
	overlap  bool
	fail     func(account model.Account, to string) error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{attempts: map[string]int{}, inflight: map[string]int{}}
}

func (f *fakeTransport) Send(_ context.Context, account model.Account, msg mailer.Message) (string, error) {
	f.mu.Lock()
	f.attempts[account.ID]++
	f.inflight[account.ID]++
	if f.inflight[account.ID] > 1 {
		f.overlap = true
	}
	fail := f.fail
	f.mu.Unlock()

	time.Sleep(100 * time.Microsecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight[account.ID]--
	if fail != nil {
		if err := fail(account, msg.To); err != nil {
			return "", err
		}
	}
	f.sent = append(f.sent, sentMail{AccountID: account.ID, To: msg.To, Subject: msg.Subject, HTML: msg.HTML})
	return fmt.Sprintf("<%d@test>", len(f.sent)), nil
}

func (f *fakeTransport) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.To)
	}
	return out
}

func (f *fakeTransport) sentBy(accountID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sent {
		if s.AccountID == accountID {
			n++
		}
	}
	return n
}

type fakeVerifier struct {
	err     error
	checked []string
}

func (v *fakeVerifier) Verify(_ context.Context, a model.Account) error {
	v.checked = append(v.checked, a.ID)
	return v.err
}

type harness struct {
	store      *store.Memory
	campaigns  *repository.CampaignRepository
	activity   *repository.ActivityRepository
	health     *repository.HealthRepository
	accounts   *AccountService
	transport  *fakeTransport
	dispatcher *Dispatcher
	service    *CampaignService
	cfg        config.DispatchConfig
}

func testDispatchConfig() config.DispatchConfig {
	return config.DispatchConfig{
		Concurrency:             5,
		EmailsPerAccountPerHour: 40,
		PerEmailDelay:           time.Millisecond,
		MaxEvents:               300,
		MaxRetries:              3,
		MaxRetryBacklog:         10000,
		LockTTL:                 30 * time.Minute,
	}
}

func newHarness(t *testing.T, accounts ...model.Account) *harness {
	t.Helper()
	h := &harness{store: store.NewMemory(), transport: newFakeTransport(), cfg: testDispatchConfig()}
	h.campaigns = &repository.CampaignRepository{Store: h.store}
	h.activity = &repository.ActivityRepository{Store: h.store}
	h.health = &repository.HealthRepository{Store: h.store}
	h.accounts = NewAccountService(directory.Static(accounts), h.health, &fakeVerifier{}, testLogger)
	h.dispatcher = NewDispatcher(h.campaigns, h.activity, h.accounts, h.transport, h.store, h.cfg,
		metrics.New(prometheus.NewRegistry()), testLogger)
	h.dispatcher.sleep = func(context.Context, time.Duration) {}
	h.service = NewCampaignService(h.campaigns, h.activity, h.store, h.cfg, testLogger)
	return h
}

func account(id string) model.Account {
	return model.Account{ID: id, Email: id + "@sender.example", SenderName: "Sender " + id, Secret: "secret-" + id}
}

func contacts(n int) []model.Contact {
	out := make([]model.Contact, n)
	for i := range out {
		out[i] = model.Contact{"email": fmt.Sprintf("c%03d@example.org", i), "name": fmt.Sprintf("Contact %d", i)}
	}
	return out
}

func startInput(cs []model.Contact) StartInput {
	return StartInput{
		Contacts:                cs,
		Brands:                  []string{"Acme"},
		Templates:               []model.Template{{Subject: "Hi {{ name }}", Body: "Hello {{name}} from {{brandName}}"}},
		EmailsPerAccountPerHour: 40,
		PerEmailDelayMs:         1,
	}
}

func (h *harness) start(t *testing.T, cs []model.Contact) string {
	t.Helper()
	res, err := h.service.Start(context.Background(), startInput(cs))
	require.NoError(t, err)
	return res.CampaignID
}

func (h *harness) tick(t *testing.T) *TickResult {
	t.Helper()
	res, err := h.dispatcher.Tick(context.Background())
	require.NoError(t, err)
	return res
}

func (h *harness) campaign(t *testing.T, id string) *model.Campaign {
	t.Helper()
	c, err := h.campaigns.GetByID(context.Background(), id)
	require.NoError(t, err)
	return c
}

func (h *harness) backlog(t *testing.T, id string) []model.WorkItem {
	t.Helper()
	items, err := h.activity.GetRetry(context.Background(), id)
	require.NoError(t, err)
	return items
}

func (h *harness) events(t *testing.T, id string) []model.Event {
	t.Helper()
	evs, err := h.activity.GetEvents(context.Background(), id)
	require.NoError(t, err)
	return evs
}

func (h *harness) stats(t *testing.T, id string) *model.Stats {
	t.Helper()
	s, err := h.activity.GetStats(context.Background(), id)
	require.NoError(t, err)
	return s
}

// snapshot returns every key and value in the store.
func (h *harness) snapshot(t *testing.T) map[string]string {
	t.Helper()
	ctx := context.Background()
	keys, err := h.store.Scan(ctx, "")
	require.NoError(t, err)
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, err := h.store.Get(ctx, k)
		require.NoError(t, err)
		out[k] = string(v)
	}
	return out
}

func emails(items []model.WorkItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Contact.Email())
	}
	return out
}
