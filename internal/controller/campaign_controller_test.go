package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-dispatcher/internal/config"
	"github.com/unclebandit/campaign-dispatcher/internal/controller"
	"github.com/unclebandit/campaign-dispatcher/internal/directory"
	"github.com/unclebandit/campaign-dispatcher/internal/handler"
	"github.com/unclebandit/campaign-dispatcher/internal/mailer"
	"github.com/unclebandit/campaign-dispatcher/internal/metrics"
	"github.com/unclebandit/campaign-dispatcher/internal/model"
	"github.com/unclebandit/campaign-dispatcher/internal/queue"
	"github.com/unclebandit/campaign-dispatcher/internal/repository"
	"github.com/unclebandit/campaign-dispatcher/internal/service"
	"github.com/unclebandit/campaign-dispatcher/internal/store"
)

const secret = "s3cret"

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// MockTransport accepts every message.
type MockTransport struct{ sent atomic.Int32 }

func (m *MockTransport) Send(context.Context, model.Account, mailer.Message) (string, error) {
	m.sent.Add(1)
	return "<id@test>", nil
}

type MockVerifier struct{}

func (MockVerifier) Verify(context.Context, model.Account) error { return nil }

type fixture struct {
	server    *httptest.Server
	transport *MockTransport
	queue     *queue.InMemoryQueue
}

func newFixture(t *testing.T, autoSecret string) *fixture {
	t.Helper()
	st := store.NewMemory()
	campaigns := &repository.CampaignRepository{Store: st}
	activity := &repository.ActivityRepository{Store: st}
	cfg := config.Default().Dispatch
	cfg.PerEmailDelay = time.Nanosecond

	accounts := service.NewAccountService(directory.Static{
		{ID: "1", Email: "one@sender.example", SenderName: "One", Secret: "x"},
		{ID: "2", Email: "two@sender.example", SenderName: "Two", Secret: "y"},
	}, &repository.HealthRepository{Store: st}, MockVerifier{}, logger)

	transport := &MockTransport{}
	engine := service.NewDispatcher(campaigns, activity, accounts, transport, st, cfg, metrics.New(prometheus.NewRegistry()), logger)
	svc := service.NewCampaignService(campaigns, activity, st, cfg, logger)
	q := queue.NewInMemoryQueue(logger)

	router := controller.NewRouter(controller.Routes{
		Campaigns:  &controller.CampaignController{CampaignService: svc, Logger: logger},
		Views:      handler.NewCampaignHandler(svc, logger),
		Ticks:      &handler.TickHandler{Engine: engine, Queue: q, Topic: queue.TopicTicks, Logger: logger},
		Accounts:   &handler.AccountHandler{Accounts: accounts, Logger: logger},
		AutoSecret: autoSecret,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &fixture{server: srv, transport: transport, queue: q}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.server.URL+path, rdr)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func startBody(emails ...string) map[string]any {
	var contacts []map[string]string
	for _, e := range emails {
		contacts = append(contacts, map[string]string{"email": e, "name": "N"})
	}
	return map[string]any{
		"contacts":  contacts,
		"brandName": "Acme",
		"template":  map[string]any{"subject": "Hi {{name}}", "content": []string{"Body A", "Body B"}},
	}
}

func TestStartTickStatusFlow(t *testing.T) {
	f := newFixture(t, secret)

	code, body := f.do(t, http.MethodPost, "/auto/start", startBody("a@x.io", "b@x.io", "c@x.io"), nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, false, body["resumed"])
	id, _ := body["campaignId"].(string)
	require.NotEmpty(t, id)

	code, body = f.do(t, http.MethodPost, "/auto/start", startBody("d@x.io"), nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, false, body["success"])

	code, body = f.do(t, http.MethodPost, "/auto/tick", nil, map[string]string{"x-auto-secret": secret})
	require.Equal(t, http.StatusOK, code, body)
	result := body["result"].(map[string]any)
	assert.Equal(t, float64(3), result["sent"])
	assert.Equal(t, "completed", result["status"])
	assert.EqualValues(t, 3, f.transport.sent.Load())

	code, body = f.do(t, http.MethodGet, "/auto/status", nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "", body["activeId"])
	assert.Equal(t, id, body["campaign"].(map[string]any)["id"])

	code, body = f.do(t, http.MethodGet, "/campaigns/"+id, nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3), body["stats"].(map[string]any)["totalSent"])
	assert.Len(t, body["templates"], 2)

	code, body = f.do(t, http.MethodGet, "/campaigns", nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["data"], 1)
}

func TestStartValidation(t *testing.T) {
	f := newFixture(t, secret)

	code, body := f.do(t, http.MethodPost, "/auto/start", map[string]any{"brandName": "Acme"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "contacts array is required", body["error"])

	b := startBody("a@x.io")
	b["template"] = map[string]any{"subject": "only subject"}
	code, _ = f.do(t, http.MethodPost, "/auto/start", b, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStopAndResume(t *testing.T) {
	f := newFixture(t, secret)

	code, body := f.do(t, http.MethodPost, "/auto/stop", nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "No active campaign", body["message"])

	_, body = f.do(t, http.MethodPost, "/auto/start", startBody("a@x.io"), nil)
	id := body["campaignId"]

	_, body = f.do(t, http.MethodPost, "/auto/stop", nil, nil)
	assert.Equal(t, id, body["campaignId"])

	_, body = f.do(t, http.MethodPost, "/auto/start", startBody("a@x.io"), nil)
	assert.Equal(t, true, body["resumed"])
	assert.Equal(t, id, body["campaignId"])
}

func TestTickRequiresSecret(t *testing.T) {
	f := newFixture(t, secret)
	code, _ := f.do(t, http.MethodPost, "/auto/tick", nil, map[string]string{"x-auto-secret": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = f.do(t, http.MethodPost, "/auto/tick", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	unset := newFixture(t, "")
	code, body := unset.do(t, http.MethodPost, "/auto/tick", nil, map[string]string{"x-auto-secret": "anything"})
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "AUTO_SECRET not configured", body["error"])
}

func TestAsyncTickPublishesTrigger(t *testing.T) {
	f := newFixture(t, secret)
	got := make(chan queue.TickTrigger, 1)
	require.NoError(t, f.queue.Subscribe(queue.TopicTicks, func(b []byte) error {
		tr, err := queue.DecodeTickTrigger(b)
		got <- tr
		return err
	}))

	code, body := f.do(t, http.MethodPost, "/auto/tick?async=1", nil, map[string]string{"x-auto-secret": secret})
	require.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, true, body["queued"])

	select {
	case tr := <-got:
		assert.Equal(t, "http", tr.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("trigger not delivered")
	}
}

func TestPersonalizedPreview(t *testing.T) {
	f := newFixture(t, secret)
	_, body := f.do(t, http.MethodPost, "/auto/start", startBody("a@x.io"), nil)
	id := body["campaignId"].(string)

	code, body := f.do(t, http.MethodPost, "/campaigns/"+id+"/personalized-preview", map[string]any{
		"contact":    map[string]string{"email": "z@x.io", "name": "Zed"},
		"senderName": "Sam",
	}, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "Hi Zed", body["subject"])
	assert.Equal(t, "Acme", body["brand"])

	code, _ = f.do(t, http.MethodPost, "/campaigns/c_nope/personalized-preview", map[string]any{}, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = f.do(t, http.MethodPost, "/preview", map[string]any{
		"contact":  map[string]string{"name": "Ann"},
		"template": map[string]string{"subject": "S", "body": "Hello {{ name }}"},
	}, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Hello Ann", body["text"])
}

func TestAccountsEndpoints(t *testing.T) {
	f := newFixture(t, secret)

	code, body := f.do(t, http.MethodGet, "/accounts", nil, nil)
	require.Equal(t, http.StatusOK, code)
	accounts := body["accounts"].([]any)
	require.Len(t, accounts, 2)
	assert.Equal(t, true, accounts[0].(map[string]any)["connected"])
	_, leaked := accounts[0].(map[string]any)["secret"]
	assert.False(t, leaked)

	code, body = f.do(t, http.MethodPost, "/accounts/2/status", map[string]any{"connected": false}, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Disconnected", body["account"].(map[string]any)["lastError"])

	code, _ = f.do(t, http.MethodPost, "/accounts/2/status", map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/accounts/9/status", map[string]any{"connected": true}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = f.do(t, http.MethodPost, "/accounts/1/verify", nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
}

func TestCleanupEndpoint(t *testing.T) {
	f := newFixture(t, secret)
	f.do(t, http.MethodPost, "/auto/start", startBody("a@x.io"), nil)

	code, _ := f.do(t, http.MethodPost, "/admin/cleanup", nil, map[string]string{"x-auto-secret": secret})
	assert.Equal(t, http.StatusConflict, code)

	f.do(t, http.MethodPost, "/auto/stop", nil, nil)
	code, body := f.do(t, http.MethodPost, "/admin/cleanup", nil, map[string]string{"x-auto-secret": secret})
	require.Equal(t, http.StatusOK, code)
	assert.Greater(t, body["deleted"], float64(0))

	code, body = f.do(t, http.MethodGet, "/auto/status", nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["campaign"])
}
