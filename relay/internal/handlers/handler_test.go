package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dubwave/relay/common/logging"
	"github.com/dubwave/relay/common/messaging"
	"github.com/dubwave/relay/relay/internal/broadcast"
	"github.com/dubwave/relay/relay/internal/decryptor"
	"github.com/dubwave/relay/relay/internal/events"
	"github.com/dubwave/relay/relay/internal/ratelimit"
	"github.com/dubwave/relay/relay/internal/service"
)

var testSecrets = decryptor.Secrets{
	ClientID:     "client-0001",
	ClientSecret: "0123456789abcdef0123456789abcdef",
}

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) Process(ctx context.Context, body map[string]any) (*service.Result, error) {
	args := m.Called(ctx, body)
	if r := args.Get(0); r != nil {
		return r.(*service.Result), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProcessor) Stats() service.Stats {
	return m.Called().Get(0).(service.Stats)
}

type fakeBroker struct {
	connected bool
}

func (f *fakeBroker) Publish(context.Context, string, []byte) error      { return nil }
func (f *fakeBroker) PublishMsg(context.Context, *messaging.Message) error { return nil }
func (f *fakeBroker) Subscribe(string, messaging.MessageHandler) (messaging.Subscription, error) {
	return nil, nil
}
func (f *fakeBroker) Close() error      { return nil }
func (f *fakeBroker) Drain() error      { return nil }
func (f *fakeBroker) IsConnected() bool { return f.connected }

// pipeline wires a real service, classifier and hub.
type pipeline struct {
	hub     *broadcast.Hub
	handler *Handler
}

func newPipeline(t *testing.T, opts Options) *pipeline {
	t.Helper()
	hub := broadcast.NewHub(8, logging.Nop())
	t.Cleanup(hub.Close)

	classifier := events.NewClassifier(hub, events.WithLogger(logging.Nop()))
	svc := service.NewWebhookService(testSecrets, classifier, logging.Nop())

	opts.Logger = logging.Nop()
	opts.Subscribers = hub
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	return &pipeline{hub: hub, handler: NewHandler(svc, classifier, opts)}
}

func postWebhook(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func sealedBody(t *testing.T, plaintext string) string {
	t.Helper()
	enc, err := testSecrets.Encrypt(plaintext)
	require.NoError(t, err)
	return fmt.Sprintf(`{"encryptedData":%q}`, enc)
}

func nextEnvelope(t *testing.T, sub *broadcast.Subscription) events.Envelope {
	t.Helper()
	select {
	case data := <-sub.C():
		var env events.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		return env
	case <-time.After(time.Second):
		t.Fatal("no broadcast received")
		return events.Envelope{}
	}
}

func TestWebhook_ProcessesAndBroadcasts(t *testing.T) {
	p := newPipeline(t, Options{})
	sub := p.hub.Subscribe(events.TopicMessage)
	defer sub.Close()

	rec := postWebhook(p.handler.Webhook, sealedBody(t, `{"status":4,"error_reason":"bad codec","error_code":17}`))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp WebhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, MsgProcessed, resp.Message)
	assert.Equal(t, "bad codec", resp.DecryptedData["error_reason"])

	env := nextEnvelope(t, sub)
	assert.Equal(t, events.TypeError, env.Type)
	assert.Equal(t, events.KindFailed, env.Kind)
	assert.Equal(t, "bad codec", env.Message)
	assert.Equal(t, float64(17), env.ErrorCode)
}

func TestWebhook_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		body       func(t *testing.T) string
		wantStatus int
		wantMsg    string
	}{
		{"missing field", func(*testing.T) string { return `{"foo":"bar"}` }, http.StatusBadRequest, MsgMissingField},
		{"bad base64", func(*testing.T) string { return `{"encryptedData":"%%%"}` }, http.StatusBadRequest, "Error processing webhook: "},
		{"bad length", func(*testing.T) string { return `{"encryptedData":"AAAA"}` }, http.StatusBadRequest, "Error processing webhook: "},
		{"malformed json", func(t *testing.T) string { return sealedBody(t, `not json`) }, http.StatusBadRequest, MsgMalformedJSON},
		{"missing status", func(t *testing.T) string { return sealedBody(t, `{"_id":"x"}`) }, http.StatusBadRequest, MsgMissingStatus},
		{"body not json", func(*testing.T) string { return `nope` }, http.StatusBadRequest, MsgInvalidBody},
		{"empty body", func(*testing.T) string { return `` }, http.StatusBadRequest, MsgInvalidBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t, Options{})
			sub := p.hub.Subscribe(events.TopicMessage)
			defer sub.Close()

			rec := postWebhook(p.handler.Webhook, tt.body(t))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.True(t, strings.HasPrefix(resp["message"].(string), tt.wantMsg), "got %q", resp["message"])
			assert.NotContains(t, resp, "decrypted_data")
			assert.Empty(t, sub.C(), "nothing broadcast on rejection")
		})
	}
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrMissingField, http.StatusBadRequest},
		{fmt.Errorf("x: %w", decryptor.ErrInvalidEncoding), http.StatusBadRequest},
		{fmt.Errorf("x: %w", decryptor.ErrInvalidPadding), http.StatusBadRequest},
		{service.ErrMalformedJSON, http.StatusBadRequest},
		{events.ErrMissingStatus, http.StatusBadRequest},
		{fmt.Errorf("x: %w", decryptor.ErrInvalidKeyLength), http.StatusInternalServerError},
		{service.ErrConfiguration, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, msg := errorResponse(tt.err)
		assert.Equal(t, tt.want, status, tt.err.Error())
		assert.NotEmpty(t, msg)
	}
}

func TestWebhook_ConfigurationErrorIs500(t *testing.T) {
	proc := new(MockProcessor)
	proc.On("Process", mock.Anything, mock.Anything).Return(nil, service.ErrConfiguration)
	h := NewHandler(proc, nil, Options{Logger: logging.Nop()})

	rec := postWebhook(h.Webhook, `{"encryptedData":"abc"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"Server configuration error"}`, rec.Body.String())
	proc.AssertExpectations(t)
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	proc := new(MockProcessor)
	h := NewHandler(proc, nil, Options{Logger: logging.Nop()})

	rec := httptest.NewRecorder()
	h.Webhook(rec, httptest.NewRequest(http.MethodGet, "/api/webhook", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	proc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestWebhook_BodyTooLarge(t *testing.T) {
	p := newPipeline(t, Options{MaxBodyBytes: 32})

	rec := postWebhook(p.handler.Webhook, `{"encryptedData":"`+strings.Repeat("A", 64)+`"}`)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestWebhook_RateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	p := newPipeline(t, Options{Limiter: ratelimit.NewWithClient(client, 2, time.Minute)})
	body := sealedBody(t, `{"status":1}`)

	assert.Equal(t, http.StatusOK, postWebhook(p.handler.Webhook, body).Code)
	assert.Equal(t, http.StatusOK, postWebhook(p.handler.Webhook, body).Code)

	rec := postWebhook(p.handler.Webhook, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"message":"Too many requests"}`, rec.Body.String())
}

func TestWebhook_RateLimiterDownFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	p := newPipeline(t, Options{Limiter: ratelimit.NewWithClient(client, 1, time.Minute)})

	rec := postWebhook(p.handler.Webhook, sealedBody(t, `{"status":2}`))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTestBroadcast(t *testing.T) {
	p := newPipeline(t, Options{})
	sub := p.hub.Subscribe(events.TopicMessage)
	defer sub.Close()

	rec := httptest.NewRecorder()
	p.handler.TestBroadcast(rec, httptest.NewRequest(http.MethodGet, "/test-app", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Hello, World!"}`, rec.Body.String())

	env := nextEnvelope(t, sub)
	assert.Equal(t, events.TypeInfo, env.Type)
	assert.Equal(t, "Hello, World!", env.Data)
}

func TestHealth(t *testing.T) {
	h := NewHandler(new(MockProcessor), nil, Options{Logger: logging.Nop()})
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestReady(t *testing.T) {
	proc := new(MockProcessor)
	proc.On("Stats").Return(service.Stats{Received: 3, Processed: 2, Rejected: 1})
	hub := broadcast.NewHub(1, logging.Nop())
	defer hub.Close()
	sub := hub.Subscribe(events.TopicMessage)
	defer sub.Close()

	t.Run("without broker", func(t *testing.T) {
		h := NewHandler(proc, nil, Options{Subscribers: hub, Logger: logging.Nop()})
		rec := httptest.NewRecorder()
		h.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp ReadyResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ready", resp.Status)
		assert.Equal(t, uint64(3), resp.Stats.Received)
		assert.Equal(t, 1, resp.Subscribers)
		assert.Nil(t, resp.Broker)
	})

	t.Run("broker disconnected", func(t *testing.T) {
		h := NewHandler(proc, nil, Options{Subscribers: hub, Broker: &fakeBroker{}, Logger: logging.Nop()})
		rec := httptest.NewRecorder()
		h.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp ReadyResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "degraded", resp.Status)
		require.NotNil(t, resp.Broker)
		assert.False(t, resp.Broker.Connected)
	})

	t.Run("broker connected", func(t *testing.T) {
		h := NewHandler(proc, nil, Options{Broker: &fakeBroker{connected: true}, Logger: logging.Nop()})
		rec := httptest.NewRecorder()
		h.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		var resp ReadyResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ready", resp.Status)
		assert.True(t, resp.Broker.Connected)
	})
}

func TestGreeting(t *testing.T) {
	p := newPipeline(t, Options{})
	existing := p.hub.Subscribe(events.TopicMessage)
	newcomer := p.hub.Subscribe(events.TopicMessage, p.handler.Greeting(events.TopicMessage))
	defer newcomer.Close()
	defer existing.Close()

	env := nextEnvelope(t, newcomer)
	assert.Equal(t, events.TypeInfo, env.Type)
	assert.Equal(t, events.KindConnectionInfo, env.Kind)
	assert.Equal(t, events.ConnectedMessage, env.Data)
	assert.Empty(t, existing.C(), "only the new subscriber is greeted")
}
