package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dubwave/relay/common/httputil"
	"github.com/dubwave/relay/common/logging"
	"github.com/dubwave/relay/common/messaging"
	"github.com/dubwave/relay/relay/internal/decryptor"
	"github.com/dubwave/relay/relay/internal/events"
	"github.com/dubwave/relay/relay/internal/metrics"
	"github.com/dubwave/relay/relay/internal/ratelimit"
	"github.com/dubwave/relay/relay/internal/service"
)

const (
	MsgProcessed        = "Webhook received and processed successfully"
	MsgMissingField     = "Missing encryptedData field"
	MsgConfiguration    = "Server configuration error"
	MsgMalformedJSON    = "Invalid JSON format in decrypted data"
	MsgMissingStatus    = "Invalid payload structure - missing status"
	MsgInvalidBody      = "Request body must be a JSON object"
	MsgBodyTooLarge     = "Request body too large"
	MsgRateLimited      = "Too many requests"
	MsgMethodNotAllowed = "Method not allowed"
	MsgTestBroadcast    = "Hello, World!"
)

// WebhookProcessor runs the decrypt, classify and publish pipeline.
type WebhookProcessor interface {
	Process(ctx context.Context, body map[string]any) (*service.Result, error)
	Stats() service.Stats
}

// EventPublisher publishes a ready-made event on the broadcast topic.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// SubscriberCounter reports connected real-time clients.
type SubscriberCounter interface {
	Count() int
}

type Handler struct {
	service      WebhookProcessor
	publisher    EventPublisher
	limiter      ratelimit.RateLimiter
	subscribers  SubscriberCounter
	broker       messaging.Client
	maxBodyBytes int64
	logger       *logging.Logger
}

// Options carries the optional collaborators of a Handler.
type Options struct {
	Limiter      ratelimit.RateLimiter
	Subscribers  SubscriberCounter
	Broker       messaging.Client
	MaxBodyBytes int64
	Logger       *logging.Logger
}

func NewHandler(svc WebhookProcessor, publisher EventPublisher, opts Options) *Handler {
	h := &Handler{
		service:      svc,
		publisher:    publisher,
		limiter:      opts.Limiter,
		subscribers:  opts.Subscribers,
		broker:       opts.Broker,
		maxBodyBytes: opts.MaxBodyBytes,
		logger:       opts.Logger,
	}
	if h.limiter == nil {
		h.limiter = &ratelimit.NoOpRateLimiter{}
	}
	if h.logger == nil {
		h.logger = logging.Default()
	}
	return h
}

// WebhookResponse is the success body of the webhook endpoint.
type WebhookResponse struct {
	Message       string         `json:"message"`
	DecryptedData map[string]any `json:"decrypted_data"`
}

func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodPost {
		httputil.WriteMessage(w, http.StatusMethodNotAllowed, MsgMethodNotAllowed)
		return
	}

	clientIP := httputil.GetClientIP(r)
	allowed, err := h.limiter.Allow(ctx, clientIP)
	if err != nil {
		// Redis trouble must not stop notifications.
		h.logger.WarnContext(ctx, "Rate limit check failed, allowing request",
			logging.IP(clientIP), logging.Error(err))
	} else if !allowed {
		metrics.WebhooksTotal.WithLabelValues(metrics.OutcomeRateLimited).Inc()
		h.logger.WarnContext(ctx, "Webhook rate limited", logging.IP(clientIP))
		httputil.WriteMessage(w, http.StatusTooManyRequests, MsgRateLimited)
		return
	}

	body, err := httputil.DecodeJSONObject(w, r, h.maxBodyBytes)
	if err != nil {
		status, msg := http.StatusBadRequest, MsgInvalidBody
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			status, msg = http.StatusRequestEntityTooLarge, MsgBodyTooLarge
		}
		metrics.WebhooksTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		h.logger.WarnContext(ctx, "Rejected webhook body", logging.IP(clientIP), logging.Error(err))
		httputil.WriteMessage(w, status, msg)
		return
	}

	result, err := h.service.Process(ctx, body)
	if err != nil {
		status, msg := errorResponse(err)
		if status >= http.StatusInternalServerError {
			metrics.WebhooksTotal.WithLabelValues(metrics.OutcomeError).Inc()
			h.logger.ErrorContext(ctx, "Webhook processing failed", logging.IP(clientIP), logging.Error(err))
		} else {
			metrics.WebhooksTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
			h.logger.WarnContext(ctx, "Webhook rejected", logging.IP(clientIP), logging.Error(err))
		}
		httputil.WriteMessage(w, status, msg)
		return
	}

	metrics.WebhooksTotal.WithLabelValues(metrics.OutcomeProcessed).Inc()
	httputil.WriteJSON(w, http.StatusOK, WebhookResponse{
		Message:       MsgProcessed,
		DecryptedData: result.Decrypted,
	})
}

// errorResponse maps a pipeline error to an HTTP status and client message.
// Key problems are the operator's fault, so they surface as 500.
func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrMissingField):
		return http.StatusBadRequest, MsgMissingField
	case errors.Is(err, service.ErrConfiguration),
		errors.Is(err, decryptor.ErrInvalidKeyLength):
		return http.StatusInternalServerError, MsgConfiguration
	case errors.Is(err, decryptor.ErrInvalidEncoding),
		errors.Is(err, decryptor.ErrInvalidPadding):
		return http.StatusBadRequest, "Error processing webhook: " + err.Error()
	case errors.Is(err, service.ErrMalformedJSON):
		return http.StatusBadRequest, MsgMalformedJSON
	case errors.Is(err, events.ErrMissingStatus):
		return http.StatusBadRequest, MsgMissingStatus
	default:
		return http.StatusInternalServerError, "Error processing webhook"
	}
}

// TestBroadcast publishes a fixed info message to every subscriber so a
// frontend can verify its connection end to end.
func (h *Handler) TestBroadcast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteMessage(w, http.StatusMethodNotAllowed, MsgMethodNotAllowed)
		return
	}
	if err := h.publisher.Publish(r.Context(), events.Info(MsgTestBroadcast)); err != nil {
		h.logger.WarnContext(r.Context(), "Test broadcast reported an error", logging.Error(err))
	}
	httputil.WriteMessage(w, http.StatusOK, MsgTestBroadcast)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// ReadyResponse is the body of /readyz.
type ReadyResponse struct {
	Status      string                  `json:"status"`
	Stats       service.Stats           `json:"stats"`
	Subscribers int                     `json:"subscribers"`
	Broker      *messaging.HealthStatus `json:"broker,omitempty"`
	Time        time.Time               `json:"time"`
}

// Ready always answers 200: the broker is only a mirror, so losing it
// degrades the relay without taking it out of rotation.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{
		Status: "ready",
		Stats:  h.service.Stats(),
		Time:   time.Now().UTC(),
	}
	if h.subscribers != nil {
		resp.Subscribers = h.subscribers.Count()
	}
	if h.broker != nil {
		health := messaging.CheckClientHealth(h.broker)
		resp.Broker = &health
		if !health.Connected {
			resp.Status = "degraded"
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Greeting returns the encoded connection_info envelope for a newly
// connected subscriber. It is the broadcast.SSEConfig.Greeting hook.
func (h *Handler) Greeting(topic string) []byte {
	data, err := json.Marshal(events.ConnectionInfo().Envelope())
	if err != nil {
		h.logger.Error("Failed to encode connection info", logging.Topic(topic), logging.Error(err))
		return nil
	}
	return data
}
