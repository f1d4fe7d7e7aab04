// Package service runs the webhook pipeline: extract the encrypted field,
// decrypt it, parse the payload and hand it to the classifier.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/dubwave/relay/common/logging"
	"github.com/dubwave/relay/relay/internal/decryptor"
	"github.com/dubwave/relay/relay/internal/events"
	"github.com/dubwave/relay/relay/internal/metrics"
)

var (
	ErrMissingField  = errors.New("missing encryptedData field")
	ErrConfiguration = errors.New("server configuration error")
	ErrMalformedJSON = errors.New("decrypted payload is not a JSON object")
)

// EncryptedFields lists the request keys that may carry the ciphertext, in
// lookup order. dataEncrypt is the name older senders use.
var EncryptedFields = []string{"encryptedData", "dataEncrypt"}

// Result is the outcome of one successfully processed notification.
type Result struct {
	Event     events.Event
	Decrypted map[string]any
}

// Stats is a point-in-time snapshot of the service counters.
type Stats struct {
	Received  uint64     `json:"received"`
	Processed uint64     `json:"processed"`
	Rejected  uint64     `json:"rejected"`
	LastEvent *time.Time `json:"last_event,omitempty"`
}

type WebhookService struct {
	secrets    decryptor.Secrets
	classifier *events.Classifier
	logger     *logging.Logger

	received  atomic.Uint64
	processed atomic.Uint64
	rejected  atomic.Uint64
	lastEvent atomic.Int64
}

func NewWebhookService(secrets decryptor.Secrets, classifier *events.Classifier, logger *logging.Logger) *WebhookService {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookService{
		secrets:    secrets,
		classifier: classifier,
		logger:     logger,
	}
}

// Process decrypts and classifies one notification body. Every returned error
// wraps one of the package or decryptor sentinels, or events.ErrMissingStatus,
// and means nothing was broadcast.
func (s *WebhookService) Process(ctx context.Context, body map[string]any) (*Result, error) {
	s.received.Add(1)

	result, err := s.process(ctx, body)
	if err != nil {
		s.rejected.Add(1)
		return nil, err
	}

	s.processed.Add(1)
	s.lastEvent.Store(time.Now().UnixNano())
	return result, nil
}

func (s *WebhookService) process(ctx context.Context, body map[string]any) (*Result, error) {
	encrypted, ok := encryptedField(body)
	if !ok {
		return nil, ErrMissingField
	}
	if s.secrets.Empty() {
		return nil, fmt.Errorf("%w: client id or secret not set", ErrConfiguration)
	}

	start := time.Now()
	plaintext, err := s.secrets.Decrypt(encrypted)
	metrics.DecryptDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("decrypt payload: %w", err)
	}

	payload, err := parseObject(plaintext)
	if err != nil {
		return nil, err
	}

	event, err := s.classifier.ClassifyAndPublish(ctx, payload)
	if err != nil {
		return nil, err
	}
	return &Result{Event: event, Decrypted: payload}, nil
}

// Stats returns the current counters.
func (s *WebhookService) Stats() Stats {
	st := Stats{
		Received:  s.received.Load(),
		Processed: s.processed.Load(),
		Rejected:  s.rejected.Load(),
	}
	if ns := s.lastEvent.Load(); ns != 0 {
		t := time.Unix(0, ns).UTC()
		st.LastEvent = &t
	}
	return st
}

func encryptedField(body map[string]any) (string, bool) {
	for _, key := range EncryptedFields {
		if v, ok := body[key].(string); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// parseObject decodes plaintext as exactly one JSON object, keeping numbers
// as json.Number.
func parseObject(plaintext string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(plaintext)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if err := dec.Decode(new(any)); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after object", ErrMalformedJSON)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrMalformedJSON, v)
	}
	return obj, nil
}
