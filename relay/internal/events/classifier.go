package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dubwave/relay/common/logging"
	"github.com/dubwave/relay/relay/internal/metrics"
)

// TopicMessage is the channel every normalized event is broadcast on.
const TopicMessage = "message"

// ErrMissingStatus is returned when neither status field is present.
var ErrMissingStatus = errors.New("payload has no status or video_status")

// Publisher is the broadcast capability injected into the Classifier. It must
// not block on delivery and must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, topic string, data []byte) error

func (f PublisherFunc) Publish(ctx context.Context, topic string, data []byte) error {
	return f(ctx, topic, data)
}

// Classify maps a decrypted payload to a normalized event. It fails only when
// no status can be resolved; unrecognized statuses become unknown_status.
func Classify(payload map[string]any) (Event, error) {
	rawStatus, ok := FieldStatus.Resolve(payload)
	if !ok {
		return Event{}, ErrMissingStatus
	}

	code, isCode := statusCode(rawStatus)
	if !isCode {
		return unknown(payload), nil
	}

	switch code {
	case StatusCompleted:
		return Event{
			Kind: KindCompleted,
			Payload: CompletedPayload{
				ID:          FieldID.String(payload),
				URL:         FieldURL.String(payload),
				VideoStatus: StatusCompleted,
				Progress:    FieldProgress.Value(payload, DefaultProgressCompleted),
			},
		}, nil

	case StatusFailed:
		message := FieldErrorMessage.String(payload)
		if message == "" {
			message = GenericFailureMessage
		}
		errorCode, _ := FieldErrorCode.Resolve(payload)
		return Event{
			Kind: KindFailed,
			Payload: FailedPayload{
				ErrorMessage: message,
				ErrorCode:    errorCode,
				RawPayload:   cloneRaw(payload),
			},
		}, nil

	case StatusQueued, StatusProcessing:
		return Event{
			Kind: KindStatusUpdate,
			Payload: StatusUpdatePayload{
				ID:          FieldID.String(payload),
				VideoStatus: code,
				Progress:    FieldProgress.Value(payload, DefaultProgressPending),
			},
		}, nil

	default:
		return unknown(payload), nil
	}
}

func unknown(payload map[string]any) Event {
	return Event{
		Kind:    KindUnknownStatus,
		Payload: UnknownStatusPayload{RawPayload: cloneRaw(payload)},
	}
}

// Classifier classifies payloads and publishes exactly one envelope per
// successful classification.
type Classifier struct {
	publisher Publisher
	topic     string
	logger    *logging.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithTopic overrides the broadcast topic.
func WithTopic(topic string) Option {
	return func(c *Classifier) {
		if topic != "" {
			c.topic = topic
		}
	}
}

// WithLogger sets the classifier's logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClassifier returns a Classifier publishing through p.
func NewClassifier(p Publisher, opts ...Option) *Classifier {
	c := &Classifier{
		publisher: p,
		topic:     TopicMessage,
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Topic returns the topic events are published on.
func (c *Classifier) Topic() string {
	return c.topic
}

// ClassifyAndPublish classifies payload and broadcasts the result. A
// classification error means nothing was published. Publish failures are
// logged and counted but do not fail the call: delivery is fire-and-forget.
func (c *Classifier) ClassifyAndPublish(ctx context.Context, payload map[string]any) (Event, error) {
	event, err := Classify(payload)
	if err != nil {
		return Event{}, err
	}

	status, _ := FieldStatus.Resolve(payload)
	c.logger.InfoContext(ctx, "Classified webhook notification",
		logging.Kind(string(event.Kind)),
		logging.VideoStatus(status),
		logging.VideoID(FieldID.String(payload)),
	)

	if err := c.Publish(ctx, event); err != nil {
		c.logger.WarnContext(ctx, "Publish reported an error",
			logging.Kind(string(event.Kind)),
			logging.Error(err),
		)
	}
	return event, nil
}

// Publish marshals event's envelope and hands it to the publisher once.
func (c *Classifier) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event.Envelope())
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if c.publisher == nil {
		return errors.New("no publisher configured")
	}

	metrics.EventsPublishedTotal.WithLabelValues(string(event.Kind)).Inc()
	if err := c.publisher.Publish(ctx, c.topic, data); err != nil {
		metrics.PublishErrorsTotal.Inc()
		return err
	}

	c.logger.DebugContext(ctx, "Published event",
		logging.Kind(string(event.Kind)),
		logging.Topic(c.topic),
		slog.Int("bytes", len(data)),
	)
	return nil
}
