package broadcast

import (
	"context"
	"errors"

	"github.com/dubwave/relay/common/messaging"
)

// Multi publishes every message to each sink in order. All sinks are tried;
// their errors are joined.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, topic string, data []byte) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, topic, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BrokerSink mirrors published messages to a message broker subject derived
// from the topic. Downstream consumers of the broker see the same envelopes
// the browsers do.
type BrokerSink struct {
	publisher messaging.Publisher
	prefix    string
}

// NewBrokerSink returns a sink publishing to "<prefix>.<topic>".
func NewBrokerSink(p messaging.Publisher, prefix string) *BrokerSink {
	return &BrokerSink{publisher: p, prefix: prefix}
}

func (s *BrokerSink) Publish(ctx context.Context, topic string, data []byte) error {
	return s.publisher.PublishMsg(ctx, &messaging.Message{
		Subject:  messaging.EventSubject(s.prefix, topic),
		Data:     data,
		Metadata: map[string]string{"Content-Type": "application/json"},
	})
}
