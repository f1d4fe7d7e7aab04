// Package broadcast is the real-time transport: an in-process subscriber hub
// exposed over Server-Sent Events, plus sinks that mirror published messages
// to a message broker.
package broadcast

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dubwave/relay/common/logging"
	"github.com/dubwave/relay/relay/internal/metrics"
)

// DefaultBufferSize is the per-subscriber queue length.
const DefaultBufferSize = 64

// Publisher sends one message to every current subscriber of a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte) error
}

// Hub owns the subscriber set. Publish never blocks: a subscriber whose
// queue is full misses the message.
type Hub struct {
	mu         sync.RWMutex
	topics     map[string]map[string]*Subscription
	bufferSize int
	closed     bool
	logger     *logging.Logger
}

// Subscription is one connected client.
type Subscription struct {
	ID    string
	Topic string

	hub     *Hub
	ch      chan []byte
	once    sync.Once
	dropped atomic.Uint64
}

// NewHub creates a Hub. A non-positive bufferSize uses DefaultBufferSize.
func NewHub(bufferSize int, logger *logging.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		topics:     make(map[string]map[string]*Subscription),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Subscribe registers a new subscriber on topic. Any initial messages are
// queued before the subscriber becomes visible to Publish, so they are always
// delivered first. On a closed hub the returned subscription's channel is
// already closed.
func (h *Hub) Subscribe(topic string, initial ...[]byte) *Subscription {
	sub := &Subscription{
		ID:    uuid.NewString(),
		Topic: topic,
		hub:   h,
		ch:    make(chan []byte, h.bufferSize),
	}
	for _, data := range initial {
		h.offer(sub, data)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]*Subscription)
		h.topics[topic] = subs
	}
	subs[sub.ID] = sub
	h.mu.Unlock()

	metrics.Subscribers.Inc()
	h.logger.Info("Client connected", logging.Subscriber(sub.ID), logging.Topic(topic))
	return sub
}

// Publish queues data for every subscriber of topic.
func (h *Hub) Publish(ctx context.Context, topic string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.topics[topic] {
		h.offer(sub, data)
	}
	return nil
}

// offer must be called with h.mu held for reading, or before sub is
// registered, so the channel cannot be closed concurrently.
func (h *Hub) offer(sub *Subscription, data []byte) bool {
	select {
	case sub.ch <- data:
		return true
	default:
		sub.dropped.Add(1)
		metrics.MessagesDroppedTotal.Inc()
		return false
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	subs := h.topics[sub.Topic]
	_, present := subs[sub.ID]
	if present {
		delete(subs, sub.ID)
		if len(subs) == 0 {
			delete(h.topics, sub.Topic)
		}
	}
	h.mu.Unlock()

	if present {
		metrics.Subscribers.Dec()
		h.logger.Info("Client disconnected",
			logging.Subscriber(sub.ID),
			logging.Topic(sub.Topic),
		)
	}
}

// Count returns the number of subscribers across all topics.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, subs := range h.topics {
		n += len(subs)
	}
	return n
}

// CountTopic returns the number of subscribers of topic.
func (h *Hub) CountTopic(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	topics := h.topics
	h.topics = make(map[string]map[string]*Subscription)
	h.mu.Unlock()

	for _, subs := range topics {
		for _, sub := range subs {
			metrics.Subscribers.Dec()
			sub.once.Do(func() { close(sub.ch) })
		}
	}
}

// C delivers queued messages. It is closed when the subscription ends.
func (s *Subscription) C() <-chan []byte {
	return s.ch
}

// Dropped returns how many messages this subscriber missed.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.ch)
	})
}
