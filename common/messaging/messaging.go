// Package messaging abstracts the message broker the relay mirrors events to.
// Services publish and subscribe through these interfaces so the broker
// implementation stays swappable and fakeable in tests.
package messaging

import (
	"context"
	"time"
)

// Message is a message received from the broker.
type Message struct {
	Subject   string
	Data      []byte
	Metadata  map[string]string
	Timestamp time.Time
}

// MessageHandler processes a received message.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription is an active subscription to a subject.
type Subscription interface {
	Unsubscribe() error
	Subject() string
	IsValid() bool
}

// Publisher sends fire-and-forget messages to subjects.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	PublishMsg(ctx context.Context, msg *Message) error
	Close() error
}

// Subscriber receives every message published to a subject (fan-out).
type Subscriber interface {
	Subscribe(subject string, handler MessageHandler) (Subscription, error)
	Close() error
}

// Client combines Publisher and Subscriber.
type Client interface {
	Publisher
	Subscriber

	// Drain flushes in-flight messages and closes the connection.
	Drain() error
	IsConnected() bool
}
