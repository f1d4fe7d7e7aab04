// Package events turns decrypted upstream notifications into normalized
// events and publishes them as wire envelopes.
package events

import (
	"maps"
)

// Kind is the normalized category of an event.
type Kind string

const (
	KindStatusUpdate   Kind = "status_update"
	KindCompleted      Kind = "completed"
	KindFailed         Kind = "failed"
	KindUnknownStatus  Kind = "unknown_status"
	KindConnectionInfo Kind = "connection_info"
)

// EnvelopeType is the coarse type real-time clients switch on.
type EnvelopeType string

const (
	TypeEvent EnvelopeType = "event"
	TypeError EnvelopeType = "error"
	TypeInfo  EnvelopeType = "info"
)

// Upstream video status codes.
const (
	StatusQueued     = 1
	StatusProcessing = 2
	StatusCompleted  = 3
	StatusFailed     = 4
)

const (
	// GenericFailureMessage is used when a failed notification names no reason.
	GenericFailureMessage = "Video translation failed. This could be due to invalid video format, " +
		"network issues, or processing errors. Please try again or contact support if the issue persists."

	// ConnectedMessage greets every new real-time subscriber.
	ConnectedMessage = "Connected to server"
)

// Event is a normalized event. Payload holds one of the *Payload types below,
// matching Kind.
type Event struct {
	Kind    Kind `json:"kind"`
	Payload any  `json:"payload"`
}

// Progress is forwarded as the sender supplied it. These apply only when the
// field is absent.
const (
	DefaultProgressCompleted = 100
	DefaultProgressPending   = 0
)

type CompletedPayload struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	VideoStatus int    `json:"video_status"`
	Progress    any    `json:"progress"`
}

type StatusUpdatePayload struct {
	ID          string `json:"id"`
	VideoStatus int    `json:"video_status"`
	Progress    any    `json:"progress"`
}

type FailedPayload struct {
	ErrorMessage string         `json:"error_message"`
	ErrorCode    any            `json:"error_code"`
	RawPayload   map[string]any `json:"raw_payload"`
}

type UnknownStatusPayload struct {
	RawPayload map[string]any `json:"raw_payload"`
}

type ConnectionInfoPayload struct {
	Message string `json:"message"`
}

// Envelope is the JSON message delivered on the broadcast channel.
type Envelope struct {
	Type      EnvelopeType `json:"type"`
	Kind      Kind         `json:"kind"`
	Data      any          `json:"data"`
	Message   string       `json:"message,omitempty"`
	ErrorCode any          `json:"error_code,omitempty"`
}

// Envelope renders e in the wire shape. Failed events travel as type "error"
// with the original payload as data; connection info travels as "info".
func (e Event) Envelope() Envelope {
	switch p := e.Payload.(type) {
	case FailedPayload:
		return Envelope{
			Type:      TypeError,
			Kind:      e.Kind,
			Data:      p.RawPayload,
			Message:   p.ErrorMessage,
			ErrorCode: p.ErrorCode,
		}
	case UnknownStatusPayload:
		return Envelope{Type: TypeEvent, Kind: e.Kind, Data: p.RawPayload}
	case ConnectionInfoPayload:
		return Envelope{Type: TypeInfo, Kind: e.Kind, Data: p.Message}
	default:
		return Envelope{Type: TypeEvent, Kind: e.Kind, Data: e.Payload}
	}
}

// ConnectionInfo is sent once to each newly connected subscriber.
func ConnectionInfo() Event {
	return Info(ConnectedMessage)
}

// Info wraps an informational message in a connection_info event.
func Info(message string) Event {
	return Event{
		Kind:    KindConnectionInfo,
		Payload: ConnectionInfoPayload{Message: message},
	}
}

func cloneRaw(payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	return maps.Clone(payload)
}
