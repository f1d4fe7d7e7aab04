package messaging

import "strings"

// SubjectEventsPrefix is the default prefix under which relay envelopes are
// mirrored. A topic "message" maps to "relay.events.message".
const SubjectEventsPrefix = "relay.events"

// EventSubject joins prefix and topic into a broker subject. An empty prefix
// falls back to SubjectEventsPrefix.
func EventSubject(prefix, topic string) string {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = SubjectEventsPrefix
	}
	return prefix + "." + topic
}

// EventWildcard matches every topic under prefix.
func EventWildcard(prefix string) string {
	return EventSubject(prefix, ">")
}
