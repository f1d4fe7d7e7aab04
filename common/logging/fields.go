package logging

import "log/slog"

// Field names shared by every relay log line.
const (
	FieldService     = "service"
	FieldRequestID   = "request_id"
	FieldIP          = "ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatus      = "status"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldKind        = "kind"
	FieldVideoID     = "video_id"
	FieldVideoStatus = "video_status"
	FieldTopic       = "topic"
	FieldSubscriber  = "subscriber_id"
)

func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status is the HTTP status code of a response.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error renders err as a string attribute; a nil error renders empty.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// Kind is the normalized event kind being published.
func Kind(kind string) slog.Attr {
	return slog.String(FieldKind, kind)
}

func VideoID(id string) slog.Attr {
	return slog.String(FieldVideoID, id)
}

// VideoStatus logs the upstream status value as received, which may not be
// an integer.
func VideoStatus(v any) slog.Attr {
	return slog.Any(FieldVideoStatus, v)
}

func Topic(topic string) slog.Attr {
	return slog.String(FieldTopic, topic)
}

func Subscriber(id string) slog.Attr {
	return slog.String(FieldSubscriber, id)
}
