package events

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Field is one entry of the upstream field-name fallback table. Keys are
// tried in order; the first one holding a non-null, non-empty value wins.
// When SkipFalsy is set, numeric zero and false also fall through, matching
// senders that use 0 as "unset".
type Field struct {
	Name      string
	Keys      []string
	SkipFalsy bool
}

// The upstream sender is inconsistent about naming. This table is the single
// source of precedence.
var (
	FieldStatus       = Field{Name: "status", Keys: []string{"status", "video_status"}, SkipFalsy: true}
	FieldID           = Field{Name: "id", Keys: []string{"_id", "video_id"}, SkipFalsy: true}
	FieldURL          = Field{Name: "url", Keys: []string{"video", "url"}, SkipFalsy: true}
	FieldErrorMessage = Field{Name: "error_message", Keys: []string{"error_reason", "error_message"}, SkipFalsy: true}
	FieldProgress     = Field{Name: "progress", Keys: []string{"progress"}}
	FieldErrorCode    = Field{Name: "error_code", Keys: []string{"error_code"}}
)

// FallbackTable lists every resolved field in documentation order.
var FallbackTable = []Field{
	FieldStatus,
	FieldID,
	FieldURL,
	FieldErrorMessage,
	FieldProgress,
	FieldErrorCode,
}

// Resolve returns the first present value for f in payload.
func (f Field) Resolve(payload map[string]any) (any, bool) {
	for _, key := range f.Keys {
		v, ok := payload[key]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			continue
		}
		if f.SkipFalsy && falsy(v) {
			continue
		}
		return v, true
	}
	return nil, false
}

// String resolves f and renders it as text; absent values yield "".
func (f Field) String(payload map[string]any) string {
	v, ok := f.Resolve(payload)
	if !ok {
		return ""
	}
	return stringify(v)
}

// Value resolves f and returns the value exactly as sent, or def when the
// field is absent.
func (f Field) Value(payload map[string]any, def any) any {
	if v, ok := f.Resolve(payload); ok {
		return v
	}
	return def
}

// falsy reports numeric zero, false and empty containers.
func falsy(v any) bool {
	switch t := v.(type) {
	case bool:
		return !t
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	n, ok := toFloat(v)
	return ok && n == 0
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	default:
		return 0, false
	}
}

// statusCode reports v as an integer status code. Non-integral numbers,
// strings and other types are not codes.
func statusCode(v any) (int, bool) {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			if i > math.MaxInt32 || i < math.MinInt32 {
				return 0, false
			}
			return int(i), true
		}
	}
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}
