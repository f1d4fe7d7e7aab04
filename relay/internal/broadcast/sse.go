package broadcast

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dubwave/relay/common/httputil"
	"github.com/dubwave/relay/common/logging"
)

// DefaultHeartbeat matches the ping interval the upstream UI was built for.
const DefaultHeartbeat = 25 * time.Second

// reconnectDelay is the retry hint sent to EventSource clients.
const reconnectDelay = 3 * time.Second

// SSEConfig configures an SSEHandler.
type SSEConfig struct {
	// Topic streamed when the request has no ?topic= parameter.
	Topic string
	// Heartbeat is the interval between keep-alive comments.
	Heartbeat time.Duration
	// Greeting returns the message sent to each new subscriber ahead of any
	// broadcast. A nil result sends nothing.
	Greeting func(topic string) []byte
}

// SSEHandler streams hub messages to browsers as text/event-stream.
type SSEHandler struct {
	hub    *Hub
	cfg    SSEConfig
	logger *logging.Logger
}

// NewSSEHandler builds an SSEHandler for hub.
func NewSSEHandler(hub *Hub, cfg SSEConfig, logger *logging.Logger) *SSEHandler {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SSEHandler{hub: hub, cfg: cfg, logger: logger}
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteMessage(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	topic := strings.TrimSpace(r.URL.Query().Get("topic"))
	if topic == "" {
		topic = h.cfg.Topic
	}

	var initial [][]byte
	if h.cfg.Greeting != nil {
		if greeting := h.cfg.Greeting(topic); greeting != nil {
			initial = append(initial, greeting)
		}
	}
	sub := h.hub.Subscribe(topic, initial...)
	defer sub.Close()

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprintf(w, "retry: %d\n\n", reconnectDelay.Milliseconds()); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.cfg.Heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-sub.C():
			if !ok {
				return
			}
			if err := writeEvent(w, data); err != nil {
				h.logger.DebugContext(ctx, "SSE write failed", logging.Subscriber(sub.ID), logging.Error(err))
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeEvent frames data as one SSE event. Embedded newlines become
// additional data lines.
func writeEvent(w http.ResponseWriter, data []byte) error {
	for _, line := range strings.Split(string(data), "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(w, "\n")
	return err
}
