package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/dubwave/relay/common/logging"
	"github.com/dubwave/relay/common/middleware"
	"github.com/dubwave/relay/relay/internal/handlers"
)

// RouterConfig holds the non-handler inputs of NewRouter.
type RouterConfig struct {
	AllowedOrigins []string
	Logger         *logging.Logger
}

// NewRouter constructs a ServeMux with the relay routes registered.
func NewRouter(h *handlers.Handler, stream http.Handler, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	// Webhook intake; the handler answers wrong methods with a JSON 405
	mux.HandleFunc("/api/webhook", h.Webhook)

	// Real-time stream and its smoke test
	mux.Handle("GET /api/events", stream)
	mux.HandleFunc("/test-app", h.TestBroadcast)

	// Health endpoints
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("GET /metrics", promhttp.Handler())

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", middleware.HeaderRequestID},
		ExposedHeaders: []string{middleware.HeaderRequestID},
	})

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return middleware.RequestID(AccessLog(logger)(c.Handler(mux)))
}
