package cmd

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dubwave/relay/common/logging"
	"github.com/dubwave/relay/common/messaging"
	natsclient "github.com/dubwave/relay/common/messaging/nats"
	"github.com/dubwave/relay/relay/internal/broadcast"
	"github.com/dubwave/relay/relay/internal/config"
	"github.com/dubwave/relay/relay/internal/events"
	"github.com/dubwave/relay/relay/internal/handlers"
	"github.com/dubwave/relay/relay/internal/ratelimit"
	"github.com/dubwave/relay/relay/internal/server"
	"github.com/dubwave/relay/relay/internal/service"
)

// app is a fully wired relay, ready to be served.
type app struct {
	server  *http.Server
	hub     *broadcast.Hub
	limiter ratelimit.RateLimiter
	broker  messaging.Client
	logger  *logging.Logger
}

// newApp wires every component from cfg. Optional backends (NATS, Redis)
// that cannot be reached are logged and left out.
func newApp(cfg *config.Config, logger *logging.Logger) *app {
	a := &app{logger: logger}

	a.hub = broadcast.NewHub(cfg.Broadcast.BufferSize, logger)
	sinks := broadcast.Multi{a.hub}

	if cfg.NATS.Enabled {
		client, err := natsclient.NewClient(natsclient.Config{
			URL:           cfg.NATS.URL,
			Name:          "relay",
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
			Timeout:       cfg.NATS.Timeout,
			Logger:        logger.Logger,
		})
		if err != nil {
			logger.Warn("NATS unavailable, events will not be mirrored",
				slog.String("url", cfg.NATS.URL), logging.Error(err))
		} else {
			a.broker = client
			sinks = append(sinks, broadcast.NewBrokerSink(client, cfg.NATS.SubjectPrefix))
			logger.Info("Mirroring events to NATS",
				slog.String("url", cfg.NATS.URL),
				slog.String("subject", messaging.EventWildcard(cfg.NATS.SubjectPrefix)),
			)
		}
	}

	a.limiter = &ratelimit.NoOpRateLimiter{}
	if cfg.RateLimit.Enabled {
		limiter, err := ratelimit.NewRedisRateLimiter(cfg.RateLimit.RedisURL, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		if err != nil {
			logger.Warn("Redis rate limiter unavailable, continuing without rate limiting", logging.Error(err))
		} else {
			a.limiter = limiter
			logger.Info("Rate limiting enabled",
				slog.Int("requests", cfg.RateLimit.Requests),
				slog.Duration("window", cfg.RateLimit.Window),
			)
		}
	}

	classifier := events.NewClassifier(sinks,
		events.WithTopic(cfg.Broadcast.Topic),
		events.WithLogger(logger),
	)
	svc := service.NewWebhookService(cfg.Secrets.Pair(), classifier, logger)

	h := handlers.NewHandler(svc, classifier, handlers.Options{
		Limiter:      a.limiter,
		Subscribers:  a.hub,
		Broker:       a.broker,
		MaxBodyBytes: cfg.Webhook.MaxBodyBytes,
		Logger:       logger,
	})
	stream := broadcast.NewSSEHandler(a.hub, broadcast.SSEConfig{
		Topic:     cfg.Broadcast.Topic,
		Heartbeat: cfg.Broadcast.Heartbeat,
		Greeting:  h.Greeting,
	}, logger)

	// No WriteTimeout: SSE responses stay open for the life of the client.
	a.server = &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: server.NewRouter(h, stream, server.RouterConfig{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			Logger:         logger,
		}),
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}
	return a
}

// shutdown disconnects stream clients first so Shutdown does not wait on
// their open responses.
func (a *app) shutdown(ctx context.Context) error {
	a.hub.Close()
	err := a.server.Shutdown(ctx)

	if cerr := a.limiter.Close(); cerr != nil {
		a.logger.Warn("Closing rate limiter failed", logging.Error(cerr))
	}
	if a.broker != nil {
		if derr := a.broker.Drain(); derr != nil {
			a.logger.Warn("Draining NATS failed", logging.Error(derr))
		}
	}
	return err
}
