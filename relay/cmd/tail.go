package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dubwave/relay/common/messaging"
	natsclient "github.com/dubwave/relay/common/messaging/nats"
	"github.com/dubwave/relay/relay/internal/config"
)

var tailCmd = &cobra.Command{
	Use:   "tail [topic]",
	Short: "Print envelopes mirrored to NATS",
	Long: `Subscribe to the NATS subjects the relay mirrors envelopes to and print
each one as it arrives. Without a topic every topic is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTail,
}

func runTail(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	client, err := natsclient.NewClient(natsclient.Config{
		URL:           cfg.NATS.URL,
		Name:          "relay-tail",
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
		Timeout:       cfg.NATS.Timeout,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	subject := messaging.EventWildcard(cfg.NATS.SubjectPrefix)
	if len(args) == 1 {
		subject = messaging.EventSubject(cfg.NATS.SubjectPrefix, args[0])
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return tail(ctx, client, subject, tailBufferSize,
		func(msg *messaging.Message) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", msg.Subject, msg.Data)
		},
		func(n uint64) {
			fmt.Fprintf(cmd.ErrOrStderr(), "tail: %d messages dropped, output too slow\n", n)
		},
	)
}

const tailBufferSize = 64

// tail delivers messages on subject to emit until ctx is done. Messages that
// arrive while the buffer is full are discarded and reported to dropped,
// which is called after the next emit and once more on exit.
func tail(ctx context.Context, sub messaging.Subscriber, subject string, buffer int,
	emit func(*messaging.Message), dropped func(n uint64)) error {
	msgs := make(chan *messaging.Message, buffer)
	var lost atomic.Uint64
	s, err := sub.Subscribe(subject, func(_ context.Context, msg *messaging.Message) error {
		select {
		case msgs <- msg:
		default:
			lost.Add(1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	defer s.Unsubscribe()

	report := func() {
		if n := lost.Swap(0); n > 0 && dropped != nil {
			dropped(n)
		}
	}
	for {
		select {
		case <-ctx.Done():
			report()
			return nil
		case msg := <-msgs:
			emit(msg)
			report()
		}
	}
}
