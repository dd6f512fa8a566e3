package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/provenance/internal/events"
)

var (
	watchNATSURL string
	watchTopic   string
)

func defaultNATSURL() string {
	if s := os.Getenv("PROV_NATS_URL"); s != "" {
		return s
	}
	return "nats://localhost:4222"
}

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Stream ledger events from the bus",
	GroupID: "system",
	Args:    cobra.NoArgs,
	// Watch talks to NATS directly, not the HTTP API.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, err := events.NewNATSSubscriber(watchNATSURL)
		if err != nil {
			return fmt.Errorf("connecting to %s: %w", watchNATSURL, err)
		}
		defer sub.Close()

		ch, cancel, err := sub.Subscribe(watchTopic)
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", watchTopic, err)
		}
		defer cancel()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		fmt.Fprintf(os.Stderr, "watching %s (ctrl-c to stop)\n", watchTopic)
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-ch:
				if !ok {
					return nil
				}
				fmt.Println(string(msg))
			}
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchNATSURL, "nats-url", defaultNATSURL(), "NATS server URL")
	watchCmd.Flags().StringVar(&watchTopic, "topic", "ledger.>", "subject filter to watch")
}
