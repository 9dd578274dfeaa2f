package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/skarlatos/foliograph/internal/bus"
)

// runWatch tails bus traffic from a running engine: state events by default,
// raw extraction packets with -packets.
func runWatch(args []string) error {
	server := os.Getenv("FOLIOGRAPH_NATS_URL")
	if server == "" {
		server = "nats://localhost:4222"
	}
	topic := bus.TopicEventsAll

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-server":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -server")
			}
			i++
			server = args[i]
		case "-topic":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -topic")
			}
			i++
			topic = args[i]
		case "-packets":
			topic = bus.TopicPacketsAll
		}
	}

	client, err := bus.NewClientFromURL(server)
	if err != nil {
		return err
	}
	defer client.Close()

	sub, err := client.Subscribe(topic, func(msg *nats.Msg) {
		fmt.Printf("%s %s\n", msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	defer sub.Unsubscribe()

	fmt.Fprintf(os.Stderr, "watching %s on %s\n", topic, server)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	return nil
}
