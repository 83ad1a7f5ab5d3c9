package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mqchat/internal/client"
	"mqchat/internal/config"
	"mqchat/internal/mailbox"
	"mqchat/internal/wire"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Queue.Transport != "nats" {
		fmt.Fprintln(os.Stderr, "the interactive client needs queue.transport=nats to reach a server in another process")
		os.Exit(1)
	}

	transport, err := mailbox.NewNATS(cfg.Queue.NATSURL, cfg.Queue.Depth)
	if err != nil {
		fmt.Fprintf(os.Stderr, "transport init failed: %v\n", err)
		os.Exit(1)
	}
	defer transport.Close() // nolint:errcheck

	lim := wire.Limits{MaxText: cfg.Limits.MaxText, MaxName: cfg.Limits.MaxName}
	c, err := client.New(transport, cfg.Queue.ControlKey, os.Getpid(), lim, os.Stdin, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
