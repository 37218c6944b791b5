package main

import (
	"context"
	"os/signal"
	"syscall"
)

// signalContext returns a context canceled on the first SIGINT/SIGTERM, so
// every command can shut down its components gracefully instead of being
// killed mid-teardown.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
