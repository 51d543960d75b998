package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
// Calling the returned cancel func restores default signal handling, so a
// second signal after shutdown has started terminates the process.
func SetupSignalHandler() (context.Context, context.CancelFunc) {
	return SignalContext(context.Background())
}

// SignalContext is SetupSignalHandler with an explicit parent.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
