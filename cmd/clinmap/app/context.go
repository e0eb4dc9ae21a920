package app

import (
	"context"
	"os/signal"
	"syscall"
)

// ContextWithSignals creates a context that is canceled when the process
// receives an interrupt or termination signal. In-flight annotator batches
// observe the cancellation and no outputs are written.
func ContextWithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
