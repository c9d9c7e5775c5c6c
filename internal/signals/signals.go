// Package signals turns SIGINT/SIGTERM into context cancellation. This is a
// leaf package: stdlib only, no internal imports, no logging.
package signals

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// InterruptedError is the cancellation cause recorded when a signal
// arrives.
type InterruptedError struct {
	Signal os.Signal
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("interrupted by %s", e.Signal)
}

// SetupSignalContext creates a context that's canceled on SIGINT/SIGTERM.
// context.Cause reports an *InterruptedError naming the signal.
func SetupSignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return notify(parent, syscall.SIGINT, syscall.SIGTERM)
}

func notify(parent context.Context, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, sigs...)

	go func() {
		select {
		case sig := <-sigChan:
			cancel(&InterruptedError{Signal: sig})
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, func() { cancel(context.Canceled) }
}
