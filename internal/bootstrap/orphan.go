package bootstrap

import (
	"context"
	"errors"
	"os"
	"time"
)

var ErrParentGone = errors.New("launcher process exited")

// WatchParent cancels the returned context once this process is reparented,
// which is how a worker notices its launcher died on platforms without a
// parent-death signal. A non-positive ppid disables the watch.
func WatchParent(ctx context.Context, ppid int, interval time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	if ppid <= 0 {
		return ctx, func() { cancel(context.Canceled) }
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if os.Getppid() != ppid {
				cancel(ErrParentGone)
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return ctx, func() { cancel(context.Canceled) }
}
