//go:build windows

package bootstrap

import (
	"context"
	"os"
	"os/signal"
)

func WithSignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt)
}
