package util

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/small-frappuccino/rolebuttons/pkg/log"
)

// WaitForInterrupt blocks until SIGINT or SIGTERM arrives or ctx ends.
func WaitForInterrupt(ctx context.Context) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.ApplicationLogger().Info("Shutdown requested", "cause", context.Cause(ctx))
}
