// Package perf logs interaction handlers that run longer than a threshold.
package perf

import (
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/small-frappuccino/rolebuttons/pkg/log"
)

// DefaultSlowThreshold is used until SetSlowThreshold is called.
const DefaultSlowThreshold = 2 * time.Second

var slowThreshold atomic.Int64

func init() {
	slowThreshold.Store(int64(DefaultSlowThreshold))
}

// SetSlowThreshold changes the threshold. Zero or less disables tracking.
func SetSlowThreshold(d time.Duration) {
	slowThreshold.Store(int64(d))
}

// StartHandler starts timing a handler. Call the returned func when the
// handler returns; it logs a warning only if the threshold was crossed.
func StartHandler(name string, attrs ...slog.Attr) func() {
	threshold := time.Duration(slowThreshold.Load())
	if threshold <= 0 {
		return func() {}
	}

	start := time.Now()
	return func() {
		elapsed := time.Since(start)
		if elapsed < threshold {
			return
		}
		report(name, elapsed, attrs)
	}
}

func report(name string, elapsed time.Duration, attrs []slog.Attr) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "unknown"
	}
	args := make([]any, 0, len(attrs)+2)
	args = append(args, slog.String("handler", name), slog.Int64("duration_ms", elapsed.Milliseconds()))
	for _, a := range attrs {
		args = append(args, a)
	}
	log.DiscordLogger().Warn("Slow interaction handler", args...)
}
