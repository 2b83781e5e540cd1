package util

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func waitReturns(t *testing.T, ctx context.Context) bool {
	t.Helper()
	done := make(chan struct{})
	go func() {
		WaitForInterrupt(ctx)
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(2 * time.Second):
		return false
	}
}

func TestWaitForInterruptStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	assert.True(t, waitReturns(t, ctx), "shutdown must follow the run context")
}

func TestWaitForInterruptAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, waitReturns(t, ctx))
}

func TestWaitForInterruptDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.True(t, waitReturns(t, ctx))
}
