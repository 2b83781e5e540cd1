package maintenance

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/small-frappuccino/rolebuttons/pkg/storage"
	"github.com/small-frappuccino/rolebuttons/pkg/task"
)

func newPruneTestStore(t *testing.T) *storage.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "prune_test.sqlite")
	s := storage.NewStore(dbPath)
	if err := s.Init(); err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type fakeRunner struct {
	mu       sync.Mutex
	calls    int32
	triggers []string
	purge    bool
	err      error
}

func (f *fakeRunner) PruneAs(_ context.Context, trigger, guildID string, purge bool) (int, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.triggers = append(f.triggers, trigger+"/"+task.PruneScope(guildID))
	f.purge = purge
	f.mu.Unlock()
	if f.err != nil {
		return -1, f.err
	}
	return 2, nil
}

func TestRunOnceRecordsMarker(t *testing.T) {
	store := newPruneTestStore(t)
	runner := &fakeRunner{}
	svc := NewButtonPruneService(runner, store, ButtonPruneOptions{Schedule: DefaultPruneSchedule, PurgeMissingGuilds: true})
	at := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return at }

	svc.runOnce(context.Background())

	assert.Equal(t, []string{"schedule/global"}, runner.triggers)
	assert.True(t, runner.purge)
	ts, ok, err := store.GetMetaTime(buttonPruneLastRunKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, ts.Equal(at))
}

func TestRunOnceFailureLeavesMarker(t *testing.T) {
	for _, runErr := range []error{task.ErrDuplicateTask, errors.New("remote down")} {
		store := newPruneTestStore(t)
		svc := NewButtonPruneService(&fakeRunner{err: runErr}, store, ButtonPruneOptions{Schedule: DefaultPruneSchedule})

		svc.runOnce(context.Background())

		_, ok, err := store.GetMetaTime(buttonPruneLastRunKey)
		require.NoError(t, err)
		assert.False(t, ok, "no marker after %v", runErr)
	}
}

func TestNextRunFollowsLastRun(t *testing.T) {
	store := newPruneTestStore(t)
	svc := NewButtonPruneService(&fakeRunner{}, store, ButtonPruneOptions{Schedule: DefaultPruneSchedule})
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	next, err := svc.nextRun()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 4, 0, 0, 0, time.UTC), next.UTC())

	require.NoError(t, store.SetMetaTime(buttonPruneLastRunKey, time.Date(2026, 3, 7, 4, 0, 0, 0, time.UTC)))
	next, err = svc.nextRun()
	require.NoError(t, err)
	assert.True(t, next.Before(now), "a missed run is due immediately")
}

func TestStartCatchesUpMissedRun(t *testing.T) {
	store := newPruneTestStore(t)
	require.NoError(t, store.SetMetaTime(buttonPruneLastRunKey, time.Now().UTC().AddDate(0, 0, -3)))
	runner := &fakeRunner{}
	svc := NewButtonPruneService(runner, store, ButtonPruneOptions{Schedule: DefaultPruneSchedule})

	svc.Start()
	require.True(t, svc.IsRunning())
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runner.calls) == 1 }, 2*time.Second, 10*time.Millisecond)

	svc.Stop()
	assert.False(t, svc.IsRunning())
	svc.Stop()
}

func TestStartDisabledWithoutSchedule(t *testing.T) {
	svc := NewButtonPruneService(&fakeRunner{}, nil, ButtonPruneOptions{Schedule: "  "})
	svc.Start()
	assert.False(t, svc.IsRunning())
	svc.Stop()
}
