package maintenance

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/small-frappuccino/rolebuttons/pkg/log"
	"github.com/small-frappuccino/rolebuttons/pkg/task"
)

const (
	// DefaultPruneSchedule runs the global prune daily at 04:00 UTC.
	DefaultPruneSchedule = "0 4 * * *"

	buttonPruneLastRunKey = "button_prune_last_run"
	retryAfterFailure     = 15 * time.Minute
)

// PruneRunner runs a prune through the task router. *task.PruneAdapters
// satisfies it.
type PruneRunner interface {
	PruneAs(ctx context.Context, trigger, guildID string, purgeMissingGuilds bool) (int, error)
}

// MetaStore persists the last run marker. *storage.Store satisfies it.
type MetaStore interface {
	GetMetaTime(key string) (time.Time, bool, error)
	SetMetaTime(key string, t time.Time) error
}

// ButtonPruneOptions configures the scheduled prune.
type ButtonPruneOptions struct {
	// Schedule is a cron expression in UTC. Empty disables the service.
	Schedule           string
	PurgeMissingGuilds bool
}

// ButtonPruneService runs a global button prune on a cron schedule. A run
// missed while the bot was offline is caught up at startup.
type ButtonPruneService struct {
	runner PruneRunner
	store  MetaStore
	opts   ButtonPruneOptions
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	running bool
}

func NewButtonPruneService(runner PruneRunner, store MetaStore, opts ButtonPruneOptions) *ButtonPruneService {
	opts.Schedule = strings.TrimSpace(opts.Schedule)
	return &ButtonPruneService{
		runner: runner,
		store:  store,
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the schedule loop. It is a no-op when the schedule is
// empty or the service already runs.
func (s *ButtonPruneService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.opts.Schedule == "" || s.runner == nil {
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go s.loop(s.ctx)
	log.ApplicationLogger().Info("Scheduled button prune started", "schedule", s.opts.Schedule, "purgeMissingGuilds", s.opts.PurgeMissingGuilds)
}

// Stop cancels the loop and any run in flight, then waits for it.
func (s *ButtonPruneService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *ButtonPruneService) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *ButtonPruneService) loop(ctx context.Context) {
	defer s.wg.Done()

	next, err := s.nextRun()
	for {
		wait := retryAfterFailure
		if err == nil {
			wait = next.Sub(s.now())
		} else {
			log.ApplicationLogger().Error("Scheduled button prune: cannot compute next run", "schedule", s.opts.Schedule, "err", err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err == nil {
			s.runOnce(ctx)
		}
		next, err = task.NextRun(s.opts.Schedule, s.now())
	}
}

// nextRun returns the first tick after the last recorded run. With no
// record, the next tick from now is used.
func (s *ButtonPruneService) nextRun() (time.Time, error) {
	now := s.now()
	last, ok := s.lastRun()
	if !ok {
		return task.NextRun(s.opts.Schedule, now)
	}
	return task.NextRun(s.opts.Schedule, last)
}

func (s *ButtonPruneService) lastRun() (time.Time, bool) {
	if s.store == nil {
		return time.Time{}, false
	}
	ts, ok, err := s.store.GetMetaTime(buttonPruneLastRunKey)
	if err != nil {
		log.ApplicationLogger().Warn("Scheduled button prune: failed to read last run marker", "err", err)
		return time.Time{}, false
	}
	return ts, ok
}

// runOnce runs one global prune and records the run when it succeeded.
func (s *ButtonPruneService) runOnce(ctx context.Context) {
	started := s.now()
	removed, err := s.runner.PruneAs(ctx, "schedule", "", s.opts.PurgeMissingGuilds)
	switch {
	case errors.Is(err, task.ErrDuplicateTask):
		log.ApplicationLogger().Info("Scheduled button prune skipped: a global prune is already running")
		return
	case err != nil:
		log.ApplicationLogger().Warn("Scheduled button prune failed", "err", err)
		return
	}

	if s.store != nil {
		if err := s.store.SetMetaTime(buttonPruneLastRunKey, started); err != nil {
			log.ApplicationLogger().Warn("Scheduled button prune: failed to persist run marker", "err", err)
		}
	}
	log.Audit("Scheduled button prune finished", "removed", removed, "purgeMissingGuilds", s.opts.PurgeMissingGuilds)
}
