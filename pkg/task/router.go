package task

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/small-frappuccino/rolebuttons/pkg/log"
)

// TaskHandler is a function that processes a task payload.
type TaskHandler func(ctx context.Context, payload any) error

// TaskOptions configures how a task should be dispatched and executed.
type TaskOptions struct {
	// GroupKey ensures serialized execution for tasks that share the same group.
	// If empty, tasks use a global group.
	GroupKey string

	// IdempotencyKey deduplicates tasks. A key is held while its task is
	// queued or running and, unless ReleaseOnFinish is set, until
	// IdempotencyTTL has passed since dispatch.
	IdempotencyKey string

	// ReleaseOnFinish frees IdempotencyKey as soon as the task finishes.
	ReleaseOnFinish bool

	// MaxAttempts controls how many times the task may be retried on handler error.
	// If 0, router uses RouterConfig.DefaultMaxAttempts.
	MaxAttempts int

	// InitialBackoff sets the initial backoff used for retries. If 0, router uses RouterConfig.InitialBackoff.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff. If 0, router uses RouterConfig.MaxBackoff.
	MaxBackoff time.Duration

	// IdempotencyTTL controls how long the idempotency key is kept for deduplication.
	// If 0, router uses RouterConfig.IdempotencyTTL.
	IdempotencyTTL time.Duration
}

// Task encapsulates the work to be executed by the router.
type Task struct {
	Type    string
	Payload any
	Options TaskOptions

	// done receives the final outcome; set by DispatchWait.
	done chan error
}

// RouterConfig configures the TaskRouter behavior.
type RouterConfig struct {
	DefaultMaxAttempts int
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration
	IdempotencyTTL     time.Duration

	// GroupBuffer controls the buffered channel size for each group worker.
	GroupBuffer int

	// GroupIdleTTL after which an idle group worker will be stopped.
	GroupIdleTTL time.Duration

	// CleanupInterval controls how often idle groups and expired
	// idempotency keys are swept.
	CleanupInterval time.Duration

	// GlobalMaxWorkers limits concurrent handler executions across all
	// groups. 0 or less means unlimited.
	GlobalMaxWorkers int
}

// Defaults returns a RouterConfig with sensible defaults.
func Defaults() RouterConfig {
	return RouterConfig{
		DefaultMaxAttempts: 3,
		InitialBackoff:     1 * time.Second,
		MaxBackoff:         30 * time.Second,
		IdempotencyTTL:     60 * time.Second,
		GroupBuffer:        32,
		GroupIdleTTL:       2 * time.Minute,
		CleanupInterval:    time.Minute,
		GlobalMaxWorkers:   0,
	}
}

// Errors returned by the router.
var (
	ErrRouterClosed    = errors.New("task router is closed")
	ErrUnknownTaskType = errors.New("unknown task type")
	ErrDuplicateTask   = errors.New("duplicate task (idempotency key present)")
	ErrQueueFull       = errors.New("task queue is full")
)

const globalGroup = "_global"

// TaskRouter is an in-memory dispatcher with per-group serialization,
// idempotency and retry with exponential backoff. Handlers get a context
// that is cancelled by Close.
type TaskRouter struct {
	mu        sync.RWMutex
	handlers  map[string]TaskHandler
	groups    map[string]*groupWorker
	inflight  map[string]*idemEntry
	closed    bool
	cfg       RouterConfig
	wg        sync.WaitGroup
	stopOnce  sync.Once
	stopCh    chan struct{}
	randMutex sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	execSem chan struct{}

	cronMu   sync.Mutex
	cronJobs []*cronJob
}

type idemEntry struct {
	expiry  time.Time
	running bool
}

type groupWorker struct {
	key        string
	ch         chan *enqueuedTask
	lastActive time.Time
	busy       bool
	stopping   bool
}

type enqueuedTask struct {
	task    Task
	attempt int
}

// NewRouter creates a new TaskRouter with the provided configuration.
func NewRouter(cfg RouterConfig) *TaskRouter {
	def := Defaults()
	if cfg.DefaultMaxAttempts <= 0 {
		cfg.DefaultMaxAttempts = def.DefaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = def.IdempotencyTTL
	}
	if cfg.GroupBuffer <= 0 {
		cfg.GroupBuffer = def.GroupBuffer
	}
	if cfg.GroupIdleTTL <= 0 {
		cfg.GroupIdleTTL = def.GroupIdleTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	tr := &TaskRouter{
		handlers: make(map[string]TaskHandler),
		groups:   make(map[string]*groupWorker),
		inflight: make(map[string]*idemEntry),
		cfg:      cfg,
		stopCh:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	if cfg.GlobalMaxWorkers > 0 {
		tr.execSem = make(chan struct{}, cfg.GlobalMaxWorkers)
	}

	tr.wg.Add(1)
	go tr.backgroundLoop()
	return tr
}

// RegisterHandler registers a handler for the given task type.
func (tr *TaskRouter) RegisterHandler(taskType string, handler TaskHandler) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.handlers[taskType] = handler
}

// Dispatch enqueues a task for execution, respecting grouping and idempotency.
// Returns ErrUnknownTaskType if no handler is registered.
// Returns ErrDuplicateTask when the IdempotencyKey is still held and
// ErrQueueFull when the group's buffer is full.
func (tr *TaskRouter) Dispatch(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.closed {
		return ErrRouterClosed
	}

	handler, ok := tr.handlers[t.Type]
	if !ok || handler == nil {
		return ErrUnknownTaskType
	}

	eff := tr.effectiveOptions(t.Options)

	if key := eff.IdempotencyKey; key != "" {
		if e, exists := tr.inflight[key]; exists && (e.running || time.Now().Before(e.expiry)) {
			return ErrDuplicateTask
		}
		tr.inflight[key] = &idemEntry{expiry: time.Now().Add(eff.IdempotencyTTL), running: true}
	}

	groupKey := eff.GroupKey
	if groupKey == "" {
		groupKey = globalGroup
	}
	gw := tr.ensureGroupLocked(groupKey)

	enq := &enqueuedTask{task: t, attempt: 1}
	select {
	case gw.ch <- enq:
		return nil
	default:
		if eff.IdempotencyKey != "" {
			delete(tr.inflight, eff.IdempotencyKey)
		}
		return ErrQueueFull
	}
}

// DispatchWait dispatches t and blocks until its last attempt finished,
// returning the handler's final error. Leaving early through ctx does not
// cancel the task.
func (tr *TaskRouter) DispatchWait(ctx context.Context, t Task) error {
	t.done = make(chan error, 1)
	if err := tr.Dispatch(ctx, t); err != nil {
		return err
	}
	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the router and waits for its goroutines to exit. Running
// and still queued handlers see a cancelled context.
func (tr *TaskRouter) Close() {
	tr.stopOnce.Do(func() {
		tr.mu.Lock()
		tr.closed = true
		for _, gw := range tr.groups {
			if gw != nil && !gw.stopping {
				gw.stopping = true
				close(gw.ch)
			}
		}
		tr.mu.Unlock()
		tr.cancel()
		close(tr.stopCh)
		tr.wg.Wait()
	})
}

// Stats provides a snapshot with counts useful for debugging/monitoring.
type Stats struct {
	GroupsCount     int
	InflightCount   int
	RouterClosed    bool
	RegisteredTypes int
	CronJobs        int
}

func (tr *TaskRouter) Stats() Stats {
	tr.mu.RLock()
	s := Stats{
		GroupsCount:     len(tr.groups),
		InflightCount:   len(tr.inflight),
		RouterClosed:    tr.closed,
		RegisteredTypes: len(tr.handlers),
	}
	tr.mu.RUnlock()
	tr.cronMu.Lock()
	for _, j := range tr.cronJobs {
		if j != nil {
			s.CronJobs++
		}
	}
	tr.cronMu.Unlock()
	return s
}

// --- Internals ---

func (tr *TaskRouter) effectiveOptions(opt TaskOptions) TaskOptions {
	if opt.MaxAttempts <= 0 {
		opt.MaxAttempts = tr.cfg.DefaultMaxAttempts
	}
	if opt.InitialBackoff <= 0 {
		opt.InitialBackoff = tr.cfg.InitialBackoff
	}
	if opt.MaxBackoff <= 0 {
		opt.MaxBackoff = tr.cfg.MaxBackoff
	}
	if opt.IdempotencyTTL <= 0 {
		opt.IdempotencyTTL = tr.cfg.IdempotencyTTL
	}
	return opt
}

func (tr *TaskRouter) ensureGroupLocked(key string) *groupWorker {
	if gw, ok := tr.groups[key]; ok && gw != nil {
		return gw
	}
	gw := &groupWorker{
		key:        key,
		ch:         make(chan *enqueuedTask, tr.cfg.GroupBuffer),
		lastActive: time.Now(),
	}
	tr.groups[key] = gw
	tr.wg.Add(1)
	go tr.groupLoop(gw)
	return gw
}

func (tr *TaskRouter) acquireExecSlot() {
	if tr.execSem != nil {
		tr.execSem <- struct{}{}
	}
}

func (tr *TaskRouter) releaseExecSlot() {
	if tr.execSem != nil {
		select {
		case <-tr.execSem:
		default:
		}
	}
}

func (tr *TaskRouter) groupLoop(gw *groupWorker) {
	defer tr.wg.Done()

	for enq := range gw.ch {
		tr.mu.Lock()
		gw.lastActive = time.Now()
		gw.busy = true
		handler := tr.handlers[enq.task.Type]
		eff := tr.effectiveOptions(enq.task.Options)
		tr.mu.Unlock()

		if handler == nil {
			log.ApplicationLogger().Warn("Task dropped (handler not registered)", "type", enq.task.Type, "group", gw.key)
			tr.idle(gw)
			tr.finish(enq.task, eff, ErrUnknownTaskType)
			continue
		}

		tr.acquireExecSlot()
		err := func() error {
			defer tr.releaseExecSlot()
			return handler(tr.ctx, enq.task.Payload)
		}()
		tr.idle(gw)

		if err != nil && enq.attempt < eff.MaxAttempts && tr.ctx.Err() == nil {
			delay := tr.computeBackoff(eff.InitialBackoff, eff.MaxBackoff, enq.attempt)
			attempt := enq.attempt + 1

			log.ApplicationLogger().Warn("Task failed, scheduling retry",
				"type", enq.task.Type,
				"group", gw.key,
				"attempt", attempt,
				"max_attempts", eff.MaxAttempts,
				"backoff", delay.String(),
				"err", err,
			)
			tr.retryLater(gw.key, enq, attempt, delay, eff)
			continue
		}

		if err != nil {
			log.ErrorLoggerRaw().Error("Task failed; max attempts reached",
				"type", enq.task.Type,
				"group", gw.key,
				"attempts", enq.attempt,
				"err", err,
			)
		}
		tr.finish(enq.task, eff, err)
	}
}

func (tr *TaskRouter) idle(gw *groupWorker) {
	tr.mu.Lock()
	gw.busy = false
	gw.lastActive = time.Now()
	tr.mu.Unlock()
}

func (tr *TaskRouter) retryLater(groupKey string, enq *enqueuedTask, attempt int, d time.Duration, eff TaskOptions) {
	tr.wg.Add(1)
	go func() {
		defer tr.wg.Done()
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-tr.stopCh:
			tr.finish(enq.task, eff, ErrRouterClosed)
			return
		}
		enq.attempt = attempt

		tr.mu.Lock()
		if tr.closed {
			tr.mu.Unlock()
			tr.finish(enq.task, eff, ErrRouterClosed)
			return
		}
		g := tr.ensureGroupLocked(groupKey)
		var err error
		select {
		case g.ch <- enq:
		default:
			err = ErrQueueFull
		}
		tr.mu.Unlock()
		if err != nil {
			tr.finish(enq.task, eff, err)
		}
	}()
}

// finish reports the outcome and releases or ages the idempotency key.
func (tr *TaskRouter) finish(t Task, eff TaskOptions, err error) {
	if key := eff.IdempotencyKey; key != "" {
		tr.mu.Lock()
		if e, ok := tr.inflight[key]; ok {
			if eff.ReleaseOnFinish {
				delete(tr.inflight, key)
			} else {
				e.running = false
			}
		}
		tr.mu.Unlock()
	}
	if t.done != nil {
		t.done <- err
	}
}

func (tr *TaskRouter) computeBackoff(initial, max time.Duration, attempt int) time.Duration {
	backoff := initial
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > max {
			backoff = max
			break
		}
	}
	jitter := tr.jitter(backoff, 0.1)
	return clampDuration(backoff+jitter, initial, max)
}

func (tr *TaskRouter) jitter(d time.Duration, ratio float64) time.Duration {
	if ratio <= 0 {
		return 0
	}
	tr.randMutex.Lock()
	defer tr.randMutex.Unlock()
	delta := int64(float64(d) * ratio)
	if delta <= 0 {
		return 0
	}
	n := rand.Int63n(2*delta+1) - delta
	return time.Duration(n)
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	return max(min(v, hi), lo)
}

func (tr *TaskRouter) backgroundLoop() {
	defer tr.wg.Done()
	t := time.NewTicker(tr.cfg.CleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-tr.stopCh:
			return
		case <-t.C:
			tr.cleanupOnce()
		}
	}
}

func (tr *TaskRouter) cleanupOnce() {
	now := time.Now()

	tr.mu.Lock()
	defer tr.mu.Unlock()
	for k, e := range tr.inflight {
		if !e.running && now.After(e.expiry) {
			delete(tr.inflight, k)
		}
	}
	for key, gw := range tr.groups {
		if gw == nil || gw.stopping || gw.busy {
			continue
		}
		if now.Sub(gw.lastActive) >= tr.cfg.GroupIdleTTL && len(gw.ch) == 0 {
			gw.stopping = true
			close(gw.ch)
			delete(tr.groups, key)
		}
	}
}
