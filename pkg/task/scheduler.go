package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/small-frappuccino/rolebuttons/pkg/log"
)

// Cancel is a function that cancels a scheduled job.
type Cancel func()

type cronJob struct {
	expr string
	task Task
	stop chan struct{}
	once sync.Once
}

func (j *cronJob) cancel() {
	j.once.Do(func() { close(j.stop) })
}

// retryAfterTickError is how long a job sleeps when the next tick cannot
// be computed.
const retryAfterTickError = 30 * time.Second

// now is swapped in tests.
var now = func() time.Time { return time.Now().UTC() }

// ScheduleCron dispatches t at every tick of the cron expression expr (UTC).
// A tick that finds the previous run still holding its idempotency key is
// skipped.
func (tr *TaskRouter) ScheduleCron(expr string, t Task) (Cancel, error) {
	if !gronx.IsValid(expr) {
		return nil, fmt.Errorf("invalid cron expression %q", expr)
	}
	job := &cronJob{expr: expr, task: t, stop: make(chan struct{})}

	tr.cronMu.Lock()
	tr.cronJobs = append(tr.cronJobs, job)
	idx := len(tr.cronJobs) - 1
	tr.cronMu.Unlock()

	tr.wg.Add(1)
	go tr.cronLoop(job)

	return func() {
		job.cancel()
		tr.cronMu.Lock()
		if idx < len(tr.cronJobs) && tr.cronJobs[idx] == job {
			tr.cronJobs[idx] = nil
		}
		tr.cronMu.Unlock()
	}, nil
}

// NextRun returns the first tick of expr strictly after from.
func NextRun(expr string, from time.Time) (time.Time, error) {
	return gronx.NextTickAfter(expr, from, false)
}

func (tr *TaskRouter) cronLoop(job *cronJob) {
	defer tr.wg.Done()
	logger := log.ApplicationLogger().With("cron", job.expr, "type", job.task.Type)

	for {
		wait := retryAfterTickError
		next, err := NextRun(job.expr, now())
		if err != nil {
			logger.Error("Failed to compute next cron tick", "err", err)
		} else {
			wait = time.Until(next)
		}

		timer := time.NewTimer(wait)
		select {
		case <-job.stop:
			timer.Stop()
			return
		case <-tr.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}
		if err != nil {
			continue
		}

		if err := tr.Dispatch(tr.ctx, job.task); err != nil {
			logger.Warn("Scheduled task not dispatched", "err", err)
			continue
		}
		logger.Debug("Scheduled task dispatched", "tick", next)
	}
}
