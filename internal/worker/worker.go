// Package worker implements the Worker Loop (component G): a per-platform
// dispatcher that polls its queue, takes the platform lock, dequeues and
// runs exactly one job at a time through the workflow engine, and releases
// the lock on every exit path (spec §4.G).
//
// Concurrency across platforms comes from running one *Worker per platform
// tag; concurrency within a platform is exactly 1 by design (spec §5).
package worker

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/scanflow/platform/internal/domain"
	"github.com/scanflow/platform/internal/engine"
	"github.com/scanflow/platform/internal/engine/nodes"
	"github.com/scanflow/platform/internal/jobrepo"
	"github.com/scanflow/platform/internal/platform/logger"
	"github.com/scanflow/platform/internal/platformlock"
	"github.com/scanflow/platform/internal/resultwriter"
	"github.com/scanflow/platform/internal/workflowconfig"
)

// Config holds the tunables spec §6 lists as environment inputs, scoped to
// one platform's worker.
type Config struct {
	Platform      domain.Platform
	PollInterval  time.Duration
	LockTTL       time.Duration
	ResultsDir    string
}

// Worker is the per-platform poll -> lock -> dequeue -> execute -> release
// loop described in spec §4.G's pseudocode.
type Worker struct {
	cfg       Config
	repo      *jobrepo.Repo
	lock      *platformlock.Lock
	engine    *engine.Engine
	workflows *workflowconfig.Store
	holder    string
	log       *logger.Logger
}

// New constructs a Worker for one platform. holder uniquely identifies
// this process+goroutine as a lock owner; it is stable for the Worker's
// whole lifetime so heartbeats and the final release target the same
// token the original Acquire set.
func New(cfg Config, repo *jobrepo.Repo, lock *platformlock.Lock, eng *engine.Engine, workflows *workflowconfig.Store, log *logger.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	hostname, _ := os.Hostname()
	holder := fmt.Sprintf("%s:%s:%s", hostname, cfg.Platform, uuid.NewString())
	return &Worker{
		cfg:       cfg,
		repo:      repo,
		lock:      lock,
		engine:    eng,
		workflows: workflows,
		holder:    holder,
		log:       log.With("component", "Worker", "platform", cfg.Platform),
	}
}

// Run blocks, servicing cfg.Platform's queue until ctx is cancelled (spec
// §4.G "loop: if shutdown: break").
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("worker loop starting", "holder", w.holder, "poll_interval", w.cfg.PollInterval)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker loop stopping")
			return
		default:
		}

		if !w.tick(ctx) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.PollInterval):
			}
		}
	}
}

// tick runs one iteration of the loop. It returns true once it has
// acquired the lock and run an iteration, even if the dequeue then came
// back empty (so the caller can skip the poll-interval sleep and
// immediately check for more), false if the queue was empty, a backing-
// store call failed, or it lost the race for the lock.
func (w *Worker) tick(ctx context.Context) bool {
	n, err := w.repo.PeekQueueLength(ctx, w.cfg.Platform)
	if err != nil {
		w.log.Warn("peek queue length failed, backing off", "error", err)
		return false
	}
	if n == 0 {
		return false
	}

	acquired, err := w.lock.Acquire(ctx, w.cfg.Platform, w.holder, w.cfg.LockTTL)
	if err != nil {
		w.log.Warn("lock acquire failed, backing off", "error", err)
		return false
	}
	if !acquired {
		return false
	}

	w.runOnce(ctx)
	return true
}

// runOnce dequeues and executes a single job while holding the platform
// lock, releasing it on every exit path (spec §4.G's try/finally shape,
// modeled here with defer per the teacher's worker idiom).
func (w *Worker) runOnce(ctx context.Context) {
	var lockLost atomic.Bool
	defer func() {
		if lockLost.Load() {
			// Another owner may already be running; touching the running
			// marker or releasing would stomp on their state (spec §4.B
			// "must not delete another owner's lock").
			return
		}
		if err := w.lock.ClearRunningJob(ctx, w.cfg.Platform); err != nil {
			w.log.Warn("clear running job failed", "error", err)
		}
		if err := w.lock.Release(ctx, w.cfg.Platform, w.holder); err != nil {
			w.log.Warn("lock release failed", "error", err)
		}
	}()

	job, err := w.repo.Dequeue(ctx, w.cfg.Platform)
	if err != nil {
		w.log.Warn("dequeue failed", "error", err)
		return
	}
	if job == nil {
		// Another worker won the race between our PeekQueueLength and
		// Dequeue; nothing to do this tick.
		return
	}
	jobLog := w.log.With("job_id", job.ID, "workflow_id", job.WorkflowID)

	if err := w.lock.SetRunningJob(ctx, w.cfg.Platform, job.ID, w.cfg.LockTTL); err != nil {
		jobLog.Warn("set running job failed", "error", err)
	}

	wf, ok := w.workflows.Get(job.WorkflowID)
	if !ok {
		job.Status = domain.JobFailed
		job.Error = &domain.JobError{
			Message:   fmt.Sprintf("no workflow registered for id %q", job.WorkflowID),
			Timestamp: time.Now().UTC(),
		}
		if err := w.repo.Save(ctx, job); err != nil {
			jobLog.Error("save failed job failed", "error", err)
		}
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	stopHeartbeat := w.startHeartbeat(runCtx, cancel, &lockLost, jobLog)
	defer stopHeartbeat()

	writer, err := resultwriter.Open(w.cfg.ResultsDir, job.ID, job.Platform, job.WorkflowID, time.Now().UTC())
	if err != nil {
		jobLog.Error("open result writer failed", "error", err)
		job.Status = domain.JobFailed
		job.Error = &domain.JobError{Message: err.Error(), Timestamp: time.Now().UTC()}
		_ = w.repo.Save(ctx, job)
		return
	}

	seed := map[string]any{nodes.SharedKeyResultWriter: writer}
	func() {
		defer func() {
			if r := recover(); r != nil {
				jobLog.Error("workflow execution panicked", "panic", r)
				job.Status = domain.JobFailed
				job.Error = &domain.JobError{Message: fmt.Sprintf("panic: %v", r), Timestamp: time.Now().UTC()}
				_ = w.repo.Save(ctx, job)
			}
		}()
		if err := w.engine.Execute(runCtx, job, wf, seed); err != nil {
			jobLog.Warn("engine execution returned error", "error", err)
		}
	}()

	if lockLost.Load() {
		job.Status = domain.JobFailed
		job.Error = &domain.JobError{
			Message:   "platform lock lost mid-execution",
			NodeID:    job.CurrentNodeID,
			Timestamp: time.Now().UTC(),
		}
		_ = w.repo.Save(ctx, job)
		_ = writer.Abandon()
	} else if err := writer.Close(job.Status); err != nil {
		jobLog.Warn("close result writer failed", "error", err)
	}

	if err := w.repo.SaveSchedulerState(ctx, domain.SchedulerState{
		Platform:        job.Platform,
		LastCompletedAt: timePtr(time.Now().UTC()),
	}); err != nil {
		jobLog.Warn("save scheduler state failed", "error", err)
	}

	jobLog.Info("job finished", "status", job.Status, "result_file", writer.Path())
}

// startHeartbeat refreshes the platform lock's TTL at ttl/2 intervals
// (spec §4.B "must be called at least once per ttl/2"). If the lock has
// been lost — TTL expired and another worker re-acquired — it sets
// *lockLost and cancels cancel so the engine aborts in-flight node I/O
// (spec §7 "LockLost... the engine must stop writing to the job's result
// file").
func (w *Worker) startHeartbeat(ctx context.Context, cancel context.CancelFunc, lockLost *atomic.Bool, log *logger.Logger) func() {
	done := make(chan struct{})
	interval := w.cfg.LockTTL / 2
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				if err := w.lock.Heartbeat(context.Background(), w.cfg.Platform, w.holder, w.cfg.LockTTL); err != nil {
					log.Error("heartbeat lost platform lock", "error", err)
					lockLost.Store(true)
					cancel()
					return
				}
			}
		}
	}()
	return func() { close(done) }
}

func timePtr(t time.Time) *time.Time { return &t }
