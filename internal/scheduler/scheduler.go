// Package scheduler runs the global daily-sync scheduler (spec §3 "global
// daily-sync scheduler state: enabled flag, cron-equivalent (hour+minute),
// last-run summary"): once a day, at a configured hour/minute, it enqueues
// one validation job per configured platform through the same
// jobrepo.Enqueue path the HTTP API uses (spec §2 "an external caller
// enqueues a job into A").
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/scanflow/platform/internal/domain"
	"github.com/scanflow/platform/internal/jobrepo"
	"github.com/scanflow/platform/internal/platform/logger"
	"github.com/scanflow/platform/internal/platformconfig"
)

// WorkflowNamer resolves the workflow id the daily sync should enqueue for
// a platform. The default is "<platform>-validation" (see
// config/workflows/*.yaml); callers may override for a dedicated
// deployment's own naming.
type WorkflowNamer func(p domain.Platform) string

func DefaultWorkflowNamer(p domain.Platform) string {
	return fmt.Sprintf("%s-validation", p)
}

// Scheduler owns one cron.Cron instance driving the daily-sync entry.
type Scheduler struct {
	cron     *cron.Cron
	repo     *jobrepo.Repo
	configs  *platformconfig.Store
	namer    WorkflowNamer
	priority int
	log      *logger.Logger
}

// Option configures Scheduler construction.
type Option func(*Scheduler)

func WithWorkflowNamer(n WorkflowNamer) Option {
	return func(s *Scheduler) { s.namer = n }
}

func WithPriority(p int) Option {
	return func(s *Scheduler) { s.priority = p }
}

// New builds a Scheduler. It does not start the cron loop; call Start.
func New(repo *jobrepo.Repo, configs *platformconfig.Store, log *logger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		cron:    cron.New(),
		repo:    repo,
		configs: configs,
		namer:   DefaultWorkflowNamer,
		log:     log.With("component", "Scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start schedules the daily-sync entry for hour:minute (local time) and
// starts the cron loop. Returns the entry id, useful for tests that want
// to invoke RunDailySync directly rather than waiting for the clock.
func (s *Scheduler) Start(ctx context.Context, hour, minute int) (cron.EntryID, error) {
	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	id, err := s.cron.AddFunc(spec, func() { s.RunDailySync(ctx) })
	if err != nil {
		return 0, fmt.Errorf("scheduler: add daily sync cron entry %q: %w", spec, err)
	}
	s.cron.Start()
	s.log.Info("daily sync scheduled", "hour", hour, "minute", minute)
	return id, nil
}

// Stop halts the cron loop, waiting for any in-flight entry to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// RunDailySync enqueues one validation job per configured platform and
// records the run's summary as the global daily-sync state (spec §3).
func (s *Scheduler) RunDailySync(ctx context.Context) {
	platforms := s.configs.All()
	s.log.Info("daily sync starting", "platform_count", len(platforms))

	enqueued, failed := 0, 0
	for _, p := range platforms {
		if err := s.enqueueOne(ctx, p); err != nil {
			s.log.Error("daily sync enqueue failed", "platform", p, "error", err)
			failed++
			continue
		}
		enqueued++
	}

	now := time.Now().UTC()
	summary := fmt.Sprintf("enqueued=%d failed=%d", enqueued, failed)
	state := domain.DailySyncState{
		Enabled:        true,
		LastRunAt:      &now,
		LastRunSummary: summary,
	}
	if err := s.repo.SaveDailySyncState(ctx, state); err != nil {
		s.log.Warn("save daily sync state failed", "error", err)
	}
	s.log.Info("daily sync finished", "summary", summary)
}

func (s *Scheduler) enqueueOne(ctx context.Context, p domain.Platform) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("scheduler: generate job id: %w", err)
	}
	job := &domain.Job{
		ID:         id.String(),
		WorkflowID: s.namer(p),
		Platform:   p,
		Priority:   s.priority,
		Status:     domain.JobPending,
		Params:     map[string]any{"platform": string(p)},
		Metadata:   map[string]any{"source": "daily_sync"},
	}
	return s.repo.Enqueue(ctx, job)
}
