package jobrepo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/scanflow/platform/internal/domain"
)

// Scheduler state lives in the same Redis keyspace as jobs and queues,
// per spec §4.A's "single consistency domain" design — the repository
// owns `scheduler:<scope>` alongside `job:<id>` and `queue:<platform>`.

func schedulerPlatformKey(p domain.Platform) string { return "scheduler:" + string(p) }
func schedulerDailySyncKey() string                 { return "scheduler:daily_sync" }

// SaveSchedulerState persists the per-platform scheduler bookkeeping
// record (spec §3 "Scheduler state").
func (r *Repo) SaveSchedulerState(ctx context.Context, s domain.SchedulerState) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("jobrepo: marshal scheduler state: %w", err)
	}
	if err := r.rdb.Set(ctx, schedulerPlatformKey(s.Platform), raw, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return nil
}

// LoadSchedulerState returns the per-platform scheduler state, or a zero
// value with Platform set if none has been recorded yet.
func (r *Repo) LoadSchedulerState(ctx context.Context, p domain.Platform) (domain.SchedulerState, error) {
	raw, err := r.rdb.Get(ctx, schedulerPlatformKey(p)).Bytes()
	if err == redis.Nil {
		return domain.SchedulerState{Platform: p}, nil
	}
	if err != nil {
		return domain.SchedulerState{}, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	var s domain.SchedulerState
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.SchedulerState{}, fmt.Errorf("jobrepo: unmarshal scheduler state %s: %w", p, err)
	}
	return s, nil
}

// SaveDailySyncState persists the global daily-sync scheduler state
// (spec §3 "enabled flag, cron-equivalent, last-run summary").
func (r *Repo) SaveDailySyncState(ctx context.Context, s domain.DailySyncState) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("jobrepo: marshal daily sync state: %w", err)
	}
	if err := r.rdb.Set(ctx, schedulerDailySyncKey(), raw, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return nil
}

// LoadDailySyncState returns the global daily-sync state, or a zero value
// (disabled, no prior run) if none has been recorded yet.
func (r *Repo) LoadDailySyncState(ctx context.Context) (domain.DailySyncState, error) {
	raw, err := r.rdb.Get(ctx, schedulerDailySyncKey()).Bytes()
	if err == redis.Nil {
		return domain.DailySyncState{}, nil
	}
	if err != nil {
		return domain.DailySyncState{}, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	var s domain.DailySyncState
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.DailySyncState{}, fmt.Errorf("jobrepo: unmarshal daily sync state: %w", err)
	}
	return s, nil
}
