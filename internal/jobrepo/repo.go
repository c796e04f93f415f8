// Package jobrepo implements the Job Repository (component A): durable
// storage of jobs, per-platform priority queues, and recent-job
// observability, all keyed in Redis (spec §4.A).
//
// The repository does not enforce the platform lock; dequeue races across
// workers are made safe by ZPOPMAX's atomicity, and exclusive mutation of a
// dequeued job is a property the caller (the worker, holding the platform
// lock) must uphold — see internal/platformlock.
package jobrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scanflow/platform/internal/domain"
	"github.com/scanflow/platform/internal/platform/logger"
)

// ErrQueueUnavailable wraps any Redis failure surfaced by Enqueue/Dequeue,
// matching spec §4.A "fails with QueueUnavailable if the backing store is
// unreachable".
var ErrQueueUnavailable = fmt.Errorf("jobrepo: queue backing store unavailable")

const defaultTerminalTTL = 14 * 24 * time.Hour
const recentListCap = 200

type Repo struct {
	rdb        *redis.Client
	log        *logger.Logger
	terminalTTL time.Duration
	seq        atomic.Int64
}

func New(rdb *redis.Client, log *logger.Logger) *Repo {
	return &Repo{rdb: rdb, log: log.With("component", "JobRepo"), terminalTTL: defaultTerminalTTL}
}

func (r *Repo) WithTerminalTTL(ttl time.Duration) *Repo {
	r.terminalTTL = ttl
	return r
}

func jobKey(id string) string        { return "job:" + id }
func queueKey(p domain.Platform) string { return "queue:" + string(p) }
func recentKey(p domain.Platform) string { return "recent:" + string(p) }

// Enqueue persists the job and pushes its id onto the platform's priority
// queue. Ties are broken by insertion order: ZPOPMAX breaks ties by
// member's lexical order by default in Redis, so we additionally bias the
// score by a monotonic sequence number to guarantee FIFO among equal
// priorities regardless of id string.
func (r *Repo) Enqueue(ctx context.Context, job *domain.Job) error {
	if job.ID == "" {
		return fmt.Errorf("jobrepo: job id is required")
	}
	if job.Status == "" {
		job.Status = domain.JobPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("jobrepo: marshal job: %w", err)
	}

	seq := r.nextSeq(ctx, job.Platform)
	score := float64(job.Priority)*1e9 - float64(seq)

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), raw, 0)
	pipe.ZAdd(ctx, queueKey(job.Platform), redis.Z{Score: score, Member: job.ID})
	pipe.LPush(ctx, recentKey(job.Platform), job.ID)
	pipe.LTrim(ctx, recentKey(job.Platform), 0, recentListCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return nil
}

func (r *Repo) nextSeq(ctx context.Context, p domain.Platform) int64 {
	n, err := r.rdb.Incr(ctx, "queue:"+string(p)+":seq").Result()
	if err != nil {
		// Fall back to a process-local counter; at worst this only affects
		// FIFO ordering among same-priority jobs during a Redis blip, not
		// correctness of which job runs.
		return r.seq.Add(1)
	}
	return n
}

// PeekQueueLength is a non-blocking length read; it never requires the
// platform lock (spec §4.A).
func (r *Repo) PeekQueueLength(ctx context.Context, p domain.Platform) (int64, error) {
	n, err := r.rdb.ZCard(ctx, queueKey(p)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return n, nil
}

// Dequeue atomically pops the highest-priority job id for the platform and
// loads its record. Returns (nil, nil) when the queue is empty. If the
// queue has an id whose record has not yet materialized (the worker
// observed a queued id whose job:<id> record write is still in flight),
// Dequeue retries the load a bounded number of times before giving up,
// per spec §5 "the engine must tolerate partial visibility".
func (r *Repo) Dequeue(ctx context.Context, p domain.Platform) (*domain.Job, error) {
	res, err := r.rdb.ZPopMax(ctx, queueKey(p), 1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	if len(res) == 0 {
		return nil, nil
	}
	id, ok := res[0].Member.(string)
	if !ok {
		return nil, fmt.Errorf("jobrepo: unexpected queue member type for platform %s", p)
	}

	const maxVisibilityRetries = 5
	const visibilityRetryDelay = 20 * time.Millisecond
	var job *domain.Job
	for attempt := 0; attempt < maxVisibilityRetries; attempt++ {
		job, err = r.Load(ctx, id)
		if err == nil && job != nil {
			return job, nil
		}
		if err != nil && err != ErrNotFound {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(visibilityRetryDelay):
		}
	}
	return nil, fmt.Errorf("jobrepo: dequeued id %s for platform %s never became visible", id, p)
}

// ErrNotFound is returned by Load when the job record does not exist.
var ErrNotFound = fmt.Errorf("jobrepo: job not found")

func (r *Repo) Load(ctx context.Context, id string) (*domain.Job, error) {
	raw, err := r.rdb.Get(ctx, jobKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	var job domain.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("jobrepo: unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// Save persists the job record idempotently, setting a TTL once the job
// reaches a terminal state (spec §4.A "TTL only on terminal states").
func (r *Repo) Save(ctx context.Context, job *domain.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("jobrepo: marshal job: %w", err)
	}
	key := jobKey(job.ID)
	if isTerminal(job.Status) {
		if err := r.rdb.Set(ctx, key, raw, r.terminalTTL).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
		}
		return nil
	}
	if err := r.rdb.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return nil
}

func isTerminal(s domain.JobStatus) bool {
	switch s {
	case domain.JobCompleted, domain.JobFailed, domain.JobCancelled:
		return true
	default:
		return false
	}
}

// ListRecent is read-only observability: the last n job ids enqueued for a
// platform, most recent first (spec §4.A).
func (r *Repo) ListRecent(ctx context.Context, p domain.Platform, n int64) ([]*domain.Job, error) {
	if n <= 0 {
		n = 20
	}
	ids, err := r.rdb.LRange(ctx, recentKey(p), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	jobs := make([]*domain.Job, 0, len(ids))
	for _, id := range ids {
		job, err := r.Load(ctx, id)
		if err != nil {
			continue // expired/TTL'd job, skip rather than fail the whole listing
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
