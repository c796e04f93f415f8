// Package platformlock implements the Platform Lock (component B): a
// Redis-backed mutex that grants at most one active job per platform across
// the cluster (spec §4.B). Acquisition is a SET-NX-with-TTL; release is a
// check-and-delete so a holder can never release a lock it no longer owns;
// a heartbeat extends the TTL so a live worker is never preempted by its
// own lock expiring mid-job, while a crashed worker's lock still expires
// and the platform recovers automatically.
package platformlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scanflow/platform/internal/domain"
	"github.com/scanflow/platform/internal/platform/logger"
)

// ErrNotHeld is returned by Release and Heartbeat when the caller does not
// (or no longer) hold the lock for the platform.
var ErrNotHeld = errors.New("platformlock: caller does not hold this lock")

// releaseScript deletes the lock key only if its value still matches the
// caller's holder token, so a different owner's release is a safe no-op
// rather than an accidental steal-back (spec §8 release laws).
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// heartbeatScript extends the TTL only if the caller's token still owns
// the key, for the same reason releaseScript checks ownership.
var heartbeatScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

type Lock struct {
	rdb *redis.Client
	log *logger.Logger
}

func New(rdb *redis.Client, log *logger.Logger) *Lock {
	return &Lock{rdb: rdb, log: log.With("component", "PlatformLock")}
}

func lockKey(p domain.Platform) string    { return "platform_lock:" + string(p) }
func runningKey(p domain.Platform) string { return "lock:running:" + string(p) }

// Acquire attempts to become the exclusive holder of p for ttl. It returns
// true iff the caller now holds the lock. A false return with a nil error
// means some other holder currently owns it — this is the expected,
// frequent case under multi-worker contention, not a failure.
func (l *Lock) Acquire(ctx context.Context, p domain.Platform, holder string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, lockKey(p), holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("platformlock: acquire %s: %w", p, err)
	}
	l.log.Debug("lock acquire attempt", "platform", p, "holder", holder, "acquired", ok)
	return ok, nil
}

// Release drops the lock iff holder is still the recorded owner. Releasing
// a lock the caller does not hold (already expired, or stolen by nobody
// since nobody else can steal it, or simply double-released) is a safe
// no-op: it returns ErrNotHeld rather than corrupting another holder's
// lock.
func (l *Lock) Release(ctx context.Context, p domain.Platform, holder string) error {
	res, err := releaseScript.Run(ctx, l.rdb, []string{lockKey(p)}, holder).Int64()
	if err != nil {
		return fmt.Errorf("platformlock: release %s: %w", p, err)
	}
	if res == 0 {
		return ErrNotHeld
	}
	l.log.Debug("lock released", "platform", p, "holder", holder)
	return nil
}

// Heartbeat extends the TTL of a held lock. Callers must invoke this at
// least once per ttl/2 to avoid losing the lock to expiry mid-job (spec
// §4.B). Returns ErrNotHeld if the caller's token no longer owns the key —
// the caller must treat this as domain.LockLost and abort the job.
func (l *Lock) Heartbeat(ctx context.Context, p domain.Platform, holder string, ttl time.Duration) error {
	res, err := heartbeatScript.Run(ctx, l.rdb, []string{lockKey(p)}, holder, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("platformlock: heartbeat %s: %w", p, err)
	}
	if res == 0 {
		return ErrNotHeld
	}
	return nil
}

// Holder returns the current holder token for p, or "" if unlocked.
func (l *Lock) Holder(ctx context.Context, p domain.Platform) (string, error) {
	holder, err := l.rdb.Get(ctx, lockKey(p)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("platformlock: holder %s: %w", p, err)
	}
	return holder, nil
}

// SetRunningJob records the job id currently executing under this lock,
// for observability only (spec §4.B "running job mirror"); it is never
// consulted to make locking decisions.
func (l *Lock) SetRunningJob(ctx context.Context, p domain.Platform, jobID string, ttl time.Duration) error {
	if err := l.rdb.Set(ctx, runningKey(p), jobID, ttl).Err(); err != nil {
		return fmt.Errorf("platformlock: set running job %s: %w", p, err)
	}
	return nil
}

// ClearRunningJob removes the running-job observability mirror. Safe to
// call even if nothing is set.
func (l *Lock) ClearRunningJob(ctx context.Context, p domain.Platform) error {
	if err := l.rdb.Del(ctx, runningKey(p)).Err(); err != nil {
		return fmt.Errorf("platformlock: clear running job %s: %w", p, err)
	}
	return nil
}

// RunningJob returns the job id currently mirrored as running for p, or ""
// if none.
func (l *Lock) RunningJob(ctx context.Context, p domain.Platform) (string, error) {
	id, err := l.rdb.Get(ctx, runningKey(p)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("platformlock: running job %s: %w", p, err)
	}
	return id, nil
}
