package platformlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/scanflow/platform/internal/domain"
)

func newTestLock(t *testing.T) (*Lock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, nil), mr
}

func TestAcquire_ExclusiveAcrossHolders(t *testing.T) {
	l, _ := newTestLock(t)
	ctx := context.Background()

	ok, err := l.Acquire(ctx, domain.PlatformOliveYoung, "worker-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Acquire(ctx, domain.PlatformOliveYoung, "worker-b", time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "a second holder must not acquire a held lock")
}

func TestRelease_ByNonOwnerIsNoOp(t *testing.T) {
	l, _ := newTestLock(t)
	ctx := context.Background()

	ok, err := l.Acquire(ctx, domain.PlatformKurly, "worker-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	err = l.Release(ctx, domain.PlatformKurly, "worker-b")
	require.ErrorIs(t, err, ErrNotHeld)

	holder, err := l.Holder(ctx, domain.PlatformKurly)
	require.NoError(t, err)
	require.Equal(t, "worker-a", holder, "a release by a different owner must not touch the lock")
}

func TestRelease_DoubleReleaseIsSafe(t *testing.T) {
	l, _ := newTestLock(t)
	ctx := context.Background()

	_, err := l.Acquire(ctx, domain.PlatformZigzag, "worker-a", time.Minute)
	require.NoError(t, err)

	require.NoError(t, l.Release(ctx, domain.PlatformZigzag, "worker-a"))
	err = l.Release(ctx, domain.PlatformZigzag, "worker-a")
	require.ErrorIs(t, err, ErrNotHeld, "a second release by the same owner is a safe no-op, not an error that corrupts state")
}

func TestReleaseThenAcquire_GrantsToNewHolder(t *testing.T) {
	l, _ := newTestLock(t)
	ctx := context.Background()

	_, err := l.Acquire(ctx, domain.PlatformMusinsa, "worker-a", time.Minute)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx, domain.PlatformMusinsa, "worker-a"))

	ok, err := l.Acquire(ctx, domain.PlatformMusinsa, "worker-b", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "release must free the lock for other holders")
}

func TestHeartbeat_ExtendsTTLForOwner(t *testing.T) {
	l, mr := newTestLock(t)
	ctx := context.Background()

	_, err := l.Acquire(ctx, domain.PlatformAbly, "worker-a", 2*time.Second)
	require.NoError(t, err)

	mr.FastForward(1500 * time.Millisecond)
	require.NoError(t, l.Heartbeat(ctx, domain.PlatformAbly, "worker-a", 5*time.Second))

	mr.FastForward(3 * time.Second)
	holder, err := l.Holder(ctx, domain.PlatformAbly)
	require.NoError(t, err)
	require.Equal(t, "worker-a", holder, "heartbeat must keep the lock alive past its original TTL")
}

func TestHeartbeat_ByNonOwnerFails(t *testing.T) {
	l, _ := newTestLock(t)
	ctx := context.Background()

	_, err := l.Acquire(ctx, domain.PlatformHwahae, "worker-a", time.Minute)
	require.NoError(t, err)

	err = l.Heartbeat(ctx, domain.PlatformHwahae, "worker-b", time.Minute)
	require.ErrorIs(t, err, ErrNotHeld)
}

func TestCrashRecovery_ExpiryFreesTheLock(t *testing.T) {
	l, mr := newTestLock(t)
	ctx := context.Background()

	_, err := l.Acquire(ctx, domain.PlatformOliveYoung, "worker-a", 1*time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	ok, err := l.Acquire(ctx, domain.PlatformOliveYoung, "worker-b", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "an expired lock must be acquirable by a new holder without manual release")
}

func TestRunningJobMirror(t *testing.T) {
	l, _ := newTestLock(t)
	ctx := context.Background()

	require.NoError(t, l.SetRunningJob(ctx, domain.PlatformKurly, "job-123", time.Minute))
	id, err := l.RunningJob(ctx, domain.PlatformKurly)
	require.NoError(t, err)
	require.Equal(t, "job-123", id)

	require.NoError(t, l.ClearRunningJob(ctx, domain.PlatformKurly))
	id, err = l.RunningJob(ctx, domain.PlatformKurly)
	require.NoError(t, err)
	require.Empty(t, id)
}
