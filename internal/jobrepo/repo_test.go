package jobrepo

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/scanflow/platform/internal/domain"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, nil)
}

func TestEnqueueDequeue_FIFOWithinPriority(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	j1 := &domain.Job{ID: "job-1", Platform: domain.PlatformAbly, Priority: 5}
	j2 := &domain.Job{ID: "job-2", Platform: domain.PlatformAbly, Priority: 5}

	require.NoError(t, r.Enqueue(ctx, j1))
	require.NoError(t, r.Enqueue(ctx, j2))

	got1, err := r.Dequeue(ctx, domain.PlatformAbly)
	require.NoError(t, err)
	require.Equal(t, "job-1", got1.ID)

	got2, err := r.Dequeue(ctx, domain.PlatformAbly)
	require.NoError(t, err)
	require.Equal(t, "job-2", got2.ID)
}

func TestDequeue_PriorityOrdering(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	low := &domain.Job{ID: "low", Platform: domain.PlatformAbly, Priority: 1}
	high := &domain.Job{ID: "high", Platform: domain.PlatformAbly, Priority: 10}

	require.NoError(t, r.Enqueue(ctx, low))
	require.NoError(t, r.Enqueue(ctx, high))

	got, err := r.Dequeue(ctx, domain.PlatformAbly)
	require.NoError(t, err)
	require.Equal(t, "high", got.ID, "higher priority job must dequeue first")
}

func TestDequeue_EmptyQueueReturnsNil(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	job, err := r.Dequeue(ctx, domain.PlatformKurly)
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	job := &domain.Job{
		ID:       "job-rt",
		Platform: domain.PlatformMusinsa,
		Status:   domain.JobRunning,
		Params:   map[string]any{"limit": float64(3)},
		Result:   map[string]any{"scan": map[string]any{"ok": true}},
	}
	require.NoError(t, r.Save(ctx, job))

	loaded, err := r.Load(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, job.ID, loaded.ID)
	require.Equal(t, job.Status, loaded.Status)
	require.Equal(t, job.Params["limit"], loaded.Params["limit"])
}

func TestPeekQueueLength(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	n, err := r.PeekQueueLength(ctx, domain.PlatformZigzag)
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, r.Enqueue(ctx, &domain.Job{ID: "z1", Platform: domain.PlatformZigzag}))
	n, err = r.PeekQueueLength(ctx, domain.PlatformZigzag)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestListRecent(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id := string(rune('a' + i))
		require.NoError(t, r.Enqueue(ctx, &domain.Job{ID: id, Platform: domain.PlatformHwahae}))
	}
	jobs, err := r.ListRecent(ctx, domain.PlatformHwahae, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
}
