package scheduler

import (
	"context"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/scanflow/platform/internal/domain"
	"github.com/scanflow/platform/internal/jobrepo"
	"github.com/scanflow/platform/internal/platformconfig"
)

func writePlatformYAML(t *testing.T, dir, id string) {
	t.Helper()
	content := "id: " + id + "\nstrategies:\n  - type: http\n    priority: 0\n"
	require.NoError(t, os.WriteFile(dir+"/"+id+".yaml", []byte(content), 0o644))
}

func TestRunDailySync_EnqueuesOneJobPerPlatform(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	repo := jobrepo.New(rdb, nil)

	dir := t.TempDir()
	writePlatformYAML(t, dir, "kurly")
	writePlatformYAML(t, dir, "ably")
	configs, err := platformconfig.Load(dir)
	require.NoError(t, err)

	s := New(repo, configs, nil)
	ctx := context.Background()
	s.RunDailySync(ctx)

	kurlyLen, err := repo.PeekQueueLength(ctx, domain.PlatformKurly)
	require.NoError(t, err)
	require.Equal(t, int64(1), kurlyLen)

	ablyLen, err := repo.PeekQueueLength(ctx, domain.PlatformAbly)
	require.NoError(t, err)
	require.Equal(t, int64(1), ablyLen)

	state, err := repo.LoadDailySyncState(ctx)
	require.NoError(t, err)
	require.True(t, state.Enabled)
	require.Contains(t, state.LastRunSummary, "enqueued=2")
}

func TestDefaultWorkflowNamer(t *testing.T) {
	require.Equal(t, "kurly-validation", DefaultWorkflowNamer(domain.PlatformKurly))
}
