package resultwriter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scanflow/platform/internal/domain"
)

func TestOpen_WritesHeaderInDateBucketedPath(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

	w, err := Open(dir, "job-1", domain.PlatformOliveYoung, "wf-1", started)
	require.NoError(t, err)
	require.Contains(t, w.Path(), "2026-03-05")
	require.Contains(t, w.Path(), "job_oliveyoung_job-1.jsonl")
	require.NoError(t, w.Close(domain.JobCompleted))

	res, err := Read(w.Path())
	require.NoError(t, err)
	require.Equal(t, "header", res.Header["type"])
	require.True(t, res.Complete)
}

func TestWriteRecord_CountersAndMatchRate(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, "job-2", domain.PlatformKurly, "wf-2", time.Now())
	require.NoError(t, err)

	require.NoError(t, w.WriteRecord(StatusSuccess, map[string]any{"id": "1"}))
	require.NoError(t, w.WriteRecord(StatusNotFound, map[string]any{"id": "2"}))
	require.NoError(t, w.WriteRecord(StatusFailed, map[string]any{"id": "3"}))
	require.NoError(t, w.WriteRecord(StatusSuccess, map[string]any{"id": "4"}))

	counters := w.Counters()
	require.Equal(t, 4, counters.Total)
	require.Equal(t, 2, counters.Success)
	require.Equal(t, 1, counters.Failed)
	require.Equal(t, 1, counters.NotFound)
	require.Equal(t, counters.Success+counters.Failed+counters.NotFound, counters.Total)

	require.NoError(t, w.Close(domain.JobCompleted))

	res, err := Read(w.Path())
	require.NoError(t, err)
	require.Len(t, res.Records, 4)
	summary, ok := res.Footer["summary"].(map[string]any)
	require.True(t, ok)
	require.InDelta(t, 0.5, summary["match_rate"], 0.0001)
}

func TestAbandon_LeavesFileIncomplete(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, "job-3", domain.PlatformAbly, "wf-3", time.Now())
	require.NoError(t, err)
	require.NoError(t, w.WriteRecord(StatusSuccess, map[string]any{"id": "1"}))
	require.NoError(t, w.Abandon())

	res, err := Read(w.Path())
	require.NoError(t, err)
	require.False(t, res.Complete, "a file without a footer line must classify as incomplete")
	require.Len(t, res.Records, 1)
}

func TestWriteRecord_AfterCloseFails(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, "job-4", domain.PlatformMusinsa, "wf-4", time.Now())
	require.NoError(t, err)
	require.NoError(t, w.Close(domain.JobCompleted))

	err = w.WriteRecord(StatusSuccess, map[string]any{"id": "1"})
	require.Error(t, err)
}
