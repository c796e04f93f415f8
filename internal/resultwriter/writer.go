// Package resultwriter implements the Streaming Result Writer (component
// F): an append-only, crash-resilient per-job output file with a header
// meta-line, one line per record, and a footer meta-line carrying final
// counters (spec §4.F).
package resultwriter

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/scanflow/platform/internal/domain"
)

// Status is the per-record classification counted toward the summary.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusNotFound Status = "not_found"
)

// Summary is the footer's running totals (spec §4.F, §8 invariant 4:
// total == success + failed + not_found).
type Summary struct {
	Total     int     `json:"total"`
	Success   int     `json:"success"`
	Failed    int     `json:"failed"`
	NotFound  int     `json:"not_found"`
	MatchRate float64 `json:"match_rate"`
}

// Writer appends JSONL records to one job's result file. Every method
// holds an internal mutex, so concurrent calls on the same Writer are
// serialized; each job owns exactly one Writer.
type Writer struct {
	mu      sync.Mutex
	file    *os.File
	bw      *bufio.Writer
	path    string
	summary Summary
	closed  bool
}

// Open creates `<baseDir>/<YYYY-MM-DD>/job_<platform>_<jobID>.jsonl`,
// writes the header line, and returns a Writer ready to accept records
// (spec §4.F "On open"). Files are never appended to across jobs: a
// re-run of the same job id opens a new file under that run's started_at
// date bucket.
func Open(baseDir string, jobID string, platform domain.Platform, workflowID string, startedAt time.Time) (*Writer, error) {
	dateDir := startedAt.UTC().Format("2006-01-02")
	dir := filepath.Join(baseDir, dateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("resultwriter: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("job_%s_%s.jsonl", platform, jobID))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("resultwriter: open %s: %w", path, err)
	}

	w := &Writer{file: f, bw: bufio.NewWriter(f), path: path}
	header := map[string]any{
		"_meta":       true,
		"type":        "header",
		"job_id":      jobID,
		"platform":    platform,
		"workflow_id": workflowID,
		"started_at":  startedAt.UTC().Format(time.RFC3339),
	}
	if err := w.writeLine(header); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// Path returns the file path this writer is appending to.
func (w *Writer) Path() string { return w.path }

// WriteRecord appends one record and classifies it toward the running
// counters. record is merged with a "status" key so readers can classify
// each line without re-deriving it.
func (w *Writer) WriteRecord(status Status, record map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("resultwriter: write after close on %s", w.path)
	}

	out := make(map[string]any, len(record)+1)
	for k, v := range record {
		out[k] = v
	}
	out["status"] = string(status)

	w.summary.Total++
	switch status {
	case StatusSuccess:
		w.summary.Success++
	case StatusFailed:
		w.summary.Failed++
	case StatusNotFound:
		w.summary.NotFound++
	}

	return w.writeLine(out)
}

// Counters returns a snapshot of the running totals so far.
func (w *Writer) Counters() Summary {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.summary
}

// Close writes the footer line with final counters and flushes/closes the
// underlying file (spec §4.F "On close"). status is carried in the footer's
// job_status field so a cancelled job's file still finalizes (spec §5 "A cancelled
// job's result file is finalized with a cancelled status in the footer if
// writable").
func (w *Writer) Close(status domain.JobStatus) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	summary := w.summary
	if summary.Total > 0 {
		summary.MatchRate = float64(summary.Success) / float64(summary.Total)
	}
	footer := map[string]any{
		"_meta":        true,
		"type":         "footer",
		"completed_at": time.Now().UTC().Format(time.RFC3339),
		"job_status":   string(status),
		"summary":      summary,
	}
	if err := w.writeLine(footer); err != nil {
		_ = w.file.Close()
		return err
	}
	if err := w.bw.Flush(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("resultwriter: flush %s: %w", w.path, err)
	}
	return w.file.Close()
}

// Abandon closes the underlying file without writing a footer, leaving
// the file classifiable as incomplete (spec §4.F) — used when a worker
// detects it can no longer safely finish the job (e.g. LockLost).
func (w *Writer) Abandon() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	_ = w.bw.Flush()
	return w.file.Close()
}

func (w *Writer) writeLine(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("resultwriter: marshal line: %w", err)
	}
	if _, err := w.bw.Write(raw); err != nil {
		return fmt.Errorf("resultwriter: write %s: %w", w.path, err)
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return fmt.Errorf("resultwriter: write %s: %w", w.path, err)
	}
	return w.bw.Flush()
}
