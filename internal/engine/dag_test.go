package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scanflow/platform/internal/domain"
)

type fakeRepo struct {
	mu   sync.Mutex
	jobs []*domain.Job
}

func (r *fakeRepo) Save(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs = append(r.jobs, &cp)
	return nil
}

// fnNode adapts a plain function to the Node interface for tests.
type fnNode struct {
	fn func(ctx context.Context, nc domain.NodeContext) *domain.NodeResult
}

func (n fnNode) Execute(ctx context.Context, nc domain.NodeContext) *domain.NodeResult {
	return n.fn(ctx, nc)
}

func succeedingNode(output map[string]any) Factory {
	return func(cfg map[string]any) (Node, error) {
		return fnNode{fn: func(ctx context.Context, nc domain.NodeContext) *domain.NodeResult {
			return &domain.NodeResult{Success: true, Output: output}
		}}, nil
	}
}

func failingNode(kind domain.Kind) Factory {
	return func(cfg map[string]any) (Node, error) {
		return fnNode{fn: func(ctx context.Context, nc domain.NodeContext) *domain.NodeResult {
			return &domain.NodeResult{Success: false, Error: &domain.NodeError{Message: "boom", Code: kind}}
		}}, nil
	}
}

func newTestEngine(t *testing.T, registry *Registry) (*Engine, *fakeRepo) {
	repo := &fakeRepo{}
	return New(registry, repo, nil, nil), repo
}

func TestExecute_SingleNodeWorkflowCompletes(t *testing.T) {
	registry := NewRegistry()
	registry.Register("noop.success", succeedingNode(map[string]any{"ok": true}))

	eng, _ := newTestEngine(t, registry)
	job := &domain.Job{ID: "j1", Platform: domain.PlatformKurly}
	wf := domain.WorkflowDefinition{
		ID:        "wf1",
		StartNode: "a",
		Nodes: map[string]domain.Node{
			"a": {Type: "noop.success"},
		},
	}

	err := eng.Execute(context.Background(), job, wf)
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, job.Status)
	require.Equal(t, 1.0, job.Progress)
}

func TestExecute_ParallelFanOutConvergesOnce(t *testing.T) {
	var convergeCount atomic.Int32

	registry := NewRegistry()
	registry.Register("noop.success", succeedingNode(map[string]any{"ok": true}))
	registry.Register("converge", func(cfg map[string]any) (Node, error) {
		return fnNode{fn: func(ctx context.Context, nc domain.NodeContext) *domain.NodeResult {
			convergeCount.Add(1)
			return &domain.NodeResult{Success: true, Output: map[string]any{"done": true}}
		}}, nil
	})

	eng, _ := newTestEngine(t, registry)
	job := &domain.Job{ID: "j2", Platform: domain.PlatformAbly}
	wf := domain.WorkflowDefinition{
		ID:        "wf2",
		StartNode: "start",
		Nodes: map[string]domain.Node{
			"start": {Type: "noop.success", NextNodes: []string{"branch_a", "branch_b"}},
			"branch_a": {Type: "noop.success", NextNode: "join"},
			"branch_b": {Type: "noop.success", NextNode: "join"},
			"join":     {Type: "converge"},
		},
	}

	err := eng.Execute(context.Background(), job, wf)
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, job.Status)
	require.EqualValues(t, 1, convergeCount.Load(), "the convergence node must execute exactly once despite two producers")
}

func TestExecute_StopOnErrorDefaultTrueFailsJob(t *testing.T) {
	registry := NewRegistry()
	registry.Register("noop.success", succeedingNode(map[string]any{"ok": true}))
	registry.Register("noop.fail", failingNode(domain.ValidationFailed))

	eng, _ := newTestEngine(t, registry)
	job := &domain.Job{ID: "j3", Platform: domain.PlatformZigzag}
	wf := domain.WorkflowDefinition{
		ID:        "wf3",
		StartNode: "a",
		Nodes: map[string]domain.Node{
			"a": {Type: "noop.fail"},
		},
	}

	err := eng.Execute(context.Background(), job, wf)
	require.NoError(t, err)
	require.Equal(t, domain.JobFailed, job.Status)
	require.Equal(t, "a", job.Error.NodeID)
}

func TestExecute_RetryableFailureRetriesThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	registry := NewRegistry()
	registry.Register("flaky", func(cfg map[string]any) (Node, error) {
		return fnNode{fn: func(ctx context.Context, nc domain.NodeContext) *domain.NodeResult {
			n := attempts.Add(1)
			if n < 3 {
				return &domain.NodeResult{Success: false, Error: &domain.NodeError{Message: "transient", Code: domain.TransientUpstream}}
			}
			return &domain.NodeResult{Success: true, Output: map[string]any{"attempt": n}}
		}}, nil
	})

	eng, _ := newTestEngine(t, registry)
	job := &domain.Job{ID: "j4", Platform: domain.PlatformMusinsa}
	backoff := 10
	wf := domain.WorkflowDefinition{
		ID:        "wf4",
		StartNode: "a",
		Nodes: map[string]domain.Node{
			"a": {Type: "flaky", RetryPolicy: &domain.RetryPolicy{MaxAttempts: 5, BackoffMS: backoff}},
		},
	}

	err := eng.Execute(context.Background(), job, wf)
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, job.Status)
	require.EqualValues(t, 3, attempts.Load())
}

func TestExecute_NonRetryableFailureStopsImmediately(t *testing.T) {
	var attempts atomic.Int32
	registry := NewRegistry()
	registry.Register("bad", func(cfg map[string]any) (Node, error) {
		return fnNode{fn: func(ctx context.Context, nc domain.NodeContext) *domain.NodeResult {
			attempts.Add(1)
			return &domain.NodeResult{Success: false, Error: &domain.NodeError{Message: "shape mismatch", Code: domain.ValidationFailed}}
		}}, nil
	})

	eng, _ := newTestEngine(t, registry)
	job := &domain.Job{ID: "j5", Platform: domain.PlatformHwahae}
	wf := domain.WorkflowDefinition{
		ID:        "wf5",
		StartNode: "a",
		Nodes: map[string]domain.Node{
			"a": {Type: "bad", RetryPolicy: &domain.RetryPolicy{MaxAttempts: 5, BackoffMS: 10}},
		},
	}

	err := eng.Execute(context.Background(), job, wf)
	require.NoError(t, err)
	require.Equal(t, domain.JobFailed, job.Status)
	require.EqualValues(t, 1, attempts.Load(), "ValidationFailed must not be retried")
}

func TestExecute_CancelledJobStopsBeforeNextWave(t *testing.T) {
	registry := NewRegistry()
	registry.Register("noop.success", succeedingNode(map[string]any{"ok": true}))

	eng, _ := newTestEngine(t, registry)
	job := &domain.Job{ID: "j6", Platform: domain.PlatformOliveYoung}
	job.RequestCancel()
	wf := domain.WorkflowDefinition{
		ID:        "wf6",
		StartNode: "a",
		Nodes: map[string]domain.Node{
			"a": {Type: "noop.success"},
		},
	}

	err := eng.Execute(context.Background(), job, wf)
	require.NoError(t, err)
	require.Equal(t, domain.JobCancelled, job.Status)
}

func TestExecute_StopOnErrorFalseContinuesWithSurvivingBranch(t *testing.T) {
	falseVal := false
	registry := NewRegistry()
	registry.Register("noop.success", succeedingNode(map[string]any{"ok": true}))
	registry.Register("noop.fail", failingNode(domain.ValidationFailed))

	eng, _ := newTestEngine(t, registry)
	job := &domain.Job{ID: "j8", Platform: domain.PlatformAbly}
	wf := domain.WorkflowDefinition{
		ID:        "wf8",
		StartNode: "start",
		Nodes: map[string]domain.Node{
			"start":      {Type: "noop.success", NextNodes: []string{"branch_ok", "branch_bad"}},
			"branch_ok":  {Type: "noop.success"},
			"branch_bad": {Type: "noop.fail", StopOnError: &falseVal},
		},
	}

	err := eng.Execute(context.Background(), job, wf)
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, job.Status, "a stop_on_error=false branch failure must not fail the job")
	require.Equal(t, map[string]any{"ok": true}, job.Result["branch_ok"], "the surviving branch's output must still be merged")
	require.Contains(t, job.Result, "branch_bad")
}

func TestExecute_ConvergenceRunsWhenAllNonStoppingProducersFail(t *testing.T) {
	falseVal := false
	var joinCount atomic.Int32

	registry := NewRegistry()
	registry.Register("noop.success", succeedingNode(map[string]any{"ok": true}))
	registry.Register("noop.fail", failingNode(domain.ValidationFailed))
	registry.Register("join", func(cfg map[string]any) (Node, error) {
		return fnNode{fn: func(ctx context.Context, nc domain.NodeContext) *domain.NodeResult {
			joinCount.Add(1)
			return &domain.NodeResult{Success: true, Output: map[string]any{"done": true}}
		}}, nil
	})

	eng, _ := newTestEngine(t, registry)
	job := &domain.Job{ID: "j10", Platform: domain.PlatformZigzag}
	wf := domain.WorkflowDefinition{
		ID:        "wf10",
		StartNode: "start",
		Nodes: map[string]domain.Node{
			"start":    {Type: "noop.success", NextNodes: []string{"branch_a", "branch_b"}},
			"branch_a": {Type: "noop.fail", StopOnError: &falseVal, NextNode: "join"},
			"branch_b": {Type: "noop.fail", StopOnError: &falseVal, NextNode: "join"},
			"join":     {Type: "join"},
		},
	}

	err := eng.Execute(context.Background(), job, wf)
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, job.Status, "all-branches-fail with stop_on_error=false must still complete the job")
	require.EqualValues(t, 1, joinCount.Load(), "the convergence node must still run once all its (failed) producers finish")
}

func TestExecute_ConvergenceWaitsForAllProducersOnUnequalPaths(t *testing.T) {
	var joinOrder []string
	var mu sync.Mutex

	registry := NewRegistry()
	registry.Register("noop.success", succeedingNode(map[string]any{"ok": true}))
	registry.Register("slow", func(cfg map[string]any) (Node, error) {
		return fnNode{fn: func(ctx context.Context, nc domain.NodeContext) *domain.NodeResult {
			time.Sleep(50 * time.Millisecond)
			mu.Lock()
			joinOrder = append(joinOrder, nc.NodeID)
			mu.Unlock()
			return &domain.NodeResult{Success: true, Output: map[string]any{"ok": true}}
		}}, nil
	})
	registry.Register("fast", func(cfg map[string]any) (Node, error) {
		return fnNode{fn: func(ctx context.Context, nc domain.NodeContext) *domain.NodeResult {
			mu.Lock()
			joinOrder = append(joinOrder, nc.NodeID)
			mu.Unlock()
			return &domain.NodeResult{Success: true, Output: map[string]any{"ok": true}}
		}}, nil
	})
	var joinCount atomic.Int32
	registry.Register("join", func(cfg map[string]any) (Node, error) {
		return fnNode{fn: func(ctx context.Context, nc domain.NodeContext) *domain.NodeResult {
			joinCount.Add(1)
			mu.Lock()
			joinOrder = append(joinOrder, "join")
			mu.Unlock()
			return &domain.NodeResult{Success: true, Output: map[string]any{"done": true}}
		}}, nil
	})

	// Diamond with unequal path lengths: A -> {B, C}; B -> D (join); C -> E -> D (join).
	// D must execute exactly once, after both B and E (not right after B alone).
	eng, _ := newTestEngine(t, registry)
	job := &domain.Job{ID: "j9", Platform: domain.PlatformMusinsa}
	wf := domain.WorkflowDefinition{
		ID:        "wf9",
		StartNode: "a",
		Nodes: map[string]domain.Node{
			"a": {Type: "noop.success", NextNodes: []string{"b", "c"}},
			"b": {Type: "fast", NextNode: "d"},
			"c": {Type: "fast", NextNode: "e"},
			"e": {Type: "slow", NextNode: "d"},
			"d": {Type: "join"},
		},
	}

	err := eng.Execute(context.Background(), job, wf)
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, job.Status)
	require.EqualValues(t, 1, joinCount.Load(), "the convergence node must execute exactly once")

	mu.Lock()
	defer mu.Unlock()
	joinIdx := -1
	for i, id := range joinOrder {
		if id == "join" {
			joinIdx = i
		}
	}
	eIdx := -1
	for i, id := range joinOrder {
		if id == "e" {
			eIdx = i
		}
	}
	require.NotEqual(t, -1, joinIdx)
	require.NotEqual(t, -1, eIdx)
	require.Less(t, eIdx, joinIdx, "join must not run before the slower producer e completes")
}

func TestExecute_NodeTimeoutFiresPromptly(t *testing.T) {
	registry := NewRegistry()
	registry.Register("slow", func(cfg map[string]any) (Node, error) {
		return fnNode{fn: func(ctx context.Context, nc domain.NodeContext) *domain.NodeResult {
			select {
			case <-ctx.Done():
				return &domain.NodeResult{Success: false, Error: &domain.NodeError{Message: "timed out", Code: domain.NodeTimeout}}
			case <-time.After(2 * time.Second):
				return &domain.NodeResult{Success: true, Output: map[string]any{}}
			}
		}}, nil
	})

	eng, _ := newTestEngine(t, registry)
	job := &domain.Job{ID: "j7", Platform: domain.PlatformKurly}
	wf := domain.WorkflowDefinition{
		ID:        "wf7",
		StartNode: "a",
		Nodes: map[string]domain.Node{
			"a": {Type: "slow", TimeoutMS: 50},
		},
	}

	start := time.Now()
	err := eng.Execute(context.Background(), job, wf)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Equal(t, domain.JobFailed, job.Status)
	require.Less(t, elapsed, 1*time.Second, "the node must abort at its timeout, not run to completion")
}
