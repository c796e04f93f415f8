package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/scanflow/platform/internal/domain"
	"github.com/scanflow/platform/internal/platform/logger"
)

// linearBackOff reproduces the spec's "linear backoff between attempts"
// (spec §4.E step 5: delay = backoff_ms * attempt) as a backoff.BackOff,
// so the retry loop itself comes from cenkalti/backoff/v5 rather than a
// hand-rolled sleep.
type linearBackOff struct {
	stepMS  int
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.stepMS*b.attempt) * time.Millisecond
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// JobPersister is the subset of jobrepo.Repo the engine needs to persist
// incremental progress. Declared as an interface here so engine tests can
// supply an in-memory fake instead of a real Redis repository.
type JobPersister interface {
	Save(ctx context.Context, job *domain.Job) error
}

// PlatformConfigs resolves a platform's static configuration for nodes
// that need it (e.g. scan.product picking a strategy).
type PlatformConfigs interface {
	Get(p domain.Platform) (domain.PlatformConfig, bool)
}

// Engine executes a workflow DAG for a single job at a time (spec §4.E).
// One Engine instance is shared by every worker (spec §9 singletons).
type Engine struct {
	registry *Registry
	repo     JobPersister
	configs  PlatformConfigs
	log      *logger.Logger
}

func New(registry *Registry, repo JobPersister, configs PlatformConfigs, log *logger.Logger) *Engine {
	return &Engine{registry: registry, repo: repo, configs: configs, log: log.With("component", "Engine")}
}

// waveResult is one node's outcome within a BFS wave.
type waveResult struct {
	nodeID string
	result *domain.NodeResult
	err    error
}

// Execute runs wf starting at wf.StartNode until the workflow completes,
// the job is cancelled, or a node fails terminally (spec §4.E "Execution
// algorithm"). It mutates job in place and persists after every wave.
// An optional seed map lets the caller (the worker loop) pre-populate
// shared state before the first node runs — e.g. a per-job
// resultwriter.Writer handle that save.result_record consumes.
func (e *Engine) Execute(ctx context.Context, job *domain.Job, wf domain.WorkflowDefinition, seed ...map[string]any) error {
	if err := wf.Validate(); err != nil {
		return fmt.Errorf("engine: invalid workflow %s: %w", wf.ID, err)
	}

	var pc *domain.PlatformConfig
	if e.configs != nil {
		if cfg, ok := e.configs.Get(job.Platform); ok {
			pc = &cfg
		}
	}

	baseNC := domain.NewNodeContext(job.ID, job.WorkflowID, "", job.Platform, nil, nil, job.Params, pc, e.log, nil)
	shared := baseNC.Shared()
	for _, s := range seed {
		for k, v := range s {
			shared.Set(k, v)
		}
	}

	job.Status = domain.JobRunning
	now := time.Now().UTC()
	job.StartedAt = &now
	if job.Result == nil {
		job.Result = map[string]any{}
	}

	// pending tracks, per node id, how many of its static-graph producers
	// (spec §4.E "convergence") have not yet completed. A node is only
	// added to the next frontier once its count reaches zero, so a
	// convergence node with multiple incoming edges runs exactly once,
	// after every producer has finished - not once per arriving edge.
	pending := predecessorCounts(wf)
	scheduled := map[string]bool{wf.StartNode: true}

	frontier := []string{wf.StartNode}
	totalNodes := len(wf.Nodes)
	completed := 0

	for len(frontier) > 0 {
		if job.CancelRequested() {
			job.Status = domain.JobCancelled
			return e.persist(ctx, job)
		}

		results := e.runWave(ctx, job, wf, frontier, pc, shared)

		next := map[string]struct{}{}
		for _, wr := range results {
			completed++
			def := wf.Nodes[wr.nodeID]

			if wr.err != nil {
				if def.StopsOnError() {
					job.Status = domain.JobFailed
					job.Error = &domain.JobError{
						Message:   wr.err.Error(),
						NodeID:    wr.nodeID,
						Timestamp: time.Now().UTC(),
					}
					return e.persist(ctx, job)
				}
				// stop_on_error=false: record the branch's failure but let
				// the job continue with whatever the surviving branches
				// produce (spec §4.E "propagates per stop_on_error policy";
				// §8 "one branch fails and stop_on_error=false").
				job.Result[wr.nodeID] = map[string]any{"error": wr.err.Error()}
				for _, s := range dedupe(def.Successors()) {
					decrementPending(pending, s)
					next[s] = struct{}{}
				}
				continue
			}

			job.Result[wr.nodeID] = wr.result.Output
			job.CurrentNodeID = wr.nodeID
			if totalNodes > 0 {
				job.Progress = float64(completed) / float64(totalNodes)
			}

			successors := wr.result.NextNodeOverride
			if successors == nil {
				successors = def.Successors()
			}
			for _, s := range dedupe(successors) {
				decrementPending(pending, s)
				next[s] = struct{}{}
			}
		}

		if err := e.persist(ctx, job); err != nil {
			return err
		}

		frontier = frontier[:0]
		for id := range next {
			if scheduled[id] || pending[id] > 0 {
				continue
			}
			scheduled[id] = true
			frontier = append(frontier, id)
		}
	}

	job.Status = domain.JobCompleted
	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt
	job.Progress = 1.0
	return e.persist(ctx, job)
}

// predecessorCounts returns, for every node that appears as some other
// node's successor, the number of distinct nodes that name it as a
// successor - its producer count for convergence gating.
func predecessorCounts(wf domain.WorkflowDefinition) map[string]int {
	counts := make(map[string]int, len(wf.Nodes))
	for _, n := range wf.Nodes {
		seen := map[string]bool{}
		for _, s := range n.Successors() {
			if seen[s] {
				continue
			}
			seen[s] = true
			counts[s]++
		}
	}
	return counts
}

// decrementPending lowers id's outstanding-producer count, if it is being
// tracked at all (nodes reached only via a dynamic NextNodeOverride edge
// outside the static graph are not tracked and run as soon as they arrive).
func decrementPending(pending map[string]int, id string) {
	if _, ok := pending[id]; ok {
		pending[id]--
	}
}

// dedupe drops repeats so a node that lists the same successor twice only
// counts as one producer edge, matching predecessorCounts.
func dedupe(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// runWave executes every node id in frontier concurrently. If any node
// fails and its definition's stop_on_error (default true) applies, the
// wave context is cancelled so in-flight siblings that honor ctx can
// abort; runWave still waits for every sibling to return and reports all
// of their results (spec §4.E "Parallel fan-out"). A panic inside a node
// is recovered and reported as that node's error.
func (e *Engine) runWave(ctx context.Context, job *domain.Job, wf domain.WorkflowDefinition, frontier []string, pc *domain.PlatformConfig, shared *domain.SharedState) []waveResult {
	waveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([]waveResult, len(frontier))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstFailureStops bool

	for i, nodeID := range frontier {
		wg.Add(1)
		go func(i int, nodeID string) {
			defer wg.Done()
			res, err := func() (res *domain.NodeResult, err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("engine: node %s panicked: %v", nodeID, r)
					}
				}()
				return e.runNode(waveCtx, job, wf, nodeID, pc, shared)
			}()
			out[i] = waveResult{nodeID: nodeID, result: res, err: err}

			if err != nil {
				mu.Lock()
				stopOnError := true
				if def, ok := wf.Nodes[nodeID]; ok {
					stopOnError = def.StopsOnError()
				}
				if stopOnError && !firstFailureStops {
					firstFailureStops = true
					cancel()
				}
				mu.Unlock()
			}
		}(i, nodeID)
	}
	wg.Wait()
	return out
}

// runNode resolves, builds, and executes one node with its retry policy
// and timeout (spec §4.E steps 1-5).
func (e *Engine) runNode(ctx context.Context, job *domain.Job, wf domain.WorkflowDefinition, nodeID string, pc *domain.PlatformConfig, shared *domain.SharedState) (*domain.NodeResult, error) {
	def, ok := wf.Nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("engine: workflow %s has no node %s", wf.ID, nodeID)
	}

	n, err := e.registry.Build(def.Type, def.Config)
	if err != nil {
		return nil, fmt.Errorf("engine: building node %s: %w", nodeID, err)
	}

	maxAttempts := 1
	backoffMS := 0
	if def.RetryPolicy != nil {
		if def.RetryPolicy.MaxAttempts > 0 {
			maxAttempts = def.RetryPolicy.MaxAttempts
		}
		backoffMS = def.RetryPolicy.BackoffMS
	}

	nc := domain.NewNodeContext(job.ID, job.WorkflowID, nodeID, job.Platform, def.Config, job.Result, job.Params, pc, e.log.With("node_id", nodeID, "job_id", job.ID), shared)
	timeout := time.Duration(def.Timeout()) * time.Millisecond

	result, err := backoff.Retry(ctx, func() (*domain.NodeResult, error) {
		nodeCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		res := n.Execute(nodeCtx, nc)

		if res != nil && res.Success {
			return res, nil
		}
		if ctx.Err() != nil {
			return res, backoff.Permanent(ctx.Err())
		}
		if res != nil && res.Error != nil {
			if !res.Error.Code.Retryable() {
				return res, backoff.Permanent(res.Error)
			}
			return res, res.Error
		}
		return res, backoff.Permanent(fmt.Errorf("engine: node %s failed with no error detail", nodeID))
	},
		backoff.WithBackOff(&linearBackOff{stepMS: backoffMS}),
		backoff.WithMaxTries(uint(maxAttempts)),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) persist(ctx context.Context, job *domain.Job) error {
	if e.repo == nil {
		return nil
	}
	return e.repo.Save(ctx, job)
}
