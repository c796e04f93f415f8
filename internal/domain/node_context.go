package domain

import (
	"sync"

	"github.com/scanflow/platform/internal/platform/logger"
)

// NodeContext is the per-invocation state passed to a node. It is immutable
// to the node except for the shared-state map (spec §3 "Node context").
type NodeContext struct {
	JobID      string
	WorkflowID string
	NodeID     string

	Config   map[string]any
	Input    any
	Params   map[string]any
	Platform Platform

	PlatformConfig *PlatformConfig
	Log            *logger.Logger

	shared *sharedState
}

// NewNodeContext constructs a NodeContext, wiring a fresh shared-state map
// for the job if one was not supplied (the first node of a job creates it;
// later nodes reuse the same instance so state set by one node is visible
// to the next, per spec "shared-state map for cross-node communication").
func NewNodeContext(jobID, workflowID, nodeID string, platform Platform, cfg map[string]any, input any, params map[string]any, pc *PlatformConfig, log *logger.Logger, shared *SharedState) NodeContext {
	var ss *sharedState
	if shared != nil {
		ss = shared.inner
	} else {
		ss = newSharedState()
	}
	return NodeContext{
		JobID:          jobID,
		WorkflowID:     workflowID,
		NodeID:         nodeID,
		Config:         cfg,
		Input:          input,
		Params:         params,
		Platform:       platform,
		PlatformConfig: pc,
		Log:            log,
		shared:         ss,
	}
}

// Shared returns a handle to this job's cross-node shared-state map.
func (c NodeContext) Shared() *SharedState { return &SharedState{inner: c.shared} }

// SharedState is a best-effort, in-memory, per-job map used to hand
// resources (e.g. a borrowed browser page) from one node to the next
// within a single job execution. It is never persisted across worker
// restarts (spec §4.E "Shared state").
type SharedState struct{ inner *sharedState }

type sharedState struct {
	mu   sync.Mutex
	data map[string]any
}

func newSharedState() *sharedState { return &sharedState{data: make(map[string]any)} }

func (s *SharedState) Get(key string) (any, bool) {
	if s == nil || s.inner == nil {
		return nil, false
	}
	s.inner.mu.Lock()
	defer s.inner.mu.Unlock()
	v, ok := s.inner.data[key]
	return v, ok
}

func (s *SharedState) Set(key string, val any) {
	if s == nil || s.inner == nil {
		return
	}
	s.inner.mu.Lock()
	defer s.inner.mu.Unlock()
	s.inner.data[key] = val
}

func (s *SharedState) Delete(key string) {
	if s == nil || s.inner == nil {
		return
	}
	s.inner.mu.Lock()
	defer s.inner.mu.Unlock()
	delete(s.inner.data, key)
}

// NodeResult is the tagged record every node returns (spec §3 "Node
// result").
type NodeResult struct {
	Success bool
	Output  map[string]any
	Error   *NodeError

	// NextNodeOverride lets a node branch dynamically, overriding the
	// definition's static successor list.
	NextNodeOverride []string
}

type NodeError struct {
	Message string
	Code    Kind
	Details map[string]any
}

func (e *NodeError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}
