// Package domain holds the types shared across every component: jobs,
// workflow definitions, node contexts/results, platform configuration,
// product records, lock records, scheduler state, and the error taxonomy.
package domain

import "time"

// JobStatus is the job lifecycle state (spec §3, §4.E "State machine").
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Platform is one of the six supported upstream e-commerce sites; it also
// doubles as the sharding key for queues and locks.
type Platform string

const (
	PlatformOliveYoung Platform = "oliveyoung"
	PlatformHwahae     Platform = "hwahae"
	PlatformMusinsa    Platform = "musinsa"
	PlatformAbly       Platform = "ably"
	PlatformKurly      Platform = "kurly"
	PlatformZigzag     Platform = "zigzag"
)

// KnownPlatforms lists every platform tag this system recognizes.
var KnownPlatforms = []Platform{
	PlatformOliveYoung, PlatformHwahae, PlatformMusinsa,
	PlatformAbly, PlatformKurly, PlatformZigzag,
}

func (p Platform) Valid() bool {
	for _, k := range KnownPlatforms {
		if k == p {
			return true
		}
	}
	return false
}

// JobError captures the terminal failure of a job: the failing node and a
// human-readable message, per spec §3 "error (message + failing node id +
// timestamp, nullable)".
type JobError struct {
	Message   string    `json:"message"`
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Job is a single enqueued workflow execution instance.
type Job struct {
	ID             string                 `json:"id"`
	WorkflowID     string                 `json:"workflow_id"`
	Platform       Platform               `json:"platform"`
	Priority       int                    `json:"priority"`
	Status         JobStatus              `json:"status"`
	Params         map[string]any         `json:"params"`
	CurrentNodeID  string                 `json:"current_node_id,omitempty"`
	Progress       float64                `json:"progress"`
	Result         map[string]any         `json:"result"`
	Error          *JobError              `json:"error,omitempty"`
	Metadata       map[string]any         `json:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	StartedAt      *time.Time             `json:"started_at,omitempty"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
	cancelRequested bool
}

// Clone returns a deep-enough copy for safe concurrent mutation by the
// engine while the caller retains the original (progress snapshots, etc).
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Params = cloneMap(j.Params)
	cp.Result = cloneMap(j.Result)
	cp.Metadata = cloneMap(j.Metadata)
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	return &cp
}

// RequestCancel marks the job for cooperative cancellation; the engine
// checks this flag between node executions (spec §4.E "State machine").
func (j *Job) RequestCancel() { j.cancelRequested = true }

func (j *Job) CancelRequested() bool { return j != nil && j.cancelRequested }

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
