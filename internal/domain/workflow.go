package domain

import "fmt"

// RetryPolicy bounds how many times a node is re-executed on failure and the
// linear backoff between attempts (spec §4.E step 5).
type RetryPolicy struct {
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
	BackoffMS   int `json:"backoff_ms" yaml:"backoff_ms"`
}

// Node is one vertex of a workflow DAG.
type Node struct {
	Type string `json:"type" yaml:"type"`
	Name string `json:"name" yaml:"name"`

	Config map[string]any `json:"config" yaml:"config"`

	// NextNode is the legacy singular successor field. NextNodes is the
	// set-valued successor list the engine actually executes against; when
	// NextNodes is empty it defaults to the singleton [NextNode] (Design
	// Notes: "next_node is singular but the engine test suite exercises
	// multi-successor behavior").
	NextNode  string   `json:"next_node,omitempty" yaml:"next_node,omitempty"`
	NextNodes []string `json:"next_nodes,omitempty" yaml:"next_nodes,omitempty"`

	RetryPolicy *RetryPolicy `json:"retry_policy,omitempty" yaml:"retry_policy,omitempty"`
	TimeoutMS   int          `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`

	// StopOnError controls fan-out failure propagation (spec §4.E); default
	// true when unset.
	StopOnError *bool `json:"stop_on_error,omitempty" yaml:"stop_on_error,omitempty"`
}

// Successors returns the resolved next-node id set, applying the
// NextNode->NextNodes default.
func (n Node) Successors() []string {
	if len(n.NextNodes) > 0 {
		return n.NextNodes
	}
	if n.NextNode != "" {
		return []string{n.NextNode}
	}
	return nil
}

func (n Node) StopsOnError() bool {
	if n.StopOnError == nil {
		return true
	}
	return *n.StopOnError
}

func (n Node) Timeout() int {
	if n.TimeoutMS <= 0 {
		return 60_000
	}
	return n.TimeoutMS
}

// WorkflowDefinition is a directed graph of nodes, stored in configuration.
type WorkflowDefinition struct {
	ID        string          `json:"id" yaml:"id"`
	Version   string          `json:"version" yaml:"version"`
	StartNode string          `json:"start_node" yaml:"start_node"`
	Nodes     map[string]Node `json:"nodes" yaml:"nodes"`
}

// Validate checks the invariants from spec §3: every referenced next node
// exists, the start node exists, and no node is unreachable from start.
func (w WorkflowDefinition) Validate() error {
	if w.StartNode == "" {
		return fmt.Errorf("workflow %s: start_node is required", w.ID)
	}
	if _, ok := w.Nodes[w.StartNode]; !ok {
		return fmt.Errorf("workflow %s: start_node %q not found in node map", w.ID, w.StartNode)
	}
	for id, n := range w.Nodes {
		for _, next := range n.Successors() {
			if _, ok := w.Nodes[next]; !ok {
				return fmt.Errorf("workflow %s: node %q references unknown next node %q", w.ID, id, next)
			}
		}
	}
	reachable := map[string]bool{w.StartNode: true}
	queue := []string{w.StartNode}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range w.Nodes[id].Successors() {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}
	for id := range w.Nodes {
		if !reachable[id] {
			return fmt.Errorf("workflow %s: node %q is unreachable from start_node", w.ID, id)
		}
	}
	return nil
}
