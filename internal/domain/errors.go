package domain

import "fmt"

// Kind is the error taxonomy from spec §7.
type Kind string

const (
	TransientUpstream     Kind = "transient_upstream"
	NotFound              Kind = "not_found"
	ValidationFailed      Kind = "validation_failed"
	NodeTimeout           Kind = "node_timeout"
	UpstreamProtocolError Kind = "upstream_protocol_error"
	RepositoryError       Kind = "repository_error"
	LockLost              Kind = "lock_lost"
	BrowserCrashed        Kind = "browser_crashed"
)

// TaxonomyError classifies a failure by Kind and records which node raised
// it, so the engine can decide retry-or-terminate (spec §7 "Propagation
// policy") without inspecting error strings.
type TaxonomyError struct {
	Kind Kind
	Node string
	Err  error
}

func (e *TaxonomyError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("%s: node %s: %v", e.Kind, e.Node, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TaxonomyError) Unwrap() error { return e.Err }

func NewTaxonomyError(kind Kind, node string, err error) *TaxonomyError {
	return &TaxonomyError{Kind: kind, Node: node, Err: err}
}

// Retryable reports whether the engine's retry policy should apply to an
// error of this kind (spec §7's per-kind behavior column).
func (k Kind) Retryable() bool {
	switch k {
	case TransientUpstream, NodeTimeout, BrowserCrashed:
		return true
	default:
		return false
	}
}
