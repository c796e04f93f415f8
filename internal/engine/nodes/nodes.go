// Package nodes implements the concrete node families the workflow
// engine's factory registry dispatches to: fetch, scan, validate, compare,
// save, notify, monitor (spec §4.E, SPEC_FULL.md §4.E).
//
// Every node in this package processes a batch of items in one Execute
// call rather than fanning one DAG node out per product: a job's "limit"
// worth of targets flows fetch -> scan -> validate -> compare -> save as a
// list carried in each node's Output, keyed by a well-known field name
// ("targets", "scans", "validated", "comparisons"). A downstream node finds
// its input by reading Config["from"], the upstream node's id, out of its
// own static configuration — set once in the workflow definition, e.g.:
//
//	nodes:
//	  fetch_targets:
//	    type: fetch.platform_targets
//	    config: {limit: 50}
//	    next_node: scan_products
//	  scan_products:
//	    type: scan.product
//	    config: {from: fetch_targets}
//	    next_node: validate_records
//
// This keeps the DAG shape meaningful (each node is still one vertex with
// one retry policy and one timeout) while a single job scans many products.
package nodes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/scanflow/platform/internal/browserpool"
	"github.com/scanflow/platform/internal/domain"
	"github.com/scanflow/platform/internal/engine"
	"github.com/scanflow/platform/internal/jobrepo"
	"github.com/scanflow/platform/internal/notify"
	"github.com/scanflow/platform/internal/reference"
	"github.com/scanflow/platform/internal/resultwriter"
	"github.com/scanflow/platform/internal/scanner"
)

// SharedKeyResultWriter is the shared-state key under which the worker
// loop stashes the job's *resultwriter.Writer before the first node runs;
// save.result_record reads it back out.
const SharedKeyResultWriter = "resultwriter"

// Deps bundles every external collaborator a node family needs. It is
// supplied once at process wiring time (internal/app) and closed over by
// each registered factory — the factories themselves stay table-driven and
// config-only, per spec §9 "table-driven factory that returns a concrete
// implementation".
type Deps struct {
	Reference reference.Store
	Scanners  *scanner.Registry
	Browsers  *browserpool.Pool
	Notifier  notify.Notifier
	Repo      *jobrepo.Repo
}

// RegisterAll registers every node type this package implements into r.
func RegisterAll(r *engine.Registry, deps Deps) {
	validate := validator.New()

	r.Register("fetch.platform_targets", func(map[string]any) (engine.Node, error) {
		if deps.Reference == nil {
			return nil, fmt.Errorf("nodes: fetch.platform_targets requires a reference.Store")
		}
		return &fetchPlatformTargetsNode{store: deps.Reference}, nil
	})
	r.Register("fetch.url_list", func(map[string]any) (engine.Node, error) {
		if deps.Scanners == nil {
			return nil, fmt.Errorf("nodes: fetch.url_list requires a scanner.Registry")
		}
		return &fetchURLListNode{registry: deps.Scanners}, nil
	})
	r.Register("scan.product", func(map[string]any) (engine.Node, error) {
		if deps.Scanners == nil {
			return nil, fmt.Errorf("nodes: scan.product requires a scanner.Registry")
		}
		return &scanProductNode{registry: deps.Scanners, pool: deps.Browsers}, nil
	})
	r.Register("validate.product_record", func(map[string]any) (engine.Node, error) {
		return &validateProductRecordNode{validate: validate}, nil
	})
	r.Register("compare.against_reference", func(map[string]any) (engine.Node, error) {
		if deps.Reference == nil {
			return nil, fmt.Errorf("nodes: compare.against_reference requires a reference.Store")
		}
		return &compareAgainstReferenceNode{store: deps.Reference}, nil
	})
	r.Register("save.result_record", func(map[string]any) (engine.Node, error) {
		return &saveResultRecordNode{}, nil
	})
	r.Register("notify.webhook", func(map[string]any) (engine.Node, error) {
		notifier := deps.Notifier
		if notifier == nil {
			notifier = notify.NoopNotifier{}
		}
		return &notifyWebhookNode{notifier: notifier}, nil
	})
	r.Register("monitor.periodic_rescan", func(map[string]any) (engine.Node, error) {
		if deps.Repo == nil {
			return nil, fmt.Errorf("nodes: monitor.periodic_rescan requires a jobrepo.Repo")
		}
		return &monitorPeriodicRescanNode{repo: deps.Repo}, nil
	})
}

// --- shared helpers -------------------------------------------------------

func errResult(kind domain.Kind, err error) *domain.NodeResult {
	return &domain.NodeResult{Success: false, Error: &domain.NodeError{Message: err.Error(), Code: kind}}
}

func intFromConfig(cfg map[string]any, key string, def int) int {
	if cfg == nil {
		return def
	}
	switch n := cfg[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

// fromKey reads the producer node id this node was configured to read its
// input list from.
func fromKey(nc domain.NodeContext) string {
	if nc.Config == nil {
		return ""
	}
	v, _ := nc.Config["from"].(string)
	return v
}

// producerOutput returns the named predecessor's Output map. nc.Input is
// the job's whole accumulated result (spec §4.E step 6 "merge the node
// output into the job's accumulated result under the node id key"), so
// finding "this node's" input means looking up the configured producer's
// entry within it.
func producerOutput(nc domain.NodeContext) (map[string]any, bool) {
	m, ok := nc.Input.(map[string]any)
	if !ok {
		return nil, false
	}
	from := fromKey(nc)
	if from == "" {
		return nil, false
	}
	v, ok := m[from]
	if !ok {
		return nil, false
	}
	out, ok := v.(map[string]any)
	return out, ok
}

// listField extracts a []map[string]any from the configured producer's
// output under key, tolerating the []any shape that results from a
// round-trip through JSON (e.g. after a job record is reloaded from Redis).
func listField(nc domain.NodeContext, key string) []map[string]any {
	out, ok := producerOutput(nc)
	if !ok {
		return nil
	}
	raw, ok := out[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []map[string]any:
		return v
	case []any:
		res := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				res = append(res, m)
			}
		}
		return res
	default:
		return nil
	}
}

func recordToMap(rec *domain.ProductRecord) map[string]any {
	raw, err := json.Marshal(rec)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out
}

func mapToRecord(m map[string]any) (*domain.ProductRecord, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("nodes: marshal record map: %w", err)
	}
	var rec domain.ProductRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("nodes: unmarshal record: %w", err)
	}
	return &rec, nil
}

// --- fetch.platform_targets ------------------------------------------------

// fetchPlatformTargetsNode pulls a bounded list of product references for
// the job's platform from the reference repository (spec §4.E "fetch: pull
// a target list from the repository").
type fetchPlatformTargetsNode struct {
	store reference.Store
}

func (n *fetchPlatformTargetsNode) Execute(ctx context.Context, nc domain.NodeContext) *domain.NodeResult {
	limit := intFromConfig(nc.Config, "limit", 50)
	rows, err := n.store.ListTargets(ctx, nc.Platform, limit)
	if err != nil {
		var te *domain.TaxonomyError
		if errors.As(err, &te) {
			return errResult(te.Kind, te)
		}
		return errResult(domain.RepositoryError, err)
	}

	targets := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		targets = append(targets, map[string]any{"product_id": row.ID})
	}
	return &domain.NodeResult{Success: true, Output: map[string]any{
		"targets": targets,
		"count":   len(targets),
	}}
}

// --- fetch.url_list ---------------------------------------------------------

// fetchURLListNode resolves a caller-supplied URL list from job params into
// product targets using the platform's scanner (spec §4.E "fetch.url_list
// caller-supplied URL list from job params").
type fetchURLListNode struct {
	registry *scanner.Registry
}

func (n *fetchURLListNode) Execute(ctx context.Context, nc domain.NodeContext) *domain.NodeResult {
	raw, _ := nc.Params["urls"].([]any)
	s, ok := n.registry.Get(nc.Platform)
	if !ok {
		return errResult(domain.ValidationFailed, fmt.Errorf("fetch.url_list: no scanner registered for platform %s", nc.Platform))
	}

	targets := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		url, ok := item.(string)
		if !ok || url == "" {
			continue
		}
		id, ok := s.ExtractProductID(url)
		if !ok {
			continue
		}
		targets = append(targets, map[string]any{"product_id": id, "url": url})
	}
	return &domain.NodeResult{Success: true, Output: map[string]any{
		"targets": targets,
		"count":   len(targets),
	}}
}

// --- scan.product ------------------------------------------------------------

// scanProductNode invokes the scanner registry for every target produced by
// its configured predecessor, acquiring a browser instance from the pool
// first when the selected strategy requires one (spec §4.E "scan: invoke
// the scanner registry").
type scanProductNode struct {
	registry *scanner.Registry
	pool     *browserpool.Pool
}

func (n *scanProductNode) Execute(ctx context.Context, nc domain.NodeContext) *domain.NodeResult {
	if nc.PlatformConfig == nil {
		return errResult(domain.ValidationFailed, fmt.Errorf("scan.product: no platform configuration loaded for %s", nc.Platform))
	}
	targets := listField(nc, "targets")

	scans := make([]map[string]any, 0, len(targets))
	for _, t := range targets {
		productID, _ := t["product_id"].(string)
		if productID == "" {
			continue
		}

		select {
		case <-ctx.Done():
			return errResult(domain.NodeTimeout, ctx.Err())
		default:
		}

		res, err := n.registry.Scan(ctx, *nc.PlatformConfig, productID, n.pool)
		if err != nil {
			var te *domain.TaxonomyError
			if errors.As(err, &te) {
				return errResult(te.Kind, te)
			}
			return errResult(domain.TransientUpstream, err)
		}

		item := map[string]any{"product_id": productID, "is_not_found": res.IsNotFound}
		if res.Record != nil {
			item["record"] = recordToMap(res.Record)
		}
		scans = append(scans, item)
	}
	return &domain.NodeResult{Success: true, Output: map[string]any{
		"scans": scans,
		"count": len(scans),
	}}
}

// --- validate.product_record -------------------------------------------------

// validateProductRecordNode runs validator-tag shape checks on every
// non-NOT_FOUND scanned record (spec §4.E "validate: shape checks on a
// scanned record"; spec §7 "ValidationFailed: node fails without retry").
type validateProductRecordNode struct {
	validate *validator.Validate
}

func (n *validateProductRecordNode) Execute(ctx context.Context, nc domain.NodeContext) *domain.NodeResult {
	scans := listField(nc, "scans")

	validated := make([]map[string]any, 0, len(scans))
	for _, s := range scans {
		if isNotFound, _ := s["is_not_found"].(bool); isNotFound {
			validated = append(validated, s)
			continue
		}

		recMap, _ := s["record"].(map[string]any)
		rec, err := mapToRecord(recMap)
		if err != nil {
			return errResult(domain.ValidationFailed, err)
		}
		if err := n.validate.Struct(rec); err != nil {
			productID, _ := s["product_id"].(string)
			return errResult(domain.ValidationFailed, fmt.Errorf("product %s: %w", productID, err))
		}
		validated = append(validated, s)
	}
	return &domain.NodeResult{Success: true, Output: map[string]any{
		"validated": validated,
		"count":     len(validated),
	}}
}

// --- compare.against_reference ----------------------------------------------

// compareAgainstReferenceNode diffs each validated record against the
// authoritative reference row on product name, thumbnail URL, original
// price, discounted price, and sale status (spec §4.E "compare: diff
// against reference data"; spec §1 names this exact field set).
type compareAgainstReferenceNode struct {
	store reference.Store
}

func (n *compareAgainstReferenceNode) Execute(ctx context.Context, nc domain.NodeContext) *domain.NodeResult {
	validated := listField(nc, "validated")

	comparisons := make([]map[string]any, 0, len(validated))
	for _, item := range validated {
		productID, _ := item["product_id"].(string)

		if isNotFound, _ := item["is_not_found"].(bool); isNotFound {
			comparisons = append(comparisons, map[string]any{
				"product_id": productID,
				"status":     "not_found",
			})
			continue
		}

		recMap, _ := item["record"].(map[string]any)
		rec, err := mapToRecord(recMap)
		if err != nil {
			comparisons = append(comparisons, map[string]any{
				"product_id": productID,
				"status":     "failed",
				"error":      err.Error(),
			})
			continue
		}

		refRow, err := n.store.Get(ctx, nc.Platform, productID)
		if errors.Is(err, reference.ErrNotFound) {
			comparisons = append(comparisons, map[string]any{
				"product_id": productID,
				"status":     "failed",
				"match":      false,
				"reason":     "no reference row for product",
				"record":     recMap,
			})
			continue
		}
		if err != nil {
			return errResult(domain.RepositoryError, err)
		}

		diffs := diffRecord(rec, refRow)
		match := len(diffs) == 0
		status := "success"
		if !match {
			status = "failed"
		}
		comparisons = append(comparisons, map[string]any{
			"product_id": productID,
			"status":     status,
			"match":      match,
			"diffs":      diffs,
			"record":     recMap,
		})
	}
	return &domain.NodeResult{Success: true, Output: map[string]any{
		"comparisons": comparisons,
		"count":       len(comparisons),
	}}
}

// diffRecord compares the field set spec §1 names as the comparison
// engine's scope; each comparator below is an exact equality check with
// no tolerance, individually swappable per spec §1's "field comparators
// are interchangeable" non-goal.
func diffRecord(rec *domain.ProductRecord, ref *reference.Row) map[string]any {
	diffs := map[string]any{}
	if rec.ProductName != ref.ProductName {
		diffs["product_name"] = map[string]any{"expected": ref.ProductName, "actual": rec.ProductName}
	}
	if rec.ThumbnailURL != ref.ThumbnailURL {
		diffs["thumbnail_url"] = map[string]any{"expected": ref.ThumbnailURL, "actual": rec.ThumbnailURL}
	}
	if rec.OriginalPrice != ref.OriginalPrice {
		diffs["original_price"] = map[string]any{"expected": ref.OriginalPrice, "actual": rec.OriginalPrice}
	}
	if rec.DiscountedPrice != ref.DiscountedPrice {
		diffs["discounted_price"] = map[string]any{"expected": ref.DiscountedPrice, "actual": rec.DiscountedPrice}
	}
	if string(rec.SaleStatus) != ref.SaleStatus {
		diffs["sale_status"] = map[string]any{"expected": ref.SaleStatus, "actual": string(rec.SaleStatus)}
	}
	return diffs
}

// --- save.result_record -------------------------------------------------------

// saveResultRecordNode appends one line per comparison to the job's
// resultwriter.Writer, handed to it via shared state by the worker loop
// before the first node runs (spec §4.E "save: append to the result
// writer").
type saveResultRecordNode struct{}

func (n *saveResultRecordNode) Execute(ctx context.Context, nc domain.NodeContext) *domain.NodeResult {
	comparisons := listField(nc, "comparisons")

	wv, ok := nc.Shared().Get(SharedKeyResultWriter)
	if !ok {
		return errResult(domain.ValidationFailed, fmt.Errorf("save.result_record: no result writer in shared state"))
	}
	writer, ok := wv.(*resultwriter.Writer)
	if !ok || writer == nil {
		return errResult(domain.ValidationFailed, fmt.Errorf("save.result_record: shared state writer has the wrong type"))
	}

	var written, success, failed, notFound int
	for _, c := range comparisons {
		statusStr, _ := c["status"].(string)
		var status resultwriter.Status
		switch statusStr {
		case "success":
			status = resultwriter.StatusSuccess
			success++
		case "not_found":
			status = resultwriter.StatusNotFound
			notFound++
		default:
			status = resultwriter.StatusFailed
			failed++
		}
		if err := writer.WriteRecord(status, c); err != nil {
			return errResult(domain.RepositoryError, err)
		}
		written++
	}
	return &domain.NodeResult{Success: true, Output: map[string]any{
		"written":   written,
		"success":   success,
		"failed":    failed,
		"not_found": notFound,
	}}
}

// --- notify.webhook -----------------------------------------------------------

// notifyWebhookNode posts a best-effort job-completion summary to an
// external webhook (spec §4.E "notify: external emit"). A notification
// failure never fails the job: notification is a side channel, not a
// correctness concern.
type notifyWebhookNode struct {
	notifier notify.Notifier
}

func (n *notifyWebhookNode) Execute(ctx context.Context, nc domain.NodeContext) *domain.NodeResult {
	summary, _ := producerOutput(nc)
	payload := map[string]any{
		"job_id":      nc.JobID,
		"workflow_id": nc.WorkflowID,
		"platform":    string(nc.Platform),
		"summary":     summary,
	}
	if err := n.notifier.Notify(ctx, payload); err != nil {
		nc.Log.Warn("notify.webhook: notification failed", "error", err)
	}
	return &domain.NodeResult{Success: true, Output: map[string]any{"notified": true}}
}

// --- monitor.periodic_rescan --------------------------------------------------

// monitorPeriodicRescanNode re-enqueues a follow-up job for the same
// workflow, platform and params (spec §4.E "monitor: periodic crawls";
// SPEC_FULL.md's supplemented recurring-scan use case). The follow-up job
// is enqueued as soon as this node runs, with no delay. internal/scheduler's
// cron entry only enqueues "<platform>-validation" workflows, so it neither
// starts nor paces the workflows that contain this node.
type monitorPeriodicRescanNode struct {
	repo *jobrepo.Repo
}

func (n *monitorPeriodicRescanNode) Execute(ctx context.Context, nc domain.NodeContext) *domain.NodeResult {
	id, err := uuid.NewV7()
	if err != nil {
		return errResult(domain.RepositoryError, err)
	}
	priority := intFromConfig(nc.Config, "priority", 0)

	next := &domain.Job{
		ID:         id.String(),
		WorkflowID: nc.WorkflowID,
		Platform:   nc.Platform,
		Priority:   priority,
		Status:     domain.JobPending,
		Params:     nc.Params,
		Metadata: map[string]any{
			"requeued_by":   nc.NodeID,
			"source_job_id": nc.JobID,
		},
	}
	if err := n.repo.Enqueue(ctx, next); err != nil {
		return errResult(domain.RepositoryError, err)
	}
	return &domain.NodeResult{Success: true, Output: map[string]any{"requeued_job_id": next.ID}}
}
