package nodes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scanflow/platform/internal/domain"
	"github.com/scanflow/platform/internal/reference"
	"github.com/scanflow/platform/internal/resultwriter"
)

func nodeContext(nodeID string, cfg map[string]any, input any) domain.NodeContext {
	return domain.NewNodeContext("job-1", "wf-1", nodeID, domain.PlatformHwahae, cfg, input, nil, nil, nil, nil)
}

func TestFetchPlatformTargets_ListsReferenceRows(t *testing.T) {
	store := reference.NewFakeStore()
	store.Put(domain.PlatformHwahae, reference.Row{ID: "p1"})
	store.Put(domain.PlatformHwahae, reference.Row{ID: "p2"})

	n := &fetchPlatformTargetsNode{store: store}
	res := n.Execute(context.Background(), nodeContext("fetch", map[string]any{"limit": 10}, nil))

	require.True(t, res.Success)
	require.Equal(t, 2, res.Output["count"])
}

func TestCompareAgainstReference_DetectsMismatch(t *testing.T) {
	store := reference.NewFakeStore()
	store.Put(domain.PlatformHwahae, reference.Row{
		ID: "p1", ProductName: "Toner", OriginalPrice: 20000, DiscountedPrice: 15000, SaleStatus: "on_sale",
	})

	validated := map[string]any{
		"validated": []map[string]any{
			{
				"product_id":  "p1",
				"is_not_found": false,
				"record": map[string]any{
					"product_name":     "Toner",
					"original_price":   20000,
					"discounted_price": 18000, // mismatch
					"sale_status":      "on_sale",
				},
			},
		},
	}
	input := map[string]any{"validate_step": validated}

	n := &compareAgainstReferenceNode{store: store}
	nc := nodeContext("compare", map[string]any{"from": "validate_step"}, input)
	res := n.Execute(context.Background(), nc)

	require.True(t, res.Success)
	comparisons := res.Output["comparisons"].([]map[string]any)
	require.Len(t, comparisons, 1)
	require.Equal(t, "failed", comparisons[0]["status"])
	diffs := comparisons[0]["diffs"].(map[string]any)
	require.Contains(t, diffs, "discounted_price")
}

func TestCompareAgainstReference_NotFoundPassesThrough(t *testing.T) {
	validated := map[string]any{
		"validated": []map[string]any{
			{"product_id": "p1", "is_not_found": true},
		},
	}
	input := map[string]any{"validate_step": validated}

	n := &compareAgainstReferenceNode{store: reference.NewFakeStore()}
	nc := nodeContext("compare", map[string]any{"from": "validate_step"}, input)
	res := n.Execute(context.Background(), nc)

	require.True(t, res.Success)
	comparisons := res.Output["comparisons"].([]map[string]any)
	require.Equal(t, "not_found", comparisons[0]["status"])
}

func TestSaveResultRecord_WritesOneLinePerComparisonAndTallies(t *testing.T) {
	dir := t.TempDir()
	w, err := resultwriter.Open(dir, "job-1", domain.PlatformHwahae, "wf-1", time.Now())
	require.NoError(t, err)

	comparisons := map[string]any{
		"comparisons": []map[string]any{
			{"product_id": "p1", "status": "success"},
			{"product_id": "p2", "status": "failed"},
			{"product_id": "p3", "status": "not_found"},
		},
	}
	input := map[string]any{"compare_step": comparisons}

	shared := domain.NewNodeContext("job-1", "wf-1", "save", domain.PlatformHwahae, map[string]any{"from": "compare_step"}, input, nil, nil, nil, nil).Shared()
	shared.Set(SharedKeyResultWriter, w)

	n := &saveResultRecordNode{}
	nc := domain.NewNodeContext("job-1", "wf-1", "save", domain.PlatformHwahae, map[string]any{"from": "compare_step"}, input, nil, nil, nil, shared)
	res := n.Execute(context.Background(), nc)

	require.True(t, res.Success)
	require.Equal(t, 3, res.Output["written"])
	require.Equal(t, 1, res.Output["success"])
	require.Equal(t, 1, res.Output["failed"])
	require.Equal(t, 1, res.Output["not_found"])

	require.NoError(t, w.Close(domain.JobCompleted))
}

func TestSaveResultRecord_MissingWriterFails(t *testing.T) {
	n := &saveResultRecordNode{}
	nc := nodeContext("save", map[string]any{"from": "compare_step"}, map[string]any{"compare_step": map[string]any{}})
	res := n.Execute(context.Background(), nc)
	require.False(t, res.Success)
	require.Equal(t, domain.ValidationFailed, res.Error.Code)
}
