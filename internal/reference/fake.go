package reference

import (
	"context"
	"sort"

	"github.com/scanflow/platform/internal/domain"
)

// FakeStore is an in-memory Store used by tests and by local/dev runs
// without a Postgres instance configured.
type FakeStore struct {
	rows map[string]Row // keyed by platform+":"+id
}

func NewFakeStore() *FakeStore {
	return &FakeStore{rows: make(map[string]Row)}
}

func (f *FakeStore) Put(platform domain.Platform, row Row) {
	row.Platform = string(platform)
	f.rows[string(platform)+":"+row.ID] = row
}

func (f *FakeStore) Get(ctx context.Context, platform domain.Platform, productID string) (*Row, error) {
	row, ok := f.rows[string(platform)+":"+productID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := row
	return &cp, nil
}

func (f *FakeStore) ListTargets(ctx context.Context, platform domain.Platform, limit int) ([]Row, error) {
	var out []Row
	prefix := string(platform) + ":"
	for k, row := range f.rows {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
