package reference

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scanflow/platform/internal/domain"
)

func TestFakeStore_GetAndListTargets(t *testing.T) {
	store := NewFakeStore()
	store.Put(domain.PlatformKurly, Row{ID: "1", ProductName: "Serum"})
	store.Put(domain.PlatformKurly, Row{ID: "2", ProductName: "Toner"})
	store.Put(domain.PlatformHwahae, Row{ID: "1", ProductName: "Cream"})

	ctx := context.Background()
	row, err := store.Get(ctx, domain.PlatformKurly, "1")
	require.NoError(t, err)
	require.Equal(t, "Serum", row.ProductName)

	_, err = store.Get(ctx, domain.PlatformKurly, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	targets, err := store.ListTargets(ctx, domain.PlatformKurly, 10)
	require.NoError(t, err)
	require.Len(t, targets, 2)
}
