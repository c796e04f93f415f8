package scanner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scanflow/platform/internal/domain"
	"github.com/scanflow/platform/internal/scanner/strategy"
)

func TestHwahaeScanner_404IsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := newHwahaeScanner(strategy.NewHTTPClient())
	cfg := domain.PlatformConfig{
		ID: domain.PlatformHwahae,
		Strategies: []domain.StrategySpec{
			{Type: domain.StrategyHTTP, Priority: 1, URLTemplate: srv.URL + "/products/{id}", Method: "GET"},
		},
	}

	result, err := s.Scan(context.Background(), cfg, "123", nil)
	require.NoError(t, err)
	require.True(t, result.IsNotFound)
}

func TestHwahaeScanner_SuccessExtractsRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"product":{"name":"Toner","thumbnail_url":"http://img","brand_name":"Acme","price":{"original":20000,"final":15000},"status":"on_sale"}}`))
	}))
	defer srv.Close()

	s := newHwahaeScanner(strategy.NewHTTPClient())
	cfg := domain.PlatformConfig{
		ID: domain.PlatformHwahae,
		Strategies: []domain.StrategySpec{
			{Type: domain.StrategyHTTP, Priority: 1, URLTemplate: srv.URL + "/products/{id}", Method: "GET"},
		},
	}

	result, err := s.Scan(context.Background(), cfg, "123", nil)
	require.NoError(t, err)
	require.False(t, result.IsNotFound)
	require.Equal(t, "Toner", result.Record.ProductName)
	require.Equal(t, int64(15000), result.Record.DiscountedPrice)
	require.Equal(t, domain.OnSale, result.Record.SaleStatus)
	require.Equal(t, "Acme", result.Record.Meta["brand"])
}

func TestMusinsaScanner_GraphQLNotFoundCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"missing","extensions":{"code":"NOT_FOUND"}}]}`))
	}))
	defer srv.Close()

	s := newMusinsaScanner(strategy.NewHTTPClient())
	cfg := domain.PlatformConfig{
		ID: domain.PlatformMusinsa,
		Strategies: []domain.StrategySpec{
			{Type: domain.StrategyGraphQL, Priority: 1, URLTemplate: srv.URL, Query: `{goods(id:"{id}"){name}}`},
		},
	}

	result, err := s.Scan(context.Background(), cfg, "456", nil)
	require.NoError(t, err)
	require.True(t, result.IsNotFound)
}

func TestKurlyScanner_EmptyExtractSentinelIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	s := newKurlyScanner(strategy.NewHTTPClient())
	cfg := domain.PlatformConfig{
		ID: domain.PlatformKurly,
		Strategies: []domain.StrategySpec{
			{Type: domain.StrategyHTTP, Priority: 1, URLTemplate: srv.URL + "/goods/{id}", Method: "GET"},
		},
	}

	result, err := s.Scan(context.Background(), cfg, "789", nil)
	require.NoError(t, err)
	require.True(t, result.IsNotFound)
}

func TestRegistry_GetReturnsAllSixPlatforms(t *testing.T) {
	r := NewRegistry()
	for _, p := range domain.KnownPlatforms {
		_, ok := r.Get(p)
		require.True(t, ok, "registry must register a scanner for platform %s", p)
	}
}

func TestExtractProductID_PerPlatform(t *testing.T) {
	r := NewRegistry()

	hwahae, _ := r.Get(domain.PlatformHwahae)
	id, ok := hwahae.ExtractProductID("https://www.hwahae.co.kr/products/998877")
	require.True(t, ok)
	require.Equal(t, "998877", id)

	musinsa, _ := r.Get(domain.PlatformMusinsa)
	id, ok = musinsa.ExtractProductID("https://www.musinsa.com/goods/112233")
	require.True(t, ok)
	require.Equal(t, "112233", id)

	_, ok = hwahae.ExtractProductID("https://www.hwahae.co.kr/brands/abc")
	require.False(t, ok)
}
