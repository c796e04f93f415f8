package scanner

import (
	"context"
	"fmt"
	"regexp"

	"github.com/go-rod/rod"

	"github.com/scanflow/platform/internal/domain"
	"github.com/scanflow/platform/internal/scanner/strategy"
)

var hwahaeIDPattern = regexp.MustCompile(`/products/(\d+)`)

type hwahaeScanner struct {
	http *strategy.HTTPClient
}

func newHwahaeScanner(h *strategy.HTTPClient) *hwahaeScanner {
	return &hwahaeScanner{http: h}
}

func (s *hwahaeScanner) Platform() domain.Platform { return domain.PlatformHwahae }

func (s *hwahaeScanner) ExtractProductID(url string) (string, bool) {
	m := hwahaeIDPattern.FindStringSubmatch(url)
	if len(m) != 2 {
		return "", false
	}
	return m[1], true
}

// Scan fetches the product JSON endpoint and treats a 404 as NOT_FOUND
// (spec §4.D "API-based platforms detect 404s").
func (s *hwahaeScanner) Scan(ctx context.Context, cfg domain.PlatformConfig, productID string, _ *rod.Page) (domain.ScanResult, error) {
	spec, ok := cfg.PrimaryStrategy()
	if !ok {
		return domain.ScanResult{}, fmt.Errorf("hwahae: no strategy configured")
	}

	res, err := s.http.Do(ctx, cfg, spec, productID)
	if err != nil {
		if te, ok := err.(*domain.TaxonomyError); ok {
			return domain.ScanResult{}, te
		}
		return domain.ScanResult{}, domain.NewTaxonomyError(domain.TransientUpstream, "", err)
	}
	if res.StatusCode == 404 {
		return domain.ScanResult{IsNotFound: true, NativeID: productID}, nil
	}

	facade := &ExtractorFacade{
		Price:    hwahaePriceExtractor{},
		Status:   hwahaeStatusExtractor{},
		Metadata: hwahaeMetadataExtractor{},
		Platform: domain.PlatformHwahae,
	}
	record := facade.Extract(&ScanSource{Body: res.Body})
	return domain.ScanResult{Record: record, NativeID: productID}, nil
}

type hwahaePriceExtractor struct{}

func (hwahaePriceExtractor) ExtractPrice(src *ScanSource) (int64, int64, error) {
	original := asInt64(lookupPath(src.Body, "product.price.original"))
	discounted := asInt64(lookupPath(src.Body, "product.price.final"))
	return original, discounted, nil
}

type hwahaeStatusExtractor struct{}

func (hwahaeStatusExtractor) ExtractStatus(src *ScanSource) (string, error) {
	return asString(lookupPath(src.Body, "product.status")), nil
}

type hwahaeMetadataExtractor struct{}

func (hwahaeMetadataExtractor) ExtractMetadata(src *ScanSource) (string, string, map[string]any, error) {
	name := asString(lookupPath(src.Body, "product.name"))
	thumb := asString(lookupPath(src.Body, "product.thumbnail_url"))
	brand := asString(lookupPath(src.Body, "product.brand_name"))
	meta := map[string]any{}
	if brand != "" {
		meta["brand"] = brand
	}
	return name, thumb, meta, nil
}
