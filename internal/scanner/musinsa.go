package scanner

import (
	"context"
	"fmt"
	"regexp"

	"github.com/go-rod/rod"

	"github.com/scanflow/platform/internal/domain"
	"github.com/scanflow/platform/internal/scanner/strategy"
)

var musinsaIDPattern = regexp.MustCompile(`/goods/(\d+)`)

type musinsaScanner struct {
	http *strategy.HTTPClient
}

func newMusinsaScanner(h *strategy.HTTPClient) *musinsaScanner {
	return &musinsaScanner{http: h}
}

func (s *musinsaScanner) Platform() domain.Platform { return domain.PlatformMusinsa }

func (s *musinsaScanner) ExtractProductID(url string) (string, bool) {
	m := musinsaIDPattern.FindStringSubmatch(url)
	if len(m) != 2 {
		return "", false
	}
	return m[1], true
}

// Scan runs Musinsa's GraphQL strategy and treats an errors[].extensions.code
// of NOT_FOUND as the NOT_FOUND branch (spec §4.D).
func (s *musinsaScanner) Scan(ctx context.Context, cfg domain.PlatformConfig, productID string, _ *rod.Page) (domain.ScanResult, error) {
	spec, ok := cfg.PrimaryStrategy()
	if !ok {
		return domain.ScanResult{}, fmt.Errorf("musinsa: no strategy configured")
	}

	res, err := s.http.GraphQL(ctx, cfg, spec, productID)
	if err != nil {
		if te, ok := err.(*domain.TaxonomyError); ok {
			return domain.ScanResult{}, te
		}
		return domain.ScanResult{}, domain.NewTaxonomyError(domain.TransientUpstream, "", err)
	}

	if code := asString(lookupPath(res.Body, "errors.0.extensions.code")); code == "NOT_FOUND" {
		return domain.ScanResult{IsNotFound: true, NativeID: productID}, nil
	}
	if lookupPath(res.Body, "errors.0.message") != nil {
		return domain.ScanResult{}, domain.NewTaxonomyError(domain.UpstreamProtocolError, "", fmt.Errorf("musinsa: graphql error response"))
	}

	facade := &ExtractorFacade{
		Price:    musinsaPriceExtractor{},
		Status:   musinsaStatusExtractor{},
		Metadata: musinsaMetadataExtractor{},
		Platform: domain.PlatformMusinsa,
	}
	record := facade.Extract(&ScanSource{Body: res.Body})
	return domain.ScanResult{Record: record, NativeID: productID}, nil
}

type musinsaPriceExtractor struct{}

func (musinsaPriceExtractor) ExtractPrice(src *ScanSource) (int64, int64, error) {
	original := asInt64(lookupPath(src.Body, "data.goods.price.normal"))
	discounted := asInt64(lookupPath(src.Body, "data.goods.price.sale"))
	return original, discounted, nil
}

type musinsaStatusExtractor struct{}

func (musinsaStatusExtractor) ExtractStatus(src *ScanSource) (string, error) {
	return asString(lookupPath(src.Body, "data.goods.saleStatus")), nil
}

type musinsaMetadataExtractor struct{}

func (musinsaMetadataExtractor) ExtractMetadata(src *ScanSource) (string, string, map[string]any, error) {
	name := asString(lookupPath(src.Body, "data.goods.name"))
	thumb := asString(lookupPath(src.Body, "data.goods.thumbnailUrl"))
	brand := asString(lookupPath(src.Body, "data.goods.brand.name"))
	meta := map[string]any{}
	if brand != "" {
		meta["brand"] = brand
	}
	return name, thumb, meta, nil
}
