package scanner

import (
	"context"
	"fmt"
	"regexp"

	"github.com/go-rod/rod"

	"github.com/scanflow/platform/internal/domain"
	"github.com/scanflow/platform/internal/scanner/strategy"
)

var zigzagIDPattern = regexp.MustCompile(`/catalog/products/(\d+)`)

type zigzagScanner struct {
	http *strategy.HTTPClient
}

func newZigzagScanner(h *strategy.HTTPClient) *zigzagScanner {
	return &zigzagScanner{http: h}
}

func (s *zigzagScanner) Platform() domain.Platform { return domain.PlatformZigzag }

func (s *zigzagScanner) ExtractProductID(url string) (string, bool) {
	m := zigzagIDPattern.FindStringSubmatch(url)
	if len(m) != 2 {
		return "", false
	}
	return m[1], true
}

// Scan runs Zigzag's GraphQL strategy; a non-empty errors array with a
// product-not-found message is the NOT_FOUND branch (spec §4.D).
func (s *zigzagScanner) Scan(ctx context.Context, cfg domain.PlatformConfig, productID string, _ *rod.Page) (domain.ScanResult, error) {
	spec, ok := cfg.PrimaryStrategy()
	if !ok {
		return domain.ScanResult{}, fmt.Errorf("zigzag: no strategy configured")
	}

	res, err := s.http.GraphQL(ctx, cfg, spec, productID)
	if err != nil {
		if te, ok := err.(*domain.TaxonomyError); ok {
			return domain.ScanResult{}, te
		}
		return domain.ScanResult{}, domain.NewTaxonomyError(domain.TransientUpstream, "", err)
	}

	if msg := asString(lookupPath(res.Body, "errors.0.message")); msg != "" {
		if regexp.MustCompile(`(?i)not.?found`).MatchString(msg) {
			return domain.ScanResult{IsNotFound: true, NativeID: productID}, nil
		}
		return domain.ScanResult{}, domain.NewTaxonomyError(domain.UpstreamProtocolError, "", fmt.Errorf("zigzag: graphql error: %s", msg))
	}

	facade := &ExtractorFacade{
		Price:    zigzagPriceExtractor{},
		Status:   zigzagStatusExtractor{},
		Metadata: zigzagMetadataExtractor{},
		Platform: domain.PlatformZigzag,
	}
	record := facade.Extract(&ScanSource{Body: res.Body})
	return domain.ScanResult{Record: record, NativeID: productID}, nil
}

type zigzagPriceExtractor struct{}

func (zigzagPriceExtractor) ExtractPrice(src *ScanSource) (int64, int64, error) {
	original := asInt64(lookupPath(src.Body, "data.product.originalPrice"))
	discounted := asInt64(lookupPath(src.Body, "data.product.salePrice"))
	return original, discounted, nil
}

type zigzagStatusExtractor struct{}

func (zigzagStatusExtractor) ExtractStatus(src *ScanSource) (string, error) {
	return asString(lookupPath(src.Body, "data.product.status")), nil
}

type zigzagMetadataExtractor struct{}

func (zigzagMetadataExtractor) ExtractMetadata(src *ScanSource) (string, string, map[string]any, error) {
	name := asString(lookupPath(src.Body, "data.product.name"))
	thumb := asString(lookupPath(src.Body, "data.product.imageUrl"))
	store := asString(lookupPath(src.Body, "data.product.store.name"))
	meta := map[string]any{}
	if store != "" {
		meta["store"] = store
	}
	return name, thumb, meta, nil
}
