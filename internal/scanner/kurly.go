package scanner

import (
	"context"
	"fmt"
	"regexp"

	"github.com/go-rod/rod"

	"github.com/scanflow/platform/internal/domain"
	"github.com/scanflow/platform/internal/scanner/strategy"
)

var kurlyIDPattern = regexp.MustCompile(`/goods/(\d+)`)

type kurlyScanner struct {
	http *strategy.HTTPClient
}

func newKurlyScanner(h *strategy.HTTPClient) *kurlyScanner {
	return &kurlyScanner{http: h}
}

func (s *kurlyScanner) Platform() domain.Platform { return domain.PlatformKurly }

func (s *kurlyScanner) ExtractProductID(url string) (string, bool) {
	m := kurlyIDPattern.FindStringSubmatch(url)
	if len(m) != 2 {
		return "", false
	}
	return m[1], true
}

// Scan fetches Kurly's product endpoint. Kurly never 404s its product API
// for a deleted item; instead both name and price come back blank, which
// this scanner treats as the empty-extract NOT_FOUND sentinel (spec §4.D).
func (s *kurlyScanner) Scan(ctx context.Context, cfg domain.PlatformConfig, productID string, _ *rod.Page) (domain.ScanResult, error) {
	spec, ok := cfg.PrimaryStrategy()
	if !ok {
		return domain.ScanResult{}, fmt.Errorf("kurly: no strategy configured")
	}

	res, err := s.http.Do(ctx, cfg, spec, productID)
	if err != nil {
		if te, ok := err.(*domain.TaxonomyError); ok {
			return domain.ScanResult{}, te
		}
		return domain.ScanResult{}, domain.NewTaxonomyError(domain.TransientUpstream, "", err)
	}

	name := asString(lookupPath(res.Body, "data.name"))
	priceRaw := lookupPath(res.Body, "data.price.final")
	if name == "" && priceRaw == nil {
		return domain.ScanResult{IsNotFound: true, NativeID: productID}, nil
	}

	facade := &ExtractorFacade{
		Price:    kurlyPriceExtractor{},
		Status:   kurlyStatusExtractor{},
		Metadata: kurlyMetadataExtractor{},
		Platform: domain.PlatformKurly,
	}
	record := facade.Extract(&ScanSource{Body: res.Body})
	return domain.ScanResult{Record: record, NativeID: productID}, nil
}

type kurlyPriceExtractor struct{}

func (kurlyPriceExtractor) ExtractPrice(src *ScanSource) (int64, int64, error) {
	original := asInt64(lookupPath(src.Body, "data.price.original"))
	discounted := asInt64(lookupPath(src.Body, "data.price.final"))
	return original, discounted, nil
}

type kurlyStatusExtractor struct{}

func (kurlyStatusExtractor) ExtractStatus(src *ScanSource) (string, error) {
	return asString(lookupPath(src.Body, "data.saleStatus")), nil
}

type kurlyMetadataExtractor struct{}

func (kurlyMetadataExtractor) ExtractMetadata(src *ScanSource) (string, string, map[string]any, error) {
	name := asString(lookupPath(src.Body, "data.name"))
	thumb := asString(lookupPath(src.Body, "data.thumbnailUrl"))
	return name, thumb, map[string]any{}, nil
}
