package scanner

import (
	"github.com/sourcegraph/conc"

	"github.com/scanflow/platform/internal/domain"
)

// PriceExtractor produces the original/discounted price facet from a
// platform's raw scan source (spec §4.D "extraction phase").
type PriceExtractor interface {
	ExtractPrice(src *ScanSource) (original, discounted int64, err error)
}

// StatusExtractor produces the native sale-status facet.
type StatusExtractor interface {
	ExtractStatus(src *ScanSource) (nativeStatus string, err error)
}

// MetadataExtractor produces the remaining facets: product name,
// thumbnail URL, and any platform-specific metadata to carry through in
// ProductRecord.Meta.
type MetadataExtractor interface {
	ExtractMetadata(src *ScanSource) (name, thumbnailURL string, meta map[string]any, err error)
}

// ScanSource is the raw material handed to a platform's extractors: the
// HTTP/GraphQL response body, or the navigated page's HTML, whichever the
// strategy produced.
type ScanSource struct {
	Body []byte
	HTML string
}

// ExtractorFacade runs the three specialized extractors concurrently and
// merges their output into one domain.ProductRecord, per spec §4.D. A
// failing extractor degrades its facet to a zero value and records a note
// under Meta["extraction_warnings"] rather than failing the whole scan
// (SPEC_FULL §4.D).
type ExtractorFacade struct {
	Price    PriceExtractor
	Status   StatusExtractor
	Metadata MetadataExtractor
	Platform domain.Platform
}

func (f *ExtractorFacade) Extract(src *ScanSource) *domain.ProductRecord {
	var (
		originalPrice, discountedPrice int64
		nativeStatus                   string
		name, thumbnailURL             string
		meta                           map[string]any
		priceWarn, statusWarn, metaWarn string
	)

	// Each goroutine owns a disjoint set of result variables, so no mutex
	// is needed: they are only read after wg.Wait() joins all three.
	var wg conc.WaitGroup
	wg.Go(func() {
		op, dp, err := f.Price.ExtractPrice(src)
		if err != nil {
			priceWarn = "price: " + err.Error()
			return
		}
		originalPrice, discountedPrice = op, dp
	})
	wg.Go(func() {
		s, err := f.Status.ExtractStatus(src)
		if err != nil {
			statusWarn = "status: " + err.Error()
			return
		}
		nativeStatus = s
	})
	wg.Go(func() {
		n, t, m, err := f.Metadata.ExtractMetadata(src)
		if err != nil {
			metaWarn = "metadata: " + err.Error()
			return
		}
		name, thumbnailURL, meta = n, t, m
	})
	wg.Wait()

	if meta == nil {
		meta = map[string]any{}
	}
	var warnings []string
	for _, w := range []string{priceWarn, statusWarn, metaWarn} {
		if w != "" {
			warnings = append(warnings, w)
		}
	}
	if len(warnings) > 0 {
		meta["extraction_warnings"] = warnings
	}

	return &domain.ProductRecord{
		ProductName:     name,
		ThumbnailURL:    thumbnailURL,
		OriginalPrice:   originalPrice,
		DiscountedPrice: discountedPrice,
		SaleStatus:      normalizeFor(f.Platform, nativeStatus),
		Meta:            meta,
	}
}
