package scanner

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"

	"github.com/scanflow/platform/internal/domain"
	"github.com/scanflow/platform/internal/scanner/strategy"
)

var oliveyoungIDPattern = regexp.MustCompile(`goodsNo=([A-Za-z0-9]+)`)

const oliveyoungDeletedPlaceholder = "deleted product"

type oliveYoungScanner struct {
	http    *strategy.HTTPClient
	browser *strategy.BrowserRunner
}

func newOliveYoungScanner(h *strategy.HTTPClient, b *strategy.BrowserRunner) *oliveYoungScanner {
	return &oliveYoungScanner{http: h, browser: b}
}

func (s *oliveYoungScanner) Platform() domain.Platform { return domain.PlatformOliveYoung }

func (s *oliveYoungScanner) ExtractProductID(url string) (string, bool) {
	m := oliveyoungIDPattern.FindStringSubmatch(url)
	if len(m) != 2 {
		return "", false
	}
	return m[1], true
}

// Scan navigates OliveYoung's product page; a literal "deleted product"
// placeholder anywhere in the rendered DOM is the NOT_FOUND signal (spec
// §4.D).
func (s *oliveYoungScanner) Scan(ctx context.Context, cfg domain.PlatformConfig, productID string, page *rod.Page) (domain.ScanResult, error) {
	if page == nil {
		return domain.ScanResult{}, fmt.Errorf("oliveyoung: browser page required")
	}
	spec, ok := cfg.PrimaryStrategy()
	if !ok {
		return domain.ScanResult{}, fmt.Errorf("oliveyoung: no strategy configured")
	}

	html, _, err := s.browser.Run(page, spec, productID)
	if err != nil {
		return domain.ScanResult{}, domain.NewTaxonomyError(domain.BrowserCrashed, "", err)
	}

	if strings.Contains(strings.ToLower(html), oliveyoungDeletedPlaceholder) {
		return domain.ScanResult{IsNotFound: true, NativeID: productID}, nil
	}

	facade := &ExtractorFacade{
		Price:    oliveYoungPriceExtractor{},
		Status:   oliveYoungStatusExtractor{},
		Metadata: oliveYoungMetadataExtractor{},
		Platform: domain.PlatformOliveYoung,
	}
	record := facade.Extract(&ScanSource{HTML: html})
	return domain.ScanResult{Record: record, NativeID: productID}, nil
}

func parseOliveYoungDoc(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func parseWon(s string) int64 {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if digits == "" {
		return 0
	}
	n, _ := strconv.ParseInt(digits, 10, 64)
	return n
}

type oliveYoungPriceExtractor struct{}

func (oliveYoungPriceExtractor) ExtractPrice(src *ScanSource) (int64, int64, error) {
	doc, err := parseOliveYoungDoc(src.HTML)
	if err != nil {
		return 0, 0, err
	}
	original := parseWon(doc.Find(".price-1 strike").First().Text())
	discounted := parseWon(doc.Find(".price-2 strong").First().Text())
	if discounted == 0 {
		discounted = parseWon(doc.Find(".price-1 strong").First().Text())
	}
	if original == 0 {
		original = discounted
	}
	return original, discounted, nil
}

type oliveYoungStatusExtractor struct{}

func (oliveYoungStatusExtractor) ExtractStatus(src *ScanSource) (string, error) {
	doc, err := parseOliveYoungDoc(src.HTML)
	if err != nil {
		return "", err
	}
	if doc.Find(".icon_soldout").Length() > 0 {
		return "soldout", nil
	}
	return "normal", nil
}

type oliveYoungMetadataExtractor struct{}

func (oliveYoungMetadataExtractor) ExtractMetadata(src *ScanSource) (string, string, map[string]any, error) {
	doc, err := parseOliveYoungDoc(src.HTML)
	if err != nil {
		return "", "", nil, err
	}
	name := strings.TrimSpace(doc.Find(".prd_name").First().Text())
	thumb, _ := doc.Find(".prd_img img").First().Attr("src")
	brand := strings.TrimSpace(doc.Find(".prd_brand").First().Text())
	meta := map[string]any{}
	if brand != "" {
		meta["brand"] = brand
	}
	return name, thumb, meta, nil
}
