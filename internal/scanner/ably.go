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

var ablyIDPattern = regexp.MustCompile(`/goods/(\d+)`)

type ablyScanner struct {
	browser *strategy.BrowserRunner
}

func newAblyScanner(b *strategy.BrowserRunner) *ablyScanner {
	return &ablyScanner{browser: b}
}

func (s *ablyScanner) Platform() domain.Platform { return domain.PlatformAbly }

func (s *ablyScanner) ExtractProductID(url string) (string, bool) {
	m := ablyIDPattern.FindStringSubmatch(url)
	if len(m) != 2 {
		return "", false
	}
	return m[1], true
}

// Scan navigates Ably's product page; a redirect away from /goods/ after
// navigation is the NOT_FOUND signal (spec §4.D).
func (s *ablyScanner) Scan(ctx context.Context, cfg domain.PlatformConfig, productID string, page *rod.Page) (domain.ScanResult, error) {
	if page == nil {
		return domain.ScanResult{}, fmt.Errorf("ably: browser page required")
	}
	spec, ok := cfg.PrimaryStrategy()
	if !ok {
		return domain.ScanResult{}, fmt.Errorf("ably: no strategy configured")
	}

	html, landedURL, err := s.browser.Run(page, spec, productID)
	if err != nil {
		return domain.ScanResult{}, domain.NewTaxonomyError(domain.BrowserCrashed, "", err)
	}

	if strategy.RedirectedAwayFrom(landedURL, "/goods/") {
		return domain.ScanResult{IsNotFound: true, NativeID: productID}, nil
	}

	facade := &ExtractorFacade{
		Price:    ablyPriceExtractor{},
		Status:   ablyStatusExtractor{},
		Metadata: ablyMetadataExtractor{},
		Platform: domain.PlatformAbly,
	}
	record := facade.Extract(&ScanSource{HTML: html})
	return domain.ScanResult{Record: record, NativeID: productID}, nil
}

func parseAblyDoc(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func ablyParseWon(s string) int64 {
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

type ablyPriceExtractor struct{}

func (ablyPriceExtractor) ExtractPrice(src *ScanSource) (int64, int64, error) {
	doc, err := parseAblyDoc(src.HTML)
	if err != nil {
		return 0, 0, err
	}
	original := ablyParseWon(doc.Find("[data-testid='original-price']").First().Text())
	discounted := ablyParseWon(doc.Find("[data-testid='sale-price']").First().Text())
	if discounted == 0 {
		discounted = original
	}
	return original, discounted, nil
}

type ablyStatusExtractor struct{}

func (ablyStatusExtractor) ExtractStatus(src *ScanSource) (string, error) {
	doc, err := parseAblyDoc(src.HTML)
	if err != nil {
		return "", err
	}
	if doc.Find("[data-testid='sold-out-badge']").Length() > 0 {
		return "sold_out", nil
	}
	return "selling", nil
}

type ablyMetadataExtractor struct{}

func (ablyMetadataExtractor) ExtractMetadata(src *ScanSource) (string, string, map[string]any, error) {
	doc, err := parseAblyDoc(src.HTML)
	if err != nil {
		return "", "", nil, err
	}
	name := strings.TrimSpace(doc.Find("[data-testid='goods-name']").First().Text())
	thumb, _ := doc.Find("[data-testid='goods-thumbnail'] img").First().Attr("src")
	seller := strings.TrimSpace(doc.Find("[data-testid='seller-name']").First().Text())
	meta := map[string]any{}
	if seller != "" {
		meta["seller"] = seller
	}
	return name, thumb, meta, nil
}
