// Package scanner implements the Platform Scanner Registry (component D):
// it maps a platform tag to a Scanner, dispatches to the platform's
// configured strategy (http/graphql/browser), runs the three-way
// extraction facade, and normalizes the result (spec §4.D).
package scanner

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"

	"github.com/scanflow/platform/internal/browserpool"
	"github.com/scanflow/platform/internal/domain"
	"github.com/scanflow/platform/internal/scanner/salestatus"
	"github.com/scanflow/platform/internal/scanner/strategy"
)

func normalizeFor(p domain.Platform, native string) domain.SaleStatus {
	return salestatus.Normalize(p, strings.ToLower(strings.TrimSpace(native)))
}

// Scanner is the per-platform contract spec §4.D requires of every
// platform adapter.
type Scanner interface {
	Platform() domain.Platform
	ExtractProductID(url string) (string, bool)
	Scan(ctx context.Context, cfg domain.PlatformConfig, productID string, page *rod.Page) (domain.ScanResult, error)
}

// Registry maps platform tags to their Scanner implementation and owns
// the shared HTTP/browser strategy executors every scanner delegates to.
type Registry struct {
	scanners map[domain.Platform]Scanner
	http     *strategy.HTTPClient
	browser  *strategy.BrowserRunner
}

func NewRegistry() *Registry {
	r := &Registry{
		scanners: make(map[domain.Platform]Scanner),
		http:     strategy.NewHTTPClient(),
		browser:  strategy.NewBrowserRunner(),
	}
	r.register(newOliveYoungScanner(r.http, r.browser))
	r.register(newHwahaeScanner(r.http))
	r.register(newMusinsaScanner(r.http))
	r.register(newAblyScanner(r.browser))
	r.register(newKurlyScanner(r.http))
	r.register(newZigzagScanner(r.http))
	return r
}

func (r *Registry) register(s Scanner) {
	r.scanners[s.Platform()] = s
}

// Get returns the scanner registered for p, or false if none is.
func (r *Registry) Get(p domain.Platform) (Scanner, bool) {
	s, ok := r.scanners[p]
	return s, ok
}

// Scan dispatches to the platform's scanner, acquiring a browser page from
// pool first when the platform's primary strategy is the browser kind
// (spec §4.D "browser strategies require a browser instance passed in by
// the engine; cleanup of the per-scan page/context is the scanner's
// responsibility").
func (r *Registry) Scan(ctx context.Context, cfg domain.PlatformConfig, productID string, pool *browserpool.Pool) (domain.ScanResult, error) {
	s, ok := r.Get(cfg.ID)
	if !ok {
		return domain.ScanResult{}, fmt.Errorf("scanner: no scanner registered for platform %s", cfg.ID)
	}

	primary, ok := cfg.PrimaryStrategy()
	if !ok {
		return domain.ScanResult{}, fmt.Errorf("scanner: platform %s has no strategies configured", cfg.ID)
	}

	if primary.Type != domain.StrategyBrowser {
		return s.Scan(ctx, cfg, productID, nil)
	}

	browser, idx, err := pool.Acquire(ctx)
	if err != nil {
		return domain.ScanResult{}, domain.NewTaxonomyError(domain.BrowserCrashed, "", err)
	}
	defer pool.Release(idx)

	page, err := pool.CreateContext(browser)
	if err != nil {
		return domain.ScanResult{}, domain.NewTaxonomyError(domain.BrowserCrashed, "", err)
	}
	defer func() { _ = page.Close() }()

	return s.Scan(ctx, cfg, productID, page)
}
