// Package strategy implements the executors for the three scanner strategy
// kinds (http, graphql, browser), per spec §4.D. HTTPClient serves http and
// graphql specs and BrowserRunner serves browser specs; each platform
// scanner calls the executor it needs directly, and this package does no
// dispatch on domain.StrategyKind. HTTP/GraphQL strategies carry their own
// retry policy on 429/5xx and never touch the browser pool; browser
// strategies receive an already-acquired *rod.Page from the caller and do
// not close it (scanner.Registry.Scan closes the page).
package strategy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/scanflow/platform/internal/domain"
)

// HTTPResult is the raw response body plus status, handed to the caller's
// extraction facade for field parsing.
type HTTPResult struct {
	StatusCode int
	Body       []byte
}

// HTTPClient executes domain.StrategyKind == http specs via go-resty, with
// retry-on-429/5xx driven by the strategy's own RetryConfig and a
// per-platform rate limiter honoring PlatformConfig.RateLimit (spec §3
// "workflow-level rate-limit policy").
type HTTPClient struct {
	client *resty.Client

	mu       sync.Mutex
	limiters map[domain.Platform]*rate.Limiter
}

func NewHTTPClient() *HTTPClient {
	return &HTTPClient{client: resty.New(), limiters: make(map[domain.Platform]*rate.Limiter)}
}

// limiterFor lazily builds (and caches) the shared rate.Limiter for p,
// seeded from cfg.RateLimit the first time this platform is seen. A
// RequestsPerSecond of 0 means no configured limit; callers of Wait get an
// always-allow limiter in that case.
func (h *HTTPClient) limiterFor(p domain.Platform, cfg domain.RateLimitPolicy) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok := h.limiters[p]; ok {
		return l
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = float64(rate.Inf)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	l := rate.NewLimiter(rate.Limit(rps), burst)
	h.limiters[p] = l
	return l
}

// Do executes spec against productID, templating URLTemplate the same way
// for both http and graphql specs (the caller decides which).
func (h *HTTPClient) Do(ctx context.Context, cfg domain.PlatformConfig, spec domain.StrategySpec, productID string) (*HTTPResult, error) {
	if err := h.limiterFor(cfg.ID, cfg.RateLimit).Wait(ctx); err != nil {
		return nil, fmt.Errorf("strategy/http: rate limit wait: %w", err)
	}
	url := templateURL(spec.URLTemplate, productID)
	req := h.client.R().SetContext(ctx)
	for k, v := range spec.Headers {
		req.SetHeader(k, v)
	}

	maxAttempts := spec.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	delay := time.Duration(spec.Retry.DelayMS) * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		method := spec.Method
		if method == "" {
			method = "GET"
		}
		resp, err := req.Execute(method, url)
		if err != nil {
			lastErr = fmt.Errorf("strategy/http: request %s: %w", url, err)
		} else if resp.StatusCode() == 429 || resp.StatusCode() >= 500 {
			lastErr = fmt.Errorf("strategy/http: upstream status %d from %s", resp.StatusCode(), url)
		} else {
			return &HTTPResult{StatusCode: resp.StatusCode(), Body: resp.Body()}, nil
		}
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil, domain.NewTaxonomyError(domain.TransientUpstream, "", lastErr)
}

// GraphQL executes a GraphQL spec, templating the product id into the
// query body. The result body is the raw JSON response (data+errors
// envelope); the caller inspects `errors[].extensions.code` for
// NOT_FOUND per platform.
func (h *HTTPClient) GraphQL(ctx context.Context, cfg domain.PlatformConfig, spec domain.StrategySpec, productID string) (*HTTPResult, error) {
	if err := h.limiterFor(cfg.ID, cfg.RateLimit).Wait(ctx); err != nil {
		return nil, fmt.Errorf("strategy/graphql: rate limit wait: %w", err)
	}
	body := map[string]any{"query": templateURL(spec.Query, productID)}
	maxAttempts := spec.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	delay := time.Duration(spec.Retry.DelayMS) * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		req := h.client.R().SetContext(ctx).SetBody(body)
		for k, v := range spec.Headers {
			req.SetHeader(k, v)
		}
		resp, err := req.Post(templateURL(spec.URLTemplate, productID))
		if err != nil {
			lastErr = fmt.Errorf("strategy/graphql: request: %w", err)
		} else if resp.StatusCode() == 429 || resp.StatusCode() >= 500 {
			lastErr = fmt.Errorf("strategy/graphql: upstream status %d", resp.StatusCode())
		} else {
			return &HTTPResult{StatusCode: resp.StatusCode(), Body: resp.Body()}, nil
		}
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil, domain.NewTaxonomyError(domain.TransientUpstream, "", lastErr)
}

func templateURL(tpl, productID string) string {
	return strings.ReplaceAll(tpl, "{id}", productID)
}
