package strategy

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/scanflow/platform/internal/domain"
)

// BrowserRunner executes a browser spec's navigation phase: an ordered
// list of steps templated with the product id, against a page the caller
// has already acquired from the browser pool (spec §4.D "browser
// strategies require a browser instance passed in by the engine").
type BrowserRunner struct{}

func NewBrowserRunner() *BrowserRunner { return &BrowserRunner{} }

// Run navigates page through spec.Steps and returns the page's final HTML
// plus its landed URL (so the caller can detect a NOT_FOUND redirect).
func (b *BrowserRunner) Run(page *rod.Page, spec domain.StrategySpec, productID string) (html string, landedURL string, err error) {
	timeout := time.Duration(spec.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	page = page.Timeout(timeout)

	for _, step := range spec.Steps {
		value := templateURL(step.Value, productID)
		switch step.Op {
		case "navigate":
			if err := page.Navigate(templateURL(value, productID)); err != nil {
				return "", "", fmt.Errorf("strategy/browser: navigate: %w", err)
			}
			if err := page.WaitStable(300 * time.Millisecond); err != nil {
				return "", "", fmt.Errorf("strategy/browser: wait stable: %w", err)
			}
		case "waitForSelector":
			stepPage := page
			if step.TimeoutMS > 0 {
				stepPage = page.Timeout(time.Duration(step.TimeoutMS) * time.Millisecond)
			}
			if _, err := stepPage.Element(step.Selector); err != nil {
				return "", "", fmt.Errorf("strategy/browser: waitForSelector %s: %w", step.Selector, err)
			}
		case "wait":
			d := time.Duration(step.TimeoutMS) * time.Millisecond
			if d <= 0 {
				d = 500 * time.Millisecond
			}
			time.Sleep(d)
		case "click":
			el, err := page.Element(step.Selector)
			if err != nil {
				return "", "", fmt.Errorf("strategy/browser: click target %s: %w", step.Selector, err)
			}
			if err := el.Click("left", 1); err != nil {
				return "", "", fmt.Errorf("strategy/browser: click %s: %w", step.Selector, err)
			}
		case "type":
			el, err := page.Element(step.Selector)
			if err != nil {
				return "", "", fmt.Errorf("strategy/browser: type target %s: %w", step.Selector, err)
			}
			if err := el.Input(value); err != nil {
				return "", "", fmt.Errorf("strategy/browser: type into %s: %w", step.Selector, err)
			}
		case "evaluate":
			if _, err := page.Eval(value); err != nil {
				return "", "", fmt.Errorf("strategy/browser: evaluate: %w", err)
			}
		default:
			return "", "", fmt.Errorf("strategy/browser: unknown nav step %q", step.Op)
		}
	}

	info, err := page.Info()
	if err != nil {
		return "", "", fmt.Errorf("strategy/browser: page info: %w", err)
	}
	outerHTML, err := page.HTML()
	if err != nil {
		return "", "", fmt.Errorf("strategy/browser: page html: %w", err)
	}
	return outerHTML, info.URL, nil
}

// RedirectedAwayFrom reports whether landedURL no longer contains
// pathFragment, the generic form of Ably's "redirected away from
// /goods/<id>" NOT_FOUND signal (spec §4.D).
func RedirectedAwayFrom(landedURL, pathFragment string) bool {
	return !strings.Contains(landedURL, pathFragment)
}
