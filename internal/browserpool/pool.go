// Package browserpool implements the Browser Resource Pool (component C):
// a fixed-size set of headless browser instances reused across scan jobs,
// with stealth-patched per-job page contexts, health checks on checkout,
// and periodic rotation to bound memory growth from long-lived Chrome
// processes (spec §4.C).
package browserpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"github.com/scanflow/platform/internal/platform/logger"
)

// instance wraps one launched browser and tracks how many scans it has
// served since its last rotation, per spec §4.C "rotate after N scans to
// bound per-process memory growth".
type instance struct {
	browser   *rod.Browser
	launcher  *launcher.Launcher
	scanCount int
	inUse     bool
}

// Pool is a fixed-size browser pool. Checkout uses a single short-lived
// mutex to pick and mark a free instance; the (possibly slow) navigation
// and extraction work that follows happens outside the lock, so contention
// is bounded by pool size, not job duration.
type Pool struct {
	mu               sync.Mutex
	instances        []*instance
	log              *logger.Logger
	rotationInterval int
	headless         bool
}

// Option configures Pool construction.
type Option func(*Pool)

func WithRotationInterval(n int) Option {
	return func(p *Pool) { p.rotationInterval = n }
}

func WithHeadless(headless bool) Option {
	return func(p *Pool) { p.headless = headless }
}

// New launches size browser instances up front (spec §4.C "initialize(N)").
func New(size int, log *logger.Logger, opts ...Option) (*Pool, error) {
	p := &Pool{
		log:              log.With("component", "BrowserPool"),
		rotationInterval: 200,
		headless:         true,
	}
	for _, opt := range opts {
		opt(p)
	}
	for i := 0; i < size; i++ {
		inst, err := p.launch()
		if err != nil {
			p.closeAll()
			return nil, fmt.Errorf("browserpool: launch instance %d: %w", i, err)
		}
		p.instances = append(p.instances, inst)
	}
	return p, nil
}

func (p *Pool) launch() (*instance, error) {
	l := launcher.New().Headless(p.headless).Set("disable-gpu")
	url, err := l.Launch()
	if err != nil {
		return nil, err
	}
	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &instance{browser: browser, launcher: l}, nil
}

// Acquire returns a free instance, relaunching it first if a health check
// shows its underlying Chrome process has disconnected (spec §4.C "health
// checks on checkout"). Blocks via short retries rather than a channel so
// the caller's ctx cancellation is respected promptly.
func (p *Pool) Acquire(ctx context.Context) (*rod.Browser, int, error) {
	for {
		idx, inst, ok := p.tryClaim()
		if ok {
			if !p.healthy(inst) {
				p.log.Warn("browser instance unhealthy, relaunching", "index", idx)
				fresh, err := p.launch()
				if err != nil {
					p.mu.Lock()
					inst.inUse = false
					p.mu.Unlock()
					return nil, 0, fmt.Errorf("browserpool: relaunch after unhealthy instance: %w", err)
				}
				_ = inst.browser.Close()
				p.mu.Lock()
				p.instances[idx] = fresh
				fresh.inUse = true
				p.mu.Unlock()
				inst = fresh
			}
			return inst.browser, idx, nil
		}
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
}

func (p *Pool) tryClaim() (int, *instance, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for idx, inst := range p.instances {
		if !inst.inUse {
			inst.inUse = true
			return idx, inst, true
		}
	}
	return 0, nil, false
}

func (p *Pool) healthy(inst *instance) bool {
	if inst.browser == nil {
		return false
	}
	_, err := inst.browser.Pages()
	return err == nil
}

// Release returns the instance at idx to the pool, rotating it (relaunch
// under a fresh Chrome process) once it has served rotationInterval scans.
func (p *Pool) Release(idx int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx < 0 || idx >= len(p.instances) {
		return
	}
	inst := p.instances[idx]
	inst.scanCount++
	inst.inUse = false

	if p.rotationInterval > 0 && inst.scanCount >= p.rotationInterval {
		p.log.Info("rotating browser instance", "index", idx, "scans_served", inst.scanCount)
		go func(old *instance) { _ = old.browser.Close() }(inst)
		fresh, err := p.launch()
		if err != nil {
			p.log.Error("rotation relaunch failed, keeping stale instance", "index", idx, "error", err)
			inst.scanCount = 0
			return
		}
		p.instances[idx] = fresh
	}
}

// CreateContext opens a fresh incognito browser context with stealth
// patches applied, isolating cookies/storage per job (spec §4.C "context
// isolation per job"). The caller must close the returned page when done.
func (p *Pool) CreateContext(b *rod.Browser) (*rod.Page, error) {
	incognito, err := b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("browserpool: incognito context: %w", err)
	}
	page, err := stealth.Page(incognito)
	if err != nil {
		return nil, fmt.Errorf("browserpool: stealth page: %w", err)
	}
	return page, nil
}

// Cleanup closes every browser instance. Call once at process shutdown.
func (p *Pool) Cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeAll()
}

func (p *Pool) closeAll() {
	for _, inst := range p.instances {
		if inst.browser != nil {
			_ = inst.browser.Close()
		}
	}
	p.instances = nil
}

// Size reports the pool's configured instance count.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.instances)
}
