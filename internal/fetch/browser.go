package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

// BrowserPool manages a pool of headless Chrome contexts with round-robin
// allocation. Fetchers open a fresh tab from a pooled browser per fetch so
// pages never leak state between jobs.
type BrowserPool struct {
	browsers         []context.Context
	browserCancels   []context.CancelFunc
	allocatorCancels []context.CancelFunc
	mu               sync.Mutex
	currentIndex     int
	initialized      bool

	config  BrowserConfig
	limiter *rate.Limiter
	logger  arbor.ILogger
}

// BrowserConfig holds configuration for the browser pool
type BrowserConfig struct {
	PoolSize       int
	Headless       bool
	UserAgent      string
	RequestTimeout time.Duration
	PageDelay      time.Duration
}

func NewBrowserPool(config BrowserConfig, logger arbor.ILogger) *BrowserPool {
	if config.PoolSize <= 0 {
		config.PoolSize = 1
	}
	if config.UserAgent == "" {
		config.UserAgent = "Subhasta-Scraper/1.0"
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 60 * time.Second
	}
	if config.PageDelay <= 0 {
		config.PageDelay = time.Second
	}

	return &BrowserPool{
		config:  config,
		limiter: rate.NewLimiter(rate.Every(config.PageDelay), 1),
		logger:  logger,
	}
}

// Init launches the browser instances. Instances that fail to start are
// skipped; at least one must come up.
func (p *BrowserPool) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return fmt.Errorf("browser pool already initialized")
	}

	p.logger.Info().
		Int("pool_size", p.config.PoolSize).
		Bool("headless", p.config.Headless).
		Str("user_agent", p.config.UserAgent).
		Msg("Initializing browser pool")

	var lastErr error
	for i := 0; i < p.config.PoolSize; i++ {
		if err := p.createInstance(i); err != nil {
			lastErr = err
			p.logger.Warn().Err(err).Int("browser_index", i).Msg("Failed to create browser instance")
		}
	}

	if len(p.browsers) == 0 {
		p.cleanupInstances()
		return fmt.Errorf("failed to create any browser instances: %w", lastErr)
	}

	p.initialized = true
	p.logger.Info().
		Int("browsers_created", len(p.browsers)).
		Int("requested", p.config.PoolSize).
		Msg("Browser pool initialized")

	return nil
}

func (p *BrowserPool) createInstance(index int) error {
	startTime := time.Now()

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(p.config.UserAgent),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	testCtx, testCancel := context.WithTimeout(browserCtx, p.config.RequestTimeout)
	defer testCancel()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return fmt.Errorf("browser instance failed startup test: %w", err)
	}

	p.browsers = append(p.browsers, browserCtx)
	p.browserCancels = append(p.browserCancels, browserCancel)
	p.allocatorCancels = append(p.allocatorCancels, allocatorCancel)

	p.logger.Debug().
		Int("browser_index", index).
		Dur("startup_time", time.Since(startTime)).
		Msg("Browser instance created")

	return nil
}

// Get returns a pooled browser context using round-robin allocation,
// plus a release function.
func (p *BrowserPool) Get() (context.Context, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized || len(p.browsers) == 0 {
		return nil, nil, fmt.Errorf("browser pool not initialized")
	}

	index := p.currentIndex % len(p.browsers)
	p.currentIndex = (p.currentIndex + 1) % len(p.browsers)

	release := func() {
		p.logger.Debug().Int("browser_index", index).Msg("Browser context released")
	}
	return p.browsers[index], release, nil
}

// Wait blocks until the shared page-delay limiter permits another
// navigation. Fetchers with a per-job delay layer their own limiter on top.
func (p *BrowserPool) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// RequestTimeout is the per-navigation deadline fetchers should apply
func (p *BrowserPool) RequestTimeout() time.Duration {
	return p.config.RequestTimeout
}

// Shutdown tears down all browser instances
func (p *BrowserPool) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}

	count := len(p.browsers)
	p.logger.Info().Int("browser_count", count).Msg("Shutting down browser pool")

	done := make(chan struct{})
	go func() {
		p.cleanupInstances()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		p.logger.Warn().Int("browser_count", count).Msg("Browser pool shutdown timed out")
	}

	p.initialized = false
	return nil
}

// cleanupInstances must be called with the mutex held
func (p *BrowserPool) cleanupInstances() {
	for _, cancel := range p.browserCancels {
		if cancel != nil {
			cancel()
		}
	}
	for _, cancel := range p.allocatorCancels {
		if cancel != nil {
			cancel()
		}
	}
	p.browsers = nil
	p.browserCancels = nil
	p.allocatorCancels = nil
	p.currentIndex = 0
}

// newTab opens a fresh tab from a pooled browser, bounded by both the
// pool's request timeout and the caller's deadline.
func (p *BrowserPool) newTab(ctx context.Context) (context.Context, context.CancelFunc, error) {
	browserCtx, release, err := p.Get()
	if err != nil {
		return nil, nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)

	timeout := p.config.RequestTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	timedCtx, timedCancel := context.WithTimeout(tabCtx, timeout)

	stop := context.AfterFunc(ctx, timedCancel)

	cancel := func() {
		stop()
		timedCancel()
		tabCancel()
		release()
	}
	return timedCtx, cancel, nil
}
