// Package headless contains a fetcher that renders pages in headless Chrome.
package headless

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/scrapekit/saasdir/internal/blockdetect"
	"github.com/scrapekit/saasdir/internal/scrape"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	SimulateBehavior  bool
}

// Fetcher implements scrape.Fetcher using chromedp and headless Chrome.
// Listing sites that hydrate rows via JavaScript need the rendered DOM; the
// plain HTTP fetcher only sees the shell.
type Fetcher struct {
	cfg         Config
	detector    *blockdetect.Heuristic
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates a rendered fetcher backed by chromedp.
func New(cfg Config, detector *blockdetect.Heuristic) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 25 * time.Second
	}
	if detector == nil {
		detector = blockdetect.NewHeuristic(0)
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		detector:    detector,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context, releasing the browser.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch navigates with a headless browser and classifies the rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, url string) (scrape.FetchResult, error) {
	if err := f.acquire(ctx); err != nil {
		return scrape.FetchResult{}, err
	}
	defer f.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavigationTimeout)
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	html, err := f.runHeadless(taskCtx, url)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return scrape.FetchResult{}, fmt.Errorf("rendered fetch canceled: %w", ctx.Err())
		}
		// Navigation deadline and render failures are retryable.
		return scrape.FetchResult{URL: url, Outcome: scrape.OutcomeTimeout, Duration: elapsed}, nil
	}

	status := meta.status()
	result := f.classify(url, status, []byte(html))
	result.Duration = elapsed
	return result, nil
}

func (f *Fetcher) classify(url string, status int, body []byte) scrape.FetchResult {
	switch status {
	case http.StatusTooManyRequests:
		return scrape.FetchResult{URL: url, Outcome: scrape.OutcomeBlocked, StatusCode: status, BlockReason: "http_429"}
	case http.StatusForbidden:
		return scrape.FetchResult{URL: url, Outcome: scrape.OutcomeBlocked, StatusCode: status, BlockReason: "http_403"}
	case http.StatusNotFound:
		return scrape.FetchResult{URL: url, Outcome: scrape.OutcomeNotFound, StatusCode: status}
	}
	if len(body) == 0 {
		return scrape.FetchResult{URL: url, Outcome: scrape.OutcomeNotFound, StatusCode: status}
	}
	if reason, blocked := f.detector.Detect(body); blocked {
		return scrape.FetchResult{URL: url, Outcome: scrape.OutcomeBlocked, StatusCode: status, BlockReason: reason}
	}
	return scrape.FetchResult{URL: url, Outcome: scrape.OutcomeSuccess, StatusCode: status, Body: body}
}

func (f *Fetcher) runHeadless(ctx context.Context, url string) (string, error) {
	var html string
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
	}
	if f.cfg.SimulateBehavior {
		actions = append(actions, simulateBehaviorActions()...)
	}
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

// simulateBehaviorActions scrolls and fires synthetic mouseover events so the
// session looks less like a bot to fingerprinting scripts.
func simulateBehaviorActions() []chromedp.Action {
	scroll := 100 + rand.IntN(200)
	x := 100 + rand.IntN(700)
	y := 100 + rand.IntN(500)
	return []chromedp.Action{
		chromedp.Evaluate(fmt.Sprintf(`window.scrollBy(0, %d);`, scroll), nil),
		chromedp.Sleep(time.Duration(200+rand.IntN(400)) * time.Millisecond),
		chromedp.Evaluate(fmt.Sprintf(
			`(() => { const el = document.elementFromPoint(%d, %d); if (el) { el.dispatchEvent(new MouseEvent('mouseover', {bubbles: true})); } })();`,
			x, y,
		), nil),
		chromedp.Sleep(time.Duration(100+rand.IntN(300)) * time.Millisecond),
	}
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("render slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

type responseMeta struct {
	mu     sync.RWMutex
	code   int
	docURL string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.code = int(resp.Response.Status)
	m.docURL = resp.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) status() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.code == 0 {
		return http.StatusOK
	}
	return m.code
}
