// Package collyfetcher implements scrape.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/scrapekit/saasdir/internal/blockdetect"
	"github.com/scrapekit/saasdir/internal/scrape"
)

// Config controls collector behavior.
type Config struct {
	UserAgent       string
	RotateUserAgent bool
	Timeout         time.Duration
}

// Fetcher implements scrape.Fetcher using the Colly collector. One cookie jar
// is shared across all calls so the session persists for the whole run.
type Fetcher struct {
	cfg           Config
	jar           http.CookieJar
	baseCollector *colly.Collector
	detector      *blockdetect.Heuristic
	logger        *zap.Logger
}

// New builds a Fetcher. Failure here is unrecoverable and aborts the run.
func New(cfg Config, detector *blockdetect.Heuristic, logger *zap.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if detector == nil {
		detector = blockdetect.NewHeuristic(0)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	// Retries hit the same URL again, so revisits must be allowed.
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	c.SetCookieJar(jar)

	return &Fetcher{
		cfg:           cfg,
		jar:           jar,
		baseCollector: c,
		detector:      detector,
		logger:        logger,
	}, nil
}

// Fetch executes a single HTTP GET and classifies the result. Transport
// failures never escape as errors; they become the appropriate outcome. The
// error return fires only for context cancellation.
func (f *Fetcher) Fetch(ctx context.Context, url string) (scrape.FetchResult, error) {
	var (
		response *colly.Response
		fetchErr error
		errResp  *colly.Response
	)
	start := time.Now()

	collector := f.buildCollector()
	collector.OnResponse(func(r *colly.Response) {
		response = r
	})
	collector.OnError(func(r *colly.Response, err error) {
		errResp = r
		fetchErr = err
	})

	if err := f.runCollector(ctx, collector, url); err != nil {
		return scrape.FetchResult{}, err
	}

	result := f.classify(url, response, errResp, fetchErr)
	result.Duration = time.Since(start)
	return result, nil
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.SetCookieJar(f.jar)
	collector.UserAgent = f.userAgent()
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.5")
		r.Headers.Set("Upgrade-Insecure-Requests", "1")
	})
	return collector
}

func (f *Fetcher) userAgent() string {
	if f.cfg.RotateUserAgent {
		return randomUserAgent()
	}
	return f.cfg.UserAgent
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan struct{})
	go func() {
		// Visit errors surface through the OnError hook; classification
		// happens after the collector finishes.
		_ = collector.Visit(url)
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (f *Fetcher) classify(url string, response, errResp *colly.Response, fetchErr error) scrape.FetchResult {
	if response != nil {
		return f.classifyBody(url, response)
	}

	status := 0
	if errResp != nil {
		status = errResp.StatusCode
	}
	switch {
	case status == http.StatusTooManyRequests:
		return scrape.FetchResult{URL: url, Outcome: scrape.OutcomeBlocked, StatusCode: status, BlockReason: "http_429"}
	case status == http.StatusForbidden:
		return scrape.FetchResult{URL: url, Outcome: scrape.OutcomeBlocked, StatusCode: status, BlockReason: "http_403"}
	case status == http.StatusNotFound:
		return scrape.FetchResult{URL: url, Outcome: scrape.OutcomeNotFound, StatusCode: status}
	case isTimeout(fetchErr):
		return scrape.FetchResult{URL: url, Outcome: scrape.OutcomeTimeout, StatusCode: status}
	case status >= 500:
		// Upstream faults get the timeout treatment: retryable, not a block.
		return scrape.FetchResult{URL: url, Outcome: scrape.OutcomeTimeout, StatusCode: status}
	default:
		f.logger.Debug("unclassified fetch failure treated as timeout",
			zap.String("url", url),
			zap.Int("status", status),
			zap.Error(fetchErr),
		)
		return scrape.FetchResult{URL: url, Outcome: scrape.OutcomeTimeout, StatusCode: status}
	}
}

func (f *Fetcher) classifyBody(url string, response *colly.Response) scrape.FetchResult {
	body := append([]byte(nil), response.Body...)
	if len(body) == 0 {
		return scrape.FetchResult{URL: url, Outcome: scrape.OutcomeNotFound, StatusCode: response.StatusCode}
	}
	if reason, blocked := f.detector.Detect(body); blocked {
		return scrape.FetchResult{
			URL:         url,
			Outcome:     scrape.OutcomeBlocked,
			StatusCode:  response.StatusCode,
			BlockReason: reason,
		}
	}
	return scrape.FetchResult{
		URL:        url,
		Outcome:    scrape.OutcomeSuccess,
		StatusCode: response.StatusCode,
		Body:       body,
	}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return strings.Contains(err.Error(), "Client.Timeout")
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
