// Package crawler walks the paginated listing sequentially and extracts base
// company records. Pages are independent units of work: a page that exhausts
// its retries is recorded as failed and skipped, never fatal to the run.
package crawler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scrapekit/saasdir/internal/events"
	"github.com/scrapekit/saasdir/internal/extract"
	"github.com/scrapekit/saasdir/internal/scrape"
	"github.com/scrapekit/saasdir/internal/telemetry"
)

// Config parameterizes the crawler.
type Config struct {
	BaseURL    string
	MaxRetries int
}

// Crawler fetches listing pages in ascending order through a shared Pacer.
type Crawler struct {
	cfg      Config
	fetcher  scrape.Fetcher
	pacer    scrape.Pacer
	recorder events.Recorder
	clock    scrape.Clock
	logger   *zap.Logger
}

// delaySnapshotter is implemented by pacers that expose their current state,
// so block events can carry the mandated backoff duration.
type delaySnapshotter interface {
	Snapshot() (time.Duration, int)
}

// New constructs a Crawler. A nil recorder drops block events.
func New(cfg Config, fetcher scrape.Fetcher, pacer scrape.Pacer, recorder events.Recorder, clock scrape.Clock, logger *zap.Logger) *Crawler {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		cfg:      cfg,
		fetcher:  fetcher,
		pacer:    pacer,
		recorder: recorder,
		clock:    clock,
		logger:   logger,
	}
}

// Crawl fetches pages start through end inclusive and returns the extracted
// records in page order. The only error it returns is context cancellation.
func (c *Crawler) Crawl(ctx context.Context, start, end int) (scrape.CrawlResult, error) {
	var result scrape.CrawlResult
	for page := start; page <= end; page++ {
		records, failure, err := c.crawlPage(ctx, page)
		if err != nil {
			return result, err
		}
		if failure != nil {
			result.Failed = append(result.Failed, *failure)
			continue
		}
		result.Records = append(result.Records, records...)
	}
	telemetry.ObserveRecords("base", len(result.Records))
	return result, nil
}

// crawlPage drives one page through the fetch/retry state machine. The
// returned failure is non-nil when the page was skipped.
func (c *Crawler) crawlPage(ctx context.Context, page int) ([]scrape.CompanyRecord, *scrape.PageFailure, error) {
	url := c.PageURL(page)
	var lastReason string

	// MaxRetries bounds the total attempt count for the page.
	maxAttempts := c.cfg.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.pacer.BeforeRequest(ctx); err != nil {
			return nil, nil, err
		}

		fetched, err := c.fetcher.Fetch(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		c.pacer.Report(fetched.Outcome)
		telemetry.ObserveFetch("listing", string(fetched.Outcome))

		switch fetched.Outcome {
		case scrape.OutcomeSuccess:
			records, err := extract.ExtractCompanies(fetched.Body, c.cfg.BaseURL)
			if err != nil {
				lastReason = err.Error()
				continue
			}
			c.logger.Info("listing page extracted",
				zap.Int("page", page),
				zap.Int("records", len(records)),
				zap.Int("attempt", attempt+1),
			)
			return records, nil, nil

		case scrape.OutcomeNotFound:
			// The site answered; retrying an absent page is pointless.
			c.logger.Warn("listing page not found", zap.Int("page", page), zap.String("url", url))
			return nil, &scrape.PageFailure{Page: page, Attempts: attempt + 1, Reason: "not_found"}, nil

		case scrape.OutcomeBlocked:
			lastReason = fmt.Sprintf("blocked:%s", fetched.BlockReason)
			c.recordBlock(fetched, attempt)

		case scrape.OutcomeTimeout:
			lastReason = "timeout"
			c.logger.Warn("listing fetch timed out",
				zap.Int("page", page),
				zap.Int("attempt", attempt+1),
			)
		}
	}

	c.logger.Warn("listing page skipped after retries",
		zap.Int("page", page),
		zap.Int("attempts", maxAttempts),
		zap.String("reason", lastReason),
	)
	return nil, &scrape.PageFailure{Page: page, Attempts: maxAttempts, Reason: lastReason}, nil
}

func (c *Crawler) recordBlock(fetched scrape.FetchResult, attempt int) {
	if c.recorder == nil {
		return
	}
	var backoff time.Duration
	if snap, ok := c.pacer.(delaySnapshotter); ok {
		backoff, _ = snap.Snapshot()
	}
	c.recorder.Record(events.Event{
		Time:       c.clock.Now(),
		Type:       fetched.BlockReason,
		URL:        fetched.URL,
		RetryCount: attempt,
		Backoff:    backoff,
	})
}

// PageURL builds the listing URL for a 1-based page number. Page 1 is the
// bare base URL; later pages use the page query parameter.
func (c *Crawler) PageURL(page int) string {
	if page <= 1 {
		return c.cfg.BaseURL
	}
	return fmt.Sprintf("%s?page=%d", c.cfg.BaseURL, page)
}
