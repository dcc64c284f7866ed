// Package enrich augments base company records with detail-page fields using
// a bounded worker pool. Output order always matches input order regardless
// of which worker finishes first.
package enrich

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scrapekit/saasdir/internal/events"
	"github.com/scrapekit/saasdir/internal/extract"
	"github.com/scrapekit/saasdir/internal/scrape"
	"github.com/scrapekit/saasdir/internal/telemetry"
)

// Config parameterizes the enrichment pool.
type Config struct {
	Workers    int
	MaxRetries int
}

// Enricher runs detail-page fetches through the shared Pacer.
type Enricher struct {
	cfg      Config
	fetcher  scrape.Fetcher
	pacer    scrape.Pacer
	recorder events.Recorder
	clock    scrape.Clock
	logger   *zap.Logger
}

type delaySnapshotter interface {
	Snapshot() (time.Duration, int)
}

// New constructs an Enricher. Zero workers falls back to the default of 4.
func New(cfg Config, fetcher scrape.Fetcher, pacer scrape.Pacer, recorder events.Recorder, clock scrape.Clock, logger *zap.Logger) *Enricher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		cfg:      cfg,
		fetcher:  fetcher,
		pacer:    pacer,
		recorder: recorder,
		clock:    clock,
		logger:   logger,
	}
}

type job struct {
	idx    int
	record scrape.CompanyRecord
}

// Enrich processes every record and returns a slice of equal length in the
// same order. A record whose detail fetch ultimately fails, or that has no
// detail URL, passes through unchanged.
func (e *Enricher) Enrich(ctx context.Context, records []scrape.CompanyRecord) ([]scrape.CompanyRecord, error) {
	out := make([]scrape.CompanyRecord, len(records))
	if len(records) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan job)
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	workers := e.cfg.Workers
	if workers > len(records) {
		workers = len(records)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				telemetry.IncActiveWorkers()
				enriched, err := e.enrichOne(ctx, j.record)
				telemetry.DecActiveWorkers()
				if err != nil {
					fail(err)
					return
				}
				// Results land at their input index, keeping order stable.
				out[j.idx] = enriched
			}
		}()
	}

feed:
	for i, record := range records {
		select {
		case jobs <- job{idx: i, record: record}:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	telemetry.ObserveRecords("enriched", len(out))
	return out, nil
}

// enrichOne drives one record through the fetch/retry loop. Exhausted retries
// return the base record untouched.
func (e *Enricher) enrichOne(ctx context.Context, record scrape.CompanyRecord) (scrape.CompanyRecord, error) {
	if record.DetailURL == nil || *record.DetailURL == "" {
		return record, nil
	}
	url := *record.DetailURL

	maxAttempts := e.cfg.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := e.pacer.BeforeRequest(ctx); err != nil {
			return record, err
		}

		fetched, err := e.fetcher.Fetch(ctx, url)
		if err != nil {
			return record, err
		}
		e.pacer.Report(fetched.Outcome)
		telemetry.ObserveFetch("detail", string(fetched.Outcome))

		switch fetched.Outcome {
		case scrape.OutcomeSuccess:
			profile, err := extract.ExtractProfile(fetched.Body)
			if err != nil {
				e.logger.Warn("profile parse failed", zap.String("url", url), zap.Error(err))
				continue
			}
			return scrape.Merge(record, profile), nil

		case scrape.OutcomeNotFound:
			e.logger.Debug("detail page not found", zap.String("url", url))
			return record, nil

		case scrape.OutcomeBlocked:
			e.recordBlock(fetched, attempt)

		case scrape.OutcomeTimeout:
			e.logger.Warn("detail fetch timed out",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
			)
		}
	}

	e.logger.Warn("detail enrichment abandoned after retries",
		zap.String("url", url),
		zap.Int("attempts", maxAttempts),
	)
	return record, nil
}

func (e *Enricher) recordBlock(fetched scrape.FetchResult, attempt int) {
	if e.recorder == nil {
		return
	}
	var backoff time.Duration
	if snap, ok := e.pacer.(delaySnapshotter); ok {
		backoff, _ = snap.Snapshot()
	}
	e.recorder.Record(events.Event{
		Time:       e.clock.Now(),
		Type:       fetched.BlockReason,
		URL:        fetched.URL,
		RetryCount: attempt,
		Backoff:    backoff,
	})
}
