// Package runner orchestrates one end-to-end scrape: crawl the listing,
// persist the base dataset, enrich it, and persist the detailed dataset.
package runner

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scrapekit/saasdir/internal/scrape"
)

// PageCrawler walks listing pages and returns ordered base records.
type PageCrawler interface {
	Crawl(ctx context.Context, start, end int) (scrape.CrawlResult, error)
}

// RecordEnricher augments base records with detail-page fields.
type RecordEnricher interface {
	Enrich(ctx context.Context, records []scrape.CompanyRecord) ([]scrape.CompanyRecord, error)
}

// Runner wires the pipeline stages together.
type Runner struct {
	crawler  PageCrawler
	enricher RecordEnricher
	store    scrape.RecordStore
	clock    scrape.Clock
	logger   *zap.Logger
}

// New constructs a Runner from its stages.
func New(crawler PageCrawler, enricher RecordEnricher, store scrape.RecordStore, clock scrape.Clock, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		crawler:  crawler,
		enricher: enricher,
		store:    store,
		clock:    clock,
		logger:   logger,
	}
}

// Run executes the full pipeline for the inclusive page range. The base
// dataset is persisted before enrichment starts, so a failure later in the
// run never loses the listing data already gathered.
func (r *Runner) Run(ctx context.Context, start, end int) (scrape.RunSummary, error) {
	runID := uuid.NewString()
	began := r.clock.Now()
	logger := r.logger.With(zap.String("run_id", runID))

	logger.Info("scrape run starting",
		zap.Int("start_page", start),
		zap.Int("end_page", end),
	)

	crawled, err := r.crawler.Crawl(ctx, start, end)
	if err != nil {
		return scrape.RunSummary{}, fmt.Errorf("crawl pages %d-%d: %w", start, end, err)
	}

	baseName := fmt.Sprintf("companies_pages_%d_to_%d", start, end)
	if err := r.store.SaveRecords(ctx, baseName, crawled.Records); err != nil {
		return scrape.RunSummary{}, fmt.Errorf("persist base dataset: %w", err)
	}

	enriched, err := r.enricher.Enrich(ctx, crawled.Records)
	if err != nil {
		return scrape.RunSummary{}, fmt.Errorf("enrich records: %w", err)
	}

	detailedName := fmt.Sprintf("detailed_companies_pages_%d_to_%d", start, end)
	if err := r.store.SaveRecords(ctx, detailedName, enriched); err != nil {
		return scrape.RunSummary{}, fmt.Errorf("persist detailed dataset: %w", err)
	}

	summary := scrape.RunSummary{
		RunID:       runID,
		StartPage:   start,
		EndPage:     end,
		BaseRecords: len(crawled.Records),
		Enriched:    len(enriched),
		FailedPages: crawled.Failed,
		Elapsed:     r.clock.Now().Sub(began),
	}
	logger.Info("scrape run finished",
		zap.Int("base_records", summary.BaseRecords),
		zap.Int("enriched_records", summary.Enriched),
		zap.Int("failed_pages", len(summary.FailedPages)),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}
