// Package scrape defines core types shared across subsystems.
package scrape

import (
	"time"
)

// Outcome classifies the result of a single page fetch.
type Outcome string

// Fetch outcome values reported to the backoff controller.
const (
	OutcomeSuccess  Outcome = "success"
	OutcomeBlocked  Outcome = "blocked"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeNotFound Outcome = "not_found"
)

// PageRequest identifies one listing page to fetch. Page numbers are 1-based.
type PageRequest struct {
	Page int
}

// FetchResult is the typed result of a single fetch. A non-success outcome
// carries no body; BlockReason is set only when Outcome is OutcomeBlocked.
type FetchResult struct {
	URL         string
	Outcome     Outcome
	StatusCode  int
	Body        []byte
	BlockReason string
	Duration    time.Duration
}

// Success reports whether the fetch yielded usable markup.
func (r FetchResult) Success() bool {
	return r.Outcome == OutcomeSuccess
}

// ProfileFields holds everything parsed from a company detail page.
// IndicatorRevenue/Growth/Funding come from the profile indicators block and
// are only used to fill base fields that the listing left missing.
type ProfileFields struct {
	EmployeeCount    *int64
	CEOName          *string
	FoundedYear      *string
	PricingInfo      *string
	TopProducts      *string
	Description      *string
	IndicatorRevenue *string
	IndicatorGrowth  *string
	IndicatorFunding *string
}

// PageFailure records a listing page that exhausted its retries.
type PageFailure struct {
	Page     int    `json:"page"`
	Attempts int    `json:"attempts"`
	Reason   string `json:"reason"`
}

// CrawlResult is the output of the pagination crawler: records in page and
// in-page document order, plus the pages that were skipped after retries.
type CrawlResult struct {
	Records []CompanyRecord
	Failed  []PageFailure
}

// RunSummary aggregates counts for one scrape run.
type RunSummary struct {
	RunID       string        `json:"run_id"`
	StartPage   int           `json:"start_page"`
	EndPage     int           `json:"end_page"`
	BaseRecords int           `json:"base_records"`
	Enriched    int           `json:"enriched"`
	FailedPages []PageFailure `json:"failed_pages"`
	Elapsed     time.Duration `json:"elapsed"`
}
