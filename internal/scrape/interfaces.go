package scrape

import (
	"context"
	"time"
)

// Fetcher performs one page fetch. Transport-level failure is communicated
// through the FetchResult outcome; the error return is reserved for context
// cancellation and unrecoverable client faults.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// Pacer owns all request pacing. BeforeRequest blocks for the currently
// mandated delay (including any full cooldown pause); Report feeds the
// outcome of the fetch back so the delay can escalate or reset. No other
// component sleeps between requests.
type Pacer interface {
	BeforeRequest(ctx context.Context) error
	Report(outcome Outcome)
}

// RecordStore persists an ordered record sequence under a logical name.
type RecordStore interface {
	SaveRecords(ctx context.Context, name string, records []CompanyRecord) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
