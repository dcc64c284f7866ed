package crawler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scrapekit/saasdir/internal/events"
	"github.com/scrapekit/saasdir/internal/scrape"
)

const testBase = "https://directory.example.com/saas-companies"

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string][]scrape.FetchResult
	calls     []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (scrape.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	queue := f.responses[url]
	if len(queue) == 0 {
		return scrape.FetchResult{URL: url, Outcome: scrape.OutcomeTimeout}, nil
	}
	next := queue[0]
	f.responses[url] = queue[1:]
	next.URL = url
	return next, nil
}

type fakePacer struct {
	mu      sync.Mutex
	waits   int
	reports []scrape.Outcome
	err     error
}

func (p *fakePacer) BeforeRequest(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waits++
	return p.err
}

func (p *fakePacer) Report(outcome scrape.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, outcome)
}

func (p *fakePacer) Snapshot() (time.Duration, int) {
	return 7 * time.Second, 1
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Unix(1700000000, 0).UTC() }

func listingBody(names ...string) []byte {
	page := "<html><body><table>"
	for _, name := range names {
		page += fmt.Sprintf(
			`<tr class="data-table_row__aX_dq">`+
				`<td class="data-table_cell__a_9gs"></td>`+
				`<td class="data-table_cell__a_9gs"><a class="cells_link__PfQot" href="/saas-companies/%s">%s</a></td>`+
				`</tr>`,
			name, name,
		)
	}
	return []byte(page + "</table></body></html>")
}

func success(names ...string) scrape.FetchResult {
	return scrape.FetchResult{Outcome: scrape.OutcomeSuccess, StatusCode: 200, Body: listingBody(names...)}
}

func blocked(reason string) scrape.FetchResult {
	return scrape.FetchResult{Outcome: scrape.OutcomeBlocked, StatusCode: 429, BlockReason: reason}
}

func newTestCrawler(fetcher *fakeFetcher, pacer *fakePacer, recorder events.Recorder, retries int) *Crawler {
	return New(Config{BaseURL: testBase, MaxRetries: retries}, fetcher, pacer, recorder, fixedClock{}, nil)
}

func TestCrawlCollectsPagesInOrder(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string][]scrape.FetchResult{
		testBase:             {success("alpha", "beta")},
		testBase + "?page=2": {success("gamma")},
	}}
	pacer := &fakePacer{}

	c := newTestCrawler(fetcher, pacer, nil, 3)
	result, err := c.Crawl(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Empty(t, result.Failed)
	require.Len(t, result.Records, 3)
	require.Equal(t, "alpha", *result.Records[0].CompanyName)
	require.Equal(t, "beta", *result.Records[1].CompanyName)
	require.Equal(t, "gamma", *result.Records[2].CompanyName)
	require.Equal(t, []string{testBase, testBase + "?page=2"}, fetcher.calls)
	require.Equal(t, 2, pacer.waits)
}

func TestCrawlRetriesBlockedPage(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string][]scrape.FetchResult{
		testBase: {blocked("http_429"), blocked("marker:captcha"), success("alpha")},
	}}
	pacer := &fakePacer{}
	recorder := &events.MemoryRecorder{}

	c := newTestCrawler(fetcher, pacer, recorder, 3)
	result, err := c.Crawl(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Empty(t, result.Failed)
	require.Len(t, result.Records, 1)

	recorded := recorder.Events()
	require.Len(t, recorded, 2)
	require.Equal(t, "http_429", recorded[0].Type)
	require.Equal(t, 0, recorded[0].RetryCount)
	require.Equal(t, "marker:captcha", recorded[1].Type)
	require.Equal(t, 1, recorded[1].RetryCount)
	require.Equal(t, 7*time.Second, recorded[0].Backoff)
	require.Equal(t, testBase, recorded[0].URL)
}

func TestCrawlSkipsExhaustedPage(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string][]scrape.FetchResult{
		testBase:             {blocked("http_429"), blocked("http_429"), blocked("http_429")},
		testBase + "?page=2": {success("beta")},
	}}
	pacer := &fakePacer{}

	c := newTestCrawler(fetcher, pacer, nil, 3)
	result, err := c.Crawl(context.Background(), 1, 2)
	require.NoError(t, err)

	require.Len(t, result.Failed, 1)
	require.Equal(t, 1, result.Failed[0].Page)
	require.Equal(t, 3, result.Failed[0].Attempts)
	require.Equal(t, "blocked:http_429", result.Failed[0].Reason)

	// The failed page never poisons the rest of the range.
	require.Len(t, result.Records, 1)
	require.Equal(t, "beta", *result.Records[0].CompanyName)
}

func TestCrawlNotFoundIsTerminal(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string][]scrape.FetchResult{
		testBase: {{Outcome: scrape.OutcomeNotFound, StatusCode: 404}},
	}}
	pacer := &fakePacer{}

	c := newTestCrawler(fetcher, pacer, nil, 5)
	result, err := c.Crawl(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	require.Equal(t, "not_found", result.Failed[0].Reason)
	require.Equal(t, 1, result.Failed[0].Attempts)
	require.Len(t, fetcher.calls, 1)
}

func TestCrawlReportsEveryOutcome(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string][]scrape.FetchResult{
		testBase: {blocked("http_403"), success("alpha")},
	}}
	pacer := &fakePacer{}

	c := newTestCrawler(fetcher, pacer, nil, 3)
	_, err := c.Crawl(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Equal(t, []scrape.Outcome{scrape.OutcomeBlocked, scrape.OutcomeSuccess}, pacer.reports)
}

func TestCrawlStopsOnPacerError(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string][]scrape.FetchResult{}}
	pacer := &fakePacer{err: context.Canceled}

	c := newTestCrawler(fetcher, pacer, nil, 3)
	_, err := c.Crawl(context.Background(), 1, 3)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, fetcher.calls)
}

func TestPageURL(t *testing.T) {
	t.Parallel()

	c := newTestCrawler(&fakeFetcher{}, &fakePacer{}, nil, 0)
	require.Equal(t, testBase, c.PageURL(1))
	require.Equal(t, testBase+"?page=2", c.PageURL(2))
	require.Equal(t, testBase+"?page=17", c.PageURL(17))
}
