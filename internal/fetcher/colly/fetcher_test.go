package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scrapekit/saasdir/internal/blockdetect"
	"github.com/scrapekit/saasdir/internal/scrape"
)

func newTestFetcher(t *testing.T, cfg Config) *Fetcher {
	t.Helper()
	f, err := New(cfg, blockdetect.NewHeuristic(50), nil)
	require.NoError(t, err)
	return f
}

func largeBody() string {
	return "<html><body>" + strings.Repeat("<tr><td>row</td></tr>", 50) + "</body></html>"
}

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(largeBody()))
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{UserAgent: "test-agent", Timeout: 5 * time.Second})
	result, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, scrape.OutcomeSuccess, result.Outcome)
	require.Equal(t, http.StatusOK, result.StatusCode)
	require.NotEmpty(t, result.Body)
	require.Positive(t, result.Duration)
}

func TestFetchSendsConfiguredUserAgent(t *testing.T) {
	t.Parallel()

	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(largeBody()))
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{UserAgent: "saasdir-test/1.0", Timeout: 5 * time.Second})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "saasdir-test/1.0", seen)
}

func TestFetchTooManyRequestsIsBlocked(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{UserAgent: "test-agent", Timeout: 5 * time.Second})
	result, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, scrape.OutcomeBlocked, result.Outcome)
	require.Equal(t, "http_429", result.BlockReason)
}

func TestFetchForbiddenIsBlocked(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{UserAgent: "test-agent", Timeout: 5 * time.Second})
	result, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, scrape.OutcomeBlocked, result.Outcome)
	require.Equal(t, "http_403", result.BlockReason)
}

func TestFetchNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{UserAgent: "test-agent", Timeout: 5 * time.Second})
	result, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, scrape.OutcomeNotFound, result.Outcome)
}

func TestFetchDetectsBlockMarkerIn200(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := "<html><body>Checking your browser before accessing" + strings.Repeat(" pad", 50) + "</body></html>"
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{UserAgent: "test-agent", Timeout: 5 * time.Second})
	result, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, scrape.OutcomeBlocked, result.Outcome)
	require.Equal(t, "marker:checking your browser", result.BlockReason)
}

func TestFetchDetectsSuspiciouslyShortBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{UserAgent: "test-agent", Timeout: 5 * time.Second})
	result, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, scrape.OutcomeBlocked, result.Outcome)
	require.True(t, strings.HasPrefix(result.BlockReason, "short_body:"))
}

func TestFetchServerErrorIsTimeoutOutcome(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{UserAgent: "test-agent", Timeout: 5 * time.Second})
	result, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, scrape.OutcomeTimeout, result.Outcome)
}

func TestFetchSlowServerTimesOut(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		_, _ = w.Write([]byte(largeBody()))
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{UserAgent: "test-agent", Timeout: 200 * time.Millisecond})
	result, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, scrape.OutcomeTimeout, result.Outcome)
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := newTestFetcher(t, Config{UserAgent: "test-agent", Timeout: 5 * time.Second})
	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
}

func TestFetchPersistsCookiesAcrossRequests(t *testing.T) {
	t.Parallel()

	var sawCookie bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("session"); err == nil {
			sawCookie = true
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc123"})
		_, _ = w.Write([]byte(largeBody()))
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{UserAgent: "test-agent", Timeout: 5 * time.Second})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.True(t, sawCookie)
}

func TestRotatedUserAgentComesFromPool(t *testing.T) {
	t.Parallel()

	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(largeBody()))
	}))
	defer srv.Close()

	f := newTestFetcher(t, Config{RotateUserAgent: true, Timeout: 5 * time.Second})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Contains(t, userAgents, seen)
}
