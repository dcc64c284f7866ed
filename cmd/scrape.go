package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scrapekit/saasdir/internal/backoff"
	"github.com/scrapekit/saasdir/internal/blockdetect"
	"github.com/scrapekit/saasdir/internal/clock/system"
	"github.com/scrapekit/saasdir/internal/config"
	"github.com/scrapekit/saasdir/internal/crawler"
	"github.com/scrapekit/saasdir/internal/enrich"
	"github.com/scrapekit/saasdir/internal/events"
	collyfetcher "github.com/scrapekit/saasdir/internal/fetcher/colly"
	"github.com/scrapekit/saasdir/internal/fetcher/headless"
	"github.com/scrapekit/saasdir/internal/logging"
	"github.com/scrapekit/saasdir/internal/runner"
	"github.com/scrapekit/saasdir/internal/scrape"
	"github.com/scrapekit/saasdir/internal/storage/local"
	"github.com/scrapekit/saasdir/internal/storage/postgres"
	"github.com/scrapekit/saasdir/internal/telemetry"
)

func newScrapeCmd() *cobra.Command {
	var (
		startPage int
		endPage   int
		workers   int
		render    bool
	)

	cmd := &cobra.Command{
		Use:   "scrape [page | start end]",
		Short: "Runs the crawl and enrichment pipeline",
		Long: `Crawls the configured listing pages, writes the base dataset, enriches
every record from its detail page, and writes the detailed dataset. With one
argument only that page is scraped; with two arguments the inclusive range.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd, args, startPage, endPage, workers, render)
		},
	}

	cmd.Flags().IntVar(&startPage, "start", 0, "first listing page (overrides config)")
	cmd.Flags().IntVar(&endPage, "end", 0, "last listing page (overrides config)")
	cmd.Flags().IntVar(&workers, "workers", 0, "enrichment worker count (overrides config)")
	cmd.Flags().BoolVar(&render, "render", false, "fetch with a headless browser")
	return cmd
}

func runScrape(cmd *cobra.Command, args []string, startPage, endPage, workers int, render bool) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := applyOverrides(&cfg, args, startPage, endPage, workers, render); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		shutdown := startMetricsServer(cfg.Metrics.Port, logger)
		defer shutdown()
	}

	clk := system.Clock{}
	detector := blockdetect.NewHeuristic(0)

	fetcher, cleanup, err := buildFetcher(cfg, detector, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	pacer := backoff.New(backoff.Config{
		MinDelay:         secondsToDuration(cfg.AntiBot.MinDelaySeconds),
		MaxDelay:         secondsToDuration(cfg.AntiBot.MaxDelaySeconds),
		CapDelay:         time.Duration(cfg.AntiBot.CapDelaySeconds) * time.Second,
		Factor:           cfg.AntiBot.BackoffFactor,
		FailureThreshold: cfg.AntiBot.FailureThreshold,
		SessionCooldown:  time.Duration(cfg.AntiBot.SessionCooldownSeconds) * time.Second,
		FloorRPS:         cfg.AntiBot.FloorRPS,
	}, clk, logger)
	recorder := events.NewZapRecorder(logger)

	pageCrawler := crawler.New(crawler.Config{
		BaseURL:    cfg.Scraper.BaseURL,
		MaxRetries: cfg.AntiBot.MaxRetries,
	}, fetcher, pacer, recorder, clk, logger)

	enricher := enrich.New(enrich.Config{
		Workers:    cfg.Scraper.Workers,
		MaxRetries: cfg.AntiBot.MaxRetries,
	}, fetcher, pacer, recorder, clk, logger)

	run := runner.New(pageCrawler, enricher, store, clk, logger)
	summary, err := run.Run(ctx, cfg.Scraper.StartPage, cfg.Scraper.EndPage)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scrape run: %w", err)
	}
	if err == nil {
		logger.Info("done",
			zap.String("run_id", summary.RunID),
			zap.Int("base_records", summary.BaseRecords),
			zap.Int("failed_pages", len(summary.FailedPages)),
		)
	}
	return nil
}

// applyOverrides folds positional args and flags into the loaded config and
// revalidates the result.
func applyOverrides(cfg *config.Config, args []string, startPage, endPage, workers int, render bool) error {
	switch len(args) {
	case 1:
		page, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid page %q: %w", args[0], err)
		}
		cfg.Scraper.StartPage = page
		cfg.Scraper.EndPage = page
	case 2:
		start, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid start page %q: %w", args[0], err)
		}
		end, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid end page %q: %w", args[1], err)
		}
		cfg.Scraper.StartPage = start
		cfg.Scraper.EndPage = end
	}

	if startPage > 0 {
		cfg.Scraper.StartPage = startPage
	}
	if endPage > 0 {
		cfg.Scraper.EndPage = endPage
	}
	if workers > 0 {
		cfg.Scraper.Workers = workers
	}
	if render {
		cfg.Render.Enabled = true
	}
	return cfg.Validate()
}

func buildFetcher(cfg config.Config, detector *blockdetect.Heuristic, logger *zap.Logger) (scrape.Fetcher, func(), error) {
	if cfg.Render.Enabled {
		fetcher, err := headless.New(headless.Config{
			MaxParallel:       cfg.Render.MaxParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: time.Duration(cfg.Render.NavTimeoutSec) * time.Second,
			SimulateBehavior:  cfg.Render.SimulateBehavior,
		}, detector)
		if err == nil {
			return fetcher, fetcher.Close, nil
		}
		logger.Warn("rendered fetcher unavailable, falling back to plain HTTP", zap.Error(err))
	}

	fetcher, err := collyfetcher.New(collyfetcher.Config{
		UserAgent:       cfg.HTTP.UserAgent,
		RotateUserAgent: cfg.HTTP.RotateUserAgent,
		Timeout:         cfg.Timeout(),
	}, detector, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init fetcher: %w", err)
	}
	return fetcher, func() {}, nil
}

func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (scrape.RecordStore, func(), error) {
	if cfg.Output.Target == "postgres" {
		store, err := postgres.NewStore(ctx, postgres.StoreConfig{DSN: cfg.Output.DSN})
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres store: %w", err)
		}
		return store, store.Close, nil
	}
	return local.New(cfg.Output.Dir, logger), func() {}, nil
}

func startMetricsServer(port int, logger *zap.Logger) func() {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           telemetry.NewRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
