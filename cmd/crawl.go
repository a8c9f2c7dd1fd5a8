package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/autoplay-crawler/internal/api"
	"github.com/JakeFAU/autoplay-crawler/internal/app"
	"github.com/JakeFAU/autoplay-crawler/internal/browser"
	"github.com/JakeFAU/autoplay-crawler/internal/crawler"
	"github.com/JakeFAU/autoplay-crawler/internal/enrich/youtube"
	"github.com/JakeFAU/autoplay-crawler/internal/storage/local"
)

// ErrNoStartURL is returned when a crawl is requested without --url.
var ErrNoStartURL = errors.New("a start url is required (--url)")

// newSession launches the browser. It is a variable so tests can replace it.
var newSession = func(ctx context.Context, cfg browser.Config, logger *zap.Logger) (crawler.Session, error) {
	return browser.New(ctx, cfg, logger)
}

func addCrawlFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("url", "u", "", "URL of the video to start from (required)")
	f.IntP("iterations", "i", 100, "number of autoplay advances to follow")
	f.Bool("screenshots", true, "capture a screenshot of every item")
	f.Bool("record", false, "record the whole session to recording.webm")
	f.Bool("csv", true, "convert output.json to output.csv when the session finishes")
	f.Bool("no-csv", false, "disable the csv export")
	f.Bool("headless", false, "run the browser without a window")
	f.String("youtube-api-key", "", "YouTube Data API key (falls back to $YOUTUBE_API_KEY)")
	f.String("listen", "", "address for the status server, e.g. :8080")
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	cfg, logger := rt.cfg, rt.logger
	if cfg.Crawl.StartURL == "" {
		return ErrNoStartURL
	}
	if _, ok := crawler.VideoID(cfg.Crawl.StartURL); !ok {
		return fmt.Errorf("%w: %s", crawler.ErrNoStartID, cfg.Crawl.StartURL)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.ShutdownGrace)
		defer cancel()
		if cerr := services.Close(closeCtx); cerr != nil {
			logger.Warn("failed to close services", zap.Error(cerr))
		}
	}()

	store, err := local.New(local.Config{BaseDir: cfg.Crawl.OutputDir})
	if err != nil {
		return fmt.Errorf("init result store: %w", err)
	}
	enricher, err := youtube.New(ctx, cfg.EnricherSettings(), logger.Named("youtube"))
	if err != nil {
		return fmt.Errorf("init enricher: %w", err)
	}
	if !enricher.Enabled() {
		logger.Info("no YouTube API key configured, records carry only order and id")
	}

	stopServer := startStatusServer(ctx, services, store, logger)
	defer stopServer()

	session, err := newSession(ctx, cfg.BrowserSettings(), logger.Named("browser"))
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	engine, err := crawler.NewEngine(
		cfg.CrawlSettings(),
		services.Components(session, store, enricher),
		logger.Named("engine"),
	)
	if err != nil {
		_ = session.Close(ctx)
		return fmt.Errorf("init engine: %w", err)
	}

	summary, err := engine.Run(ctx)
	if err != nil {
		logger.Error("crawl aborted",
			zap.String("start_id", summary.StartID),
			zap.Int("items", summary.Items),
			zap.Error(err),
		)
		return err
	}
	logger.Info("crawl finished",
		zap.String("start_id", summary.StartID),
		zap.Int("items", summary.Items),
		zap.String("dir", store.Dir()),
	)
	return nil
}

// startStatusServer runs the status server for the life of the crawl when
// server.addr is set. The returned func stops it and waits for shutdown.
func startStatusServer(ctx context.Context, services *app.App, store api.RecordsSource, logger *zap.Logger) func() {
	srv := services.StatusServer(store)
	if srv == nil {
		return func() {}
	}
	srvCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("status server started", zap.String("addr", srv.Addr))
		if err := api.Serve(srvCtx, srv, app.ShutdownGrace); err != nil {
			logger.Warn("status server error", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
