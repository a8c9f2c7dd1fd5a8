// Package browser implements the crawl Session on top of chromedp. One
// Session owns one Chrome process and one tab for the lifetime of a crawl.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/autoplay-crawler/internal/crawler"
)

const (
	defaultWindowWidth  = 1024
	defaultWindowHeight = 768
	defaultFPS          = 10
	// clickTimeout bounds a click on a node that was just found visible.
	clickTimeout = 5 * time.Second
)

// Config controls the browser process.
type Config struct {
	// ExecPath points at the Chrome binary. Empty uses chromedp's lookup.
	ExecPath string
	// Headless runs without a window. Autoplay generally needs a real
	// renderer, so the default is a headed browser.
	Headless     bool
	WindowWidth  int
	WindowHeight int
	// FFmpegPath is the encoder used for session recordings.
	FFmpegPath string
	// RecordingFPS is the frame rate handed to the encoder.
	RecordingFPS int
}

func (c Config) withDefaults() Config {
	if c.WindowWidth <= 0 {
		c.WindowWidth = defaultWindowWidth
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = defaultWindowHeight
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.RecordingFPS <= 0 {
		c.RecordingFPS = defaultFPS
	}
	return c
}

// Session implements crawler.Session using chromedp.
type Session struct {
	cfg    Config
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	tab           context.Context

	mu  sync.Mutex
	rec *recorder
}

var _ crawler.Session = (*Session)(nil)

// New launches Chrome and opens the crawl tab with the configured viewport.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Session, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocatorOptions(cfg)...)
	tabCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Sugar().Debugf))

	// The first Run starts the browser process.
	if err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(cfg.WindowWidth), int64(cfg.WindowHeight)),
	); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	logger.Info("browser started",
		zap.Bool("headless", cfg.Headless),
		zap.Int("width", cfg.WindowWidth),
		zap.Int("height", cfg.WindowHeight),
	)
	return &Session{
		cfg:           cfg,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCancel: browserCancel,
		tab:           tabCtx,
	}, nil
}

// allocatorOptions returns the Chrome launch flags for cfg.
func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-audio-output", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// run executes actions on the tab, canceled when either ctx or the tab ends.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Exists reports whether selector matches a node without waiting for one.
func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return false, fmt.Errorf("query %s: %w", selector, err)
	}
	return len(nodes) > 0, nil
}

// ClassList returns the class tokens of the first node matching selector,
// or nil when there is none.
func (s *Session) ClassList(ctx context.Context, selector string) ([]string, error) {
	var className string
	if err := s.run(ctx, chromedp.Evaluate(classNameScript(selector), &className)); err != nil {
		return nil, fmt.Errorf("read classes of %s: %w", selector, err)
	}
	return strings.Fields(className), nil
}

func classNameScript(selector string) string {
	return `(() => { const el = document.querySelector(` + strconv.Quote(selector) + `); return el ? String(el.className) : ""; })()`
}

// WaitUntil polls expression until it is truthy. It has no bound of its own.
func (s *Session) WaitUntil(ctx context.Context, expression string) error {
	var ok bool
	if err := s.run(ctx, chromedp.Poll(expression, &ok)); err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	return nil
}

// WaitVisible waits up to timeout for selector to be visible. Expiry of the
// bound is reported as crawler.ErrElementTimeout.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := s.run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && waitCtx.Err() != nil {
		return crawler.ErrElementTimeout
	}
	return fmt.Errorf("wait visible %s: %w", selector, err)
}

// Click clicks the first visible node matching selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	clickCtx, cancel := context.WithTimeout(ctx, clickTimeout)
	defer cancel()
	if err := s.run(clickCtx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// Evaluate runs expression in the page. A thrown exception is an error.
func (s *Session) Evaluate(ctx context.Context, expression string) error {
	if err := s.run(ctx, chromedp.Evaluate(expression, nil)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

// Location returns the current page URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return url, nil
}

// Screenshot captures the viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// StartRecording starts a screencast of the tab piped into ffmpeg, writing
// path and a frame index next to it.
func (s *Session) StartRecording(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec != nil {
		return errors.New("recording already in progress")
	}

	enc, err := startFFmpeg(s.cfg.FFmpegPath, s.cfg.RecordingFPS, path)
	if err != nil {
		return err
	}
	rec := newRecorder(enc, indexPath(path), s.logger.Named("recorder"))

	chromedp.ListenTarget(s.tab, func(ev any) {
		frame, ok := ev.(*page.EventScreencastFrame)
		if !ok {
			return
		}
		rec.pushEncoded(frame.Data)
		sessionID := frame.SessionID
		// Acks must not run on the event goroutine.
		go func() {
			if err := chromedp.Run(s.tab, chromedp.ActionFunc(func(ctx context.Context) error {
				return page.ScreencastFrameAck(sessionID).Do(ctx)
			})); err != nil {
				rec.logger.Debug("screencast ack failed", zap.Error(err))
			}
		}()
	})

	start := page.StartScreencast().
		WithFormat(page.ScreencastFormatJpeg).
		WithQuality(80).
		WithMaxWidth(int64(s.cfg.WindowWidth)).
		WithMaxHeight(int64(s.cfg.WindowHeight))
	if err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return start.Do(ctx)
	})); err != nil {
		_ = rec.stop()
		return fmt.Errorf("start screencast: %w", err)
	}
	s.rec = rec
	s.logger.Info("recording started", zap.String("path", path))
	return nil
}

// MarkItem notes the frame at which item order became ready.
func (s *Session) MarkItem(order int) {
	s.mu.Lock()
	rec := s.rec
	s.mu.Unlock()
	if rec != nil {
		rec.mark(order)
	}
}

// StopRecording stops the screencast, flushes the encoder and writes the
// frame index.
func (s *Session) StopRecording(ctx context.Context) error {
	s.mu.Lock()
	rec := s.rec
	s.rec = nil
	s.mu.Unlock()
	if rec == nil {
		return nil
	}

	var errs []error
	if err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.StopScreencast().Do(ctx)
	})); err != nil {
		errs = append(errs, fmt.Errorf("stop screencast: %w", err))
	}
	if err := rec.stop(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close closes the tab and then the browser process.
func (s *Session) Close(ctx context.Context) error {
	var errs []error
	if err := s.run(ctx, page.Close()); err != nil && !errors.Is(err, context.Canceled) {
		errs = append(errs, fmt.Errorf("close page: %w", err))
	}
	if err := chromedp.Cancel(s.tab); err != nil && !errors.Is(err, context.Canceled) {
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	s.browserCancel()
	s.allocCancel()
	return errors.Join(errs...)
}
