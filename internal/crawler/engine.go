package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/autoplay-crawler/internal/progress"
)

// Components bundles the collaborators an Engine drives. Session, Store and
// Enricher are required; everything else is optional.
type Components struct {
	Session  Session
	Store    ResultStore
	Enricher Enricher
	Watcher  PlaybackWatcher
	Advancer Advancer
	Sinks    []RecordSink
	Exporter Exporter
	Uploader ArtifactUploader
	Progress progress.Emitter
	Clock    Clock
	IDs      IDGenerator
}

// Summary describes a finished (or aborted) session.
type Summary struct {
	SessionID [16]byte
	StartID   string
	// Items is the number of records persisted.
	Items int
}

// Engine is the crawl controller. It is single use: Run drives exactly one
// session from the start URL through Iterations advances.
type Engine struct {
	settings Settings
	c        Components
	logger   *zap.Logger

	sessionID [16]byte
	startID   string
	items     int
	recording bool
	closed    bool
}

// NewEngine validates the components and fills in defaults.
func NewEngine(settings Settings, c Components, logger *zap.Logger) (*Engine, error) {
	if c.Session == nil {
		return nil, errors.New("session is required")
	}
	if c.Store == nil {
		return nil, errors.New("result store is required")
	}
	if c.Enricher == nil {
		return nil, errors.New("enricher is required")
	}
	if settings.Iterations < 0 {
		return nil, fmt.Errorf("iterations must be >= 0, got %d", settings.Iterations)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if c.Watcher == nil {
		c.Watcher = NewWatcher(settings, logger.Named("watcher"))
	}
	if c.Advancer == nil {
		c.Advancer = NextButtonAdvancer{}
	}
	if c.Progress == nil {
		c.Progress = progress.Discard{}
	}
	if c.Clock == nil {
		c.Clock = wallClock{}
	}
	return &Engine{settings: settings, c: c, logger: logger}, nil
}

// Run executes the session. The returned error wraps ErrFatal for
// unrecoverable page conditions; records persisted before any failure stay
// in the store.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	startID, ok := VideoID(e.settings.StartURL)
	if !ok {
		return Summary{}, fmt.Errorf("%w: %s", ErrNoStartID, e.settings.StartURL)
	}
	e.startID = startID
	e.sessionID = e.newSessionID()
	began := e.c.Clock.Now()
	e.emit(progress.Event{Stage: progress.StageSessionStart, URL: e.settings.StartURL})

	err := e.run(ctx)
	e.shutdown(ctx)

	done := progress.Event{Stage: progress.StageSessionDone, Dur: e.c.Clock.Now().Sub(began)}
	if err != nil {
		done.Stage = progress.StageSessionError
		done.Note = err.Error()
	}
	e.emit(done)

	if err == nil {
		e.finish(ctx)
	}
	return Summary{SessionID: e.sessionID, StartID: e.startID, Items: e.items}, err
}

func (e *Engine) run(ctx context.Context) error {
	if err := e.c.Store.Initialize(ctx, e.startID); err != nil {
		return fmt.Errorf("initialize result store: %w", err)
	}
	if err := e.c.Session.Navigate(ctx, e.settings.StartURL); err != nil {
		return fmt.Errorf("navigate to start: %w", err)
	}
	if e.settings.Record {
		if err := e.c.Session.StartRecording(ctx, e.c.Store.RecordingPath()); err != nil {
			e.logger.Warn("recording unavailable, continuing without it", zap.Error(err))
		} else {
			e.recording = true
		}
	}

	for order := 0; order <= e.settings.Iterations; order++ {
		if order > 0 {
			if err := e.c.Advancer.Advance(ctx, e.c.Session); err != nil {
				return fmt.Errorf("item %d: %w", order, err)
			}
		}
		if err := e.visit(ctx, order); err != nil {
			return fmt.Errorf("item %d: %w", order, err)
		}
	}
	return nil
}

// visit gates on playback, then enriches, persists and snapshots one item.
func (e *Engine) visit(ctx context.Context, order int) error {
	pb, err := e.c.Watcher.WaitForPlayback(ctx, e.c.Session)
	if err != nil {
		return err
	}
	location, err := e.c.Session.Location(ctx)
	if err != nil {
		return fmt.Errorf("read location: %w", err)
	}
	id, ok := VideoID(location)
	if !ok {
		if order == 0 {
			id = e.startID
		} else {
			e.logger.Warn("no video id in page location", zap.Int("order", order), zap.String("url", location))
		}
	}

	record := e.c.Enricher.Enrich(ctx, id, order)
	record.Order = order
	if record.ID == "" {
		record.ID = id
	}
	if err := e.c.Store.Append(ctx, record); err != nil {
		return fmt.Errorf("persist record: %w", err)
	}
	e.items++
	if e.recording {
		e.c.Session.MarkItem(order)
	}
	e.logger.Info(fmt.Sprintf("%05d: %s: %s", order, location, record.Title),
		zap.Int("order", order),
		zap.String("video_id", record.ID),
		zap.Int("ads", pb.AdChecks),
		zap.Int("skips", pb.SkipsClicked),
	)

	ref := SessionRef{ID: e.sessionID, StartID: e.startID}
	for _, sink := range e.c.Sinks {
		if err := sink.Consume(ctx, ref, record); err != nil {
			e.logger.Warn("record sink failed", zap.Int("order", order), zap.Error(err))
		}
	}

	if e.settings.Screenshots {
		png, err := e.c.Session.Screenshot(ctx)
		if err != nil {
			return fmt.Errorf("capture screenshot: %w", err)
		}
		if _, err := e.c.Store.SaveScreenshot(ctx, order, png); err != nil {
			return fmt.Errorf("save screenshot: %w", err)
		}
	}

	e.emit(progress.Event{
		Stage:    progress.StageItemReady,
		Order:    order,
		VideoID:  record.ID,
		URL:      location,
		Title:    record.Title,
		AdChecks: pb.AdChecks,
		AdSkips:  pb.SkipsClicked,
		Enriched: record.Enriched(),
		Dur:      pb.Waited,
	})
	return nil
}

// shutdown stops the recording and closes the browser. It is best-effort
// cleanup and runs whatever the outcome of the loop.
func (e *Engine) shutdown(ctx context.Context) {
	if e.closed {
		return
	}
	e.closed = true
	if e.recording {
		if err := e.c.Session.StopRecording(ctx); err != nil {
			e.logger.Warn("stop recording failed", zap.Error(err))
		}
		e.recording = false
	}
	if err := e.c.Session.Close(ctx); err != nil {
		e.logger.Warn("close browser failed", zap.Error(err))
	}
}

// finish runs the post-crawl collaborators over the completed store.
func (e *Engine) finish(ctx context.Context) {
	dir := e.c.Store.Dir()
	if e.settings.CSV && e.c.Exporter != nil {
		if err := e.c.Exporter.Export(ctx, dir, true); err != nil {
			e.logger.Warn("csv export failed", zap.String("dir", dir), zap.Error(err))
		}
	}
	if e.c.Uploader != nil {
		if err := e.c.Uploader.Upload(ctx, dir, e.startID); err != nil {
			e.logger.Warn("artifact upload failed", zap.String("dir", dir), zap.Error(err))
		}
	}
}

func (e *Engine) emit(evt progress.Event) {
	evt.SessionID = e.sessionID
	evt.StartID = e.startID
	evt.TS = e.c.Clock.Now()
	e.c.Progress.Emit(evt)
}

func (e *Engine) newSessionID() [16]byte {
	if e.c.IDs != nil {
		if id, err := e.c.IDs.NewSessionID(); err == nil {
			return id
		}
	}
	return [16]byte(uuid.New())
}

type wallClock struct{}

func (wallClock) Now() time.Time {
	return time.Now().UTC()
}
