package crawler_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/autoplay-crawler/internal/crawler"
	"github.com/JakeFAU/autoplay-crawler/internal/enrich/youtube"
	"github.com/JakeFAU/autoplay-crawler/internal/progress"
	"github.com/JakeFAU/autoplay-crawler/internal/storage/local"
)

type engineHarness struct {
	session  *fakeSession
	store    *local.ResultStore
	base     string
	sink     *recordingSink
	exporter *stubExporter
	events   *eventLog
}

type eventLog struct {
	mu     sync.Mutex
	events []progress.Event
}

func (l *eventLog) Emit(evt progress.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
}

func (l *eventLog) stages() []progress.Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]progress.Stage, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Stage)
	}
	return out
}

func newHarness(t *testing.T) *engineHarness {
	t.Helper()
	base := t.TempDir()
	store, err := local.New(local.Config{BaseDir: base})
	require.NoError(t, err)
	return &engineHarness{
		session:  newFakeSession(),
		store:    store,
		base:     base,
		sink:     &recordingSink{},
		exporter: &stubExporter{},
		events:   &eventLog{},
	}
}

func (h *engineHarness) engine(t *testing.T, settings crawler.Settings, enricher crawler.Enricher) *crawler.Engine {
	t.Helper()
	e, err := crawler.NewEngine(settings, crawler.Components{
		Session:  h.session,
		Store:    journalStore{ResultStore: h.store, session: h.session},
		Enricher: enricher,
		Sinks:    []crawler.RecordSink{h.sink},
		Exporter: h.exporter,
		Progress: h.events,
	}, zap.NewNop())
	require.NoError(t, err)
	return e
}

func (h *engineHarness) records(t *testing.T) []crawler.VideoRecord {
	t.Helper()
	records, err := local.ReadRecords(filepath.Join(h.base, startID, local.OutputFile))
	require.NoError(t, err)
	return records
}

func (h *engineHarness) screenshots(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(h.base, startID, local.ScreenshotsDir))
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestNewEngineValidation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := crawler.NewEngine(crawler.Settings{}, crawler.Components{Store: h.store, Enricher: titleEnricher{}}, nil)
	assert.Error(t, err)
	_, err = crawler.NewEngine(crawler.Settings{}, crawler.Components{Session: h.session, Enricher: titleEnricher{}}, nil)
	assert.Error(t, err)
	_, err = crawler.NewEngine(crawler.Settings{}, crawler.Components{Session: h.session, Store: h.store}, nil)
	assert.Error(t, err)
	_, err = crawler.NewEngine(crawler.Settings{Iterations: -1}, crawler.Components{
		Session: h.session, Store: h.store, Enricher: titleEnricher{},
	}, nil)
	assert.Error(t, err)
}

func TestEngineSingleItemWithoutCredential(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	// No API key: the enricher never touches the network.
	enricher, err := youtube.New(context.Background(), youtube.Config{}, zap.NewNop())
	require.NoError(t, err)
	e := h.engine(t, crawler.Settings{StartURL: startURL, Iterations: 0}, enricher)

	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, startID, summary.StartID)
	assert.Equal(t, 1, summary.Items)

	assert.Equal(t, []crawler.VideoRecord{{Order: 0, ID: startID, Title: ""}}, h.records(t))
	assert.Empty(t, h.screenshots(t))
	assert.True(t, h.session.closed)
	assert.Empty(t, h.exporter.calls, "csv disabled")
}

func TestEngineThreeIterations(t *testing.T) {
	t.Parallel()

	for _, screenshots := range []bool{true, false} {
		t.Run(map[bool]string{true: "with screenshots", false: "without screenshots"}[screenshots], func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			h.session.adReads[2] = 3
			h.session.skipVisible = true
			e := h.engine(t, crawler.Settings{
				StartURL:    startURL,
				Iterations:  3,
				Screenshots: screenshots,
				CSV:         true,
			}, titleEnricher{})

			summary, err := e.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 4, summary.Items)

			records := h.records(t)
			require.Len(t, records, 4)
			for i, r := range records {
				assert.Equal(t, i, r.Order, "orders are contiguous from zero")
				assert.Equal(t, itemID(i), r.ID)
				assert.Equal(t, "title of "+itemID(i), r.Title)
			}

			if screenshots {
				assert.Equal(t, []string{
					"screenshot-00000.png",
					"screenshot-00001.png",
					"screenshot-00002.png",
					"screenshot-00003.png",
				}, h.screenshots(t))
			} else {
				assert.Empty(t, h.screenshots(t))
			}

			assert.Len(t, h.sink.records, 4)
			for _, ref := range h.sink.refs {
				assert.Equal(t, crawler.SessionRef{ID: summary.SessionID, StartID: startID}, ref)
			}
			assert.NotEqual(t, [16]byte{}, summary.SessionID)
			assert.Equal(t, []string{filepath.Join(h.base, startID) + " force=true"}, h.exporter.calls)
			assert.Equal(t, 3, h.session.clicks, "ad on item 2 skipped three times")
			assert.Equal(t, []progress.Stage{
				progress.StageSessionStart,
				progress.StageItemReady,
				progress.StageItemReady,
				progress.StageItemReady,
				progress.StageItemReady,
				progress.StageSessionDone,
			}, h.events.stages())
		})
	}
}

func TestEngineScreenshotFollowsAppend(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	e := h.engine(t, crawler.Settings{StartURL: startURL, Iterations: 1, Screenshots: true}, titleEnricher{})

	_, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"navigate:" + startURL,
		"append:0",
		"screenshot:0",
		"advance:1",
		"append:1",
		"screenshot:1",
		"close",
	}, h.session.journal)
}

func TestEngineMissingPlayerAfterAdvanceIsFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.session.missingPlayer[2] = true
	e := h.engine(t, crawler.Settings{StartURL: startURL, Iterations: 5, CSV: true}, titleEnricher{})

	summary, err := e.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, crawler.ErrNoPlayer)
	assert.ErrorIs(t, err, crawler.ErrFatal)
	assert.Equal(t, 2, summary.Items)

	records := h.records(t)
	require.Len(t, records, 2)
	assert.Equal(t, 0, records[0].Order)
	assert.Equal(t, 1, records[1].Order)
	assert.True(t, h.session.closed, "browser closed before the fatal exit")
	assert.Empty(t, h.exporter.calls, "no export after an abort")

	stages := h.events.stages()
	assert.Equal(t, progress.StageSessionError, stages[len(stages)-1])
}

func TestEngineAdvanceFailurePropagates(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.session.advanceErr[1] = errors.New("Cannot read properties of null (reading 'click')")
	e := h.engine(t, crawler.Settings{StartURL: startURL, Iterations: 2}, titleEnricher{})

	summary, err := e.Run(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, crawler.ErrFatal)
	assert.ErrorContains(t, err, "advance to next item")
	assert.Equal(t, 1, summary.Items)
	assert.True(t, h.session.closed)
}

func TestEngineRejectsStartURLWithoutID(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	e := h.engine(t, crawler.Settings{StartURL: "https://www.youtube.com/"}, titleEnricher{})

	_, err := e.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, crawler.ErrNoStartID)
	assert.ErrorIs(t, err, crawler.ErrFatal)
	assert.Empty(t, h.session.journal, "no browser work without a start id")
	assert.NoDirExists(t, filepath.Join(h.base, startID))
}

func TestEngineRecording(t *testing.T) {
	t.Parallel()

	t.Run("marks every item", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		e := h.engine(t, crawler.Settings{StartURL: startURL, Iterations: 2, Record: true}, titleEnricher{})

		_, err := e.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2}, h.session.marks)
		assert.Contains(t, h.session.journal, "record:start")
		assert.Equal(t, []string{"record:stop", "close"}, h.session.journal[len(h.session.journal)-2:])
	})

	t.Run("start failure is not fatal", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.session.recordErr = errors.New("ffmpeg: executable file not found in $PATH")
		e := h.engine(t, crawler.Settings{StartURL: startURL, Iterations: 1, Record: true}, titleEnricher{})

		summary, err := e.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Items)
		assert.Empty(t, h.session.marks)
		assert.NotContains(t, h.session.journal, "record:stop")
	})
}

func TestEngineSinkFailureIsIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.sink.err = errors.New("connection refused")
	e := h.engine(t, crawler.Settings{StartURL: startURL, Iterations: 1}, titleEnricher{})

	_, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, h.records(t), 2)
	assert.Len(t, h.sink.records, 2)
}
