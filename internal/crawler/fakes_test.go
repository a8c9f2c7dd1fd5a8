package crawler_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/autoplay-crawler/internal/crawler"
)

const startID = "aRcUVhVlSHg"

var startURL = "https://www.youtube.com/watch?v=" + startID

// fakeSession scripts a page through a sequence of items. Item 0 is the
// start page; every advance moves to the next item.
type fakeSession struct {
	mu sync.Mutex

	// missingPlayer lists items whose page has no player container.
	missingPlayer map[int]bool
	// adReads is how many class reads report an ad for each item.
	adReads map[int]int
	// skipVisible controls whether the skip control ever shows up.
	skipVisible bool
	// advanceErr fails the advance into the given item.
	advanceErr map[int]error
	// waitVisibleErr overrides the skip lookup result when set.
	waitVisibleErr error
	clickErr       error
	recordErr      error

	item        int
	classReads  map[int]int
	waitUntils  []string
	skipLookups []time.Duration
	clicks      int
	journal     []string
	marks       []int
	closed      bool
	recording   bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		missingPlayer: map[int]bool{},
		adReads:       map[int]int{},
		advanceErr:    map[int]error{},
		classReads:    map[int]int{},
	}
}

func itemID(item int) string {
	if item == 0 {
		return startID
	}
	return fmt.Sprintf("item%07d", item)
}

func (f *fakeSession) log(entry string) {
	f.journal = append(f.journal, entry)
}

func (f *fakeSession) Exists(_ context.Context, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch selector {
	case crawler.PlayerSelector:
		return !f.missingPlayer[f.item], nil
	case crawler.SkipButtonSelector:
		return f.skipVisible && f.clickErr == nil, nil
	}
	return false, nil
}

func (f *fakeSession) ClassList(_ context.Context, selector string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if selector != crawler.PlayerSelector {
		return nil, errors.New("unexpected selector")
	}
	f.classReads[f.item]++
	classes := []string{"html5-video-player", "playing-mode"}
	if f.classReads[f.item] <= f.adReads[f.item] {
		classes = append(classes, crawler.AdShowingClass)
	}
	return classes, nil
}

func (f *fakeSession) WaitUntil(_ context.Context, expression string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch expression {
	case crawler.MediaReadyExpression:
		f.waitUntils = append(f.waitUntils, "ready")
	case crawler.MediaStartedExpression:
		f.waitUntils = append(f.waitUntils, "started")
	default:
		return fmt.Errorf("unexpected expression %q", expression)
	}
	return nil
}

func (f *fakeSession) WaitVisible(_ context.Context, selector string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if selector != crawler.SkipButtonSelector {
		return errors.New("unexpected selector")
	}
	f.skipLookups = append(f.skipLookups, timeout)
	if f.waitVisibleErr != nil {
		return f.waitVisibleErr
	}
	if !f.skipVisible {
		return crawler.ErrElementTimeout
	}
	return nil
}

func (f *fakeSession) Click(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clickErr != nil {
		return f.clickErr
	}
	f.clicks++
	return nil
}

func (f *fakeSession) Evaluate(_ context.Context, expression string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !strings.Contains(expression, crawler.NextButtonSelector) {
		return fmt.Errorf("unexpected script %q", expression)
	}
	next := f.item + 1
	if err := f.advanceErr[next]; err != nil {
		return err
	}
	f.item = next
	f.log(fmt.Sprintf("advance:%d", next))
	return nil
}

func (f *fakeSession) Location(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return "https://www.youtube.com/watch?v=" + itemID(f.item), nil
}

func (f *fakeSession) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.item = 0
	f.log("navigate:" + url)
	return nil
}

func (f *fakeSession) Screenshot(context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log(fmt.Sprintf("screenshot:%d", f.item))
	return []byte("\x89PNG" + itemID(f.item)), nil
}

func (f *fakeSession) StartRecording(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recording = true
	f.log("record:start")
	return nil
}

func (f *fakeSession) MarkItem(order int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks = append(f.marks, order)
}

func (f *fakeSession) StopRecording(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recording = false
	f.log("record:stop")
	return nil
}

func (f *fakeSession) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.log("close")
	return nil
}

// journalStore wraps a ResultStore and writes its calls into the session
// journal so tests can assert causal ordering.
type journalStore struct {
	crawler.ResultStore
	session *fakeSession
}

func (s journalStore) Append(ctx context.Context, record crawler.VideoRecord) error {
	if err := s.ResultStore.Append(ctx, record); err != nil {
		return err
	}
	s.session.mu.Lock()
	s.session.log(fmt.Sprintf("append:%d", record.Order))
	s.session.mu.Unlock()
	return nil
}

// titleEnricher returns a titled record for every id.
type titleEnricher struct{}

func (titleEnricher) Enrich(_ context.Context, id string, order int) crawler.VideoRecord {
	return crawler.VideoRecord{Order: order, ID: id, Title: "title of " + id, Kind: "youtube#video"}
}

type recordingSink struct {
	mu      sync.Mutex
	records []crawler.VideoRecord
	refs    []crawler.SessionRef
	err     error
}

func (s *recordingSink) Consume(_ context.Context, ref crawler.SessionRef, record crawler.VideoRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	s.refs = append(s.refs, ref)
	return s.err
}

type stubExporter struct {
	calls []string
}

func (e *stubExporter) Export(_ context.Context, dir string, force bool) error {
	e.calls = append(e.calls, fmt.Sprintf("%s force=%t", dir, force))
	return nil
}
