package api

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/autoplay-crawler/internal/progress"
)

// Session states reported by /status.
const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

// StatusSnapshot is the JSON body of GET /status.
type StatusSnapshot struct {
	SessionID  string     `json:"session_id,omitempty"`
	StartID    string     `json:"start_id,omitempty"`
	State      string     `json:"state"`
	Items      int        `json:"items"`
	LastURL    string     `json:"last_url,omitempty"`
	LastTitle  string     `json:"last_title,omitempty"`
	AdChecks   int        `json:"ad_checks"`
	AdSkips    int        `json:"ad_skips"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// StatusTracker folds progress events into the latest session snapshot. It
// implements progress.Sink.
type StatusTracker struct {
	mu   sync.RWMutex
	snap StatusSnapshot
}

var _ progress.Sink = (*StatusTracker)(nil)

// NewStatusTracker returns an idle tracker.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{snap: StatusSnapshot{State: StateIdle}}
}

// Consume applies each event in order.
func (t *StatusTracker) Consume(_ context.Context, batch []progress.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, evt := range batch {
		t.apply(evt)
	}
	return nil
}

func (t *StatusTracker) apply(evt progress.Event) {
	ts := evt.TS
	switch evt.Stage {
	case progress.StageSessionStart:
		t.snap = StatusSnapshot{
			SessionID: evt.SessionUUID().String(),
			StartID:   evt.StartID,
			State:     StateRunning,
			StartedAt: &ts,
		}
	case progress.StageItemReady:
		if evt.Order+1 > t.snap.Items {
			t.snap.Items = evt.Order + 1
		}
		t.snap.LastURL = evt.URL
		t.snap.LastTitle = evt.Title
		t.snap.AdChecks += evt.AdChecks
		t.snap.AdSkips += evt.AdSkips
	case progress.StageSessionDone:
		t.snap.State = StateSucceeded
		t.snap.FinishedAt = &ts
	case progress.StageSessionError:
		t.snap.State = StateFailed
		t.snap.FinishedAt = &ts
		t.snap.Error = evt.Note
	}
}

// Snapshot returns a copy of the current state.
func (t *StatusTracker) Snapshot() StatusSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// Close implements progress.Sink.
func (t *StatusTracker) Close(context.Context) error {
	return nil
}
