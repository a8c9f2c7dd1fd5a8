package crawler

import (
	"context"
	"time"
)

// Page is the part of the session handle the watcher and advancer drive.
// Every call is a round trip to the browser.
type Page interface {
	// Exists reports whether selector matches a node right now, without waiting.
	Exists(ctx context.Context, selector string) (bool, error)
	// ClassList returns the whitespace separated class tokens of selector.
	ClassList(ctx context.Context, selector string) ([]string, error)
	// WaitUntil blocks until the JavaScript expression is truthy.
	WaitUntil(ctx context.Context, expression string) error
	// WaitVisible waits up to timeout for selector to become visible and
	// returns ErrElementTimeout when it does not.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Click clicks the first node matching selector.
	Click(ctx context.Context, selector string) error
	// Evaluate runs a script against the page document.
	Evaluate(ctx context.Context, expression string) error
	// Location returns the page's current URL.
	Location(ctx context.Context) (string, error)
}

// Session owns one browser and one page for the lifetime of a crawl.
type Session interface {
	Page
	Navigate(ctx context.Context, url string) error
	Screenshot(ctx context.Context) ([]byte, error)
	StartRecording(ctx context.Context, path string) error
	MarkItem(order int)
	StopRecording(ctx context.Context) error
	Close(ctx context.Context) error
}

// PlaybackWatcher gates on genuine content playback.
type PlaybackWatcher interface {
	WaitForPlayback(ctx context.Context, page Page) (Playback, error)
}

// Advancer moves the page to the next suggested item.
type Advancer interface {
	Advance(ctx context.Context, page Page) error
}

// Enricher turns an item id into a VideoRecord. Implementations must be
// total: failures degrade to MinimalRecord instead of returning an error.
type Enricher interface {
	Enrich(ctx context.Context, id string, order int) VideoRecord
}

// ResultStore persists the ordered records and per-item imagery of one session.
type ResultStore interface {
	Initialize(ctx context.Context, sessionKey string) error
	Append(ctx context.Context, record VideoRecord) error
	SaveScreenshot(ctx context.Context, order int, png []byte) (string, error)
	Dir() string
	RecordingPath() string
}

// SessionRef identifies the session a record belongs to.
type SessionRef struct {
	ID      [16]byte
	StartID string
}

// RecordSink receives a copy of every persisted record (database mirrors,
// notifications). Failures never abort the crawl.
type RecordSink interface {
	Consume(ctx context.Context, session SessionRef, record VideoRecord) error
}

// Exporter converts a finished session directory into a tabular file.
type Exporter interface {
	Export(ctx context.Context, sessionDir string, force bool) error
}

// ArtifactUploader copies a finished session directory somewhere durable.
type ArtifactUploader interface {
	Upload(ctx context.Context, dir string, sessionKey string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces session run ids.
type IDGenerator interface {
	NewSessionID() ([16]byte, error)
}
