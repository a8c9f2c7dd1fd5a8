package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageSessionStart Stage = "SESSION_START"
	StageItemReady    Stage = "ITEM_READY"
	StageSessionDone  Stage = "SESSION_DONE"
	StageSessionError Stage = "SESSION_ERROR"
)

// Event captures a single crawl milestone.
type Event struct {
	// SessionID identifies the crawl run in 16-byte UUID form.
	SessionID [16]byte
	// TS is the UTC time recorded by the emitter.
	TS    time.Time
	Stage Stage
	// StartID is the id of the item the session started from.
	StartID string
	// Order is the ordinal of the item for ITEM_READY events.
	Order   int
	VideoID string
	URL     string
	Title   string
	// AdChecks counts how often the ad indicator was seen for this item.
	AdChecks int
	AdSkips  int
	Enriched bool
	// Dur is the readiness wait for items and the wall time for sessions.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.SessionID == [16]byte{} {
		return errors.New("session id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageSessionStart, StageSessionDone, StageSessionError:
	case StageItemReady:
		if e.Order < 0 {
			return errors.New("item order must be >= 0")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// SessionUUID converts the binary session id to uuid.UUID.
func (e Event) SessionUUID() uuid.UUID {
	return uuid.UUID(e.SessionID)
}
