package crawler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
)

// Player selectors and readiness predicates.
const (
	PlayerSelector     = "#movie_player"
	SkipButtonSelector = "button.ytp-skip-ad-button"
	AdShowingClass     = "ad-showing"

	// MediaReadyExpression holds once more than metadata is buffered.
	MediaReadyExpression = `(() => { const v = document.querySelector("video.html5-main-video"); return !!v && v.readyState > 2; })()`
	// MediaStartedExpression holds once playback has advanced past one second,
	// which separates a loaded-but-paused ad from content that is playing.
	MediaStartedExpression = `(() => { const v = document.querySelector("video.html5-main-video"); return !!v && v.currentTime > 1; })()`
)

// DefaultSkipTimeout bounds each lookup of the skip-ad control.
const DefaultSkipTimeout = 5 * time.Second

type watchState int

const (
	stateLocatingPlayer watchState = iota
	stateAwaitingReady
	stateAwaitingStart
	stateCheckingForAd
	stateAttemptingSkip
	stateReady
)

func (s watchState) String() string {
	switch s {
	case stateLocatingPlayer:
		return "locating_player"
	case stateAwaitingReady:
		return "awaiting_ready"
	case stateAwaitingStart:
		return "awaiting_start"
	case stateCheckingForAd:
		return "checking_for_ad"
	case stateAttemptingSkip:
		return "attempting_skip"
	case stateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type skipOutcome int

const (
	skipClicked skipOutcome = iota
	skipUnavailable
)

// Watcher blocks until the page shows genuine content playback, clicking
// through ad interstitials along the way. It holds no per-item state.
type Watcher struct {
	skipTimeout time.Duration
	maxAdChecks int
	logger      *zap.Logger
}

// NewWatcher builds a Watcher from the session settings.
func NewWatcher(settings Settings, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := settings.SkipTimeout
	if timeout <= 0 {
		timeout = DefaultSkipTimeout
	}
	return &Watcher{
		skipTimeout: timeout,
		maxAdChecks: settings.MaxAdChecks,
		logger:      logger,
	}
}

// WaitForPlayback runs the readiness state machine against page. It returns
// ErrNoPlayer when the player container is absent and ErrAdLivelock when the
// configured ad check cap is exceeded; both wrap ErrFatal.
func (w *Watcher) WaitForPlayback(ctx context.Context, page Page) (Playback, error) {
	start := time.Now()
	var pb Playback
	state := stateLocatingPlayer
	for {
		next, err := w.step(ctx, page, state, &pb)
		if err != nil {
			return pb, err
		}
		if next != state {
			w.logger.Debug("watcher transition",
				zap.Stringer("from", state),
				zap.Stringer("to", next),
				zap.Int("ad_checks", pb.AdChecks),
			)
		}
		if next == stateReady {
			pb.Waited = time.Since(start)
			return pb, nil
		}
		state = next
	}
}

func (w *Watcher) step(ctx context.Context, page Page, state watchState, pb *Playback) (watchState, error) {
	switch state {
	case stateLocatingPlayer:
		ok, err := page.Exists(ctx, PlayerSelector)
		if err != nil {
			return state, fmt.Errorf("locate player: %w", err)
		}
		if !ok {
			return state, ErrNoPlayer
		}
		return stateAwaitingReady, nil

	case stateAwaitingReady:
		if err := page.WaitUntil(ctx, MediaReadyExpression); err != nil {
			return state, fmt.Errorf("wait media ready: %w", err)
		}
		return stateAwaitingStart, nil

	case stateAwaitingStart:
		if err := page.WaitUntil(ctx, MediaStartedExpression); err != nil {
			return state, fmt.Errorf("wait media started: %w", err)
		}
		return stateCheckingForAd, nil

	case stateCheckingForAd:
		classes, err := page.ClassList(ctx, PlayerSelector)
		if err != nil {
			return state, fmt.Errorf("read player classes: %w", err)
		}
		if !slices.Contains(classes, AdShowingClass) {
			return stateReady, nil
		}
		pb.AdChecks++
		if w.maxAdChecks > 0 && pb.AdChecks >= w.maxAdChecks {
			return state, fmt.Errorf("%w (%d checks)", ErrAdLivelock, pb.AdChecks)
		}
		return stateAttemptingSkip, nil

	case stateAttemptingSkip:
		outcome, err := w.trySkip(ctx, page)
		if err != nil {
			return state, err
		}
		if outcome == skipClicked {
			pb.SkipsClicked++
			return stateAwaitingReady, nil
		}
		return stateCheckingForAd, nil
	}
	return state, fmt.Errorf("unexpected watcher state %s", state)
}

// trySkip looks for the skip control within the configured bound. A missing
// control is a normal outcome: unskippable ads end on their own.
func (w *Watcher) trySkip(ctx context.Context, page Page) (skipOutcome, error) {
	err := page.WaitVisible(ctx, SkipButtonSelector, w.skipTimeout)
	switch {
	case errors.Is(err, ErrElementTimeout):
		w.logger.Debug("skip control not available yet")
		return skipUnavailable, nil
	case err != nil:
		return skipUnavailable, fmt.Errorf("wait skip control: %w", err)
	}
	if err := page.Click(ctx, SkipButtonSelector); err != nil {
		// The ad may have ended between the wait and the click.
		still, existsErr := page.Exists(ctx, SkipButtonSelector)
		if existsErr == nil && !still {
			return skipUnavailable, nil
		}
		return skipUnavailable, fmt.Errorf("click skip control: %w", err)
	}
	return skipClicked, nil
}
