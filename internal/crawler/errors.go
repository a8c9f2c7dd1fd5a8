package crawler

import (
	"errors"
	"fmt"
)

// ErrFatal marks conditions after which the whole session must stop. The
// CLI maps it to exit status 2.
var ErrFatal = errors.New("fatal")

var (
	// ErrNoPlayer is returned when the player container is missing from the page.
	ErrNoPlayer = fmt.Errorf("%w: no video player element found", ErrFatal)
	// ErrNoStartID is returned when no item id can be parsed from the start URL.
	ErrNoStartID = fmt.Errorf("%w: unable to get video id from start url", ErrFatal)
	// ErrAdLivelock is returned when an ad is still showing after MaxAdChecks reads.
	ErrAdLivelock = fmt.Errorf("%w: ad still showing after max ad checks", ErrFatal)
)

// ErrElementTimeout is returned by a Page when a bounded element wait expires.
var ErrElementTimeout = errors.New("element wait timed out")
