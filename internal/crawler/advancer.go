package crawler

import (
	"context"
	"fmt"
)

// NextButtonSelector is the end-screen "play next" control.
const NextButtonSelector = ".ytp-autonav-endscreen-upnext-play-button"

const advanceScript = `document.querySelector("` + NextButtonSelector + `").click()`

// NextButtonAdvancer clicks the autoplay "up next" control through script
// evaluation, which works even while the end screen is still animating in.
type NextButtonAdvancer struct{}

// Advance triggers the next suggested item. A missing control surfaces as
// an evaluation error and aborts the run.
func (NextButtonAdvancer) Advance(ctx context.Context, page Page) error {
	if err := page.Evaluate(ctx, advanceScript); err != nil {
		return fmt.Errorf("advance to next item: %w", err)
	}
	return nil
}
