// Package system provides the wall clock used for progress timestamps.
package system

import (
	"time"

	"github.com/JakeFAU/autoplay-crawler/internal/crawler"
)

// DefaultPrecision matches Postgres timestamptz, so a timestamp read back
// from the session table equals the one emitted.
const DefaultPrecision = time.Microsecond

// Clock implements crawler.Clock with UTC times truncated to a precision.
type Clock struct {
	precision time.Duration
}

var _ crawler.Clock = (*Clock)(nil)

// New creates a Clock with DefaultPrecision.
func New() *Clock {
	return &Clock{precision: DefaultPrecision}
}

// WithPrecision creates a Clock truncating to p. Zero or negative keeps
// full resolution.
func WithPrecision(p time.Duration) *Clock {
	return &Clock{precision: p}
}

// Now returns the current UTC time. The monotonic reading is stripped.
func (c *Clock) Now() time.Time {
	now := time.Now().UTC()
	if c.precision > 0 {
		return now.Truncate(c.precision)
	}
	return now.Round(0)
}
