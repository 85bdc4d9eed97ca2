// Package system provides the wall clock.
package system

import (
	"time"

	"github.com/JakeFAU/leadpipe/internal/lead"
)

// Clock implements lead.Clock with UTC wall time.
type Clock struct{}

var _ lead.Clock = Clock{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
