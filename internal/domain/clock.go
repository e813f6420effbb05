package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

var clock = clockwork.NewRealClock()

// SetClock replaces the time source used for processed_at stamps. Pass nil to
// go back to the real clock.
func SetClock(c clockwork.Clock) {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	clock = c
}

// stamp is the processing time recorded on raster events, in UTC and
// millisecond precision so it survives a JSON round trip unchanged.
func stamp() time.Time {
	return clock.Now().UTC().Truncate(time.Millisecond)
}
