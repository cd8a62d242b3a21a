package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is the package-level time source used for recency weighting and
// emitted-at stamps. Tests freeze it via SetClock for deterministic scores.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current time from the injected clock.
func Now() time.Time {
	return clock.Now()
}
