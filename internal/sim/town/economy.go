package town

import (
	"time"

	"paddlers.io/internal/sim/clock"
	"paddlers.io/internal/sim/tuning"
)

// Producer is a completed building that yields a resource.
type Producer struct {
	BuildingID  int64
	Resource    string
	RatePerHour int64
	Since       clock.Timestamp
}

// produced is the total whole units a producer has yielded by t. Using the
// running total keeps successive windows from losing fractions.
func (p Producer) produced(t clock.Timestamp) int64 {
	if t <= p.Since || p.RatePerHour <= 0 {
		return 0
	}
	elapsed := int64(t.Sub(p.Since) / time.Microsecond)
	return p.RatePerHour * elapsed / int64(time.Hour/time.Microsecond)
}

// Accrue returns the resources yielded over (from, to]. The result depends
// only on the window, so recomputing it for the same window is harmless.
func Accrue(producers []Producer, from, to clock.Timestamp) tuning.Price {
	var out tuning.Price
	if to <= from {
		return out
	}
	for _, p := range producers {
		n := p.produced(to) - p.produced(from)
		if n <= 0 {
			continue
		}
		switch p.Resource {
		case "feathers":
			out.Feathers += n
		case "sticks":
			out.Sticks += n
		case "logs":
			out.Logs += n
		}
	}
	return out
}
