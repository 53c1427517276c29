package dispatch

import (
	"time"

	"golang.org/x/time/rate"
)

// NewLimiter spreads perMinute requests evenly over a minute. It returns nil,
// meaning unlimited, when perMinute < 1.
func NewLimiter(perMinute int) *rate.Limiter {
	if perMinute < 1 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}
