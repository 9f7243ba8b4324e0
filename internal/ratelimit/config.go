// Package ratelimit bounds how many verifications a single client may start
// within a window.
package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// Limit defines the request budget for one client: at most MaxRequests in
// a burst, refilled evenly over Window. Zero values mean no limit.
type Limit struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// Enabled returns true if both the budget and the window are set.
func (l Limit) Enabled() bool {
	return l.MaxRequests > 0 && l.Window > 0
}

// every returns the refill rate of the token bucket.
func (l Limit) every() rate.Limit {
	return rate.Every(l.Window / time.Duration(l.MaxRequests))
}
