package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// visitor is the token bucket for one client key.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitor returns the bucket for key, creating a full one if necessary.
func (l *Limiter) visitor(key string, now time.Time) *visitor {
	v := l.visitors[key]
	if v == nil {
		v = &visitor{limiter: rate.NewLimiter(l.limit.every(), l.limit.MaxRequests)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v
}

// prune drops visitors idle for a whole window; their buckets would be full
// again anyway. Called when the tracked key count reaches maxKeys.
func (l *Limiter) prune(now time.Time) {
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) >= l.limit.Window {
			delete(l.visitors, k)
		}
	}
}
