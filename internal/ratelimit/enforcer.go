package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

const maxKeys = 10000

// CheckResult is the outcome of a rate limit check.
type CheckResult struct {
	Exceeded   bool
	Key        string
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	Reason     string
}

// Limiter keeps one token bucket per client key. Safe for concurrent use.
type Limiter struct {
	limit Limit
	now   func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

// New creates a limiter. A disabled limit allows everything.
func New(limit Limit) *Limiter {
	return &Limiter{
		limit:    limit,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

// Limit returns the configured limit.
func (l *Limiter) Limit() Limit {
	return l.limit
}

// Allow takes one token from key's bucket. When the bucket is empty nothing
// is consumed and RetryAfter says when the next token arrives.
func (l *Limiter) Allow(key string) CheckResult {
	if l == nil || !l.limit.Enabled() {
		return CheckResult{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.visitors) >= maxKeys {
		l.prune(now)
	}
	v := l.visitor(key, now)

	r := v.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return CheckResult{
			Exceeded:   true,
			Key:        key,
			Limit:      l.limit.MaxRequests,
			RetryAfter: delay,
			Reason: fmt.Sprintf("rate limit exceeded: %d requests per %s",
				l.limit.MaxRequests, l.limit.Window),
		}
	}
	return CheckResult{
		Key:       key,
		Limit:     l.limit.MaxRequests,
		Remaining: int(v.limiter.TokensAt(now)),
	}
}
