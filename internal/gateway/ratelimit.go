package gateway

import (
	"time"

	"golang.org/x/time/rate"
)

// limiter wraps the token bucket guarding one tool. A nil inner limiter
// means the tool is unlimited.
type limiter struct {
	bucket *rate.Limiter
}

func newLimiter(tokensPerSecond float64, burst int) *limiter {
	if tokensPerSecond <= 0 {
		return &limiter{}
	}
	return &limiter{bucket: rate.NewLimiter(rate.Limit(tokensPerSecond), burst)}
}

// allow consumes one token when available. When the bucket is empty it
// consumes nothing and reports how long until the next token refills, so
// the caller can hand the reasoning loop a concrete retry hint instead of
// blocking it.
func (l *limiter) allow(now time.Time) (ok bool, retryAfter time.Duration) {
	if l.bucket == nil {
		return true, 0
	}
	if l.bucket.AllowN(now, 1) {
		return true, 0
	}
	res := l.bucket.ReserveN(now, 1)
	retryAfter = res.DelayFrom(now)
	res.CancelAt(now)
	return false, retryAfter
}
