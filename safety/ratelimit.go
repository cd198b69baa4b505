package safety

import (
	"time"

	"go.uber.org/zap"
)

type window struct {
	name  string
	limit int
	span  time.Duration
}

// RateLimiter enforces order-rate caps over three sliding windows. It keeps
// a bounded history of action timestamps; the history never needs more
// entries than the hourly limit.
//
// Check and Record are deliberately separate: admission checks run on every
// attempt, but only a successfully admitted order consumes a slot. The
// limiter is not safe for concurrent use on its own; the owning Guard
// serializes access.
type RateLimiter struct {
	windows    []window
	timestamps []time.Time
	maxHistory int
	now        func() time.Time
	log        *zap.Logger
}

// NewRateLimiter builds a limiter with the three configured caps.
func NewRateLimiter(perSecond, perMinute, perHour int, log *zap.Logger) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &RateLimiter{
		windows: []window{
			{name: "second", limit: perSecond, span: time.Second},
			{name: "minute", limit: perMinute, span: time.Minute},
			{name: "hour", limit: perHour, span: time.Hour},
		},
		timestamps: make([]time.Time, 0, perHour),
		maxHistory: perHour,
		now:        time.Now,
		log:        log,
	}
}

// Check reports whether another action fits under every window's cap.
// It purges history older than the largest window but records nothing.
func (r *RateLimiter) Check() bool {
	now := r.now()

	cutoff := now.Add(-time.Hour)
	for len(r.timestamps) > 0 && r.timestamps[0].Before(cutoff) {
		r.timestamps = r.timestamps[1:]
	}

	for _, w := range r.windows {
		since := now.Add(-w.span)
		count := 0
		for _, ts := range r.timestamps {
			if !ts.Before(since) {
				count++
			}
		}
		if count >= w.limit {
			r.log.Warn("rate limit exceeded",
				zap.String("window", w.name),
				zap.Int("limit", w.limit),
				zap.Int("current", count))
			return false
		}
	}

	return true
}

// Record consumes one slot at the current time.
func (r *RateLimiter) Record() {
	if r.maxHistory > 0 && len(r.timestamps) >= r.maxHistory {
		r.timestamps = r.timestamps[1:]
	}
	r.timestamps = append(r.timestamps, r.now())
}
