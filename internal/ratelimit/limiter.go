// Package ratelimit bounds the rate of inbound signaling messages per
// connection.
package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// Clock abstracts time.Now so limiter behavior is deterministic in tests.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// MessageLimiter is a token-bucket limiter for discrete messages. The burst
// equals the per-second rate, so a client may send up to one second's worth
// of messages at once but no more.
type MessageLimiter struct {
	clock   Clock
	limiter *rate.Limiter
}

// NewMessageLimiter returns a limiter allowing perSecond messages per second.
// perSecond <= 0 disables limiting.
func NewMessageLimiter(clock Clock, perSecond int) *MessageLimiter {
	if clock == nil {
		clock = RealClock{}
	}
	if perSecond <= 0 {
		return &MessageLimiter{clock: clock, limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	return &MessageLimiter{
		clock:   clock,
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
	}
}

// Allow reports whether one more message may be accepted now.
func (l *MessageLimiter) Allow() bool {
	return l.limiter.AllowN(l.clock.Now(), 1)
}
