package connection

import "time"

// ReconnectPolicy decides how long to wait before reconnect attempt n
// (0 for the first retry after a healthy connection).
type ReconnectPolicy interface {
	Delay(attempt int) time.Duration
}

// FixedDelay waits the same duration before every attempt.
type FixedDelay time.Duration

// DefaultReconnectDelay is the delay used when no policy is configured.
const DefaultReconnectDelay = 5 * time.Second

// Delay implements ReconnectPolicy.
func (d FixedDelay) Delay(int) time.Duration {
	return time.Duration(d)
}

// ExponentialBackoff doubles the wait per attempt, capped at Max.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay implements ReconnectPolicy. A zero Max caps the wait at one hour.
func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	limit := b.Max
	if limit <= 0 {
		limit = time.Hour
	}

	wait := b.Base
	for i := 0; i < attempt && wait < limit; i++ {
		wait *= 2
	}
	if wait > limit {
		wait = limit
	}
	return wait
}
