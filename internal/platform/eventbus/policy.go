package eventbus

import "time"

// Default resilience tunables. Chosen so a broker restart is ridden out
// without operator intervention while a dead broker is noticed quickly.
const (
	DefaultReconnectBaseDelay = time.Second
	DefaultReconnectMaxDelay  = 30 * time.Second
	DefaultConnectTimeout     = 10 * time.Second
	DefaultKeepAliveInterval  = 30 * time.Second
)

// ReconnectPolicy controls how a managed connection recovers from broker
// failures.
type ReconnectPolicy struct {
	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration
	// MaxDelay bounds the backoff.
	MaxDelay time.Duration
	// MaxAttempts caps consecutive failed attempts. 0 means retry forever.
	// When the cap is exceeded the connection transitions to StateEnded.
	MaxAttempts int
	// ConnectTimeout bounds each connection establishment attempt.
	ConnectTimeout time.Duration
	// KeepAliveInterval is how often an idle connection is pinged to detect
	// silent drops.
	KeepAliveInterval time.Duration
}

// DefaultReconnectPolicy returns the zero-configuration policy.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay:         DefaultReconnectBaseDelay,
		MaxDelay:          DefaultReconnectMaxDelay,
		MaxAttempts:       0,
		ConnectTimeout:    DefaultConnectTimeout,
		KeepAliveInterval: DefaultKeepAliveInterval,
	}
}

// normalized fills zero-valued fields with defaults so a partially specified
// policy behaves sensibly.
func (p ReconnectPolicy) normalized() ReconnectPolicy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultReconnectBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultReconnectMaxDelay
	}
	if p.ConnectTimeout <= 0 {
		p.ConnectTimeout = DefaultConnectTimeout
	}
	if p.KeepAliveInterval <= 0 {
		p.KeepAliveInterval = DefaultKeepAliveInterval
	}
	return p
}

// Delay computes the backoff before the given 1-based attempt:
// min(base * 2^(attempt-1), max).
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay || delay <= 0 {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Exhausted reports whether the given 1-based attempt exceeds the cap.
func (p ReconnectPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt > p.MaxAttempts
}
