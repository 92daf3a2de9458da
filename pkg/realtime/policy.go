package realtime

import (
	"time"

	"github.com/grovetools/tether/config"
)

// Policy bounds reconnection: the delay doubles after each consecutive
// failure up to MaxDelay, and at most MaxAttempts reconnects are made.
type Policy struct {
	Delay       time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// PolicyFromConfig builds the reconnect policy from the realtime section.
func PolicyFromConfig(cfg config.RealtimeConfig) Policy {
	return Policy{
		Delay:       cfg.ReconnectDelay.Std(),
		MaxDelay:    cfg.MaxReconnectDelay.Std(),
		MaxAttempts: cfg.MaxReconnectAttempts,
	}
}

// Next returns the wait before reconnect number attempt (1-based) and false
// once the budget is spent.
func (p Policy) Next(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt > p.MaxAttempts {
		return 0, false
	}
	d := p.Delay
	for i := 1; i < attempt; i++ {
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d, true
}
