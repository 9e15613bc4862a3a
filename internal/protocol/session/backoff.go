package session

import (
	"math"
	"math/rand"
	"time"
)

// NextBackoffDelay returns the wait before reconnect attempt N (1-based).
// With jitter the delay is drawn from [d/2, d].
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(cfg.InitialDelay) * math.Pow(math.Max(cfg.Multiplier, 1), float64(attempt-1))
	if cfg.MaxDelay > 0 {
		delay = math.Min(delay, float64(cfg.MaxDelay))
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = rng.Float64()
		}
		delay = delay/2 + delay/2*f
	}
	return time.Duration(delay)
}
