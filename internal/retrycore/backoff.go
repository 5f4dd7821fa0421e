package retrycore

import (
	"math"
	"math/rand"
	"time"
)

// Profile is a named backoff configuration.
type Profile struct {
	Name        string
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	Factor      float64
}

// Profiles holds the five named backoff profiles. They are process-wide
// constants; callers select one by name via Core.Do.
var Profiles = map[string]Profile{
	"default": {Name: "default", MaxAttempts: 3, Base: 1 * time.Second, Cap: 60 * time.Second, Factor: 2},
	"network": {Name: "network", MaxAttempts: 5, Base: 2 * time.Second, Cap: 120 * time.Second, Factor: 2},
	"storage": {Name: "storage", MaxAttempts: 4, Base: 1500 * time.Millisecond, Cap: 90 * time.Second, Factor: 2},
	"ai":      {Name: "ai", MaxAttempts: 3, Base: 3 * time.Second, Cap: 180 * time.Second, Factor: 2},
	"quota":   {Name: "quota", MaxAttempts: 2, Base: 60 * time.Second, Cap: 300 * time.Second, Factor: 2},
}

// ProfileOrDefault looks up a named profile, falling back to "default" for
// an unknown name rather than panicking — ports pass profile names as plain
// strings so a typo should degrade gracefully, not crash a worker.
func ProfileOrDefault(name string) Profile {
	if p, ok := Profiles[name]; ok {
		return p
	}
	return Profiles["default"]
}

// Delay computes the backoff for the given 1-based attempt number:
// delay(n) = min(base * factor^(n-1), cap) * (1 + U[0, 0.1]).
func (p Profile) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.Base) * math.Pow(p.Factor, float64(attempt-1))
	capF := float64(p.Cap)
	if d > capF {
		d = capF
	}
	jitter := 1 + rand.Float64()*0.1
	return time.Duration(d * jitter)
}
