package memory

import (
	"math"
	"time"
)

// Decay policy, applied at read time only:
//
//	effective = strength * max(0.5^(age/halfLife), floor)
//
// where age runs from the last recall (or creation when never recalled).
// Recall adds a bounded boost to strength, so memories that keep coming up
// outrank equally similar ones that do not.

// lastTouched returns the instant decay is measured from.
func (e *Episode) lastTouched() time.Time {
	if e.LastRecalled != nil && e.LastRecalled.After(e.CreatedAt) {
		return *e.LastRecalled
	}
	return e.CreatedAt
}

// DecayFactor returns the multiplier applied to an episode's similarity.
func DecayFactor(e *Episode, now time.Time, halfLife time.Duration, floor float64) float64 {
	strength := e.Strength
	if strength <= 0 {
		strength = DefaultStrength
	}
	age := now.Sub(e.lastTouched())
	if age < 0 || halfLife <= 0 {
		age = 0
	}
	retention := 1.0
	if halfLife > 0 {
		retention = math.Pow(0.5, float64(age)/float64(halfLife))
	}
	if retention < floor {
		retention = floor
	}
	return strength * retention
}
