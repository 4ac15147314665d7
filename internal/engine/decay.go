package engine

// Linear decay:
//   - ageDays is the number of whole days between now and the rating
//     (negative for ratings dated in the future)
//   - weight = 1 - ageDays/decayDays, clamped to [0, 1]
//   - a rating exactly decayDays old, or older, contributes nothing
//   - future ratings count at full weight, never more

import (
	"math"
	"time"
)

// DefaultDecayDays is the decay window used when none (or a bad one) is given.
const DefaultDecayDays = 30.0

// AgeDays returns the whole days elapsed from ts to now, rounded toward
// negative infinity.
func AgeDays(now, ts time.Time) float64 {
	return math.Floor(now.Sub(ts).Hours() / 24)
}

// Weight returns the linear decay weight of a rating ageDays old.
func Weight(ageDays, decayDays float64) float64 {
	w := 1.0 - ageDays/decayDays
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}

func normalizeDecay(decayDays float64) float64 {
	if math.IsNaN(decayDays) || math.IsInf(decayDays, 0) || decayDays <= 0 {
		return DefaultDecayDays
	}
	return decayDays
}
