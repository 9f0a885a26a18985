// Package score holds the pure scoring functions behind the leaderboard and
// the feed ranking. Nothing here touches a store or a cache.
package score

import (
	"math"
	"time"
)

// Leaderboard weights.
const (
	participationWeight = 0.4
	authorityWeight     = 0.6
	consistencyWeight   = 0.3
)

// TrustDecayFactor is applied on every velocity penalty or sweep hit.
const TrustDecayFactor = 0.9

const (
	minTrust = 0.05
	maxTrust = 1.0
)

// Participant is the acting user's side of the leaderboard formula.
type Participant struct {
	StarsGiven  int64
	StreakCount int64
	TrustScore  float64
}

// OwnerAggregate is the authority side: stars received by the repositories
// the user owns.
type OwnerAggregate struct {
	StarsReceived int64
}

// LeaderboardScore combines participation, authority and consistency,
// scaled by trust. Counters below zero are treated as zero.
func LeaderboardScore(p Participant, owner OwnerAggregate) float64 {
	given := float64(max(p.StarsGiven, 0))
	received := float64(max(owner.StarsReceived, 0))
	streak := float64(max(p.StreakCount, 0))

	raw := math.Log10(given+1)*participationWeight +
		math.Log2(received+1)*authorityWeight +
		streak*consistencyWeight

	return raw * ClampTrust(p.TrustScore)
}

// VisibilityScore is log-scaled engagement divided by a polynomial age
// penalty. The denominator is floored at 1 so clock skew cannot inflate it.
func VisibilityScore(engagement, ageHours float64) float64 {
	if engagement <= 0 {
		return 0
	}
	denom := math.Pow(math.Max(1, ageHours+2), 1.5)
	return math.Log2(engagement+1) / denom
}

// AgeHours is the fractional number of hours between createdAt and now.
func AgeHours(createdAt, now time.Time) float64 {
	return now.Sub(createdAt).Hours()
}

// DecayTrust applies one multiplicative decay step.
func DecayTrust(trust float64) float64 {
	return ClampTrust(trust * TrustDecayFactor)
}

// ClampTrust bounds trust to [0.05, 1.0]. NaN clamps to the floor.
func ClampTrust(trust float64) float64 {
	if math.IsNaN(trust) || trust < minTrust {
		return minTrust
	}
	if trust > maxTrust {
		return maxTrust
	}
	return trust
}

// Finite reports whether v can be safely persisted and indexed.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
