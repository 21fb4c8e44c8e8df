package collectors

import "math"

// Bucket helpers shared by the collectors. All of them compare a recent
// per-period rate against a historical one and map the ratio onto a small
// label vocabulary the classifier prompts understand.

// growthVelocity is the relative growth of recent over historical. With no
// historical signal the velocity is 0 when recent is also empty, else 1.
func growthVelocity(recent, historical float64) float64 {
	if historical == 0 {
		if recent == 0 {
			return 0.0
		}
		return 1.0
	}
	return (recent - historical) / historical
}

// rateMomentum buckets the recent/historical rate ratio: 50% faster is
// accelerating, below half speed is decelerating.
func rateMomentum(recentRate, historicalRate float64) string {
	if historicalRate == 0 {
		if recentRate == 0 {
			return "steady"
		}
		return "accelerating"
	}
	ratio := recentRate / historicalRate
	switch {
	case ratio > 1.5:
		return "accelerating"
	case ratio < 0.5:
		return "decelerating"
	default:
		return "steady"
	}
}

// rateTrend buckets the relative difference of recent over historical with a
// 30% band either way.
func rateTrend(recentRate, historicalRate float64) string {
	if historicalRate == 0 {
		if recentRate == 0 {
			return "stable"
		}
		return "increasing"
	}
	diff := (recentRate - historicalRate) / historicalRate
	switch {
	case diff > 0.3:
		return "increasing"
	case diff < -0.3:
		return "decreasing"
	default:
		return "stable"
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
