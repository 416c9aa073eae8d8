package risk

import "github.com/qrpay-marketplace/backend/internal/models"

// Recommendations
const (
	RecommendApprove       Recommendation = "approve"
	RecommendReject        Recommendation = "reject"
	RecommendFurtherReview Recommendation = "further_review"
	RecommendCompromise    Recommendation = "compromise"
)

type Recommendation string

// Config holds the tunable pieces of the aggregator. Weights and
// thresholds come from configuration, never code.
type Config struct {
	// Weights per factor name; unlisted factors weigh 1.0.
	Weights map[string]float64
	// overall < ApproveBelow recommends approve; overall > RejectAbove
	// recommends reject; anything between is further review.
	ApproveBelow float64
	RejectAbove  float64
	// Minimum weight a sole dissenting factor must carry before the
	// recommendation becomes compromise instead of further review.
	CompromiseMinWeight float64
}

// DefaultConfig returns the documented default tuning.
func DefaultConfig() Config {
	return Config{
		Weights:             map[string]float64{},
		ApproveBelow:        0.3,
		RejectAbove:         0.7,
		CompromiseMinWeight: 1.5,
	}
}

func (c Config) weight(factor string) float64 {
	if w, ok := c.Weights[factor]; ok && w > 0 {
		return w
	}
	return 1.0
}

// Score combines weighted risk factors into a 0..1 overall score and a
// recommendation. Pure function: no I/O, no side effects.
//
// An empty factor list yields the neutral 0.5 and further review. The
// compromise recommendation fires only when the banded result would be
// further review, at least three factors are present, and partitioning
// the factors by which side of 0.5 their score falls on leaves exactly
// one factor alone on its side with weight >= CompromiseMinWeight.
func Score(factors []models.RiskFactor, cfg Config) (float64, Recommendation) {
	if len(factors) == 0 {
		return 0.5, RecommendFurtherReview
	}

	overall := weightedMean(factors, cfg)

	var rec Recommendation
	switch {
	case overall < cfg.ApproveBelow:
		rec = RecommendApprove
	case overall > cfg.RejectAbove:
		rec = RecommendReject
	default:
		rec = RecommendFurtherReview
	}

	if rec == RecommendFurtherReview && len(factors) >= 3 {
		if i, ok := soleDissenter(factors); ok && cfg.weight(factors[i].Factor) >= cfg.CompromiseMinWeight {
			rec = RecommendCompromise
		}
	}

	return overall, rec
}

func weightedMean(factors []models.RiskFactor, cfg Config) float64 {
	var sum, total float64
	for _, f := range factors {
		w := cfg.weight(f.Factor)
		sum += clamp01(f.Score) * w
		total += w
	}
	if total == 0 {
		return 0.5
	}
	return sum / total
}

// soleDissenter partitions factors by which side of 0.5 they score on
// and returns the index of the single factor alone on its side, if any.
func soleDissenter(factors []models.RiskFactor) (int, bool) {
	var high, low []int
	for i, f := range factors {
		if clamp01(f.Score) > 0.5 {
			high = append(high, i)
		} else {
			low = append(low, i)
		}
	}
	if len(high) == 1 && len(low) >= 2 {
		return high[0], true
	}
	if len(low) == 1 && len(high) >= 2 {
		return low[0], true
	}
	return -1, false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
