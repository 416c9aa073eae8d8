package risk

import (
	"math"
	"testing"

	"github.com/qrpay-marketplace/backend/internal/models"
)

func factors(scores ...float64) []models.RiskFactor {
	out := make([]models.RiskFactor, len(scores))
	for i, s := range scores {
		out[i] = models.RiskFactor{Factor: "f", Score: s}
	}
	return out
}

func TestScoreEmptyIsNeutral(t *testing.T) {
	overall, rec := Score(nil, DefaultConfig())
	if overall != 0.5 {
		t.Errorf("overall = %v, want 0.5", overall)
	}
	if rec != RecommendFurtherReview {
		t.Errorf("rec = %q, want further_review", rec)
	}
}

func TestScoreBands(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   Recommendation
	}{
		{"all low approves", []float64{0.1, 0.2, 0.1}, RecommendApprove},
		{"all high rejects", []float64{0.9, 0.8, 0.95}, RecommendReject},
		{"middle needs review", []float64{0.5, 0.4, 0.6}, RecommendFurtherReview},
		{"boundary stays review", []float64{0.3}, RecommendFurtherReview},
		{"upper boundary stays review", []float64{0.7}, RecommendFurtherReview},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, rec := Score(factors(tt.scores...), DefaultConfig()); rec != tt.want {
				t.Errorf("rec = %q, want %q", rec, tt.want)
			}
		})
	}
}

func TestScoreWeightedMean(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = map[string]float64{"heavy": 3.0}
	fs := []models.RiskFactor{
		{Factor: "heavy", Score: 0.8},
		{Factor: "light", Score: 0.2},
	}
	overall, _ := Score(fs, cfg)
	want := (0.8*3 + 0.2*1) / 4
	if math.Abs(overall-want) > 1e-9 {
		t.Errorf("overall = %v, want %v", overall, want)
	}
}

func TestScoreMonotonic(t *testing.T) {
	// Adding a factor with score 1.0 never lowers the overall.
	bases := [][]float64{
		{},
		{0.1},
		{0.9, 0.2},
		{0.5, 0.5, 0.5},
		{0.99, 0.98},
	}
	cfg := DefaultConfig()
	for _, base := range bases {
		before, _ := Score(factors(base...), cfg)
		after, _ := Score(append(factors(base...), models.RiskFactor{Factor: "extra", Score: 1.0}), cfg)
		if after < before-1e-9 {
			t.Errorf("base %v: overall dropped from %v to %v after adding 1.0 factor", base, before, after)
		}
	}
}

func TestScoreCompromiseMinority(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = map[string]float64{"qr_verified": 2.0}

	// One high-weight factor disagrees with the rest: compromise.
	fs := []models.RiskFactor{
		{Factor: "qr_verified", Score: 0.9},
		{Factor: "history", Score: 0.3},
		{Factor: "velocity", Score: 0.35},
	}
	overall, rec := Score(fs, cfg)
	if overall < cfg.ApproveBelow || overall > cfg.RejectAbove {
		t.Fatalf("test setup: overall %v must fall in the review band", overall)
	}
	if rec != RecommendCompromise {
		t.Errorf("rec = %q, want compromise", rec)
	}

	// Same shape but the dissenter is lightweight: stays further review.
	light := []models.RiskFactor{
		{Factor: "other", Score: 0.9},
		{Factor: "history", Score: 0.3},
		{Factor: "velocity", Score: 0.35},
	}
	if _, rec := Score(light, cfg); rec != RecommendFurtherReview {
		t.Errorf("lightweight dissenter: rec = %q, want further_review", rec)
	}

	// Two dissenters: no minority, stays further review.
	two := []models.RiskFactor{
		{Factor: "qr_verified", Score: 0.9},
		{Factor: "history", Score: 0.3},
		{Factor: "velocity", Score: 0.35},
		{Factor: "device", Score: 0.95},
	}
	if _, rec := Score(two, cfg); rec == RecommendCompromise {
		t.Errorf("two dissenters must not yield compromise")
	}
}

func TestScoreClampsOutOfRange(t *testing.T) {
	fs := []models.RiskFactor{{Factor: "a", Score: 1.7}, {Factor: "b", Score: -0.4}}
	overall, _ := Score(fs, DefaultConfig())
	if overall < 0 || overall > 1 {
		t.Errorf("overall %v out of [0,1]", overall)
	}
}
