package recon

import (
	"github.com/forkline/reconciliation/internal/domain/entity"
)

// Scorer reduces a discrepancy list to a single confidence scalar in [0, 1].
// The reduction is deliberately monotone and explainable, not learned: every
// score can be reconstructed from the discrepancy list alone, which audit and
// supplier disputes depend on.
type Scorer struct{}

// NewScorer creates a scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score starts at 1.0, subtracts the severity penalty for each discrepancy
// and clamps the running total to [0, 1].
func (s *Scorer) Score(discrepancies []entity.Discrepancy) float64 {
	score := 1.0
	for _, d := range discrepancies {
		score -= d.Severity.Penalty()
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
