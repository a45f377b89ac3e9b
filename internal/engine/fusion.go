package engine

import (
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Fuser combines the rule and model scores and maps the result to a risk
// tier. Weights and tier boundaries come from configuration, never from
// hidden literals.
type Fuser struct {
	ruleWeight  float64
	modelWeight float64
	critical    float64
	high        float64
	medium      float64
}

// NewFuser builds a fuser from the scoring configuration.
func NewFuser(cfg domain.ScoringConfig) *Fuser {
	return &Fuser{
		ruleWeight:  cfg.RuleWeight,
		modelWeight: cfg.ModelWeight,
		critical:    cfg.CriticalThreshold,
		high:        cfg.HighThreshold,
		medium:      cfg.MediumThreshold,
	}
}

// Fuse combines the component scores, capped at 10. Rules carry the
// larger weight because they are auditable and regulator-facing.
func (f *Fuser) Fuse(ruleScore, modelScore float64) float64 {
	combined := ruleScore*f.ruleWeight + modelScore*f.modelWeight
	return math.Min(combined, 10.0)
}

// Classify maps a final score to its tier. The intervals are closed-open
// except the top, so every score lands in exactly one tier.
func (f *Fuser) Classify(score float64) string {
	switch {
	case score >= f.critical:
		return domain.TierCritical
	case score >= f.high:
		return domain.TierHigh
	case score >= f.medium:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}

// round2 rounds to two decimal places for the reported final score.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
