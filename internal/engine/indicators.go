package engine

import (
	"github.com/opensource-finance/harrier/internal/domain"
)

// ruleIndicators maps rule names to their human-readable phrases.
// Unrecognized rule names are skipped, so new rules can ship before their
// descriptions do.
var ruleIndicators = map[string]string{
	"high_amount_threshold": "Unusually high transaction amount",
	"foreign_transaction":   "Transaction outside Ireland",
	"unusual_time":          "Transaction at unusual time",
	"velocity_check":        "Multiple rapid transactions",
	"new_merchant":          "First transaction with this merchant",
}

// Feature-driven indicator phrases, additive to the rule phrases.
const (
	indicatorHighAmount       = "Amount significantly above normal pattern"
	indicatorHighRiskCountry  = "Transaction from high-risk country"
	indicatorHighRiskMerchant = "High-risk merchant category"
)

// Indicators translates triggered rules and notable feature values into
// human-readable phrases, de-duplicated in insertion order so the output
// is reproducible for a given input.
func Indicators(triggeredRules []string, features domain.FeatureVector) []string {
	out := make([]string, 0, len(triggeredRules)+3)
	seen := make(map[string]struct{}, len(triggeredRules)+3)

	add := func(phrase string) {
		if _, dup := seen[phrase]; dup {
			return
		}
		seen[phrase] = struct{}{}
		out = append(out, phrase)
	}

	for _, name := range triggeredRules {
		if phrase, ok := ruleIndicators[name]; ok {
			add(phrase)
		}
	}

	if features[domain.FeatureLogAmount] > 8 {
		add(indicatorHighAmount)
	}
	if features[domain.FeatureCountryRisk] == 2 {
		add(indicatorHighRiskCountry)
	}
	if features[domain.FeatureMerchantRisk] == 2 {
		add(indicatorHighRiskMerchant)
	}

	return out
}
