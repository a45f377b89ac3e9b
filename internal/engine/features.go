// Package engine implements the Harrier risk-scoring core: feature
// extraction, rule evaluation, statistical scoring, score fusion, and
// indicator generation, orchestrated behind a single Analyze entry point.
package engine

import (
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Extractor converts raw transaction events into fixed-length feature
// vectors. Extraction is deterministic and total: malformed or missing
// fields fall back to documented defaults, never to NaN/Inf.
type Extractor struct {
	homeCountry    string
	trustedBloc    map[string]struct{}
	highRiskMerch  map[string]struct{}
	defaultBalance float64
}

// NewExtractor builds an extractor from the scoring configuration.
func NewExtractor(cfg domain.ScoringConfig) *Extractor {
	bloc := make(map[string]struct{}, len(cfg.TrustedBloc))
	for _, c := range cfg.TrustedBloc {
		bloc[c] = struct{}{}
	}
	merch := make(map[string]struct{}, len(cfg.HighRiskMerchantCategories))
	for _, m := range cfg.HighRiskMerchantCategories {
		merch[m] = struct{}{}
	}
	balance := cfg.DefaultAccountBalance
	if balance <= 0 {
		balance = 10000
	}
	return &Extractor{
		homeCountry:    cfg.HomeCountry,
		trustedBloc:    bloc,
		highRiskMerch:  merch,
		defaultBalance: balance,
	}
}

var channelCodes = map[string]float64{
	domain.ChannelOnline: 1,
	domain.ChannelATM:    2,
	domain.ChannelPOS:    3,
	domain.ChannelMobile: 4,
}

var kindCodes = map[string]float64{
	domain.KindDebit:    1,
	domain.KindCredit:   2,
	domain.KindTransfer: 3,
}

// Extract maps a transaction event to its feature vector. Pure given the
// event's timestamp; the orchestrator guarantees a timestamp is set.
func (x *Extractor) Extract(event *domain.TransactionEvent) domain.FeatureVector {
	var f domain.FeatureVector

	amount := event.Amount
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		amount = 0
	}
	f[domain.FeatureLogAmount] = math.Log1p(amount)

	ts := event.Timestamp
	f[domain.FeatureHour] = float64(ts.Hour())
	// time.Weekday is Sunday=0; scoring uses Monday=0.
	f[domain.FeatureDayOfWeek] = float64((int(ts.Weekday()) + 6) % 7)

	if code, ok := channelCodes[event.Channel]; ok {
		f[domain.FeatureChannel] = code
	} else {
		f[domain.FeatureChannel] = 3
	}

	f[domain.FeatureCountryRisk] = x.countryRisk(event.Country)

	if code, ok := kindCodes[event.Kind]; ok {
		f[domain.FeatureKind] = code
	} else {
		f[domain.FeatureKind] = 1
	}

	if _, ok := x.highRiskMerch[event.MerchantCategory]; ok {
		f[domain.FeatureMerchantRisk] = 2
	} else {
		f[domain.FeatureMerchantRisk] = 1
	}

	balance := x.defaultBalance
	if event.AccountBalance != nil && !math.IsNaN(*event.AccountBalance) && !math.IsInf(*event.AccountBalance, 0) {
		balance = *event.AccountBalance
	}
	ratio := amount / math.Max(balance, 1)
	f[domain.FeatureBalanceRatio] = clamp(ratio, 0, 2)

	return f
}

func (x *Extractor) countryRisk(country string) float64 {
	switch {
	case country == "" || country == x.homeCountry:
		return 0
	default:
		if _, ok := x.trustedBloc[country]; ok {
			return 1
		}
		return 2
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
