package engine

import (
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func testEvent() *domain.TransactionEvent {
	return &domain.TransactionEvent{
		ID:        "tx-001",
		TenantID:  "tenant-a",
		AccountID: "acct-001",
		Amount:    100,
		Currency:  "EUR",
		Kind:      domain.KindDebit,
		Channel:   domain.ChannelPOS,
		Country:   "IE",
		Timestamp: time.Date(2026, 3, 4, 14, 30, 0, 0, time.UTC), // Wednesday
	}
}

func TestExtractPositions(t *testing.T) {
	x := NewExtractor(domain.DefaultScoringConfig())
	event := testEvent()
	event.Amount = 2500
	event.Channel = domain.ChannelOnline
	event.Kind = domain.KindTransfer
	event.Country = "US"
	event.MerchantCategory = "gambling"

	f := x.Extract(event)

	if got, want := f[domain.FeatureLogAmount], math.Log1p(2500); got != want {
		t.Errorf("log amount = %v, want %v", got, want)
	}
	if f[domain.FeatureHour] != 14 {
		t.Errorf("hour = %v, want 14", f[domain.FeatureHour])
	}
	if f[domain.FeatureDayOfWeek] != 2 {
		t.Errorf("day of week = %v, want 2 (Wednesday)", f[domain.FeatureDayOfWeek])
	}
	if f[domain.FeatureChannel] != 1 {
		t.Errorf("channel = %v, want 1 (online)", f[domain.FeatureChannel])
	}
	if f[domain.FeatureCountryRisk] != 2 {
		t.Errorf("country risk = %v, want 2 (US)", f[domain.FeatureCountryRisk])
	}
	if f[domain.FeatureKind] != 3 {
		t.Errorf("kind = %v, want 3 (transfer)", f[domain.FeatureKind])
	}
	if f[domain.FeatureMerchantRisk] != 2 {
		t.Errorf("merchant risk = %v, want 2 (gambling)", f[domain.FeatureMerchantRisk])
	}
}

func TestExtractDefaults(t *testing.T) {
	x := NewExtractor(domain.DefaultScoringConfig())

	t.Run("unknown channel defaults to pos", func(t *testing.T) {
		event := testEvent()
		event.Channel = "carrier-pigeon"
		f := x.Extract(event)
		if f[domain.FeatureChannel] != 3 {
			t.Errorf("channel = %v, want 3", f[domain.FeatureChannel])
		}
	})

	t.Run("unknown kind defaults to debit", func(t *testing.T) {
		event := testEvent()
		event.Kind = "wire"
		f := x.Extract(event)
		if f[domain.FeatureKind] != 1 {
			t.Errorf("kind = %v, want 1", f[domain.FeatureKind])
		}
	})

	t.Run("home country scores zero", func(t *testing.T) {
		event := testEvent()
		event.Country = "IE"
		f := x.Extract(event)
		if f[domain.FeatureCountryRisk] != 0 {
			t.Errorf("country risk = %v, want 0", f[domain.FeatureCountryRisk])
		}
	})

	t.Run("trusted bloc scores one", func(t *testing.T) {
		event := testEvent()
		event.Country = "FR"
		f := x.Extract(event)
		if f[domain.FeatureCountryRisk] != 1 {
			t.Errorf("country risk = %v, want 1", f[domain.FeatureCountryRisk])
		}
	})

	t.Run("missing country treated as home", func(t *testing.T) {
		event := testEvent()
		event.Country = ""
		f := x.Extract(event)
		if f[domain.FeatureCountryRisk] != 0 {
			t.Errorf("country risk = %v, want 0", f[domain.FeatureCountryRisk])
		}
	})

	t.Run("unknown merchant category is non-high-risk", func(t *testing.T) {
		event := testEvent()
		event.MerchantCategory = "books"
		f := x.Extract(event)
		if f[domain.FeatureMerchantRisk] != 1 {
			t.Errorf("merchant risk = %v, want 1", f[domain.FeatureMerchantRisk])
		}
	})
}

func TestExtractBalanceRatio(t *testing.T) {
	x := NewExtractor(domain.DefaultScoringConfig())

	t.Run("explicit balance", func(t *testing.T) {
		event := testEvent()
		event.Amount = 500
		balance := 1000.0
		event.AccountBalance = &balance
		f := x.Extract(event)
		if f[domain.FeatureBalanceRatio] != 0.5 {
			t.Errorf("ratio = %v, want 0.5", f[domain.FeatureBalanceRatio])
		}
	})

	t.Run("missing balance uses default", func(t *testing.T) {
		event := testEvent()
		event.Amount = 5000
		f := x.Extract(event)
		if f[domain.FeatureBalanceRatio] != 0.5 {
			t.Errorf("ratio = %v, want 0.5 (5000/10000)", f[domain.FeatureBalanceRatio])
		}
	})

	t.Run("ratio clamped at two", func(t *testing.T) {
		event := testEvent()
		event.Amount = 50000
		balance := 100.0
		event.AccountBalance = &balance
		f := x.Extract(event)
		if f[domain.FeatureBalanceRatio] != 2 {
			t.Errorf("ratio = %v, want 2 (clamped)", f[domain.FeatureBalanceRatio])
		}
	})

	t.Run("zero balance floors denominator at one", func(t *testing.T) {
		event := testEvent()
		event.Amount = 1
		balance := 0.0
		event.AccountBalance = &balance
		f := x.Extract(event)
		if f[domain.FeatureBalanceRatio] != 1 {
			t.Errorf("ratio = %v, want 1", f[domain.FeatureBalanceRatio])
		}
	})
}

func TestExtractAlwaysFinite(t *testing.T) {
	x := NewExtractor(domain.DefaultScoringConfig())

	badBalance := math.NaN()
	events := []*domain.TransactionEvent{
		{Amount: math.NaN(), Timestamp: time.Now()},
		{Amount: math.Inf(1), Timestamp: time.Now()},
		{Amount: -50, Timestamp: time.Now()},
		{Amount: 100, AccountBalance: &badBalance, Timestamp: time.Now()},
		{},
	}
	for i, event := range events {
		f := x.Extract(event)
		if !f.IsFinite() {
			t.Errorf("event %d: non-finite feature vector %v", i, f)
		}
	}
}

func TestExtractDeterministic(t *testing.T) {
	x := NewExtractor(domain.DefaultScoringConfig())
	event := testEvent()
	first := x.Extract(event)
	for i := 0; i < 10; i++ {
		if got := x.Extract(event); got != first {
			t.Fatalf("extraction not deterministic: %v != %v", got, first)
		}
	}
}
