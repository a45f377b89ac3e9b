package alert

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent() *domain.TransactionEvent {
	return &domain.TransactionEvent{
		ID:        "tx-alert-001",
		AccountID: "acct-001",
		Amount:    7500,
		Currency:  "EUR",
		Kind:      domain.KindDebit,
		Channel:   domain.ChannelOnline,
		Country:   "IE",
		Timestamp: time.Now().UTC(),
		CreatedAt: time.Now().UTC(),
	}
}

func testResult(tier string, rules []string) *domain.AnalysisResult {
	return &domain.AnalysisResult{
		ID:             "an-alert-001",
		TransactionID:  "tx-alert-001",
		RiskScore:      7.2,
		RiskTier:       tier,
		Flagged:        true,
		TriggeredRules: rules,
		Indicators:     []string{"Unusually high transaction amount"},
		AnalyzedAt:     time.Now().UTC(),
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		triggered []string
		want      string
	}{
		{"HighAmount", []string{"high_amount_threshold"}, domain.AlertTypeHighValue},
		{"Foreign", []string{"foreign_transaction"}, domain.AlertTypeLocation},
		{"Velocity", []string{"velocity_check"}, domain.AlertTypeVelocity},
		{"OffHours", []string{"unusual_time"}, domain.AlertTypeOffHours},
		{"ModelOnly", nil, domain.AlertTypeAnomaly},
		{"CustomRule", []string{"crypto_merchant"}, domain.AlertTypeAnomaly},
		{"AmountWinsOverTime", []string{"unusual_time", "high_amount_threshold"}, domain.AlertTypeHighValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.triggered); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.triggered, got, tt.want)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	result := testResult(domain.TierHigh, nil)
	result.Indicators = []string{"a", "b", "c", "d", "e"}

	desc := describe(result)
	if !strings.Contains(desc, "high risk") {
		t.Errorf("description missing tier: %q", desc)
	}
	if !strings.Contains(desc, "score: 7.2") {
		t.Errorf("description missing score: %q", desc)
	}
	if !strings.Contains(desc, "a, b, c") {
		t.Errorf("description missing indicators: %q", desc)
	}
	if !strings.Contains(desc, "and 2 more") {
		t.Errorf("description missing overflow count: %q", desc)
	}
	if strings.Contains(desc, ", d") {
		t.Errorf("description should show at most 3 indicators: %q", desc)
	}
}

func TestDispatcherRaise(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "alert-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	eventBus := bus.NewChannelBus(16)
	defer eventBus.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	received := make(chan *domain.Message, 1)
	sub, err := eventBus.Subscribe(ctx, tenantID, domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	d := NewDispatcher(repo, eventBus, discardLogger())

	t.Run("HighSeverityPersistsAndPublishes", func(t *testing.T) {
		a, err := d.Raise(ctx, tenantID, testEvent(), testResult(domain.TierHigh, []string{"high_amount_threshold"}))
		if err != nil {
			t.Fatalf("Raise failed: %v", err)
		}
		if a.ID == "" || !strings.HasPrefix(a.ID, "FA-") {
			t.Errorf("unexpected alert id %q", a.ID)
		}
		if a.Type != domain.AlertTypeHighValue {
			t.Errorf("expected type %q, got %q", domain.AlertTypeHighValue, a.Type)
		}
		if a.Status != domain.AlertStatusOpen {
			t.Errorf("expected open status, got %q", a.Status)
		}

		stored, err := repo.GetAlert(ctx, tenantID, a.ID)
		if err != nil {
			t.Fatalf("failed to load alert: %v", err)
		}
		if stored.TransactionID != "tx-alert-001" {
			t.Errorf("stored alert has wrong transaction id %q", stored.TransactionID)
		}

		select {
		case msg := <-received:
			var published domain.FraudAlert
			if err := json.Unmarshal(msg.Payload, &published); err != nil {
				t.Fatalf("failed to decode published alert: %v", err)
			}
			if published.ID != a.ID {
				t.Errorf("published alert id %q, want %q", published.ID, a.ID)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for published alert")
		}
	})

	t.Run("MediumSeverityDoesNotPublish", func(t *testing.T) {
		result := testResult(domain.TierMedium, []string{"unusual_time"})
		result.ID = "an-alert-002"
		if _, err := d.Raise(ctx, tenantID, testEvent(), result); err != nil {
			t.Fatalf("Raise failed: %v", err)
		}

		select {
		case msg := <-received:
			t.Errorf("unexpected publication for medium severity: %s", msg.Payload)
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if _, err := d.Raise(ctx, "", testEvent(), testResult(domain.TierHigh, nil)); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("NoRepositoryOrBus", func(t *testing.T) {
		bare := NewDispatcher(nil, nil, discardLogger())
		a, err := bare.Raise(ctx, tenantID, testEvent(), testResult(domain.TierCritical, nil))
		if err != nil {
			t.Fatalf("Raise failed without collaborators: %v", err)
		}
		if a.Severity != domain.TierCritical {
			t.Errorf("expected critical severity, got %q", a.Severity)
		}
	})
}
