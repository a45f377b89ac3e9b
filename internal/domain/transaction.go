package domain

import (
	"time"
)

// Transaction channels.
const (
	ChannelOnline = "online"
	ChannelATM    = "atm"
	ChannelPOS    = "pos"
	ChannelMobile = "mobile"
)

// Transaction kinds.
const (
	KindDebit    = "debit"
	KindCredit   = "credit"
	KindTransfer = "transfer"
)

// TransactionEvent is the input to fraud scoring. Fields are never mutated
// after construction; optional fields use pointer or zero-value semantics
// with defaults documented on the feature extractor.
type TransactionEvent struct {
	// Core identifiers
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	AccountID  string `json:"accountId"`
	CustomerID string `json:"customerId"`

	// Financial details
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`

	// Kind: "debit", "credit", "transfer"
	Kind string `json:"kind"`

	// Channel: "online", "atm", "pos", "mobile"
	Channel string `json:"channel"`

	// Temporal
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`

	// Merchant details (optional)
	MerchantName     string `json:"merchantName,omitempty"`
	MerchantCategory string `json:"merchantCategory,omitempty"`

	// Location (ISO 3166-1 alpha-2 country code)
	Country string `json:"country"`
	City    string `json:"city,omitempty"`

	// Device details (optional)
	DeviceFingerprint string `json:"deviceFingerprint,omitempty"`
	IPAddress         string `json:"ipAddress,omitempty"`

	// NewMerchant marks the first transaction with this merchant.
	NewMerchant bool `json:"newMerchant"`

	// AccountBalance at transaction time, when known.
	AccountBalance *float64 `json:"accountBalance,omitempty"`

	// HistoryHint carries free-form history context supplied by upstream
	// systems. Informational only; scoring never parses it.
	HistoryHint string `json:"historyHint,omitempty"`
}

// TransactionRequest is the API request payload for transaction scoring.
type TransactionRequest struct {
	Amount            float64  `json:"amount"`
	Currency          string   `json:"currency"`
	Kind              string   `json:"kind"`
	Channel           string   `json:"channel"`
	Timestamp         string   `json:"timestamp,omitempty"`
	AccountID         string   `json:"accountId"`
	CustomerID        string   `json:"customerId,omitempty"`
	MerchantName      string   `json:"merchantName,omitempty"`
	MerchantCategory  string   `json:"merchantCategory,omitempty"`
	Country           string   `json:"country,omitempty"`
	City              string   `json:"city,omitempty"`
	DeviceFingerprint string   `json:"deviceFingerprint,omitempty"`
	IPAddress         string   `json:"ipAddress,omitempty"`
	NewMerchant       bool     `json:"newMerchant,omitempty"`
	AccountBalance    *float64 `json:"accountBalance,omitempty"`
}

// ToEvent converts a request to a TransactionEvent domain object.
// The timestamp falls back to now when absent or unparseable.
func (r *TransactionRequest) ToEvent(id, tenantID string) *TransactionEvent {
	now := time.Now().UTC()

	ts := now
	if r.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, r.Timestamp); err == nil {
			ts = parsed.UTC()
		}
	}

	return &TransactionEvent{
		ID:                id,
		TenantID:          tenantID,
		AccountID:         r.AccountID,
		CustomerID:        r.CustomerID,
		Amount:            r.Amount,
		Currency:          r.Currency,
		Kind:              r.Kind,
		Channel:           r.Channel,
		Timestamp:         ts,
		CreatedAt:         now,
		MerchantName:      r.MerchantName,
		MerchantCategory:  r.MerchantCategory,
		Country:           r.Country,
		City:              r.City,
		DeviceFingerprint: r.DeviceFingerprint,
		IPAddress:         r.IPAddress,
		NewMerchant:       r.NewMerchant,
		AccountBalance:    r.AccountBalance,
	}
}
