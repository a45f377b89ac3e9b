// Package velocity provides the recent-activity signal for velocity rules.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Tracker produces the recent-activity signal the scoring engine consumes.
// The engine never infers history from an event; the tracker owns the
// bounded per-account lookback window.
//
// Two sources back it: a rolling cache counter updated as transactions are
// scored (cheap, approximate across restarts) and the repository count
// (durable). The repository is authoritative; the counter covers the gap
// until the current transaction is persisted.
type Tracker struct {
	repo   domain.Repository
	cache  domain.Cache
	window time.Duration
}

// NewTracker creates a tracker with the given lookback window.
func NewTracker(repo domain.Repository, cache domain.Cache, window time.Duration) *Tracker {
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &Tracker{
		repo:   repo,
		cache:  cache,
		window: window,
	}
}

// Window returns the configured lookback window.
func (t *Tracker) Window() time.Duration {
	return t.window
}

// Recent returns the count of transactions observed for the account within
// the window, excluding the event about to be scored. Both sources are
// consulted and the larger count wins: the repository misses transactions
// still in flight, the counter misses activity before the last restart.
// Returns nil when no data source is available, so velocity rules simply
// do not trigger.
func (t *Tracker) Recent(ctx context.Context, tenantID, accountID string) (*domain.RecentActivity, error) {
	if tenantID == "" || accountID == "" {
		return nil, fmt.Errorf("tenantID and accountID are required")
	}
	if t.repo == nil && t.cache == nil {
		return nil, nil
	}

	var stored int64
	if t.repo != nil {
		since := time.Now().UTC().Add(-t.window)
		count, err := t.repo.CountTransactionsByAccount(ctx, tenantID, accountID, since)
		if err != nil {
			return nil, fmt.Errorf("failed to count recent transactions: %w", err)
		}
		stored = count
	}

	var counted int64
	if t.cache != nil {
		count, err := t.cache.GetCounter(ctx, tenantID, "velocity:"+accountID)
		if err != nil {
			return nil, fmt.Errorf("failed to read velocity counter: %w", err)
		}
		counted = count
	}

	if counted > stored {
		stored = counted
	}

	return &domain.RecentActivity{
		Count:  stored,
		Window: t.window,
	}, nil
}

// Observe records a scored transaction in the rolling window counter.
// Returns the counter value within the current window.
func (t *Tracker) Observe(ctx context.Context, tenantID, accountID string) (int64, error) {
	if tenantID == "" || accountID == "" {
		return 0, fmt.Errorf("tenantID and accountID are required")
	}
	if t.cache == nil {
		return 0, nil
	}
	return t.cache.IncrementCounter(ctx, tenantID, "velocity:"+accountID, t.window)
}
