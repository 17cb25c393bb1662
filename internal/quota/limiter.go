// Package quota gates features by per-tenant daily allowances backed by an
// atomic counter store.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"recapbot/internal/metrics"
)

// Infinite marks a tier limit that always allows.
const Infinite = -1

// counterExpiry is deliberately well past the one-day bucket window so keys
// age out on their own without a sweep job.
const counterExpiry = 48 * time.Hour

// TierResolver reports the subscription tier of a team.
type TierResolver interface {
	Tier(ctx context.Context, teamID string) string
}

// StaticTier resolves every team to the same tier. Used until billing
// integration lands and in tests.
type StaticTier string

func (s StaticTier) Tier(_ context.Context, _ string) string { return string(s) }

// Limiter enforces per-(team, user, feature, day) allowances.
type Limiter struct {
	store  CounterStore
	tiers  TierResolver
	quotas map[string]map[string]int

	// now is swappable for tests.
	now func() time.Time
}

func NewLimiter(store CounterStore, tiers TierResolver, quotas map[string]map[string]int) *Limiter {
	return &Limiter{
		store:  store,
		tiers:  tiers,
		quotas: quotas,
		now:    time.Now,
	}
}

// Acquire consumes one unit of a feature's quota. It returns false when the
// post-increment count exceeds the limit: with limit N, calls 1..N succeed
// and call N+1 is denied. Denied calls leave the counter untouched.
func (l *Limiter) Acquire(ctx context.Context, teamID, userID, feature string) (bool, error) {
	limit := l.limitFor(ctx, teamID, feature)
	if limit == Infinite {
		metrics.QuotaDecisions.WithLabelValues(feature, "allow").Inc()
		return true, nil
	}
	if limit <= 0 {
		metrics.QuotaDecisions.WithLabelValues(feature, "deny").Inc()
		return false, nil
	}

	key := l.counterKey(teamID, userID, feature)
	count, err := l.store.IncrBy(ctx, key, 1, counterExpiry)
	if err != nil {
		return false, fmt.Errorf("failed to increment quota counter: %w", err)
	}

	if count > int64(limit) {
		// A denial must consume nothing: roll the speculative increment
		// back so the counter stays at the limit and a later refund
		// reopens exactly one slot.
		if rbErr := l.store.DecrBy(ctx, key, 1); rbErr != nil {
			slog.Error("Failed to roll back quota increment",
				"error", rbErr,
				"key", key)
		}
		metrics.QuotaDecisions.WithLabelValues(feature, "deny").Inc()
		slog.Info("Quota exceeded",
			"team_id", teamID,
			"user_id", userID,
			"feature", feature,
			"count", count,
			"limit", limit)
		return false, nil
	}

	metrics.QuotaDecisions.WithLabelValues(feature, "allow").Inc()
	return true, nil
}

// AllowMore refunds quota units consumed by a run that later failed.
func (l *Limiter) AllowMore(ctx context.Context, teamID, userID, feature string, amount int) error {
	limit := l.limitFor(ctx, teamID, feature)
	if limit == Infinite {
		return nil
	}

	key := l.counterKey(teamID, userID, feature)
	if err := l.store.DecrBy(ctx, key, int64(amount)); err != nil {
		return fmt.Errorf("failed to refund quota: %w", err)
	}

	metrics.QuotaRefunds.Inc()
	return nil
}

func (l *Limiter) limitFor(ctx context.Context, teamID, feature string) int {
	tier := l.tiers.Tier(ctx, teamID)
	features, ok := l.quotas[tier]
	if !ok {
		return 0
	}
	limit, ok := features[feature]
	if !ok {
		return 0
	}
	return limit
}

// counterKey buckets counters by the UTC midnight of the current day.
func (l *Limiter) counterKey(teamID, userID, feature string) string {
	bucket := l.now().UTC().Truncate(24 * time.Hour).Unix()
	return fmt.Sprintf("quota:%s:%s:%s:%d", teamID, userID, feature, bucket)
}
