// Package progression tracks lifetime premium progress and handles
// premium purchases, gifts, and daily stat restores.
package progression

import (
	"context"

	"github.com/arcestia/time-keeper/timekeeper/database/models"
	"github.com/arcestia/time-keeper/timekeeper/database/repositories"
)

// Progress describes where an account sits on the premium ladder.
type Progress struct {
	Current       *models.PremiumTier
	Next          *models.PremiumTier
	Lifetime      int64
	PercentToNext float64
	PremiumActive bool
}

// TierFor returns the highest tier whose threshold the lifetime total
// has reached. tiers must be sorted by threshold ascending.
func TierFor(tiers []models.PremiumTier, lifetime int64) *models.PremiumTier {
	var current *models.PremiumTier
	for i := range tiers {
		if tiers[i].MinLifetimeSeconds <= lifetime {
			current = &tiers[i]
		} else {
			break
		}
	}
	return current
}

// NextTierFor returns the lowest tier whose threshold is still ahead
// of the lifetime total, or nil at the top of the ladder.
func NextTierFor(tiers []models.PremiumTier, lifetime int64) *models.PremiumTier {
	for i := range tiers {
		if tiers[i].MinLifetimeSeconds > lifetime {
			return &tiers[i]
		}
	}
	return nil
}

// PercentToNext reports progress from the current threshold toward the
// next one as a value in [0, 100]. The top tier always reports 100.
func PercentToNext(tiers []models.PremiumTier, lifetime int64) float64 {
	current := TierFor(tiers, lifetime)
	next := NextTierFor(tiers, lifetime)
	if next == nil {
		if current == nil {
			return 0
		}
		return 100
	}
	var base int64
	if current != nil {
		base = current.MinLifetimeSeconds
	}
	span := next.MinLifetimeSeconds - base
	if span <= 0 {
		return 100
	}
	pct := float64(lifetime-base) / float64(span) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Tracker resolves ladder positions against the stored tier table.
type Tracker struct {
	tiers repositories.TierRepository
}

func NewTracker(tiers repositories.TierRepository) *Tracker {
	return &Tracker{tiers: tiers}
}

func (t *Tracker) Status(ctx context.Context, account *models.Account, now int64) (*Progress, error) {
	tiers, err := t.tiers.ListPremiumTiers(ctx)
	if err != nil {
		return nil, err
	}
	lifetime := account.PremiumLifetimeSeconds
	return &Progress{
		Current:       TierFor(tiers, lifetime),
		Next:          NextTierFor(tiers, lifetime),
		Lifetime:      lifetime,
		PercentToNext: PercentToNext(tiers, lifetime),
		PremiumActive: account.IsPremiumActive(now),
	}, nil
}
