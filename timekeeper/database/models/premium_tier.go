package models

import "github.com/uptrace/bun"

// PremiumTier is one rung of the premium progression ladder. Tiers are
// ordered by MinLifetimeSeconds ascending; an account's tier is the
// highest one whose threshold its lifetime seconds meet.
type PremiumTier struct {
	bun.BaseModel `bun:"table:premium_tiers,alias:pt"`

	Tier                int     `bun:"tier,pk"`
	MinLifetimeSeconds  int64   `bun:"min_lifetime_seconds,notnull"`
	EarnBonusPct        float64 `bun:"earn_bonus_pct,notnull"`
	StoreDiscountPct    float64 `bun:"store_discount_pct,notnull"`
	StatCapPct          int     `bun:"stat_cap_pct,notnull,default:100"`
}

// DefaultPremiumTiers is the ten-tier seed ladder: one week of lifetime
// premium per tier step, +2% earn bonus and +2% store discount per tier,
// stat cap climbing from 110% to 250%.
func DefaultPremiumTiers() []PremiumTier {
	const week = 7 * 24 * 3600
	tiers := make([]PremiumTier, 0, 10)
	caps := []int{110, 120, 135, 150, 165, 180, 200, 215, 230, 250}
	for i := 1; i <= 10; i++ {
		tiers = append(tiers, PremiumTier{
			Tier:               i,
			MinLifetimeSeconds: int64(i) * week,
			EarnBonusPct:       0.10 + 0.02*float64(i-1),
			StoreDiscountPct:   0.05 + 0.02*float64(i-1),
			StatCapPct:         caps[i-1],
		})
	}
	return tiers
}
