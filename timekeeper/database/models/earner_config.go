package models

import "github.com/uptrace/bun"

// EarnerConfigID is the primary key of the singleton config row.
const EarnerConfigID = 1

// EarnerConfig is the singleton session-earning configuration: the promo
// and default open-session rate schedules plus the flat stake fallback
// used when the stake tier table is empty.
type EarnerConfig struct {
	bun.BaseModel `bun:"table:earner_config,alias:ec"`

	ID int64 `bun:"id,pk"`

	// Promo schedule
	PromoEnabled      bool    `bun:"promo_enabled,notnull,default:true"`
	PromoBasePct      float64 `bun:"promo_base_pct,notnull"`
	PromoPerBlockPct  float64 `bun:"promo_per_block_pct,notnull"`
	PromoMinSeconds   int64   `bun:"promo_min_seconds,notnull"`
	PromoBlockSeconds int64   `bun:"promo_block_seconds,notnull"`
	DefaultBonusPct   float64 `bun:"default_bonus_pct,notnull"`

	// Default schedule, used when promo is disabled
	DefaultBasePct      float64 `bun:"default_base_pct,notnull"`
	DefaultPerBlockPct  float64 `bun:"default_per_block_pct,notnull"`
	DefaultMinSeconds   int64   `bun:"default_min_seconds,notnull"`
	DefaultBlockSeconds int64   `bun:"default_block_seconds,notnull"`

	// Flat stake fallback
	MinStakeSeconds  int64   `bun:"min_stake_seconds,notnull"`
	RewardMultiplier float64 `bun:"reward_multiplier,notnull"`
}

// DefaultEarnerConfig returns the seed configuration row.
func DefaultEarnerConfig() *EarnerConfig {
	return &EarnerConfig{
		ID:                  EarnerConfigID,
		PromoEnabled:        true,
		PromoBasePct:        0.10,
		PromoPerBlockPct:    0.0125,
		PromoMinSeconds:     600,
		PromoBlockSeconds:   600,
		DefaultBonusPct:     0.10,
		DefaultBasePct:      0.10,
		DefaultPerBlockPct:  0.0125,
		DefaultMinSeconds:   600,
		DefaultBlockSeconds: 600,
		MinStakeSeconds:     7200,
		RewardMultiplier:    2.0,
	}
}
