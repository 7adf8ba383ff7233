package models

import "github.com/uptrace/bun"

// StakeTier maps a minimum stake duration to a reward multiplier. The
// multiplier for a stake is the row with the highest MinSeconds not
// exceeding it.
type StakeTier struct {
	bun.BaseModel `bun:"table:stake_tiers,alias:st"`

	MinSeconds int64   `bun:"min_seconds,pk"`
	Multiplier float64 `bun:"multiplier,notnull"`
}

// DefaultStakeTiers seeds a balanced ladder from 2 hours at x1.5 up to
// one week at x10.
func DefaultStakeTiers() []StakeTier {
	const hour = 3600
	return []StakeTier{
		{MinSeconds: 2 * hour, Multiplier: 1.5},
		{MinSeconds: 4 * hour, Multiplier: 2.0},
		{MinSeconds: 8 * hour, Multiplier: 3.0},
		{MinSeconds: 12 * hour, Multiplier: 4.0},
		{MinSeconds: 24 * hour, Multiplier: 5.0},
		{MinSeconds: 48 * hour, Multiplier: 6.5},
		{MinSeconds: 96 * hour, Multiplier: 8.0},
		{MinSeconds: 168 * hour, Multiplier: 10.0},
	}
}
