package models

import "github.com/uptrace/bun"

// DefaultTimezone is the base zone every account starts in.
const DefaultTimezone = 12

// Timezone is one rung of the timezone ladder. Lower zone numbers carry
// better multipliers; moving up (toward zone 1) burns DepositSeconds,
// moving down is free with no refund. Zone 12 is the neutral base.
type Timezone struct {
	bun.BaseModel `bun:"table:timezones,alias:tz"`

	Zone            int     `bun:"zone,pk"`
	DepositSeconds  int64   `bun:"deposit_seconds,notnull"`
	EarnMultiplier  float64 `bun:"earn_multiplier,notnull,default:1"`
	StoreMultiplier float64 `bun:"store_multiplier,notnull,default:1"`
}

// DefaultTimezones seeds the ladder: zone 12 neutral, each step up
// doubles the deposit and raises both multipliers.
func DefaultTimezones() []Timezone {
	const hour = 3600
	zones := make([]Timezone, 0, 12)
	deposit := int64(6 * hour)
	earn := 1.0
	store := 1.0
	for z := 12; z >= 1; z-- {
		tz := Timezone{Zone: z, EarnMultiplier: earn, StoreMultiplier: store}
		if z != DefaultTimezone {
			tz.DepositSeconds = deposit
			deposit *= 2
		}
		zones = append(zones, tz)
		earn += 0.25
		store += 0.10
	}
	return zones
}
