package models

import (
	"github.com/uptrace/bun"
)

// DefaultStatCap is the vitality stat ceiling for non-premium accounts.
const DefaultStatCap = 100

// DefaultInitialSeconds is the balance minted when an account is created
// without an explicit initial balance (one day).
const DefaultInitialSeconds = 86400

// Account is a ledger account. Balance and stats only move inside
// executor transactions; timestamps are unix seconds.
type Account struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           int64  `bun:"id,pk,autoincrement"`
	Username     string `bun:"username,notnull,unique"`
	PasscodeHash string `bun:"passcode_hash,notnull"`

	BalanceSeconds int64 `bun:"balance_seconds,notnull,default:0"`
	Active         bool  `bun:"active,notnull,default:true"`
	IsAdmin        bool  `bun:"is_admin,notnull,default:false"`

	// Vitality stats, clamped to [0, stat cap]
	Energy int `bun:"energy,notnull,default:100"`
	Hunger int `bun:"hunger,notnull,default:100"`
	Water  int `bun:"water,notnull,default:100"`

	// Premium
	PremiumUntil           int64 `bun:"premium_until,notnull,default:0"`
	PremiumLifetimeSeconds int64 `bun:"premium_lifetime_seconds,notnull,default:0"`
	PremiumIsLifetime      bool  `bun:"premium_is_lifetime,notnull,default:false"`
	LastRestoreAt          int64 `bun:"last_restore_at,notnull,default:0"`

	TimezoneZone int `bun:"timezone_zone,notnull,default:12"`

	CreatedAt     int64 `bun:"created_at,notnull"`
	DeactivatedAt int64 `bun:"deactivated_at,notnull,default:0"`
}

// IsPremiumActive reports whether the account has premium benefits at the
// given unix time. Lifetime premium never expires.
func (a *Account) IsPremiumActive(now int64) bool {
	if a.PremiumIsLifetime {
		return true
	}
	return a.PremiumUntil > now
}

// ClampStat bounds a stat value to [0, cap].
func ClampStat(v, cap int) int {
	if v < 0 {
		return 0
	}
	if v > cap {
		return cap
	}
	return v
}
