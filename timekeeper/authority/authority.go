// Package authority manages the timezone ladder: per-account earn and
// store multipliers, paid moves toward better zones, and free moves
// back down. It implements the opaque multiplier source the session
// engine and store consume.
package authority

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/arcestia/time-keeper/timekeeper/database/models"
	"github.com/arcestia/time-keeper/timekeeper/database/repositories"
	"github.com/arcestia/time-keeper/timekeeper/ledger"
)

// ZoneStatus describes an account's position on the ladder.
type ZoneStatus struct {
	Zone            models.Timezone
	NextUp          *models.Timezone
	EarnMultiplier  float64
	StoreMultiplier float64
}

// MoveResult reports a completed ladder move.
type MoveResult struct {
	FromZone       int
	ToZone         int
	DepositBurned  int64
	BalanceSeconds int64
}

// Authority runs ladder moves inside ledger transactions. Deposits
// burned on the way up flow into the reserve pool.
type Authority struct {
	tm    *ledger.TransactionManager
	zones repositories.TimezoneRepository
}

func New(tm *ledger.TransactionManager, zones repositories.TimezoneRepository) *Authority {
	return &Authority{tm: tm, zones: zones}
}

// Status reports the account's current zone and the cost of the next
// move up.
func (a *Authority) Status(ctx context.Context, username string) (*ZoneStatus, error) {
	account, err := a.findAccount(ctx, username)
	if err != nil {
		return nil, err
	}
	zone, err := a.zones.Get(ctx, account.TimezoneZone)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ledger.NewError(ledger.KindNotFound, "zone %d not seeded", account.TimezoneZone)
		}
		return nil, err
	}
	status := &ZoneStatus{
		Zone:            *zone,
		EarnMultiplier:  zone.EarnMultiplier,
		StoreMultiplier: zone.StoreMultiplier,
	}
	if zone.Zone > 1 {
		next, err := a.zones.Get(ctx, zone.Zone-1)
		if err == nil {
			status.NextUp = next
		} else if !errors.Is(err, repositories.ErrNotFound) {
			return nil, err
		}
	}
	return status, nil
}

// List returns the full ladder.
func (a *Authority) List(ctx context.Context) ([]models.Timezone, error) {
	return a.zones.List(ctx)
}

// SeedDefaults rebuilds the ladder from the default table.
func (a *Authority) SeedDefaults(ctx context.Context) error {
	return a.zones.SeedDefaults(ctx)
}

// MoveUp advances the account one zone toward zone 1, burning the
// target zone's deposit into the reserve pool.
func (a *Authority) MoveUp(ctx context.Context, username string) (*MoveResult, error) {
	result := &MoveResult{}
	err := a.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := findAccountTx(ctx, tx, username)
		if err != nil {
			return err
		}
		if !account.Active {
			return ledger.NewError(ledger.KindInactive, "account %s is deactivated", username)
		}
		if account.TimezoneZone <= 1 {
			return ledger.NewError(ledger.KindInvalidAmount, "already in the top zone")
		}

		target := new(models.Timezone)
		if err := tx.NewSelect().
			Model(target).
			Where("zone = ?", account.TimezoneZone-1).
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ledger.NewError(ledger.KindNotFound, "zone %d not seeded", account.TimezoneZone-1)
			}
			return err
		}
		if account.BalanceSeconds < target.DepositSeconds {
			return ledger.NewError(ledger.KindInsufficientBalance,
				"zone %d deposit is %d seconds, balance is %d",
				target.Zone, target.DepositSeconds, account.BalanceSeconds)
		}

		result.FromZone = account.TimezoneZone
		result.ToZone = target.Zone
		result.DepositBurned = target.DepositSeconds
		result.BalanceSeconds = account.BalanceSeconds - target.DepositSeconds

		if _, err := tx.NewUpdate().
			Model((*models.Account)(nil)).
			Set("balance_seconds = ?", result.BalanceSeconds).
			Set("timezone_zone = ?", target.Zone).
			Where("id = ?", account.ID).
			Exec(ctx); err != nil {
			return err
		}
		_, err = tx.NewUpdate().
			Model((*models.ReservePool)(nil)).
			Set("total_seconds = total_seconds + ?", target.DepositSeconds).
			Where("id = ?", models.ReservePoolID).
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.Info("Zone move up",
		slog.String("type", "db"),
		slog.String("username", username),
		slog.Int("from_zone", result.FromZone),
		slog.Int("to_zone", result.ToZone),
		slog.Int64("deposit_burned", result.DepositBurned))
	return result, nil
}

// MoveDown drops the account one zone away from zone 1. Free, and the
// deposit paid on the way up is not refunded.
func (a *Authority) MoveDown(ctx context.Context, username string) (*MoveResult, error) {
	result := &MoveResult{}
	err := a.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := findAccountTx(ctx, tx, username)
		if err != nil {
			return err
		}
		if account.TimezoneZone >= models.DefaultTimezone {
			return ledger.NewError(ledger.KindInvalidAmount, "already in the base zone")
		}

		result.FromZone = account.TimezoneZone
		result.ToZone = account.TimezoneZone + 1
		result.BalanceSeconds = account.BalanceSeconds

		_, err = tx.NewUpdate().
			Model((*models.Account)(nil)).
			Set("timezone_zone = ?", result.ToZone).
			Where("id = ?", account.ID).
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// EarnMultiplier implements the session engine's multiplier source.
func (a *Authority) EarnMultiplier(ctx context.Context, username string) (float64, error) {
	status, err := a.Status(ctx, username)
	if err != nil {
		return 0, err
	}
	return status.EarnMultiplier, nil
}

// StoreMultiplier resolves the account's store price multiplier.
func (a *Authority) StoreMultiplier(ctx context.Context, username string) (float64, error) {
	status, err := a.Status(ctx, username)
	if err != nil {
		return 0, err
	}
	return status.StoreMultiplier, nil
}

func (a *Authority) findAccount(ctx context.Context, username string) (*models.Account, error) {
	account := new(models.Account)
	err := a.tm.DB().NewSelect().
		Model(account).
		Where("username = ?", username).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.NewError(ledger.KindNotFound, "user not found")
		}
		return nil, err
	}
	return account, nil
}

func findAccountTx(ctx context.Context, tx bun.Tx, username string) (*models.Account, error) {
	account := new(models.Account)
	err := tx.NewSelect().
		Model(account).
		Where("username = ?", username).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.NewError(ledger.KindNotFound, "user not found")
		}
		return nil, err
	}
	return account, nil
}
