package progression

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/arcestia/time-keeper/timekeeper/database/models"
	"github.com/arcestia/time-keeper/timekeeper/ledger"
)

const (
	// PremiumCostPerSecond is the balance price of one second of
	// premium time.
	PremiumCostPerSecond = 3

	// RestoreCooldownSeconds is the gap required between self-service
	// daily restores.
	RestoreCooldownSeconds = 24 * 60 * 60
)

// BackfillMode selects how lifetime progress is rebuilt from balances.
type BackfillMode int

const (
	// BackfillAdd adds each balance on top of existing progress.
	BackfillAdd BackfillMode = iota
	// BackfillSet overwrites progress with each balance.
	BackfillSet
)

// Service runs premium purchases and tier administration. Purchases
// route their cost into the reserve pool, so the total supply is
// unchanged by buying premium time.
type Service struct {
	tm  *ledger.TransactionManager
	ex  *ledger.Executor
	now func() int64
}

func NewService(tm *ledger.TransactionManager, ex *ledger.Executor) *Service {
	return &Service{tm: tm, ex: ex, now: func() int64 { return time.Now().Unix() }}
}

// SetNowFunc overrides the clock, for tests.
func (s *Service) SetNowFunc(now func() int64) {
	s.now = now
}

// PurchaseResult reports a premium purchase or gift.
type PurchaseResult struct {
	CostSeconds     int64
	PremiumUntil    int64
	LifetimeSeconds int64
	BalanceSeconds  int64
}

// Purchase buys duration seconds of premium time at three balance
// seconds per premium second. The premium window extends from its
// current end when still active, otherwise from now.
func (s *Service) Purchase(ctx context.Context, username string, durationSeconds int64) (*PurchaseResult, error) {
	if durationSeconds <= 0 {
		return nil, ledger.NewError(ledger.KindInvalidAmount, "duration must be greater than zero")
	}
	cost := durationSeconds * PremiumCostPerSecond
	result := &PurchaseResult{CostSeconds: cost}

	err := s.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := findAccount(ctx, tx, username)
		if err != nil {
			return err
		}
		if !account.Active {
			return ledger.NewError(ledger.KindInactive, "account %s is deactivated", username)
		}
		if account.BalanceSeconds < cost {
			return ledger.NewError(ledger.KindInsufficientBalance,
				"premium costs %d seconds, balance is %d", cost, account.BalanceSeconds)
		}

		until := extendPremium(account.PremiumUntil, durationSeconds, s.now())
		lifetime := account.PremiumLifetimeSeconds + durationSeconds
		balance := account.BalanceSeconds - cost

		if _, err := tx.NewUpdate().
			Model((*models.Account)(nil)).
			Set("balance_seconds = ?", balance).
			Set("premium_until = ?", until).
			Set("premium_lifetime_seconds = ?", lifetime).
			Where("id = ?", account.ID).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewUpdate().
			Model((*models.ReservePool)(nil)).
			Set("total_seconds = total_seconds + ?", cost).
			Where("id = ?", models.ReservePoolID).
			Exec(ctx); err != nil {
			return err
		}

		result.PremiumUntil = until
		result.LifetimeSeconds = lifetime
		result.BalanceSeconds = balance
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("Premium purchased",
		slog.String("type", "db"),
		slog.String("username", username),
		slog.Int64("duration_seconds", durationSeconds),
		slog.Int64("cost_seconds", cost))
	return result, nil
}

// Gift grants premium time without charging the account. Lifetime
// progress still accrues.
func (s *Service) Gift(ctx context.Context, username string, durationSeconds int64) (*PurchaseResult, error) {
	if durationSeconds <= 0 {
		return nil, ledger.NewError(ledger.KindInvalidAmount, "duration must be greater than zero")
	}
	result := &PurchaseResult{}
	err := s.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := findAccount(ctx, tx, username)
		if err != nil {
			return err
		}
		until := extendPremium(account.PremiumUntil, durationSeconds, s.now())
		lifetime := account.PremiumLifetimeSeconds + durationSeconds

		if _, err := tx.NewUpdate().
			Model((*models.Account)(nil)).
			Set("premium_until = ?", until).
			Set("premium_lifetime_seconds = ?", lifetime).
			Where("id = ?", account.ID).
			Exec(ctx); err != nil {
			return err
		}
		result.PremiumUntil = until
		result.LifetimeSeconds = lifetime
		result.BalanceSeconds = account.BalanceSeconds
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DailyRestore refills an account's stats to its cap. The self-service
// path requires active premium and a 24 hour cooldown; the admin path
// skips both.
func (s *Service) DailyRestore(ctx context.Context, username string, asAdmin bool) (*ledger.Stats, error) {
	now := s.now()
	var stats *ledger.Stats
	err := s.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := findAccount(ctx, tx, username)
		if err != nil {
			return err
		}
		if !asAdmin {
			if !account.IsPremiumActive(now) {
				return ledger.NewError(ledger.KindInactive, "daily restore requires active premium")
			}
			if account.LastRestoreAt != 0 && now-account.LastRestoreAt < RestoreCooldownSeconds {
				remaining := RestoreCooldownSeconds - (now - account.LastRestoreAt)
				return ledger.NewError(ledger.KindBelowMinimumThreshold,
					"daily restore available in %d seconds", remaining)
			}
		}
		// The cooldown write and the restore commit together.
		if _, err = tx.NewUpdate().
			Model((*models.Account)(nil)).
			Set("last_restore_at = ?", now).
			Where("id = ?", account.ID).
			Exec(ctx); err != nil {
			return err
		}
		stats, err = s.ex.SetStatsFullTx(ctx, tx, username)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// SetUserTier forces an account's lifetime progress to a tier's
// threshold.
func (s *Service) SetUserTier(ctx context.Context, username string, tier int) (int64, error) {
	var lifetime int64
	err := s.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		t := new(models.PremiumTier)
		if err := tx.NewSelect().
			Model(t).
			Where("tier = ?", tier).
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ledger.NewError(ledger.KindNotFound, "tier %d not found", tier)
			}
			return err
		}
		account, err := findAccount(ctx, tx, username)
		if err != nil {
			return err
		}
		lifetime = t.MinLifetimeSeconds
		_, err = tx.NewUpdate().
			Model((*models.Account)(nil)).
			Set("premium_lifetime_seconds = ?", lifetime).
			Where("id = ?", account.ID).
			Exec(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return lifetime, nil
}

// ResetProgress zeroes an account's lifetime progress.
func (s *Service) ResetProgress(ctx context.Context, username string) error {
	return s.setLifetime(ctx, username, 0)
}

// SetLifetimeSeconds overwrites an account's lifetime progress.
func (s *Service) SetLifetimeSeconds(ctx context.Context, username string, seconds int64) error {
	if seconds < 0 {
		return ledger.NewError(ledger.KindInvalidAmount, "lifetime seconds cannot be negative")
	}
	return s.setLifetime(ctx, username, seconds)
}

// SetLifetimeFlag marks or clears an account's permanent premium flag.
func (s *Service) SetLifetimeFlag(ctx context.Context, username string, lifetime bool) error {
	return s.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := findAccount(ctx, tx, username)
		if err != nil {
			return err
		}
		_, err = tx.NewUpdate().
			Model((*models.Account)(nil)).
			Set("premium_is_lifetime = ?", lifetime).
			Where("id = ?", account.ID).
			Exec(ctx)
		return err
	})
}

// BackfillFromRemaining rebuilds lifetime progress from remaining
// balances across all accounts. Returns the number updated.
func (s *Service) BackfillFromRemaining(ctx context.Context, mode BackfillMode) (int64, error) {
	var updated int64
	err := s.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var q *bun.UpdateQuery
		switch mode {
		case BackfillAdd:
			q = tx.NewUpdate().
				Model((*models.Account)(nil)).
				Set("premium_lifetime_seconds = premium_lifetime_seconds + balance_seconds")
		case BackfillSet:
			q = tx.NewUpdate().
				Model((*models.Account)(nil)).
				Set("premium_lifetime_seconds = balance_seconds")
		default:
			return ledger.NewError(ledger.KindInvalidAmount, "unknown backfill mode")
		}
		res, err := q.Where("1 = 1").Exec(ctx)
		if err != nil {
			return err
		}
		updated, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	slog.Info("Lifetime progress backfilled",
		slog.String("type", "db"),
		slog.Int64("accounts", updated))
	return updated, nil
}

func (s *Service) setLifetime(ctx context.Context, username string, seconds int64) error {
	return s.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := findAccount(ctx, tx, username)
		if err != nil {
			return err
		}
		_, err = tx.NewUpdate().
			Model((*models.Account)(nil)).
			Set("premium_lifetime_seconds = ?", seconds).
			Where("id = ?", account.ID).
			Exec(ctx)
		return err
	})
}

// extendPremium stacks a new duration onto an unexpired window instead
// of discarding the remainder.
func extendPremium(until, duration, now int64) int64 {
	start := now
	if until > now {
		start = until
	}
	return start + duration
}

func findAccount(ctx context.Context, tx bun.Tx, username string) (*models.Account, error) {
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
