package ledger

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/arcestia/time-keeper/timekeeper/database/models"
)

// Executor runs every multi-row ledger mutation inside a single
// immediate transaction. A precondition failure aborts with zero
// mutation and a tagged Error.
type Executor struct {
	tm  *TransactionManager
	now func() int64
}

func NewExecutor(tm *TransactionManager) *Executor {
	return &Executor{tm: tm, now: func() int64 { return time.Now().Unix() }}
}

// SetNowFunc overrides the clock, for tests.
func (e *Executor) SetNowFunc(now func() int64) {
	e.now = now
}

// TransferResult reports both post-transfer balances.
type TransferResult struct {
	FromBalance int64
	ToBalance   int64
}

// DistributeResult reports an equal reserve distribution.
type DistributeResult struct {
	Recipients       int64
	PerUnit          int64
	TotalDistributed int64
	ReserveRemaining int64
}

// TickResult reports one ledger-wide depletion tick.
type TickResult struct {
	Updated     int64
	Deactivated int64
}

// Stats is an account's vitality snapshot.
type Stats struct {
	Energy int
	Hunger int
	Water  int
}

// Depleted reports whether any stat has hit the floor.
func (s Stats) Depleted() bool {
	return s.Energy <= 0 || s.Hunger <= 0 || s.Water <= 0
}

// CreateAccount mints a new account with an initial balance. This is
// the only conservation exception besides Earn: the initial balance
// enters the system from nowhere.
func (e *Executor) CreateAccount(ctx context.Context, username, passcodeHash string, initialSeconds int64, isAdmin bool) (int64, error) {
	if username == "" {
		return 0, NewError(KindInvalidAmount, "username must be non-empty")
	}
	if initialSeconds < 0 {
		initialSeconds = 0
	}
	account := &models.Account{
		Username:       username,
		PasscodeHash:   passcodeHash,
		BalanceSeconds: initialSeconds,
		Active:         true,
		IsAdmin:        isAdmin,
		Energy:         models.DefaultStatCap,
		Hunger:         models.DefaultStatCap,
		Water:          models.DefaultStatCap,
		TimezoneZone:   models.DefaultTimezone,
		CreatedAt:      e.now(),
	}
	err := e.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(account).Exec(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	slog.Info("Account created",
		slog.String("type", "db"),
		slog.String("username", username),
		slog.Int64("initial_seconds", initialSeconds),
		slog.Bool("is_admin", isAdmin))
	return account.ID, nil
}

// Transfer moves amount between two active accounts atomically.
func (e *Executor) Transfer(ctx context.Context, from, to string, amount int64) (*TransferResult, error) {
	if amount <= 0 {
		return nil, NewError(KindInvalidAmount, "amount must be greater than zero")
	}
	if from == to {
		return nil, NewError(KindInvalidAmount, "cannot transfer to the same account")
	}

	result := &TransferResult{}
	err := e.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		sender, err := findAccountTx(ctx, tx, from)
		if err != nil {
			return err
		}
		recipient, err := findAccountTx(ctx, tx, to)
		if err != nil {
			return err
		}
		if !sender.Active {
			return NewError(KindInactive, "sender account is deactivated")
		}
		if !recipient.Active {
			return NewError(KindInactive, "recipient account is deactivated")
		}
		if sender.BalanceSeconds < amount {
			return NewError(KindInsufficientBalance, "insufficient balance")
		}

		if err := adjustBalance(ctx, tx, sender.ID, -amount); err != nil {
			return err
		}
		if err := adjustBalance(ctx, tx, recipient.ID, amount); err != nil {
			return err
		}

		result.FromBalance = sender.BalanceSeconds - amount
		result.ToBalance = recipient.BalanceSeconds + amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReserveTransferTo moves amount from the reserve pool into an active
// account.
func (e *Executor) ReserveTransferTo(ctx context.Context, to string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, NewError(KindInvalidAmount, "amount must be greater than zero")
	}

	var newBalance int64
	err := e.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		reserve, err := reserveTx(ctx, tx)
		if err != nil {
			return err
		}
		if reserve.TotalSeconds < amount {
			return NewError(KindInsufficientBalance, "insufficient reserves")
		}
		recipient, err := findAccountTx(ctx, tx, to)
		if err != nil {
			return err
		}
		if !recipient.Active {
			return NewError(KindInactive, "recipient account is deactivated")
		}

		if _, err := tx.NewUpdate().
			Model((*models.ReservePool)(nil)).
			Set("total_seconds = total_seconds - ?", amount).
			Where("id = ?", models.ReservePoolID).
			Exec(ctx); err != nil {
			return err
		}
		if err := adjustBalance(ctx, tx, recipient.ID, amount); err != nil {
			return err
		}
		newBalance = recipient.BalanceSeconds + amount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// DistributeReserveEqual splits reserve seconds equally across all
// active accounts. amount 0 distributes the full reserve; the integer
// remainder stays in the pool.
func (e *Executor) DistributeReserveEqual(ctx context.Context, amount int64) (*DistributeResult, error) {
	if amount < 0 {
		return nil, NewError(KindInvalidAmount, "amount must be greater than zero")
	}

	result := &DistributeResult{}
	err := e.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		reserve, err := reserveTx(ctx, tx)
		if err != nil {
			return err
		}
		available := reserve.TotalSeconds
		if amount > 0 {
			if amount > reserve.TotalSeconds {
				return NewError(KindInsufficientBalance, "insufficient reserves")
			}
			available = amount
		}
		if available <= 0 {
			return NewError(KindInvalidAmount, "nothing to distribute")
		}

		n, err := tx.NewSelect().
			Model((*models.Account)(nil)).
			Where("active = ?", true).
			Count(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return NewError(KindNotFound, "no active accounts")
		}

		per := available / int64(n)
		if per == 0 {
			return NewError(KindInvalidAmount, "amount too small to distribute")
		}
		total := per * int64(n)

		if _, err := tx.NewUpdate().
			Model((*models.Account)(nil)).
			Set("balance_seconds = balance_seconds + ?", per).
			Where("active = ?", true).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewUpdate().
			Model((*models.ReservePool)(nil)).
			Set("total_seconds = total_seconds - ?", total).
			Where("id = ?", models.ReservePoolID).
			Exec(ctx); err != nil {
			return err
		}

		result.Recipients = int64(n)
		result.PerUnit = per
		result.TotalDistributed = total
		result.ReserveRemaining = reserve.TotalSeconds - total
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeductOneTickAllActive deducts one second from every active account
// with a positive balance, credits the sum to the reserve in the same
// transaction, and deactivates accounts that hit zero. Idempotent for
// already-inactive rows.
func (e *Executor) DeductOneTickAllActive(ctx context.Context) (*TickResult, error) {
	result := &TickResult{}
	err := e.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Account)(nil)).
			Set("balance_seconds = balance_seconds - 1").
			Where("active = ? AND balance_seconds > 0", true).
			Exec(ctx)
		if err != nil {
			return err
		}
		updated, _ := res.RowsAffected()

		if updated > 0 {
			if _, err := tx.NewUpdate().
				Model((*models.ReservePool)(nil)).
				Set("total_seconds = total_seconds + ?", updated).
				Where("id = ?", models.ReservePoolID).
				Exec(ctx); err != nil {
				return err
			}
		}

		res, err = tx.NewUpdate().
			Model((*models.Account)(nil)).
			Set("active = ?", false).
			Set("deactivated_at = CASE WHEN deactivated_at = 0 THEN ? ELSE deactivated_at END", e.now()).
			Where("active = ? AND balance_seconds <= 0", true).
			Exec(ctx)
		if err != nil {
			return err
		}
		deactivated, _ := res.RowsAffected()

		result.Updated = updated
		result.Deactivated = deactivated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Earn credits seconds directly to an account. Like account creation it
// is an explicit mint outside the conservation sum.
func (e *Executor) Earn(ctx context.Context, username string, seconds int64, requireActive bool) (int64, error) {
	if seconds <= 0 {
		return 0, NewError(KindInvalidAmount, "amount must be greater than zero")
	}
	var balance int64
	err := e.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := findAccountTx(ctx, tx, username)
		if err != nil {
			return err
		}
		if requireActive && !account.Active {
			return NewError(KindInactive, "account is deactivated")
		}
		if err := adjustBalance(ctx, tx, account.ID, seconds); err != nil {
			return err
		}
		balance = account.BalanceSeconds + seconds
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// DebitStake removes a stake from an active account up front. The debit
// is irreversible even if the session is later forfeited.
func (e *Executor) DebitStake(ctx context.Context, username string, stake int64) (int64, error) {
	if stake <= 0 {
		return 0, NewError(KindInvalidAmount, "amount must be greater than zero")
	}
	var balance int64
	err := e.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := findAccountTx(ctx, tx, username)
		if err != nil {
			return err
		}
		if !account.Active {
			return NewError(KindInactive, "account is deactivated")
		}
		if account.BalanceSeconds < stake {
			return NewError(KindInsufficientBalance, "insufficient balance")
		}
		if err := adjustBalance(ctx, tx, account.ID, -stake); err != nil {
			return err
		}
		balance = account.BalanceSeconds - stake
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// CreditBalance adds a session reward to an account's balance.
func (e *Executor) CreditBalance(ctx context.Context, username string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, NewError(KindInvalidAmount, "amount must not be negative")
	}
	var balance int64
	err := e.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := findAccountTx(ctx, tx, username)
		if err != nil {
			return err
		}
		if err := adjustBalance(ctx, tx, account.ID, amount); err != nil {
			return err
		}
		balance = account.BalanceSeconds + amount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// AddLifetimeProgress credits seconds to an account's premium lifetime
// progression instead of its balance. Returns the new lifetime total.
func (e *Executor) AddLifetimeProgress(ctx context.Context, username string, seconds int64) (int64, error) {
	if seconds <= 0 {
		return 0, NewError(KindInvalidAmount, "amount must be greater than zero")
	}
	var lifetime int64
	err := e.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := findAccountTx(ctx, tx, username)
		if err != nil {
			return err
		}
		if _, err := tx.NewUpdate().
			Model((*models.Account)(nil)).
			Set("premium_lifetime_seconds = premium_lifetime_seconds + ?", seconds).
			Where("id = ?", account.ID).
			Exec(ctx); err != nil {
			return err
		}
		lifetime = account.PremiumLifetimeSeconds + seconds
		return nil
	})
	if err != nil {
		return 0, err
	}
	return lifetime, nil
}

// ApplyStatChanges applies signed deltas to an account's vitality stats,
// clamped to [0, cap]. The cap is 100 unless premium is active, in which
// case the account's tier supplies it.
func (e *Executor) ApplyStatChanges(ctx context.Context, username string, dEnergy, dHunger, dWater int) (*Stats, error) {
	var stats *Stats
	err := e.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		stats, err = e.ApplyStatChangesTx(ctx, tx, username, dEnergy, dHunger, dWater)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ApplyStatChangesTx is ApplyStatChanges inside a caller-owned
// transaction, so stat effects can commit atomically with the write
// that caused them.
func (e *Executor) ApplyStatChangesTx(ctx context.Context, tx bun.Tx, username string, dEnergy, dHunger, dWater int) (*Stats, error) {
	account, err := findAccountTx(ctx, tx, username)
	if err != nil {
		return nil, err
	}
	cap, err := statCapFor(ctx, tx, account, e.now())
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Energy: models.ClampStat(account.Energy+dEnergy, cap),
		Hunger: models.ClampStat(account.Hunger+dHunger, cap),
		Water:  models.ClampStat(account.Water+dWater, cap),
	}
	_, err = tx.NewUpdate().
		Model((*models.Account)(nil)).
		Set("energy = ?", stats.Energy).
		Set("hunger = ?", stats.Hunger).
		Set("water = ?", stats.Water).
		Where("id = ?", account.ID).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// SetStatsFull restores one account's stats to its current cap.
func (e *Executor) SetStatsFull(ctx context.Context, username string) (*Stats, error) {
	var stats *Stats
	err := e.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		stats, err = e.SetStatsFullTx(ctx, tx, username)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// SetStatsFullTx is SetStatsFull inside a caller-owned transaction.
func (e *Executor) SetStatsFullTx(ctx context.Context, tx bun.Tx, username string) (*Stats, error) {
	account, err := findAccountTx(ctx, tx, username)
	if err != nil {
		return nil, err
	}
	cap, err := statCapFor(ctx, tx, account, e.now())
	if err != nil {
		return nil, err
	}
	_, err = tx.NewUpdate().
		Model((*models.Account)(nil)).
		Set("energy = ?", cap).
		Set("hunger = ?", cap).
		Set("water = ?", cap).
		Where("id = ?", account.ID).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{Energy: cap, Hunger: cap, Water: cap}, nil
}

// SetAllStatsFull restores every account's stats to its cap. Returns the
// number of accounts updated.
func (e *Executor) SetAllStatsFull(ctx context.Context) (int64, error) {
	var updated int64
	err := e.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var accounts []models.Account
		if err := tx.NewSelect().Model(&accounts).Scan(ctx); err != nil {
			return err
		}
		for i := range accounts {
			cap, err := statCapFor(ctx, tx, &accounts[i], e.now())
			if err != nil {
				return err
			}
			if _, err := tx.NewUpdate().
				Model((*models.Account)(nil)).
				Set("energy = ?", cap).
				Set("hunger = ?", cap).
				Set("water = ?", cap).
				Where("id = ?", accounts[i].ID).
				Exec(ctx); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// GetBalance is a single-scalar read and runs outside any transaction.
func (e *Executor) GetBalance(ctx context.Context, username string) (int64, error) {
	account := new(models.Account)
	err := e.tm.DB().NewSelect().
		Model(account).
		Column("balance_seconds").
		Where("username = ?", username).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, NewError(KindNotFound, "user not found")
		}
		return 0, err
	}
	return account.BalanceSeconds, nil
}

// GetStats reads an account's vitality snapshot outside any transaction.
func (e *Executor) GetStats(ctx context.Context, username string) (*Stats, error) {
	account := new(models.Account)
	err := e.tm.DB().NewSelect().
		Model(account).
		Column("energy", "hunger", "water").
		Where("username = ?", username).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewError(KindNotFound, "user not found")
		}
		return nil, err
	}
	return &Stats{Energy: account.Energy, Hunger: account.Hunger, Water: account.Water}, nil
}

// ReserveTotal reads the reserve pool balance.
func (e *Executor) ReserveTotal(ctx context.Context) (int64, error) {
	reserve := new(models.ReservePool)
	err := e.tm.DB().NewSelect().
		Model(reserve).
		Where("id = ?", models.ReservePoolID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return reserve.TotalSeconds, nil
}

func findAccountTx(ctx context.Context, tx bun.Tx, username string) (*models.Account, error) {
	account := new(models.Account)
	err := tx.NewSelect().
		Model(account).
		Where("username = ?", username).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewError(KindNotFound, "user not found")
		}
		return nil, err
	}
	return account, nil
}

func reserveTx(ctx context.Context, tx bun.Tx) (*models.ReservePool, error) {
	reserve := new(models.ReservePool)
	err := tx.NewSelect().
		Model(reserve).
		Where("id = ?", models.ReservePoolID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewError(KindNotFound, "reserve pool not initialized")
		}
		return nil, err
	}
	return reserve, nil
}

func adjustBalance(ctx context.Context, tx bun.Tx, id int64, delta int64) error {
	_, err := tx.NewUpdate().
		Model((*models.Account)(nil)).
		Set("balance_seconds = balance_seconds + ?", delta).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// statCapFor resolves the stat cap inside a transaction: 100 unless
// premium is active, then the tier's stat_cap_pct.
func statCapFor(ctx context.Context, tx bun.Tx, account *models.Account, now int64) (int, error) {
	if !account.IsPremiumActive(now) {
		return models.DefaultStatCap, nil
	}
	tier := new(models.PremiumTier)
	err := tx.NewSelect().
		Model(tier).
		Where("min_lifetime_seconds <= ?", account.PremiumLifetimeSeconds).
		Order("min_lifetime_seconds DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DefaultStatCap, nil
		}
		return 0, err
	}
	if tier.StatCapPct < models.DefaultStatCap {
		return models.DefaultStatCap, nil
	}
	return tier.StatCapPct, nil
}
