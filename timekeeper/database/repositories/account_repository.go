package repositories

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/arcestia/time-keeper/timekeeper/database/models"
)

// ErrNotFound is returned for single-row lookups with no match.
var ErrNotFound = errors.New("not found")

// Statistics is the aggregate snapshot shown to administrators.
type Statistics struct {
	TotalUsers          int64
	TotalActive         int64
	TotalDeactivated    int64
	TotalBalanceSeconds int64
	ReserveSeconds      int64
}

type AccountRepository interface {
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
	TopAccounts(ctx context.Context, limit int) ([]*models.Account, error)
	Statistics(ctx context.Context) (*Statistics, error)
}

type accountRepository struct {
	db *bun.DB
}

func NewAccountRepository(db *bun.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	account := new(models.Account)
	err := r.db.NewSelect().
		Model(account).
		Where("username = ?", username).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.Debug("Account not found",
				slog.String("type", "db"),
				slog.String("operation", "GetByUsername"),
				slog.String("username", username))
			return nil, ErrNotFound
		}
		return nil, err
	}
	return account, nil
}

func (r *accountRepository) List(ctx context.Context) ([]*models.Account, error) {
	var accounts []*models.Account
	err := r.db.NewSelect().
		Model(&accounts).
		Order("username ASC").
		Scan(ctx)
	return accounts, err
}

func (r *accountRepository) TopAccounts(ctx context.Context, limit int) ([]*models.Account, error) {
	var accounts []*models.Account
	err := r.db.NewSelect().
		Model(&accounts).
		Order("balance_seconds DESC", "username ASC").
		Limit(limit).
		Scan(ctx)
	return accounts, err
}

func (r *accountRepository) Statistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{}

	err := r.db.NewSelect().
		Model((*models.Account)(nil)).
		ColumnExpr("COUNT(*) AS total_users").
		ColumnExpr("COALESCE(SUM(CASE WHEN active THEN 1 ELSE 0 END), 0) AS total_active").
		ColumnExpr("COALESCE(SUM(CASE WHEN active THEN 0 ELSE 1 END), 0) AS total_deactivated").
		ColumnExpr("COALESCE(SUM(balance_seconds), 0) AS total_balance_seconds").
		Scan(ctx, &stats.TotalUsers, &stats.TotalActive, &stats.TotalDeactivated, &stats.TotalBalanceSeconds)
	if err != nil {
		return nil, err
	}

	reserve := new(models.ReservePool)
	err = r.db.NewSelect().
		Model(reserve).
		Where("id = ?", models.ReservePoolID).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	stats.ReserveSeconds = reserve.TotalSeconds
	return stats, nil
}
