package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"github.com/arcestia/time-keeper/timekeeper/database/models"
)

type TierRepository interface {
	ListPremiumTiers(ctx context.Context) ([]models.PremiumTier, error)
	SetPremiumTierDefaults(ctx context.Context) error
	AddOrReplacePremiumTier(ctx context.Context, tier models.PremiumTier) error
	RemovePremiumTier(ctx context.Context, tier int) (bool, error)

	ListStakeTiers(ctx context.Context) ([]models.StakeTier, error)
	SetStakeTierDefaults(ctx context.Context) error
	AddOrReplaceStakeTier(ctx context.Context, tier models.StakeTier) error
	RemoveStakeTier(ctx context.Context, minSeconds int64) (bool, error)
	ClearStakeTiers(ctx context.Context) error
	MultiplierForStake(ctx context.Context, stakeSeconds int64) (float64, bool, error)
}

type tierRepository struct {
	db *bun.DB
}

func NewTierRepository(db *bun.DB) TierRepository {
	return &tierRepository{db: db}
}

func (r *tierRepository) ListPremiumTiers(ctx context.Context) ([]models.PremiumTier, error) {
	var tiers []models.PremiumTier
	err := r.db.NewSelect().
		Model(&tiers).
		Order("min_lifetime_seconds ASC").
		Scan(ctx)
	return tiers, err
}

func (r *tierRepository) SetPremiumTierDefaults(ctx context.Context) error {
	if _, err := r.db.NewDelete().
		Model((*models.PremiumTier)(nil)).
		Where("1 = 1").
		Exec(ctx); err != nil {
		return err
	}
	tiers := models.DefaultPremiumTiers()
	_, err := r.db.NewInsert().Model(&tiers).Exec(ctx)
	return err
}

func (r *tierRepository) AddOrReplacePremiumTier(ctx context.Context, tier models.PremiumTier) error {
	_, err := r.db.NewInsert().
		Model(&tier).
		On("CONFLICT (tier) DO UPDATE").
		Set("min_lifetime_seconds = EXCLUDED.min_lifetime_seconds").
		Set("earn_bonus_pct = EXCLUDED.earn_bonus_pct").
		Set("store_discount_pct = EXCLUDED.store_discount_pct").
		Set("stat_cap_pct = EXCLUDED.stat_cap_pct").
		Exec(ctx)
	return err
}

func (r *tierRepository) RemovePremiumTier(ctx context.Context, tier int) (bool, error) {
	res, err := r.db.NewDelete().
		Model((*models.PremiumTier)(nil)).
		Where("tier = ?", tier).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (r *tierRepository) ListStakeTiers(ctx context.Context) ([]models.StakeTier, error) {
	var tiers []models.StakeTier
	err := r.db.NewSelect().
		Model(&tiers).
		Order("min_seconds ASC").
		Scan(ctx)
	return tiers, err
}

func (r *tierRepository) SetStakeTierDefaults(ctx context.Context) error {
	if err := r.ClearStakeTiers(ctx); err != nil {
		return err
	}
	tiers := models.DefaultStakeTiers()
	_, err := r.db.NewInsert().Model(&tiers).Exec(ctx)
	return err
}

func (r *tierRepository) AddOrReplaceStakeTier(ctx context.Context, tier models.StakeTier) error {
	_, err := r.db.NewInsert().
		Model(&tier).
		On("CONFLICT (min_seconds) DO UPDATE").
		Set("multiplier = EXCLUDED.multiplier").
		Exec(ctx)
	return err
}

func (r *tierRepository) RemoveStakeTier(ctx context.Context, minSeconds int64) (bool, error) {
	res, err := r.db.NewDelete().
		Model((*models.StakeTier)(nil)).
		Where("min_seconds = ?", minSeconds).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (r *tierRepository) ClearStakeTiers(ctx context.Context) error {
	_, err := r.db.NewDelete().
		Model((*models.StakeTier)(nil)).
		Where("1 = 1").
		Exec(ctx)
	return err
}

// MultiplierForStake returns the multiplier of the highest tier whose
// minimum does not exceed the stake. ok is false when no tier matches.
func (r *tierRepository) MultiplierForStake(ctx context.Context, stakeSeconds int64) (float64, bool, error) {
	tier := new(models.StakeTier)
	err := r.db.NewSelect().
		Model(tier).
		Where("min_seconds <= ?", stakeSeconds).
		Order("min_seconds DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return tier.Multiplier, true, nil
}
