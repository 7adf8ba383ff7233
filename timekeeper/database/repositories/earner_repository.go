package repositories

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/arcestia/time-keeper/timekeeper/database/models"
)

type EarnerRepository interface {
	Get(ctx context.Context) (*models.EarnerConfig, error)
	SetPromoSchedule(ctx context.Context, basePct, perBlockPct float64, minSeconds, blockSeconds int64) error
	SetDefaultSchedule(ctx context.Context, bonusPct, basePct, perBlockPct float64, minSeconds, blockSeconds int64) error
	SetStakeConfig(ctx context.Context, minStakeSeconds int64, rewardMultiplier float64) error
	SetPromoEnabled(ctx context.Context, enabled bool) error
}

type earnerRepository struct {
	db *bun.DB
}

func NewEarnerRepository(db *bun.DB) EarnerRepository {
	return &earnerRepository{db: db}
}

func (r *earnerRepository) Get(ctx context.Context) (*models.EarnerConfig, error) {
	cfg := new(models.EarnerConfig)
	err := r.db.NewSelect().
		Model(cfg).
		Where("id = ?", models.EarnerConfigID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (r *earnerRepository) SetPromoSchedule(ctx context.Context, basePct, perBlockPct float64, minSeconds, blockSeconds int64) error {
	_, err := r.db.NewUpdate().
		Model((*models.EarnerConfig)(nil)).
		Set("promo_base_pct = ?", basePct).
		Set("promo_per_block_pct = ?", perBlockPct).
		Set("promo_min_seconds = ?", minSeconds).
		Set("promo_block_seconds = ?", blockSeconds).
		Where("id = ?", models.EarnerConfigID).
		Exec(ctx)
	return err
}

func (r *earnerRepository) SetDefaultSchedule(ctx context.Context, bonusPct, basePct, perBlockPct float64, minSeconds, blockSeconds int64) error {
	_, err := r.db.NewUpdate().
		Model((*models.EarnerConfig)(nil)).
		Set("default_bonus_pct = ?", bonusPct).
		Set("default_base_pct = ?", basePct).
		Set("default_per_block_pct = ?", perBlockPct).
		Set("default_min_seconds = ?", minSeconds).
		Set("default_block_seconds = ?", blockSeconds).
		Where("id = ?", models.EarnerConfigID).
		Exec(ctx)
	return err
}

func (r *earnerRepository) SetStakeConfig(ctx context.Context, minStakeSeconds int64, rewardMultiplier float64) error {
	_, err := r.db.NewUpdate().
		Model((*models.EarnerConfig)(nil)).
		Set("min_stake_seconds = ?", minStakeSeconds).
		Set("reward_multiplier = ?", rewardMultiplier).
		Where("id = ?", models.EarnerConfigID).
		Exec(ctx)
	return err
}

func (r *earnerRepository) SetPromoEnabled(ctx context.Context, enabled bool) error {
	_, err := r.db.NewUpdate().
		Model((*models.EarnerConfig)(nil)).
		Set("promo_enabled = ?", enabled).
		Where("id = ?", models.EarnerConfigID).
		Exec(ctx)
	return err
}
