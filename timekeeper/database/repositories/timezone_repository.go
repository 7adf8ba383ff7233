package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"github.com/arcestia/time-keeper/timekeeper/database/models"
)

type TimezoneRepository interface {
	List(ctx context.Context) ([]models.Timezone, error)
	Get(ctx context.Context, zone int) (*models.Timezone, error)
	SeedDefaults(ctx context.Context) error
}

type timezoneRepository struct {
	db *bun.DB
}

func NewTimezoneRepository(db *bun.DB) TimezoneRepository {
	return &timezoneRepository{db: db}
}

func (r *timezoneRepository) List(ctx context.Context) ([]models.Timezone, error) {
	var zones []models.Timezone
	err := r.db.NewSelect().
		Model(&zones).
		Order("zone ASC").
		Scan(ctx)
	return zones, err
}

func (r *timezoneRepository) Get(ctx context.Context, zone int) (*models.Timezone, error) {
	tz := new(models.Timezone)
	err := r.db.NewSelect().
		Model(tz).
		Where("zone = ?", zone).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return tz, nil
}

func (r *timezoneRepository) SeedDefaults(ctx context.Context) error {
	if _, err := r.db.NewDelete().
		Model((*models.Timezone)(nil)).
		Where("1 = 1").
		Exec(ctx); err != nil {
		return err
	}
	zones := models.DefaultTimezones()
	_, err := r.db.NewInsert().Model(&zones).Exec(ctx)
	return err
}
