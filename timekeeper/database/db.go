package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"github.com/arcestia/time-keeper/timekeeper/database/models"
)

const (
	defaultBusyTimeoutMS = 5000
	schemaVersion        = 1 // bump when schema/migrations change
)

type DBConfig struct {
	Path          string `toml:"path" env:"DB_PATH"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms" env:"DB_BUSY_TIMEOUT_MS"`
}

type DB struct {
	bunDB *bun.DB
}

// New opens the SQLite database file, creating parent directories as
// needed. WAL journaling gives crash-safe concurrent readers and
// _txlock=immediate makes every write transaction take the write lock
// up front, so multi-row mutations see serializable semantics.
func New(ctx context.Context, cfg DBConfig) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	busy := cfg.BusyTimeoutMS
	if busy <= 0 {
		busy = defaultBusyTimeoutMS
	}

	dsn := fmt.Sprintf(
		"file:%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)",
		cfg.Path, busy,
	)

	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids lock churn
	// between in-process callers.
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	db := &DB{bunDB: bunDB}

	if err := db.Ping(ctx); err != nil {
		sqldb.Close()
		return nil, err
	}
	return db, nil
}

// NewInMemory opens a private in-memory database, used by tests.
func NewInMemory(ctx context.Context) (*DB, error) {
	sqldb, err := sql.Open("sqlite", "file::memory:?_txlock=immediate&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	db := &DB{bunDB: bun.NewDB(sqldb, sqlitedialect.New())}
	if err := db.Ping(ctx); err != nil {
		sqldb.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) BunDB() *bun.DB {
	return db.bunDB
}

func (db *DB) Ping(ctx context.Context) error {
	if err := db.bunDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	return db.bunDB.Close()
}

// ExecWithLog runs a statement and logs its timing and affected rows.
func (db *DB) ExecWithLog(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	result, err := db.bunDB.ExecContext(ctx, query, args...)
	duration := time.Since(start)

	if err != nil {
		slog.Error("Query failed",
			slog.String("type", "db"),
			slog.String("operation", "exec"),
			slog.String("query", query),
			slog.Duration("took", duration),
			slog.Any("error", err),
		)
		return result, err
	}

	affected, _ := result.RowsAffected()
	slog.Debug("Query executed",
		slog.String("type", "db"),
		slog.String("operation", "exec"),
		slog.String("query", query),
		slog.Duration("took", duration),
		slog.Int64("affected_rows", affected),
	)
	return result, nil
}

// InitializeSchema creates all tables and indexes, seeds singleton and
// default rows, and applies versioned migrations. Safe to run on every
// open.
func (db *DB) InitializeSchema(ctx context.Context) error {
	if err := db.ensureAppMeta(ctx); err != nil {
		return fmt.Errorf("failed to ensure app_meta: %w", err)
	}
	if v, _ := db.GetAppMeta(ctx, models.MetaSchemaVersion); v == strconv.Itoa(schemaVersion) {
		slog.Info("Schema up-to-date, skipping initialization",
			slog.String("type", "db"),
			slog.Int("schema_version", schemaVersion))
		return db.seedDefaults(ctx)
	}

	tables := []interface{}{
		(*models.Account)(nil),
		(*models.ReservePool)(nil),
		(*models.PremiumTier)(nil),
		(*models.StakeTier)(nil),
		(*models.StoreItem)(nil),
		(*models.StorePrice)(nil),
		(*models.InventoryEntry)(nil),
		(*models.Timezone)(nil),
		(*models.EarnerConfig)(nil),
	}

	for _, model := range tables {
		if _, err := db.bunDB.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_users_active ON users(active);",
		"CREATE INDEX IF NOT EXISTS idx_users_balance ON users(balance_seconds);",
		"CREATE INDEX IF NOT EXISTS idx_user_inventory_user ON user_inventory(username);",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_user_inventory_user_item ON user_inventory(username, item);",
	}
	for _, idx := range indexes {
		if _, err := db.ExecWithLog(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := db.MigrateSchema(ctx); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	if err := db.seedDefaults(ctx); err != nil {
		return err
	}

	if err := db.SetAppMeta(ctx, models.MetaSchemaVersion, strconv.Itoa(schemaVersion)); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	slog.Info("Schema initialized",
		slog.String("type", "db"),
		slog.Int("schema_version", schemaVersion))
	return nil
}

// MigrateSchema applies additive changes to existing tables. Every
// statement must be idempotent; this runs on each version bump.
func (db *DB) MigrateSchema(ctx context.Context) error {
	// No migrations yet at version 1. Future additive ALTERs go here.
	return nil
}

// seedDefaults inserts the singleton rows the executor relies on.
func (db *DB) seedDefaults(ctx context.Context) error {
	reserve := &models.ReservePool{ID: models.ReservePoolID, TotalSeconds: 0}
	if _, err := db.bunDB.NewInsert().
		Model(reserve).
		Ignore().
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to seed reserve pool: %w", err)
	}

	cfg := models.DefaultEarnerConfig()
	if _, err := db.bunDB.NewInsert().
		Model(cfg).
		Ignore().
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to seed earner config: %w", err)
	}

	if _, err := db.GetAppMeta(ctx, models.MetaMarketIndex); err != nil {
		if err := db.SetAppMeta(ctx, models.MetaMarketIndex, "0"); err != nil {
			return fmt.Errorf("failed to seed market index: %w", err)
		}
	}

	count, err := db.bunDB.NewSelect().
		Model((*models.Timezone)(nil)).
		Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count timezones: %w", err)
	}
	if count == 0 {
		zones := models.DefaultTimezones()
		if _, err := db.bunDB.NewInsert().Model(&zones).Exec(ctx); err != nil {
			return fmt.Errorf("failed to seed timezones: %w", err)
		}
	}
	return nil
}

func (db *DB) ensureAppMeta(ctx context.Context) error {
	_, err := db.bunDB.NewCreateTable().
		Model((*models.AppMeta)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func (db *DB) GetAppMeta(ctx context.Context, key string) (string, error) {
	meta := new(models.AppMeta)
	err := db.bunDB.NewSelect().
		Model(meta).
		Where("key = ?", key).
		Scan(ctx)
	if err != nil {
		return "", err
	}
	return meta.Value, nil
}

func (db *DB) SetAppMeta(ctx context.Context, key, value string) error {
	meta := &models.AppMeta{Key: key, Value: value}
	_, err := db.bunDB.NewInsert().
		Model(meta).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	return err
}
