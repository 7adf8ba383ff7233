// Package timekeeper wires configuration, persistence, and the domain
// services into one application object.
package timekeeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/arcestia/time-keeper/timekeeper/authority"
	"github.com/arcestia/time-keeper/timekeeper/database"
	"github.com/arcestia/time-keeper/timekeeper/database/repositories"
	"github.com/arcestia/time-keeper/timekeeper/economy/pricing"
	"github.com/arcestia/time-keeper/timekeeper/economy/progression"
	"github.com/arcestia/time-keeper/timekeeper/economy/session"
	"github.com/arcestia/time-keeper/timekeeper/ledger"
	"github.com/arcestia/time-keeper/timekeeper/worker"
)

func New(cfg Config, version string, commit string) *App {
	return &App{
		Cfg:     cfg,
		Version: version,
		Commit:  commit,
	}
}

type App struct {
	Cfg     Config
	Version string
	Commit  string

	DB                 *database.DB
	TxManager          *ledger.TransactionManager
	Executor           *ledger.Executor
	AccountRepository  repositories.AccountRepository
	TierRepository     repositories.TierRepository
	EarnerRepository   repositories.EarnerRepository
	StoreRepository    repositories.StoreRepository
	TimezoneRepository repositories.TimezoneRepository
	Progression        *progression.Service
	Tracker            *progression.Tracker
	Store              *pricing.Store
	Sessions           *session.Engine
	Authority          *authority.Authority
	Worker             *worker.Worker
}

// Setup opens the database, applies migrations, and builds every
// service. Call Close when done.
func (a *App) Setup(ctx context.Context) error {
	start := time.Now()
	db, err := database.New(ctx, a.Cfg.DB)
	if err != nil {
		return err
	}
	if err := db.InitializeSchema(ctx); err != nil {
		db.Close()
		return err
	}
	a.DB = db
	slog.Info("Database ready",
		slog.String("type", "db"),
		slog.String("path", a.Cfg.DB.Path),
		slog.Duration("took", time.Since(start)))

	a.TxManager = ledger.NewTransactionManager(db.BunDB())
	a.Executor = ledger.NewExecutor(a.TxManager)

	a.AccountRepository = repositories.NewAccountRepository(db.BunDB())
	a.TierRepository = repositories.NewTierRepository(db.BunDB())
	a.EarnerRepository = repositories.NewEarnerRepository(db.BunDB())
	a.StoreRepository = repositories.NewStoreRepository(db.BunDB())
	a.TimezoneRepository = repositories.NewTimezoneRepository(db.BunDB())

	a.Progression = progression.NewService(a.TxManager, a.Executor)
	a.Tracker = progression.NewTracker(a.TierRepository)
	a.Store = pricing.NewStore(db, a.TxManager, a.StoreRepository)
	a.Authority = authority.New(a.TxManager, a.TimezoneRepository)

	a.Sessions = session.NewEngine(a.Executor, a.AccountRepository, a.TierRepository, a.EarnerRepository)
	a.Sessions.SetMultiplierSource(a.Authority)

	a.Worker = worker.New(a.Executor, a.Cfg.Worker)
	return nil
}

func (a *App) Close() {
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			slog.Error("Failed to close database", slog.Any("error", err))
		}
	}
}
