package progression_test

import (
	"context"
	"testing"

	"github.com/arcestia/time-keeper/timekeeper/database"
	"github.com/arcestia/time-keeper/timekeeper/economy/progression"
	"github.com/arcestia/time-keeper/timekeeper/ledger"
)

func newTestService(t *testing.T) (*progression.Service, *ledger.Executor) {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewInMemory(ctx)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitializeSchema(ctx); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	tm := ledger.NewTransactionManager(db.BunDB())
	ex := ledger.NewExecutor(tm)
	return progression.NewService(tm, ex), ex
}

func TestPurchaseMovesCostToReserve(t *testing.T) {
	svc, ex := newTestService(t)
	ctx := context.Background()
	now := int64(1_000_000)
	svc.SetNowFunc(func() int64 { return now })
	ex.SetNowFunc(func() int64 { return now })

	if _, err := ex.CreateAccount(ctx, "alice", "", 10_000, false); err != nil {
		t.Fatalf("create account: %v", err)
	}

	res, err := svc.Purchase(ctx, "alice", 3000)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if res.CostSeconds != 9000 {
		t.Errorf("cost = %d, want 9000", res.CostSeconds)
	}
	if res.BalanceSeconds != 1000 {
		t.Errorf("balance = %d, want 1000", res.BalanceSeconds)
	}
	if res.PremiumUntil != now+3000 {
		t.Errorf("premium_until = %d, want %d", res.PremiumUntil, now+3000)
	}
	if res.LifetimeSeconds != 3000 {
		t.Errorf("lifetime = %d, want 3000", res.LifetimeSeconds)
	}

	reserve, err := ex.ReserveTotal(ctx)
	if err != nil {
		t.Fatalf("reserve total: %v", err)
	}
	if reserve != 9000 {
		t.Errorf("reserve = %d, want 9000", reserve)
	}
}

func TestPurchaseStacksOnActiveWindow(t *testing.T) {
	svc, ex := newTestService(t)
	ctx := context.Background()
	now := int64(1_000_000)
	svc.SetNowFunc(func() int64 { return now })

	if _, err := ex.CreateAccount(ctx, "alice", "", 100_000, false); err != nil {
		t.Fatalf("create account: %v", err)
	}
	first, err := svc.Purchase(ctx, "alice", 1000)
	if err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	second, err := svc.Purchase(ctx, "alice", 500)
	if err != nil {
		t.Fatalf("second purchase: %v", err)
	}
	if second.PremiumUntil != first.PremiumUntil+500 {
		t.Errorf("stacked premium_until = %d, want %d", second.PremiumUntil, first.PremiumUntil+500)
	}
}

func TestPurchaseInsufficientBalance(t *testing.T) {
	svc, ex := newTestService(t)
	ctx := context.Background()

	if _, err := ex.CreateAccount(ctx, "alice", "", 100, false); err != nil {
		t.Fatalf("create account: %v", err)
	}
	_, err := svc.Purchase(ctx, "alice", 1000)
	if !ledger.IsKind(err, ledger.KindInsufficientBalance) {
		t.Fatalf("purchase err = %v, want InsufficientBalance", err)
	}
	balance, err := ex.GetBalance(ctx, "alice")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 100 {
		t.Errorf("balance after failed purchase = %d, want 100", balance)
	}
}

func TestDailyRestoreCooldown(t *testing.T) {
	svc, ex := newTestService(t)
	ctx := context.Background()
	now := int64(1_000_000)
	svc.SetNowFunc(func() int64 { return now })
	ex.SetNowFunc(func() int64 { return now })

	if _, err := ex.CreateAccount(ctx, "alice", "", 100_000, false); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if _, err := svc.Purchase(ctx, "alice", 100_000/4); err != nil {
		t.Fatalf("purchase premium: %v", err)
	}
	if _, err := ex.ApplyStatChanges(ctx, "alice", -30, -30, -30); err != nil {
		t.Fatalf("drain stats: %v", err)
	}

	stats, err := svc.DailyRestore(ctx, "alice", false)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if stats.Energy < 100 || stats.Hunger < 100 || stats.Water < 100 {
		t.Errorf("stats after restore = %+v, want all at cap", stats)
	}
	persisted, err := ex.GetStats(ctx, "alice")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if *persisted != *stats {
		t.Errorf("persisted stats = %+v, restore reported %+v", persisted, stats)
	}

	_, err = svc.DailyRestore(ctx, "alice", false)
	if !ledger.IsKind(err, ledger.KindBelowMinimumThreshold) {
		t.Fatalf("second restore err = %v, want BelowMinimumThreshold", err)
	}

	// Admin restores skip the cooldown.
	if _, err := svc.DailyRestore(ctx, "alice", true); err != nil {
		t.Fatalf("admin restore: %v", err)
	}

	now += progression.RestoreCooldownSeconds
	if _, err := svc.DailyRestore(ctx, "alice", false); err != nil {
		t.Fatalf("restore after cooldown: %v", err)
	}
}

func TestDailyRestoreRequiresPremium(t *testing.T) {
	svc, ex := newTestService(t)
	ctx := context.Background()

	if _, err := ex.CreateAccount(ctx, "bob", "", 1000, false); err != nil {
		t.Fatalf("create account: %v", err)
	}
	_, err := svc.DailyRestore(ctx, "bob", false)
	if !ledger.IsKind(err, ledger.KindInactive) {
		t.Fatalf("restore err = %v, want Inactive", err)
	}
}

func TestBackfillFromRemaining(t *testing.T) {
	svc, ex := newTestService(t)
	ctx := context.Background()

	if _, err := ex.CreateAccount(ctx, "alice", "", 5000, false); err != nil {
		t.Fatalf("create alice: %v", err)
	}
	if _, err := ex.CreateAccount(ctx, "bob", "", 7000, false); err != nil {
		t.Fatalf("create bob: %v", err)
	}
	if _, err := ex.AddLifetimeProgress(ctx, "alice", 100); err != nil {
		t.Fatalf("seed lifetime: %v", err)
	}

	updated, err := svc.BackfillFromRemaining(ctx, progression.BackfillAdd)
	if err != nil {
		t.Fatalf("backfill add: %v", err)
	}
	if updated != 2 {
		t.Errorf("updated = %d, want 2", updated)
	}

	updated, err = svc.BackfillFromRemaining(ctx, progression.BackfillSet)
	if err != nil {
		t.Fatalf("backfill set: %v", err)
	}
	if updated != 2 {
		t.Errorf("updated = %d, want 2", updated)
	}
}
