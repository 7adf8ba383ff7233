package authority_test

import (
	"context"
	"testing"

	"github.com/arcestia/time-keeper/timekeeper/authority"
	"github.com/arcestia/time-keeper/timekeeper/database"
	"github.com/arcestia/time-keeper/timekeeper/database/models"
	"github.com/arcestia/time-keeper/timekeeper/database/repositories"
	"github.com/arcestia/time-keeper/timekeeper/ledger"
)

func newAuthority(t *testing.T) (*authority.Authority, *ledger.Executor) {
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
	zones := repositories.NewTimezoneRepository(db.BunDB())
	auth := authority.New(tm, zones)
	if err := auth.SeedDefaults(ctx); err != nil {
		t.Fatalf("seed zones: %v", err)
	}
	return auth, ledger.NewExecutor(tm)
}

func TestStatusInBaseZone(t *testing.T) {
	auth, ex := newAuthority(t)
	ctx := context.Background()
	if _, err := ex.CreateAccount(ctx, "alice", "", 100_000, false); err != nil {
		t.Fatalf("create account: %v", err)
	}

	status, err := auth.Status(ctx, "alice")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Zone.Zone != models.DefaultTimezone {
		t.Errorf("zone = %d, want %d", status.Zone.Zone, models.DefaultTimezone)
	}
	if status.EarnMultiplier != 1.0 || status.StoreMultiplier != 1.0 {
		t.Errorf("base multipliers = %v/%v, want 1.0/1.0", status.EarnMultiplier, status.StoreMultiplier)
	}
	if status.NextUp == nil || status.NextUp.Zone != models.DefaultTimezone-1 {
		t.Errorf("next up = %+v, want zone %d", status.NextUp, models.DefaultTimezone-1)
	}
}

func TestMoveUpBurnsDeposit(t *testing.T) {
	auth, ex := newAuthority(t)
	ctx := context.Background()
	if _, err := ex.CreateAccount(ctx, "alice", "", 100_000, false); err != nil {
		t.Fatalf("create account: %v", err)
	}

	result, err := auth.MoveUp(ctx, "alice")
	if err != nil {
		t.Fatalf("move up: %v", err)
	}
	if result.FromZone != 12 || result.ToZone != 11 {
		t.Errorf("move = %d→%d, want 12→11", result.FromZone, result.ToZone)
	}
	if result.DepositBurned != 21_600 {
		t.Errorf("deposit = %d, want 21600", result.DepositBurned)
	}
	if result.BalanceSeconds != 78_400 {
		t.Errorf("balance = %d, want 78400", result.BalanceSeconds)
	}

	reserve, err := ex.ReserveTotal(ctx)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if reserve != 21_600 {
		t.Errorf("reserve = %d, want burned deposit 21600", reserve)
	}

	mult, err := auth.EarnMultiplier(ctx, "alice")
	if err != nil {
		t.Fatalf("earn multiplier: %v", err)
	}
	if mult != 1.25 {
		t.Errorf("earn multiplier in zone 11 = %v, want 1.25", mult)
	}
}

func TestMoveUpInsufficientBalance(t *testing.T) {
	auth, ex := newAuthority(t)
	ctx := context.Background()
	if _, err := ex.CreateAccount(ctx, "alice", "", 100, false); err != nil {
		t.Fatalf("create account: %v", err)
	}

	_, err := auth.MoveUp(ctx, "alice")
	if !ledger.IsKind(err, ledger.KindInsufficientBalance) {
		t.Fatalf("move up err = %v, want InsufficientBalance", err)
	}
	balance, err := ex.GetBalance(ctx, "alice")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 100 {
		t.Errorf("balance = %d, want untouched 100", balance)
	}
}

func TestMoveDownFreeNoRefund(t *testing.T) {
	auth, ex := newAuthority(t)
	ctx := context.Background()
	if _, err := ex.CreateAccount(ctx, "alice", "", 100_000, false); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if _, err := auth.MoveUp(ctx, "alice"); err != nil {
		t.Fatalf("move up: %v", err)
	}

	result, err := auth.MoveDown(ctx, "alice")
	if err != nil {
		t.Fatalf("move down: %v", err)
	}
	if result.ToZone != 12 {
		t.Errorf("to zone = %d, want 12", result.ToZone)
	}
	if result.BalanceSeconds != 78_400 {
		t.Errorf("balance = %d, want 78400 (no refund)", result.BalanceSeconds)
	}

	_, err = auth.MoveDown(ctx, "alice")
	if !ledger.IsKind(err, ledger.KindInvalidAmount) {
		t.Errorf("move below base = %v, want InvalidAmount", err)
	}
}
