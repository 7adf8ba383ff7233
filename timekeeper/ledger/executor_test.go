package ledger_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/uptrace/bun"

	"github.com/arcestia/time-keeper/timekeeper/database"
	"github.com/arcestia/time-keeper/timekeeper/database/models"
	"github.com/arcestia/time-keeper/timekeeper/ledger"
)

func newTestExecutor(t *testing.T) (*ledger.Executor, *database.DB) {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewInMemory(ctx)
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitializeSchema(ctx); err != nil {
		t.Fatalf("initialize schema: %v", err)
	}
	tm := ledger.NewTransactionManager(db.BunDB())
	return ledger.NewExecutor(tm), db
}

func mustCreate(t *testing.T, e *ledger.Executor, username string, balance int64) {
	t.Helper()
	if _, err := e.CreateAccount(context.Background(), username, "x", balance, false); err != nil {
		t.Fatalf("create %s: %v", username, err)
	}
}

// totalSupply is sum(balances) + reserve: the conserved quantity.
func totalSupply(t *testing.T, e *ledger.Executor, db *database.DB, users []string) int64 {
	t.Helper()
	ctx := context.Background()
	var sum int64
	for _, u := range users {
		bal, err := e.GetBalance(ctx, u)
		if err != nil {
			t.Fatalf("balance %s: %v", u, err)
		}
		sum += bal
	}
	reserve, err := e.ReserveTotal(ctx)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	return sum + reserve
}

func TestTransfer(t *testing.T) {
	tests := []struct {
		name        string
		from, to    string
		amount      int64
		wantKind    ledger.Kind
		wantFromBal int64
		wantToBal   int64
	}{
		{name: "success", from: "alice", to: "bob", amount: 400, wantFromBal: 600, wantToBal: 900},
		{name: "zero amount", from: "alice", to: "bob", amount: 0, wantKind: ledger.KindInvalidAmount},
		{name: "negative amount", from: "alice", to: "bob", amount: -5, wantKind: ledger.KindInvalidAmount},
		{name: "self transfer", from: "alice", to: "alice", amount: 10, wantKind: ledger.KindInvalidAmount},
		{name: "unknown sender", from: "ghost", to: "bob", amount: 10, wantKind: ledger.KindNotFound},
		{name: "unknown recipient", from: "alice", to: "ghost", amount: 10, wantKind: ledger.KindNotFound},
		{name: "insufficient balance", from: "alice", to: "bob", amount: 5000, wantKind: ledger.KindInsufficientBalance},
		{name: "inactive recipient", from: "alice", to: "dormant", amount: 10, wantKind: ledger.KindInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, db := newTestExecutor(t)
			ctx := context.Background()
			mustCreate(t, e, "alice", 1000)
			mustCreate(t, e, "bob", 500)
			mustCreate(t, e, "dormant", 0)
			deactivateAll(t, db) // zero-balance accounts go inactive

			before := totalSupply(t, e, db, []string{"alice", "bob", "dormant"})
			res, err := e.Transfer(ctx, tt.from, tt.to, tt.amount)

			if tt.wantKind != ledger.KindUnknown {
				if err == nil {
					t.Fatalf("expected %v error, got success", tt.wantKind)
				}
				if got := ledger.KindOf(err); got != tt.wantKind {
					t.Errorf("error kind = %v, want %v", got, tt.wantKind)
				}
				// failed transfer must not mutate anything
				if after := totalSupply(t, e, db, []string{"alice", "bob", "dormant"}); after != before {
					t.Errorf("total supply changed on failure: %d -> %d", before, after)
				}
				aliceBal, _ := e.GetBalance(ctx, "alice")
				if aliceBal != 1000 {
					t.Errorf("alice balance mutated on failed transfer: %d", aliceBal)
				}
				return
			}
			if err != nil {
				t.Fatalf("Transfer: %v", err)
			}
			if res.FromBalance != tt.wantFromBal || res.ToBalance != tt.wantToBal {
				t.Errorf("balances = (%d, %d), want (%d, %d)",
					res.FromBalance, res.ToBalance, tt.wantFromBal, tt.wantToBal)
			}
			if after := totalSupply(t, e, db, []string{"alice", "bob", "dormant"}); after != before {
				t.Errorf("transfer changed total supply: %d -> %d", before, after)
			}
		})
	}
}

// deactivateAll runs one depletion tick so zero-balance accounts flip
// inactive without touching positive balances beyond one second.
func deactivateAll(t *testing.T, db *database.DB) {
	t.Helper()
	ctx := context.Background()
	_, err := db.BunDB().NewUpdate().
		Model((*models.Account)(nil)).
		Set("active = ?", false).
		Where("balance_seconds <= 0").
		Exec(ctx)
	if err != nil {
		t.Fatalf("deactivate zero-balance accounts: %v", err)
	}
}

func TestDistributeReserveEqual(t *testing.T) {
	e, db := newTestExecutor(t)
	ctx := context.Background()
	mustCreate(t, e, "a", 100)
	mustCreate(t, e, "b", 100)
	mustCreate(t, e, "c", 100)
	seedReserve(t, db, 1000)

	res, err := e.DistributeReserveEqual(ctx, 0)
	if err != nil {
		t.Fatalf("DistributeReserveEqual: %v", err)
	}
	if res.Recipients != 3 || res.PerUnit != 333 || res.TotalDistributed != 999 || res.ReserveRemaining != 1 {
		t.Errorf("got recipients=%d per=%d total=%d remaining=%d, want 3/333/999/1",
			res.Recipients, res.PerUnit, res.TotalDistributed, res.ReserveRemaining)
	}
	for _, u := range []string{"a", "b", "c"} {
		bal, _ := e.GetBalance(ctx, u)
		if bal != 433 {
			t.Errorf("%s balance = %d, want 433", u, bal)
		}
	}
	reserve, _ := e.ReserveTotal(ctx)
	if reserve != 1 {
		t.Errorf("reserve = %d, want 1", reserve)
	}
}

func TestDistributeReserveEqualErrors(t *testing.T) {
	t.Run("empty reserve", func(t *testing.T) {
		e, _ := newTestExecutor(t)
		mustCreate(t, e, "a", 100)
		_, err := e.DistributeReserveEqual(context.Background(), 0)
		if got := ledger.KindOf(err); got != ledger.KindInvalidAmount {
			t.Errorf("error kind = %v, want InvalidAmount", got)
		}
	})
	t.Run("no active accounts", func(t *testing.T) {
		e, db := newTestExecutor(t)
		seedReserve(t, db, 1000)
		_, err := e.DistributeReserveEqual(context.Background(), 0)
		if got := ledger.KindOf(err); got != ledger.KindNotFound {
			t.Errorf("error kind = %v, want NotFound", got)
		}
	})
	t.Run("per unit rounds to zero", func(t *testing.T) {
		e, db := newTestExecutor(t)
		mustCreate(t, e, "a", 100)
		mustCreate(t, e, "b", 100)
		mustCreate(t, e, "c", 100)
		seedReserve(t, db, 2)
		_, err := e.DistributeReserveEqual(context.Background(), 0)
		if got := ledger.KindOf(err); got != ledger.KindInvalidAmount {
			t.Errorf("error kind = %v, want InvalidAmount", got)
		}
	})
	t.Run("amount above reserve", func(t *testing.T) {
		e, db := newTestExecutor(t)
		mustCreate(t, e, "a", 100)
		seedReserve(t, db, 10)
		_, err := e.DistributeReserveEqual(context.Background(), 50)
		if got := ledger.KindOf(err); got != ledger.KindInsufficientBalance {
			t.Errorf("error kind = %v, want InsufficientBalance", got)
		}
	})
}

func seedReserve(t *testing.T, db *database.DB, total int64) {
	t.Helper()
	_, err := db.BunDB().NewUpdate().
		Model((*models.ReservePool)(nil)).
		Set("total_seconds = ?", total).
		Where("id = ?", models.ReservePoolID).
		Exec(context.Background())
	if err != nil {
		t.Fatalf("seed reserve: %v", err)
	}
}

func TestDeductOneTickAllActive(t *testing.T) {
	e, db := newTestExecutor(t)
	ctx := context.Background()
	mustCreate(t, e, "rich", 100)
	mustCreate(t, e, "poor", 1)
	mustCreate(t, e, "broke", 0)
	deactivateAll(t, db)

	before := totalSupply(t, e, db, []string{"rich", "poor", "broke"})

	res, err := e.DeductOneTickAllActive(ctx)
	if err != nil {
		t.Fatalf("DeductOneTickAllActive: %v", err)
	}
	if res.Updated != 2 {
		t.Errorf("updated = %d, want 2", res.Updated)
	}
	if res.Deactivated != 1 {
		t.Errorf("deactivated = %d, want 1 (poor hit zero)", res.Deactivated)
	}

	reserve, _ := e.ReserveTotal(ctx)
	if reserve != 2 {
		t.Errorf("reserve = %d, want 2", reserve)
	}
	if after := totalSupply(t, e, db, []string{"rich", "poor", "broke"}); after != before {
		t.Errorf("tick changed total supply: %d -> %d", before, after)
	}

	// Second tick: poor already inactive, no changes to it.
	res, err = e.DeductOneTickAllActive(ctx)
	if err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if res.Updated != 1 || res.Deactivated != 0 {
		t.Errorf("second tick = %+v, want updated=1 deactivated=0", res)
	}
	poorBal, _ := e.GetBalance(ctx, "poor")
	if poorBal != 0 {
		t.Errorf("poor balance = %d, want 0 (never negative)", poorBal)
	}
}

func TestConservationUnderRandomOps(t *testing.T) {
	e, db := newTestExecutor(t)
	ctx := context.Background()
	users := []string{"u1", "u2", "u3", "u4"}
	for _, u := range users {
		mustCreate(t, e, u, 5000)
	}
	seedReserve(t, db, 2500)

	rng := rand.New(rand.NewSource(42))
	want := totalSupply(t, e, db, users)

	for i := 0; i < 200; i++ {
		switch rng.Intn(4) {
		case 0:
			from := users[rng.Intn(len(users))]
			to := users[rng.Intn(len(users))]
			_, _ = e.Transfer(ctx, from, to, rng.Int63n(200)-20)
		case 1:
			_, _ = e.ReserveTransferTo(ctx, users[rng.Intn(len(users))], rng.Int63n(100))
		case 2:
			_, _ = e.DistributeReserveEqual(ctx, rng.Int63n(50))
		case 3:
			if _, err := e.DeductOneTickAllActive(ctx); err != nil {
				t.Fatalf("tick: %v", err)
			}
		}
		if got := totalSupply(t, e, db, users); got != want {
			t.Fatalf("op %d broke conservation: total %d, want %d", i, got, want)
		}
	}

	for _, u := range users {
		bal, err := e.GetBalance(ctx, u)
		if err != nil {
			t.Fatalf("balance %s: %v", u, err)
		}
		if bal < 0 {
			t.Errorf("%s balance went negative: %d", u, bal)
		}
	}
}

func TestApplyStatChangesClamps(t *testing.T) {
	tests := []struct {
		name    string
		start   [3]int
		deltas  [3]int
		want    [3]int
	}{
		{name: "floor at zero", start: [3]int{20, 20, 20}, deltas: [3]int{-5, -25, -100}, want: [3]int{15, 0, 0}},
		{name: "ceiling at cap", start: [3]int{90, 90, 90}, deltas: [3]int{50, 5, 0}, want: [3]int{100, 95, 90}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, db := newTestExecutor(t)
			ctx := context.Background()
			mustCreate(t, e, "u", 100)
			_, err := db.BunDB().NewUpdate().
				Model((*models.Account)(nil)).
				Set("energy = ?", tt.start[0]).
				Set("hunger = ?", tt.start[1]).
				Set("water = ?", tt.start[2]).
				Where("username = ?", "u").
				Exec(ctx)
			if err != nil {
				t.Fatalf("seed stats: %v", err)
			}

			stats, err := e.ApplyStatChanges(ctx, "u", tt.deltas[0], tt.deltas[1], tt.deltas[2])
			if err != nil {
				t.Fatalf("ApplyStatChanges: %v", err)
			}
			got := [3]int{stats.Energy, stats.Hunger, stats.Water}
			if got != tt.want {
				t.Errorf("stats = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplyStatChangesPremiumCap(t *testing.T) {
	e, db := newTestExecutor(t)
	ctx := context.Background()
	mustCreate(t, e, "vip", 100)

	// Seed tiers and make vip a lifetime premium account at tier 1.
	tiers := models.DefaultPremiumTiers()
	if _, err := db.BunDB().NewInsert().Model(&tiers).Exec(ctx); err != nil {
		t.Fatalf("seed tiers: %v", err)
	}
	_, err := db.BunDB().NewUpdate().
		Model((*models.Account)(nil)).
		Set("premium_is_lifetime = ?", true).
		Set("premium_lifetime_seconds = ?", tiers[0].MinLifetimeSeconds).
		Where("username = ?", "vip").
		Exec(ctx)
	if err != nil {
		t.Fatalf("seed premium: %v", err)
	}

	// Energy 100 + 50 exceeds the tier 1 cap and must clamp to it.
	stats, err := e.ApplyStatChanges(ctx, "vip", 50, 0, 0)
	if err != nil {
		t.Fatalf("ApplyStatChanges: %v", err)
	}
	if stats.Energy != tiers[0].StatCapPct {
		t.Errorf("energy = %d, want clamped to tier cap %d", stats.Energy, tiers[0].StatCapPct)
	}
}

func TestReserveTransferTo(t *testing.T) {
	e, db := newTestExecutor(t)
	ctx := context.Background()
	mustCreate(t, e, "u", 50)
	seedReserve(t, db, 100)

	bal, err := e.ReserveTransferTo(ctx, "u", 60)
	if err != nil {
		t.Fatalf("ReserveTransferTo: %v", err)
	}
	if bal != 110 {
		t.Errorf("balance = %d, want 110", bal)
	}
	reserve, _ := e.ReserveTotal(ctx)
	if reserve != 40 {
		t.Errorf("reserve = %d, want 40", reserve)
	}

	if _, err := e.ReserveTransferTo(ctx, "u", 41); ledger.KindOf(err) != ledger.KindInsufficientBalance {
		t.Errorf("expected InsufficientBalance for overdraw, got %v", err)
	}
}

func TestEarnRequiresPositiveAmount(t *testing.T) {
	e, _ := newTestExecutor(t)
	ctx := context.Background()
	mustCreate(t, e, "u", 10)

	if _, err := e.Earn(ctx, "u", 0, false); ledger.KindOf(err) != ledger.KindInvalidAmount {
		t.Errorf("expected InvalidAmount for zero earn, got %v", err)
	}
	bal, err := e.Earn(ctx, "u", 90, false)
	if err != nil {
		t.Fatalf("Earn: %v", err)
	}
	if bal != 100 {
		t.Errorf("balance = %d, want 100", bal)
	}
}

func TestDebitStake(t *testing.T) {
	e, db := newTestExecutor(t)
	ctx := context.Background()
	mustCreate(t, e, "u", 10000)
	mustCreate(t, e, "empty", 0)
	deactivateAll(t, db)

	bal, err := e.DebitStake(ctx, "u", 7200)
	if err != nil {
		t.Fatalf("DebitStake: %v", err)
	}
	if bal != 2800 {
		t.Errorf("balance = %d, want 2800", bal)
	}

	if _, err := e.DebitStake(ctx, "u", 100000); ledger.KindOf(err) != ledger.KindInsufficientBalance {
		t.Errorf("expected InsufficientBalance, got %v", err)
	}
	if _, err := e.DebitStake(ctx, "empty", 10); ledger.KindOf(err) != ledger.KindInactive {
		t.Errorf("expected Inactive, got %v", err)
	}
}

func TestStatTxHelpersRollBackWithCaller(t *testing.T) {
	e, db := newTestExecutor(t)
	ctx := context.Background()
	mustCreate(t, e, "u", 1000)
	if _, err := e.ApplyStatChanges(ctx, "u", -40, -30, 0); err != nil {
		t.Fatalf("drain stats: %v", err)
	}

	tm := ledger.NewTransactionManager(db.BunDB())
	abort := errors.New("abort")
	err := tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := e.SetStatsFullTx(ctx, tx, "u"); err != nil {
			return err
		}
		if _, err := e.ApplyStatChangesTx(ctx, tx, "u", 0, 0, -10); err != nil {
			return err
		}
		return abort
	})
	if !errors.Is(err, abort) {
		t.Fatalf("transaction err = %v, want the callback error", err)
	}

	stats, err := e.GetStats(ctx, "u")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Energy != 60 || stats.Hunger != 70 || stats.Water != 100 {
		t.Errorf("stats = %+v, want 60/70/100 after rollback", stats)
	}
}
