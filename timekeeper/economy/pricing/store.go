package pricing

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/uptrace/bun"

	"github.com/arcestia/time-keeper/timekeeper/database"
	"github.com/arcestia/time-keeper/timekeeper/database/models"
	"github.com/arcestia/time-keeper/timekeeper/database/repositories"
	"github.com/arcestia/time-keeper/timekeeper/ledger"
)

// Quote is one priced catalog entry for a specific buyer.
type Quote struct {
	Item           models.StoreItem
	BasePrice      int64
	CurrentPrice   int64
	EffectivePrice int64
	YourPrice      int64
	SellPayout     int64
	PremiumActive  bool
}

// PurchaseReceipt reports a completed store purchase.
type PurchaseReceipt struct {
	Item       string
	Qty        int64
	UnitPrice  int64
	TotalPrice int64
	Balance    int64
	AppliedNow bool
	Stats      *ledger.Stats
}

// SellReceipt reports a completed inventory sale.
type SellReceipt struct {
	Item       string
	Qty        int64
	UnitPayout int64
	TotalPaid  int64
	Balance    int64
}

// Store runs the purchase, inventory, and market flows. Purchase costs
// flow into the reserve pool and sell payouts flow back out of it, so
// the store never mints or destroys seconds.
type Store struct {
	db    *database.DB
	tm    *ledger.TransactionManager
	ex    *ledger.Executor
	items repositories.StoreRepository
	calc  *Calculator
	now   func() int64
	randU func() float64
}

func NewStore(db *database.DB, tm *ledger.TransactionManager, items repositories.StoreRepository) *Store {
	return &Store{
		db:    db,
		tm:    tm,
		ex:    ledger.NewExecutor(tm),
		items: items,
		calc:  NewCalculator(),
		now:   func() int64 { return time.Now().Unix() },
		randU: func() float64 { return rand.Float64()*2 - 1 },
	}
}

// SetNowFunc overrides the clock, for tests.
func (s *Store) SetNowFunc(now func() int64) {
	s.now = now
	s.ex.SetNowFunc(now)
}

// SetRandFunc overrides the volatility draw in [-1, 1], for tests.
func (s *Store) SetRandFunc(randU func() float64) {
	s.randU = randU
}

// Calculator exposes the price math for read-only listings.
func (s *Store) Calculator() *Calculator {
	return s.calc
}

// MarketIndex reads the global market index percent.
func (s *Store) MarketIndex(ctx context.Context) (int, error) {
	raw, err := s.db.GetAppMeta(ctx, models.MetaMarketIndex)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	pct, err := strconv.Atoi(raw)
	if err != nil {
		return 0, nil
	}
	return pct, nil
}

// SetMarketIndex stores the market index, clamped to its range.
func (s *Store) SetMarketIndex(ctx context.Context, pct int) (int, error) {
	pct = ClampMarketIndex(pct)
	if err := s.db.SetAppMeta(ctx, models.MetaMarketIndex, strconv.Itoa(pct)); err != nil {
		return 0, err
	}
	slog.Info("Market index updated",
		slog.String("type", "db"),
		slog.Int("index_percent", pct))
	return pct, nil
}

// RefreshPrices re-derives every current price from its base price
// with a volatility draw in [-volatility, +volatility]. Returns the
// number of prices updated.
func (s *Store) RefreshPrices(ctx context.Context, volatility float64) (int, error) {
	if volatility < 0 {
		return 0, ledger.NewError(ledger.KindInvalidAmount, "volatility cannot be negative")
	}
	prices, err := s.items.ListPrices(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range prices {
		next := PerturbedPrice(p.BasePriceSeconds, s.randU()*volatility)
		if err := s.items.SetCurrentPrice(ctx, p.Item, next); err != nil {
			return 0, err
		}
	}
	return len(prices), nil
}

// QuoteFor prices a single item for a buyer, honoring the buyer's
// premium discount when premium is active.
func (s *Store) QuoteFor(ctx context.Context, username, itemRef string) (*Quote, error) {
	item, err := s.items.ResolveItem(ctx, itemRef)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ledger.NewError(ledger.KindNotFound, "item %q not found", itemRef)
		}
		return nil, err
	}
	price, err := s.items.GetPrice(ctx, item.Item)
	if err != nil {
		return nil, err
	}
	idx, err := s.MarketIndex(ctx)
	if err != nil {
		return nil, err
	}

	quote := &Quote{
		Item:         *item,
		BasePrice:    price.BasePriceSeconds,
		CurrentPrice: price.CurrentPriceSeconds,
	}
	quote.EffectivePrice = s.calc.EffectivePrice(price.CurrentPriceSeconds, idx)

	premium, discount, err := s.buyerDiscount(ctx, username)
	if err != nil {
		return nil, err
	}
	quote.PremiumActive = premium
	quote.YourPrice = quote.EffectivePrice
	if premium {
		quote.YourPrice = s.calc.DiscountedPrice(quote.EffectivePrice, discount)
	}
	quote.SellPayout = s.calc.SellPayout(quote.EffectivePrice, premium)
	return quote, nil
}

// Purchase buys qty units. With applyNow the restore effects land
// immediately, otherwise the units go to the buyer's inventory. Stock,
// balance, reserve, and the inventory or stat effects all move in one
// transaction.
func (s *Store) Purchase(ctx context.Context, username, itemRef string, qty int64, applyNow bool) (*PurchaseReceipt, error) {
	if qty <= 0 {
		return nil, ledger.NewError(ledger.KindInvalidAmount, "quantity must be greater than zero")
	}
	quote, err := s.QuoteFor(ctx, username, itemRef)
	if err != nil {
		return nil, err
	}
	receipt := &PurchaseReceipt{
		Item:       quote.Item.Item,
		Qty:        qty,
		UnitPrice:  quote.YourPrice,
		TotalPrice: quote.YourPrice * qty,
		AppliedNow: applyNow,
	}

	err = s.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := findAccount(ctx, tx, username)
		if err != nil {
			return err
		}
		if !account.Active {
			return ledger.NewError(ledger.KindInactive, "account %s is deactivated", username)
		}
		if account.BalanceSeconds < receipt.TotalPrice {
			return ledger.NewError(ledger.KindInsufficientBalance,
				"need %d seconds, balance is %d", receipt.TotalPrice, account.BalanceSeconds)
		}

		res, err := tx.NewUpdate().
			Model((*models.StoreItem)(nil)).
			Set("qty = qty - ?", qty).
			Where("item = ?", quote.Item.Item).
			Where("qty >= ?", qty).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return ledger.NewError(ledger.KindInsufficientStock,
				"only %d of %s in stock", quote.Item.Qty, quote.Item.Item)
		}

		receipt.Balance = account.BalanceSeconds - receipt.TotalPrice
		if _, err := tx.NewUpdate().
			Model((*models.Account)(nil)).
			Set("balance_seconds = ?", receipt.Balance).
			Where("id = ?", account.ID).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewUpdate().
			Model((*models.ReservePool)(nil)).
			Set("total_seconds = total_seconds + ?", receipt.TotalPrice).
			Where("id = ?", models.ReservePoolID).
			Exec(ctx); err != nil {
			return err
		}

		if applyNow {
			n := int(qty)
			stats, err := s.ex.ApplyStatChangesTx(ctx, tx, username,
				quote.Item.RestoreEnergy*n, quote.Item.RestoreHunger*n, quote.Item.RestoreWater*n)
			if err != nil {
				return err
			}
			receipt.Stats = stats
			return nil
		}
		entry := &models.InventoryEntry{Username: username, Item: quote.Item.Item, Qty: qty}
		_, err = tx.NewInsert().
			Model(entry).
			On("CONFLICT (username, item) DO UPDATE").
			Set("qty = ui.qty + EXCLUDED.qty").
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Store purchase",
		slog.String("type", "db"),
		slog.String("username", username),
		slog.String("item", receipt.Item),
		slog.Int64("qty", qty),
		slog.Int64("total_price", receipt.TotalPrice))
	return receipt, nil
}

// UseItem consumes qty units from the inventory and applies their
// restore effects.
func (s *Store) UseItem(ctx context.Context, username, itemRef string, qty int64) (*ledger.Stats, error) {
	if qty <= 0 {
		return nil, ledger.NewError(ledger.KindInvalidAmount, "quantity must be greater than zero")
	}
	item, err := s.items.ResolveItem(ctx, itemRef)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ledger.NewError(ledger.KindNotFound, "item %q not found", itemRef)
		}
		return nil, err
	}
	ok, err := s.items.RemoveFromInventory(ctx, username, item.Item, qty)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ledger.NewError(ledger.KindInsufficientStock,
			"not enough %s in inventory", item.Item)
	}
	return s.applyEffects(ctx, username, item, qty)
}

// SendItem moves qty units between two inventories. The recipient must
// exist and be active.
func (s *Store) SendItem(ctx context.Context, from, to, itemRef string, qty int64) error {
	if qty <= 0 {
		return ledger.NewError(ledger.KindInvalidAmount, "quantity must be greater than zero")
	}
	if from == to {
		return ledger.NewError(ledger.KindInvalidAmount, "cannot send items to yourself")
	}
	item, err := s.items.ResolveItem(ctx, itemRef)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ledger.NewError(ledger.KindNotFound, "item %q not found", itemRef)
		}
		return err
	}
	return s.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		recipient, err := findAccount(ctx, tx, to)
		if err != nil {
			return err
		}
		if !recipient.Active {
			return ledger.NewError(ledger.KindInactive, "account %s is deactivated", to)
		}
		res, err := tx.NewUpdate().
			Model((*models.InventoryEntry)(nil)).
			Set("qty = qty - ?", qty).
			Where("username = ?", from).
			Where("item = ?", item.Item).
			Where("qty >= ?", qty).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return ledger.NewError(ledger.KindInsufficientStock,
				"not enough %s in inventory", item.Item)
		}
		entry := &models.InventoryEntry{Username: to, Item: item.Item, Qty: qty}
		_, err = tx.NewInsert().
			Model(entry).
			On("CONFLICT (username, item) DO UPDATE").
			Set("qty = ui.qty + EXCLUDED.qty").
			Exec(ctx)
		return err
	})
}

// SellItem sells qty units from the inventory back to the store. The
// payout comes out of the reserve pool and the units return to stock.
func (s *Store) SellItem(ctx context.Context, username, itemRef string, qty int64) (*SellReceipt, error) {
	if qty <= 0 {
		return nil, ledger.NewError(ledger.KindInvalidAmount, "quantity must be greater than zero")
	}
	quote, err := s.QuoteFor(ctx, username, itemRef)
	if err != nil {
		return nil, err
	}
	receipt := &SellReceipt{
		Item:       quote.Item.Item,
		Qty:        qty,
		UnitPayout: quote.SellPayout,
		TotalPaid:  quote.SellPayout * qty,
	}

	err = s.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := findAccount(ctx, tx, username)
		if err != nil {
			return err
		}
		if !account.Active {
			return ledger.NewError(ledger.KindInactive, "account %s is deactivated", username)
		}

		res, err := tx.NewUpdate().
			Model((*models.InventoryEntry)(nil)).
			Set("qty = qty - ?", qty).
			Where("username = ?", username).
			Where("item = ?", quote.Item.Item).
			Where("qty >= ?", qty).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return ledger.NewError(ledger.KindInsufficientStock,
				"not enough %s in inventory", quote.Item.Item)
		}

		reserve := new(models.ReservePool)
		if err := tx.NewSelect().
			Model(reserve).
			Where("id = ?", models.ReservePoolID).
			Scan(ctx); err != nil {
			return err
		}
		if reserve.TotalSeconds < receipt.TotalPaid {
			return ledger.NewError(ledger.KindInsufficientBalance,
				"reserve holds %d seconds, payout needs %d", reserve.TotalSeconds, receipt.TotalPaid)
		}
		if _, err := tx.NewUpdate().
			Model((*models.ReservePool)(nil)).
			Set("total_seconds = total_seconds - ?", receipt.TotalPaid).
			Where("id = ?", models.ReservePoolID).
			Exec(ctx); err != nil {
			return err
		}

		receipt.Balance = account.BalanceSeconds + receipt.TotalPaid
		if _, err := tx.NewUpdate().
			Model((*models.Account)(nil)).
			Set("balance_seconds = ?", receipt.Balance).
			Where("id = ?", account.ID).
			Exec(ctx); err != nil {
			return err
		}

		_, err = tx.NewUpdate().
			Model((*models.StoreItem)(nil)).
			Set("qty = qty + ?", qty).
			Where("item = ?", quote.Item.Item).
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// applyEffects applies qty stacked restore effects through the stat
// clamp.
func (s *Store) applyEffects(ctx context.Context, username string, item *models.StoreItem, qty int64) (*ledger.Stats, error) {
	n := int(qty)
	return s.ex.ApplyStatChanges(ctx, username,
		item.RestoreEnergy*n, item.RestoreHunger*n, item.RestoreWater*n)
}

// buyerDiscount resolves premium state and the tier store discount for
// a buyer.
func (s *Store) buyerDiscount(ctx context.Context, username string) (bool, float64, error) {
	account := new(models.Account)
	err := s.tm.DB().NewSelect().
		Model(account).
		Where("username = ?", username).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, 0, ledger.NewError(ledger.KindNotFound, "user not found")
		}
		return false, 0, err
	}
	if !account.IsPremiumActive(s.now()) {
		return false, 0, nil
	}
	tier := new(models.PremiumTier)
	err = s.tm.DB().NewSelect().
		Model(tier).
		Where("min_lifetime_seconds <= ?", account.PremiumLifetimeSeconds).
		Order("min_lifetime_seconds DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return true, 0, nil
		}
		return false, 0, err
	}
	return true, tier.StoreDiscountPct, nil
}

func findAccount(ctx context.Context, tx bun.Tx, username string) (*models.Account, error) {
	account := new(models.Account)
	err := tx.NewSelect().
		Model(account).
		Where("username = ?", username).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.NewError(ledger.KindNotFound, "user not found")
		}
		return nil, err
	}
	return account, nil
}
