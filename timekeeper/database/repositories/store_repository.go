package repositories

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/uptrace/bun"

	"github.com/arcestia/time-keeper/timekeeper/database/models"
)

// ItemWithPrice pairs a store item with its price row for listings.
type ItemWithPrice struct {
	Item  models.StoreItem
	Price models.StorePrice
}

type StoreRepository interface {
	AddItem(ctx context.Context, item *models.StoreItem, basePriceSeconds int64) error
	RemoveItem(ctx context.Context, itemKey string) (bool, error)
	GetItem(ctx context.Context, itemKey string) (*models.StoreItem, error)
	ResolveItem(ctx context.Context, ref string) (*models.StoreItem, error)
	SearchItems(ctx context.Context, query string) ([]models.StoreItem, error)
	ListItems(ctx context.Context) ([]ItemWithPrice, error)
	SetStock(ctx context.Context, itemKey string, qty int64) error
	AdjustStock(ctx context.Context, itemKey string, delta int64) error

	GetPrice(ctx context.Context, itemKey string) (*models.StorePrice, error)
	SetBasePrice(ctx context.Context, itemKey string, basePriceSeconds int64) error
	SetCurrentPrice(ctx context.Context, itemKey string, currentPriceSeconds int64) error
	ListPrices(ctx context.Context) ([]models.StorePrice, error)

	GetInventory(ctx context.Context, username string) ([]models.InventoryEntry, error)
	GetInventoryEntry(ctx context.Context, username, itemKey string) (*models.InventoryEntry, error)
	AddToInventory(ctx context.Context, username, itemKey string, qty int64) error
	RemoveFromInventory(ctx context.Context, username, itemKey string, qty int64) (bool, error)
}

type storeRepository struct {
	db *bun.DB
}

func NewStoreRepository(db *bun.DB) StoreRepository {
	return &storeRepository{db: db}
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// SlugifyKey derives a stable item key from a display name.
func SlugifyKey(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = slugPattern.ReplaceAllString(key, "_")
	return strings.Trim(key, "_")
}

func (r *storeRepository) AddItem(ctx context.Context, item *models.StoreItem, basePriceSeconds int64) error {
	if item.Item == "" {
		item.Item = SlugifyKey(item.Name)
	}
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().
			Model(item).
			On("CONFLICT (item) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("kind = EXCLUDED.kind").
			Set("qty = EXCLUDED.qty").
			Set("restore_energy = EXCLUDED.restore_energy").
			Set("restore_hunger = EXCLUDED.restore_hunger").
			Set("restore_water = EXCLUDED.restore_water").
			Exec(ctx); err != nil {
			return err
		}
		price := &models.StorePrice{
			Item:                item.Item,
			BasePriceSeconds:    basePriceSeconds,
			CurrentPriceSeconds: basePriceSeconds,
		}
		_, err := tx.NewInsert().
			Model(price).
			On("CONFLICT (item) DO UPDATE").
			Set("base_price_seconds = EXCLUDED.base_price_seconds").
			Set("current_price_seconds = EXCLUDED.current_price_seconds").
			Exec(ctx)
		return err
	})
}

func (r *storeRepository) RemoveItem(ctx context.Context, itemKey string) (bool, error) {
	var removed bool
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*models.StoreItem)(nil)).
			Where("item = ?", itemKey).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, _ := res.RowsAffected()
		removed = affected > 0
		if !removed {
			return nil
		}
		_, err = tx.NewDelete().
			Model((*models.StorePrice)(nil)).
			Where("item = ?", itemKey).
			Exec(ctx)
		return err
	})
	return removed, err
}

func (r *storeRepository) GetItem(ctx context.Context, itemKey string) (*models.StoreItem, error) {
	item := new(models.StoreItem)
	err := r.db.NewSelect().
		Model(item).
		Where("item = ?", itemKey).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

// ResolveItem accepts either a numeric row id or an item key.
func (r *storeRepository) ResolveItem(ctx context.Context, ref string) (*models.StoreItem, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		item := new(models.StoreItem)
		err := r.db.NewSelect().
			Model(item).
			Where("id = ?", id).
			Scan(ctx)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}
	return r.GetItem(ctx, strings.ToLower(ref))
}

// SearchItems ranks items by fuzzy match against keys and display names.
func (r *storeRepository) SearchItems(ctx context.Context, query string) ([]models.StoreItem, error) {
	var items []models.StoreItem
	if err := r.db.NewSelect().
		Model(&items).
		Order("item ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	if query == "" {
		return items, nil
	}
	targets := make([]string, len(items))
	for i, it := range items {
		targets[i] = it.Item + " " + it.Name
	}
	matches := fuzzy.Find(strings.ToLower(query), targets)
	ranked := make([]models.StoreItem, 0, len(matches))
	for _, m := range matches {
		ranked = append(ranked, items[m.Index])
	}
	return ranked, nil
}

func (r *storeRepository) ListItems(ctx context.Context) ([]ItemWithPrice, error) {
	var items []models.StoreItem
	if err := r.db.NewSelect().
		Model(&items).
		Order("item ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	var prices []models.StorePrice
	if err := r.db.NewSelect().
		Model(&prices).
		Scan(ctx); err != nil {
		return nil, err
	}
	byItem := make(map[string]models.StorePrice, len(prices))
	for _, p := range prices {
		byItem[p.Item] = p
	}
	out := make([]ItemWithPrice, 0, len(items))
	for _, it := range items {
		out = append(out, ItemWithPrice{Item: it, Price: byItem[it.Item]})
	}
	return out, nil
}

func (r *storeRepository) SetStock(ctx context.Context, itemKey string, qty int64) error {
	res, err := r.db.NewUpdate().
		Model((*models.StoreItem)(nil)).
		Set("qty = ?", qty).
		Where("item = ?", itemKey).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *storeRepository) AdjustStock(ctx context.Context, itemKey string, delta int64) error {
	res, err := r.db.NewUpdate().
		Model((*models.StoreItem)(nil)).
		Set("qty = qty + ?", delta).
		Where("item = ?", itemKey).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *storeRepository) GetPrice(ctx context.Context, itemKey string) (*models.StorePrice, error) {
	price := new(models.StorePrice)
	err := r.db.NewSelect().
		Model(price).
		Where("item = ?", itemKey).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return price, nil
}

func (r *storeRepository) SetBasePrice(ctx context.Context, itemKey string, basePriceSeconds int64) error {
	res, err := r.db.NewUpdate().
		Model((*models.StorePrice)(nil)).
		Set("base_price_seconds = ?", basePriceSeconds).
		Where("item = ?", itemKey).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *storeRepository) SetCurrentPrice(ctx context.Context, itemKey string, currentPriceSeconds int64) error {
	res, err := r.db.NewUpdate().
		Model((*models.StorePrice)(nil)).
		Set("current_price_seconds = ?", currentPriceSeconds).
		Where("item = ?", itemKey).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *storeRepository) ListPrices(ctx context.Context) ([]models.StorePrice, error) {
	var prices []models.StorePrice
	err := r.db.NewSelect().
		Model(&prices).
		Order("item ASC").
		Scan(ctx)
	return prices, err
}

func (r *storeRepository) GetInventory(ctx context.Context, username string) ([]models.InventoryEntry, error) {
	var entries []models.InventoryEntry
	err := r.db.NewSelect().
		Model(&entries).
		Where("username = ?", username).
		Where("qty > 0").
		Order("item ASC").
		Scan(ctx)
	return entries, err
}

func (r *storeRepository) GetInventoryEntry(ctx context.Context, username, itemKey string) (*models.InventoryEntry, error) {
	entry := new(models.InventoryEntry)
	err := r.db.NewSelect().
		Model(entry).
		Where("username = ?", username).
		Where("item = ?", itemKey).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return entry, nil
}

func (r *storeRepository) AddToInventory(ctx context.Context, username, itemKey string, qty int64) error {
	entry := &models.InventoryEntry{
		Username: username,
		Item:     itemKey,
		Qty:      qty,
	}
	_, err := r.db.NewInsert().
		Model(entry).
		On("CONFLICT (username, item) DO UPDATE").
		Set("qty = ui.qty + EXCLUDED.qty").
		Exec(ctx)
	return err
}

// RemoveFromInventory decrements the held quantity. It reports false
// without changes when the user does not hold enough of the item.
func (r *storeRepository) RemoveFromInventory(ctx context.Context, username, itemKey string, qty int64) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*models.InventoryEntry)(nil)).
		Set("qty = qty - ?", qty).
		Where("username = ?", username).
		Where("item = ?", itemKey).
		Where("qty >= ?", qty).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}
