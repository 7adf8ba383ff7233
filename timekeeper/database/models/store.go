package models

import "github.com/uptrace/bun"

// Store item kinds.
const (
	ItemKindFood  = "food"
	ItemKindWater = "water"
)

// Market index bounds, percent applied multiplicatively to every item.
const (
	MarketIndexMin = -50
	MarketIndexMax = 300
)

// StoreItem is a catalog entry: stock quantity plus the stat restores
// applied when the item is consumed.
type StoreItem struct {
	bun.BaseModel `bun:"table:store_items,alias:si"`

	ID            int64  `bun:"id,pk,autoincrement"`
	Item          string `bun:"item,notnull,unique"`
	Name          string `bun:"name"`
	Kind          string `bun:"kind,notnull"`
	Qty           int64  `bun:"qty,notnull,default:0"`
	RestoreEnergy int    `bun:"restore_energy,notnull,default:0"`
	RestoreHunger int    `bun:"restore_hunger,notnull,default:0"`
	RestoreWater  int    `bun:"restore_water,notnull,default:0"`
}

// StorePrice carries an item's base price and the volatility-perturbed
// current price the market index is applied to.
type StorePrice struct {
	bun.BaseModel `bun:"table:store_prices,alias:sp"`

	Item                string `bun:"item,pk"`
	BasePriceSeconds    int64  `bun:"base_price_seconds,notnull"`
	CurrentPriceSeconds int64  `bun:"current_price_seconds,notnull"`
}

// InventoryEntry is an item held by an account, bought with apply-later.
type InventoryEntry struct {
	bun.BaseModel `bun:"table:user_inventory,alias:ui"`

	ID       int64  `bun:"id,pk,autoincrement"`
	Username string `bun:"username,notnull"`
	Item     string `bun:"item,notnull"`
	Qty      int64  `bun:"qty,notnull,default:0"`
}
