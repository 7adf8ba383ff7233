// Package pricing computes effective store prices from base prices,
// volatility-perturbed current prices, the global market index, and
// premium discounts, and runs the store purchase and inventory flows.
package pricing

import (
	"math"

	lru "github.com/hashicorp/golang-lru"

	"github.com/arcestia/time-keeper/timekeeper/database/models"
)

const (
	// StandardSellRate is the sell-back fraction for regular accounts.
	StandardSellRate = 0.75
	// PremiumSellRate is the sell-back fraction with active premium.
	PremiumSellRate = 0.85

	effectivePriceCacheSize = 512
)

// Calculator derives prices. Effective prices are memoized per
// (current price, market index) pair since the index changes rarely.
type Calculator struct {
	memo *lru.Cache
}

type effectiveKey struct {
	current  int64
	indexPct int
}

func NewCalculator() *Calculator {
	memo, _ := lru.New(effectivePriceCacheSize)
	return &Calculator{memo: memo}
}

// EffectivePrice applies the market index to a current price, floored
// at one second.
func (c *Calculator) EffectivePrice(currentPrice int64, marketIndexPct int) int64 {
	key := effectiveKey{current: currentPrice, indexPct: marketIndexPct}
	if v, ok := c.memo.Get(key); ok {
		return v.(int64)
	}
	price := floorOne(math.Round(float64(currentPrice) * (1 + float64(marketIndexPct)/100)))
	c.memo.Add(key, price)
	return price
}

// DiscountedPrice applies a premium store discount to an effective
// price, floored at one second.
func (c *Calculator) DiscountedPrice(effectivePrice int64, discountPct float64) int64 {
	return floorOne(math.Round(float64(effectivePrice) * (1 - discountPct)))
}

// SellPayout is what an account receives for selling one unit back.
func (c *Calculator) SellPayout(effectivePrice int64, premiumActive bool) int64 {
	rate := StandardSellRate
	if premiumActive {
		rate = PremiumSellRate
	}
	return floorOne(math.Round(float64(effectivePrice) * rate))
}

// PerturbedPrice derives a fresh current price from a base price and a
// volatility draw u in [-v, +v].
func PerturbedPrice(basePrice int64, u float64) int64 {
	return floorOne(math.Round(float64(basePrice) * (1 + u)))
}

// ClampMarketIndex bounds the market index to its allowed range.
func ClampMarketIndex(pct int) int {
	if pct < models.MarketIndexMin {
		return models.MarketIndexMin
	}
	if pct > models.MarketIndexMax {
		return models.MarketIndexMax
	}
	return pct
}

func floorOne(v float64) int64 {
	if v < 1 {
		return 1
	}
	return int64(v)
}
