package progression

import (
	"testing"

	"github.com/arcestia/time-keeper/timekeeper/database/models"
)

func TestTierFor(t *testing.T) {
	tiers := models.DefaultPremiumTiers()

	tests := []struct {
		name     string
		lifetime int64
		wantTier int
	}{
		{"no progress", 0, 0},
		{"just under first threshold", tiers[0].MinLifetimeSeconds - 1, 0},
		{"exactly first threshold", tiers[0].MinLifetimeSeconds, tiers[0].Tier},
		{"mid ladder", tiers[4].MinLifetimeSeconds + 100, tiers[4].Tier},
		{"top of ladder", tiers[9].MinLifetimeSeconds * 2, tiers[9].Tier},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TierFor(tiers, tt.lifetime)
			gotTier := 0
			if got != nil {
				gotTier = got.Tier
			}
			if gotTier != tt.wantTier {
				t.Errorf("TierFor(%d) = tier %d, want %d", tt.lifetime, gotTier, tt.wantTier)
			}
		})
	}
}

func TestPercentToNext(t *testing.T) {
	tiers := models.DefaultPremiumTiers()
	first := tiers[0].MinLifetimeSeconds

	tests := []struct {
		name     string
		lifetime int64
		want     float64
	}{
		{"no progress", 0, 0},
		{"halfway to first tier", first / 2, 50},
		{"exactly first tier", first, 0},
		{"past top tier", tiers[9].MinLifetimeSeconds + 1, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PercentToNext(tiers, tt.lifetime)
			if got != tt.want {
				t.Errorf("PercentToNext(%d) = %v, want %v", tt.lifetime, got, tt.want)
			}
		})
	}
}

func TestPercentToNextMonotonic(t *testing.T) {
	tiers := models.DefaultPremiumTiers()
	top := tiers[9].MinLifetimeSeconds

	prevTier := 0
	for lifetime := int64(0); lifetime <= top; lifetime += top / 200 {
		cur := TierFor(tiers, lifetime)
		curTier := 0
		if cur != nil {
			curTier = cur.Tier
		}
		if curTier < prevTier {
			t.Fatalf("tier regressed from %d to %d at lifetime %d", prevTier, curTier, lifetime)
		}
		prevTier = curTier

		pct := PercentToNext(tiers, lifetime)
		if pct < 0 || pct > 100 {
			t.Fatalf("PercentToNext(%d) = %v out of range", lifetime, pct)
		}
	}
}

func TestPercentToNextEmptyLadder(t *testing.T) {
	if got := PercentToNext(nil, 12345); got != 0 {
		t.Errorf("PercentToNext with no tiers = %v, want 0", got)
	}
	if got := TierFor(nil, 12345); got != nil {
		t.Errorf("TierFor with no tiers = %+v, want nil", got)
	}
}
