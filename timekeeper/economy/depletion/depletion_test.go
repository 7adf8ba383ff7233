package depletion

import "testing"

func TestDeltasForTick(t *testing.T) {
	tests := []struct {
		tick    int64
		energy  int
		hunger  int
		water   int
	}{
		{tick: 1, energy: -1, hunger: -1, water: -1},
		{tick: 2, energy: -1, hunger: 0, water: -1},
		{tick: 3, energy: -1, hunger: -1, water: -1},
		{tick: 4, energy: 0, hunger: 0, water: -1},
		{tick: 5, energy: -1, hunger: -1, water: -1},
		{tick: 8, energy: 0, hunger: 0, water: -1},
	}
	for _, tt := range tests {
		e, h, w := DeltasForTick(tt.tick)
		if e != tt.energy || h != tt.hunger || w != tt.water {
			t.Errorf("DeltasForTick(%d) = (%d, %d, %d), want (%d, %d, %d)",
				tt.tick, e, h, w, tt.energy, tt.hunger, tt.water)
		}
	}
}

func TestDeltasAverageRates(t *testing.T) {
	// Over any 4-tick window: energy -3, hunger -2, water -4.
	var e, h, w int
	for t4 := int64(1); t4 <= 4; t4++ {
		de, dh, dw := DeltasForTick(t4)
		e += de
		h += dh
		w += dw
	}
	if e != -3 || h != -2 || w != -4 {
		t.Errorf("4-tick totals = (%d, %d, %d), want (-3, -2, -4)", e, h, w)
	}
}

func TestTickerAdvance(t *testing.T) {
	tk := NewTicker(1000, 600)

	if due := tk.Advance(1599); due != nil {
		t.Errorf("no tick should be due before the first window: %v", due)
	}
	due := tk.Advance(1600)
	if len(due) != 1 || due[0] != 1 {
		t.Errorf("Advance(1600) = %v, want [1]", due)
	}

	// same instant again: nothing new
	if due := tk.Advance(1600); due != nil {
		t.Errorf("repeated Advance must not double-deduct: %v", due)
	}

	// jump three windows: catch up through all of them
	due = tk.Advance(1000 + 4*600)
	if len(due) != 3 || due[0] != 2 || due[2] != 4 {
		t.Errorf("catch-up Advance = %v, want [2 3 4]", due)
	}
	if tk.Tick() != 4 {
		t.Errorf("Tick() = %d, want 4", tk.Tick())
	}
}

func TestIndependentTickersDoNotShareState(t *testing.T) {
	a := NewTicker(0, 600)
	b := NewTicker(0, 600)
	if got := a.Advance(600); len(got) != 1 {
		t.Fatalf("a.Advance = %v", got)
	}
	// b has its own stream and still owes tick 1
	if got := b.Advance(600); len(got) != 1 || got[0] != 1 {
		t.Errorf("b.Advance = %v, want [1]", got)
	}
}
