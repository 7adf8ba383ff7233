// Package depletion holds the stat-decay cadence shared by the
// background worker and in-session ticks. Both callers must produce the
// same deltas for the same tick number, so results stay reproducible no
// matter which path fires a given tick.
package depletion

// BlockSeconds is the stat-depletion cadence: one tick per 10 minutes.
const BlockSeconds = 600

// DeltasForTick returns the stat deltas for 10-minute tick t (1-based).
// Energy drops on three of every four ticks, hunger on odd ticks, water
// on every tick.
func DeltasForTick(t int64) (energy, hunger, water int) {
	if m := t % 4; m == 1 || m == 2 || m == 3 {
		energy = -1
	}
	if t%2 == 1 {
		hunger = -1
	}
	water = -1
	return energy, hunger, water
}

// Ticker tracks a caller's own position in the tick stream. Each caller
// keeps its own Ticker so two independent callers never double-deduct
// within one window: a tick number is produced at most once per Ticker.
type Ticker struct {
	blockSeconds int64
	nextAt       int64
	tick         int64
}

// NewTicker starts a tick stream at the given unix time. The first tick
// becomes due blockSeconds later.
func NewTicker(start int64, blockSeconds int64) *Ticker {
	if blockSeconds <= 0 {
		blockSeconds = BlockSeconds
	}
	return &Ticker{blockSeconds: blockSeconds, nextAt: start + blockSeconds}
}

// Advance returns the tick numbers that became due up to now, catching
// up through all passed windows. Calling it again with the same now
// returns nothing.
func (tk *Ticker) Advance(now int64) []int64 {
	var due []int64
	for tk.nextAt <= now {
		tk.tick++
		due = append(due, tk.tick)
		tk.nextAt += tk.blockSeconds
	}
	return due
}

// Tick returns the number of ticks already produced.
func (tk *Ticker) Tick() int64 {
	return tk.tick
}
