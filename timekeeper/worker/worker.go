// Package worker runs the background depletion loop: one ledger-wide
// tick per interval, deducting a second from every active balance.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/arcestia/time-keeper/timekeeper/ledger"
)

const progressLogEvery = 10

// Config controls the depletion worker.
type Config struct {
	IntervalSeconds int `toml:"interval_seconds" env:"WORKER_INTERVAL_SECONDS"`
}

// DefaultConfig runs one tick per second, matching one deducted second
// per elapsed second.
func DefaultConfig() Config {
	return Config{IntervalSeconds: 1}
}

// Worker drives DeductOneTickAllActive on a fixed interval until its
// context is cancelled. Transient errors are logged and the loop
// continues; only cancellation stops it.
type Worker struct {
	ex       *ledger.Executor
	interval time.Duration
}

func New(ex *ledger.Executor, cfg Config) *Worker {
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	return &Worker{ex: ex, interval: interval}
}

// Run blocks until ctx is cancelled. Returns the number of ticks
// completed.
func (w *Worker) Run(ctx context.Context) int64 {
	slog.Info("Depletion worker started",
		slog.String("type", "worker"),
		slog.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var ticks int64
	for {
		select {
		case <-ctx.Done():
			slog.Info("Depletion worker stopped",
				slog.String("type", "worker"),
				slog.Int64("ticks", ticks))
			return ticks
		case <-ticker.C:
		}

		result, err := w.ex.DeductOneTickAllActive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			slog.Error("Depletion tick failed",
				slog.String("type", "worker"),
				slog.String("error", err.Error()),
				slog.Bool("retryable", ledger.IsKind(err, ledger.KindConcurrencyAborted)))
			continue
		}
		ticks++
		if ticks%progressLogEvery == 0 {
			slog.Info("Depletion progress",
				slog.String("type", "worker"),
				slog.Int64("ticks", ticks),
				slog.Int64("updated", result.Updated),
				slog.Int64("deactivated", result.Deactivated))
		}
	}
}
