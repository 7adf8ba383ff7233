package session

import (
	"context"
	"time"
)

// Clock abstracts wall-clock time so session loops can be driven
// without real waiting in tests.
type Clock interface {
	Now() int64
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() int64 { return time.Now().Unix() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SystemClock returns the real wall clock.
func SystemClock() Clock {
	return systemClock{}
}
