// Package session drives the stake and open earning session state
// machines. Sessions are ephemeral: they live in the running process,
// block their caller, and only touch the database through the ledger
// executor.
package session

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/arcestia/time-keeper/timekeeper/economy/progression"
)

// Kind discriminates the two session machines.
type Kind int

const (
	KindStake Kind = iota
	KindOpen
)

func (k Kind) String() string {
	switch k {
	case KindStake:
		return "stake"
	case KindOpen:
		return "open"
	}
	return "unknown"
}

// State is a session's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateStaked
	StateRunning
	StateCompleted
	StateForfeited
	StateClaimed
	StatePenalized
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStaked:
		return "staked"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateForfeited:
		return "forfeited"
	case StateClaimed:
		return "claimed"
	case StatePenalized:
		return "penalized"
	}
	return "unknown"
}

// Target selects where a session reward lands.
type Target int

const (
	// TargetBalance credits the reward to the account balance.
	TargetBalance Target = iota
	// TargetProgression credits the reward to premium lifetime
	// progress instead.
	TargetProgression
)

// Session is the in-process record of one running session.
type Session struct {
	ID        uuid.UUID
	Kind      Kind
	State     State
	Username  string
	Stake     int64
	StartedAt int64
}

// MultiplierSource supplies the per-account timezone earn multiplier.
// The engine treats it as an opaque non-negative float.
type MultiplierSource interface {
	EarnMultiplier(ctx context.Context, username string) (float64, error)
}

// StopPrompt is consulted when a running open session receives an
// interrupt: true claims the session, false resumes it.
type StopPrompt interface {
	ConfirmClaim(ctx context.Context) (bool, error)
}

// flatMultiplier is the MultiplierSource used when none is wired.
type flatMultiplier struct{}

func (flatMultiplier) EarnMultiplier(context.Context, string) (float64, error) {
	return 1.0, nil
}

// premiumBonusFor resolves the earn bonus of an account's tier when
// premium is active.
func premiumBonusFor(progress *progression.Progress) (bool, float64) {
	if progress == nil || !progress.PremiumActive {
		return false, 0
	}
	if progress.Current == nil {
		return true, 0
	}
	return true, progress.Current.EarnBonusPct
}

// canceled reports whether an error from a ledger call is the context
// being torn down rather than a real failure. The session loops turn
// these into a controlled stop instead of surfacing them.
func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
