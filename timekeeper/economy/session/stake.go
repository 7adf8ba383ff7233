package session

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/arcestia/time-keeper/timekeeper/database/repositories"
	"github.com/arcestia/time-keeper/timekeeper/economy/depletion"
	"github.com/arcestia/time-keeper/timekeeper/economy/progression"
	"github.com/arcestia/time-keeper/timekeeper/ledger"
)

// BalancePollSeconds is the minimum gap between in-session balance
// checks.
const BalancePollSeconds = 5

// Engine runs sessions against the ledger. One engine serves any
// number of sequential sessions; each Run call blocks until its
// session reaches a terminal state.
type Engine struct {
	ex          *ledger.Executor
	accounts    repositories.AccountRepository
	tiers       repositories.TierRepository
	earner      repositories.EarnerRepository
	tracker     *progression.Tracker
	multipliers MultiplierSource
	clock       Clock
}

func NewEngine(ex *ledger.Executor, accounts repositories.AccountRepository, tiers repositories.TierRepository, earner repositories.EarnerRepository) *Engine {
	return &Engine{
		ex:          ex,
		accounts:    accounts,
		tiers:       tiers,
		earner:      earner,
		tracker:     progression.NewTracker(tiers),
		multipliers: flatMultiplier{},
		clock:       SystemClock(),
	}
}

// SetMultiplierSource wires the timezone earn multiplier collaborator.
func (e *Engine) SetMultiplierSource(src MultiplierSource) {
	e.multipliers = src
}

// SetClock overrides the wall clock, for tests.
func (e *Engine) SetClock(clock Clock) {
	e.clock = clock
}

// StakeOutcome reports a finished stake session.
type StakeOutcome struct {
	Session      *Session
	Stake        int64
	BaseReward   int64
	PremiumBonus int64
	FinalReward  int64
	NewTotal     int64
}

// RunStake debits the stake up front and counts down stakeSeconds of
// wall-clock time. The stake is lost on cancellation, a zero balance,
// or a depleted stat; completion pays round(stake × multiplier) plus
// the premium earn bonus, scaled by the timezone multiplier.
func (e *Engine) RunStake(ctx context.Context, username string, stakeSeconds int64, target Target) (*StakeOutcome, error) {
	if stakeSeconds <= 0 {
		return nil, ledger.NewError(ledger.KindInvalidAmount, "stake must be greater than zero")
	}
	cfg, err := e.earner.Get(ctx)
	if err != nil {
		return nil, err
	}
	stakeTiers, err := e.tiers.ListStakeTiers(ctx)
	if err != nil {
		return nil, err
	}

	minStake := cfg.MinStakeSeconds
	if len(stakeTiers) > 0 {
		minStake = stakeTiers[0].MinSeconds
	}
	if stakeSeconds < minStake {
		return nil, ledger.NewError(ledger.KindBelowMinimumThreshold,
			"minimum stake is %d seconds", minStake)
	}

	multiplier := cfg.RewardMultiplier
	if m, ok, err := e.tiers.MultiplierForStake(ctx, stakeSeconds); err != nil {
		return nil, err
	} else if ok {
		multiplier = m
	}

	if _, err := e.ex.DebitStake(ctx, username, stakeSeconds); err != nil {
		return nil, err
	}

	sess := &Session{
		ID:        uuid.New(),
		Kind:      KindStake,
		State:     StateRunning,
		Username:  username,
		Stake:     stakeSeconds,
		StartedAt: e.clock.Now(),
	}
	outcome := &StakeOutcome{Session: sess, Stake: stakeSeconds}
	slog.Info("Stake session started",
		slog.String("type", "session"),
		slog.String("id", sess.ID.String()),
		slog.String("username", username),
		slog.Int64("stake_seconds", stakeSeconds))

	forfeited, err := e.holdCountdown(ctx, sess)
	if err != nil {
		return nil, err
	}

	// Settlement must finish even when the session ended on a
	// cancelled context.
	sctx := context.WithoutCancel(ctx)

	if forfeited {
		sess.State = StateForfeited
		total, err := e.ex.GetBalance(sctx, username)
		if err != nil {
			return nil, err
		}
		outcome.NewTotal = total
		slog.Warn("Stake session forfeited",
			slog.String("type", "session"),
			slog.String("id", sess.ID.String()),
			slog.String("username", username))
		return outcome, nil
	}

	base := roundHalfAway(float64(stakeSeconds) * multiplier)
	final, bonus, err := e.finalReward(sctx, username, base)
	if err != nil {
		return nil, err
	}
	outcome.BaseReward = base
	outcome.PremiumBonus = bonus
	outcome.FinalReward = final

	total, err := e.credit(sctx, username, final, target)
	if err != nil {
		return nil, err
	}
	outcome.NewTotal = total
	sess.State = StateCompleted
	slog.Info("Stake session completed",
		slog.String("type", "session"),
		slog.String("id", sess.ID.String()),
		slog.String("username", username),
		slog.Int64("reward_seconds", final))
	return outcome, nil
}

// holdCountdown runs the per-second wait loop shared by stake
// sessions. It reports forfeiture; an error means the session could
// not be driven further and the stake is still lost.
func (e *Engine) holdCountdown(ctx context.Context, sess *Session) (forfeited bool, err error) {
	ticker := depletion.NewTicker(sess.StartedAt, depletion.BlockSeconds)
	lastPoll := sess.StartedAt

	for {
		now := e.clock.Now()
		if now-sess.StartedAt >= sess.Stake {
			return false, nil
		}
		if err := e.clock.Sleep(ctx, time.Second); err != nil {
			return true, nil
		}
		if ctx.Err() != nil {
			return true, nil
		}
		now = e.clock.Now()

		for _, tick := range ticker.Advance(now) {
			dE, dH, dW := depletion.DeltasForTick(tick)
			stats, err := e.ex.ApplyStatChanges(ctx, sess.Username, dE, dH, dW)
			if err != nil {
				if canceled(err) {
					return true, nil
				}
				return false, err
			}
			if stats.Depleted() {
				return true, nil
			}
		}

		if now-lastPoll >= BalancePollSeconds {
			lastPoll = now
			balance, err := e.ex.GetBalance(ctx, sess.Username)
			if err != nil {
				if canceled(err) {
					return true, nil
				}
				return false, err
			}
			if balance <= 0 {
				return true, nil
			}
		}
	}
}

// finalReward layers the premium earn bonus and timezone multiplier on
// a base reward.
func (e *Engine) finalReward(ctx context.Context, username string, base int64) (final, premiumBonus int64, err error) {
	account, err := e.accounts.GetByUsername(ctx, username)
	if err != nil {
		return 0, 0, err
	}
	progress, err := e.tracker.Status(ctx, account, e.clock.Now())
	if err != nil {
		return 0, 0, err
	}
	if active, pct := premiumBonusFor(progress); active {
		premiumBonus = roundHalfAway(float64(base) * pct)
	}
	mult, err := e.multipliers.EarnMultiplier(ctx, username)
	if err != nil {
		return 0, 0, err
	}
	final = roundHalfAway(float64(base+premiumBonus) * mult)
	return final, premiumBonus, nil
}

func (e *Engine) credit(ctx context.Context, username string, amount int64, target Target) (int64, error) {
	if amount <= 0 {
		return 0, nil
	}
	if target == TargetProgression {
		return e.ex.AddLifetimeProgress(ctx, username, amount)
	}
	return e.ex.CreditBalance(ctx, username, amount)
}

func roundHalfAway(v float64) int64 {
	return int64(math.Round(v))
}
