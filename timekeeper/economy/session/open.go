package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arcestia/time-keeper/timekeeper/database/models"
	"github.com/arcestia/time-keeper/timekeeper/economy/depletion"
)

// PenaltyRate is the fraction of an open-session reward kept after a
// forced stop.
const PenaltyRate = 0.75

// schedule is the accrual rate configuration an open session runs on.
type schedule struct {
	basePct      float64
	perBlockPct  float64
	minSeconds   int64
	blockSeconds int64
}

func scheduleFrom(cfg *models.EarnerConfig) schedule {
	if cfg.PromoEnabled {
		return schedule{
			basePct:      cfg.PromoBasePct,
			perBlockPct:  cfg.PromoPerBlockPct,
			minSeconds:   cfg.PromoMinSeconds,
			blockSeconds: cfg.PromoBlockSeconds,
		}
	}
	return schedule{
		basePct:      cfg.DefaultBasePct,
		perBlockPct:  cfg.DefaultPerBlockPct,
		minSeconds:   cfg.DefaultMinSeconds,
		blockSeconds: cfg.DefaultBlockSeconds,
	}
}

// rate is the accrual percentage after a number of completed blocks.
func (s schedule) rate(blocks int64) float64 {
	extra := blocks - 1
	if extra < 0 {
		extra = 0
	}
	return s.basePct + s.perBlockPct*float64(extra)
}

// OpenOutcome reports a finished open session.
type OpenOutcome struct {
	Session      *Session
	Elapsed      int64
	Blocks       int64
	Bonus        int64
	Total        int64
	PremiumBonus int64
	FinalReward  int64
	NewTotal     int64
}

// RunOpen accrues elapsed time plus a block-scaled bonus until the
// session is claimed or force-stopped. An interrupt consults the
// prompt: claim ends the session, resume continues it; cancelling the
// context claims whatever has accrued. A zero balance or depleted stat
// stops the session with a 25% penalty. Claims before the schedule
// minimum pay nothing.
func (e *Engine) RunOpen(ctx context.Context, username string, target Target, interrupt <-chan struct{}, prompt StopPrompt) (*OpenOutcome, error) {
	cfg, err := e.earner.Get(ctx)
	if err != nil {
		return nil, err
	}
	sched := scheduleFrom(cfg)

	balance, err := e.ex.GetBalance(ctx, username)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:        uuid.New(),
		Kind:      KindOpen,
		State:     StateRunning,
		Username:  username,
		StartedAt: e.clock.Now(),
	}
	slog.Info("Open session started",
		slog.String("type", "session"),
		slog.String("id", sess.ID.String()),
		slog.String("username", username))

	ticker := depletion.NewTicker(sess.StartedAt, depletion.BlockSeconds)
	lastPoll := sess.StartedAt
	penalized := balance <= 0

	for !penalized {
		select {
		case <-ctx.Done():
			return e.settleOpen(ctx, sess, sched, target, false)
		case <-interrupt:
			claim, err := prompt.ConfirmClaim(ctx)
			if err != nil {
				return nil, err
			}
			if claim {
				return e.settleOpen(ctx, sess, sched, target, false)
			}
			continue
		default:
		}

		if err := e.clock.Sleep(ctx, time.Second); err != nil {
			return e.settleOpen(ctx, sess, sched, target, false)
		}
		if ctx.Err() != nil {
			return e.settleOpen(ctx, sess, sched, target, false)
		}
		now := e.clock.Now()

		for _, tick := range ticker.Advance(now) {
			dE, dH, dW := depletion.DeltasForTick(tick)
			stats, err := e.ex.ApplyStatChanges(ctx, username, dE, dH, dW)
			if err != nil {
				if canceled(err) {
					return e.settleOpen(ctx, sess, sched, target, false)
				}
				return nil, err
			}
			if stats.Depleted() {
				penalized = true
				break
			}
		}
		if penalized {
			break
		}

		if now-lastPoll >= BalancePollSeconds {
			lastPoll = now
			balance, err := e.ex.GetBalance(ctx, username)
			if err != nil {
				if canceled(err) {
					return e.settleOpen(ctx, sess, sched, target, false)
				}
				return nil, err
			}
			if balance <= 0 {
				penalized = true
			}
		}
	}

	return e.settleOpen(ctx, sess, sched, target, true)
}

// settleOpen computes and credits the reward for a finished open
// session. It runs on a detached context: a session stopped by
// cancellation still has an accrued reward to pay out.
func (e *Engine) settleOpen(ctx context.Context, sess *Session, sched schedule, target Target, penalized bool) (*OpenOutcome, error) {
	ctx = context.WithoutCancel(ctx)
	elapsed := e.clock.Now() - sess.StartedAt
	if elapsed < 0 {
		elapsed = 0
	}
	outcome := &OpenOutcome{Session: sess, Elapsed: elapsed}

	if !penalized && elapsed < sched.minSeconds {
		sess.State = StateClaimed
		slog.Info("Open session claimed below minimum",
			slog.String("type", "session"),
			slog.String("id", sess.ID.String()),
			slog.Int64("elapsed_seconds", elapsed))
		return outcome, nil
	}

	blocks := int64(0)
	if sched.blockSeconds > 0 {
		blocks = elapsed / sched.blockSeconds
	}
	outcome.Blocks = blocks
	outcome.Bonus = roundHalfAway(float64(elapsed) * sched.rate(blocks))
	outcome.Total = elapsed + outcome.Bonus

	base := outcome.Total
	if penalized {
		base = roundHalfAway(float64(outcome.Total) * PenaltyRate)
		sess.State = StatePenalized
	} else {
		sess.State = StateClaimed
	}

	final, bonus, err := e.finalReward(ctx, sess.Username, base)
	if err != nil {
		return nil, err
	}
	outcome.PremiumBonus = bonus
	outcome.FinalReward = final

	total, err := e.credit(ctx, sess.Username, final, target)
	if err != nil {
		return nil, err
	}
	outcome.NewTotal = total

	slog.Info("Open session settled",
		slog.String("type", "session"),
		slog.String("id", sess.ID.String()),
		slog.String("username", sess.Username),
		slog.String("state", sess.State.String()),
		slog.Int64("reward_seconds", final))
	return outcome, nil
}
