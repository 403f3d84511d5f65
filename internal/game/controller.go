package game

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Controller owns the round state machine. Push-channel callbacks, player
// actions and the continuations of remote calls all execute as closures on
// one work queue drained by a single goroutine, so handler bodies are
// atomic with respect to each other. The only remaining hazard is the
// ordering of continuations, resolved by a priority rule: authoritative
// terminal events (crash, new round) win over the eventual resolution of a
// pending optimistic action.
type Controller struct {
	log    *zap.SugaredLogger
	rounds *RoundStore
	bets   *BetStore

	player  string
	balance decimal.Decimal

	restartDelay time.Duration
	restart      *time.Timer
	restartAt    time.Time

	queue chan func()
}

func NewController(rounds *RoundStore, bets *BetStore, restartDelay time.Duration, log *zap.SugaredLogger) *Controller {
	return &Controller{
		log:          log,
		rounds:       rounds,
		bets:         bets,
		restartDelay: restartDelay,
		queue:        make(chan func(), 64),
	}
}

// Run drains the work queue until ctx is cancelled. Everything else on the
// Controller assumes Run is active; do not call Snapshot or the gateway
// before starting it.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.stopRestart()
			c.log.Infow("[CTRL] controller stopped")
			return
		case fn := <-c.queue:
			fn()
		case <-c.restartC():
			c.onRestartExpiry()
		}
	}
}

// do enqueues fn for the controller goroutine and returns immediately.
func (c *Controller) do(fn func()) {
	c.queue <- fn
}

// call enqueues fn and waits for its result, the request/response twin of do.
func call[T any](c *Controller, fn func() T) T {
	reply := make(chan T, 1)
	c.queue <- func() { reply <- fn() }
	return <-reply
}

// Snapshot assembles the consistent view for the presentation layer.
func (c *Controller) Snapshot() Snapshot {
	return call(c, func() Snapshot {
		return Snapshot{
			Player:    c.player,
			Balance:   c.balance,
			Round:     c.rounds.Snapshot(),
			Bet:       c.bets.Snapshot(),
			History:   c.bets.History(),
			Countdown: c.countdown(),
		}
	})
}

// SeedProfile installs the authoritative starting balance fetched at mount.
func (c *Controller) SeedProfile(p Profile) {
	c.do(func() {
		c.player = p.Name
		c.balance = p.Balance
		c.log.Infow("[CTRL] profile seeded", "player", p.Name, "balance", p.Balance)
	})
}

func (c *Controller) countdown() int {
	if c.restart == nil || c.rounds.Snapshot().Phase != PhaseCrashed {
		return 0
	}
	secs := int(math.Ceil(time.Until(c.restartAt).Seconds()))
	if secs < 0 {
		return 0
	}
	return secs
}

// --- push-event mutations, always invoked on the controller goroutine ---

func (c *Controller) handleRoundPhase(phase Phase, roundID string) {
	switch phase {
	case PhaseBetting:
		c.stopRestart()
		cur := c.rounds.Snapshot()
		opening := cur.Phase != PhaseBetting || (roundID != "" && roundID != cur.ID)
		if opening {
			// A live bet surviving into the next round means the crash
			// event was missed; settle it at the last known multiplier
			// before the reset wipes it.
			if st := c.bets.Snapshot().Status; st == BetActive || st == BetCashingOut {
				c.log.Warnw("[CTRL] bet survived past its round, forcing loss", "multiplier", cur.Multiplier)
				c.bets.RecordSettlement(OutcomeLost, cur.Multiplier)
			}
		}
		if c.rounds.ApplyPhase(PhaseBetting, roundID) {
			c.log.Infow("[CTRL] betting open", "round", roundID)
		}
		if opening {
			c.bets.ResetForRound()
		}
	case PhaseFlying:
		c.rounds.ApplyPhase(PhaseFlying, roundID)
	case PhaseCrashed:
		// A phase-only crash notification (snapshot attach) carries no
		// crash point; freeze at whatever multiplier we last saw.
		c.handleCrash(c.rounds.Snapshot().Multiplier)
	}
}

func (c *Controller) handleMultiplier(v decimal.Decimal) {
	c.rounds.ApplyMultiplier(v)
}

func (c *Controller) handleCrash(crashPoint decimal.Decimal) {
	if !c.rounds.ApplyCrash(crashPoint) {
		return
	}
	c.log.Infow("[CTRL] round crashed", "crashPoint", crashPoint)
	// The crash settles any bet the player failed to withdraw, including
	// one with a cash-out still in flight; that late response is then
	// discarded by the gateway.
	if st := c.bets.Snapshot().Status; st == BetActive || st == BetCashingOut {
		c.bets.RecordSettlement(OutcomeLost, crashPoint)
	}
	c.armRestart()
}

// --- restart countdown, owned exclusively by the controller ---

func (c *Controller) armRestart() {
	c.stopRestart()
	c.restart = time.NewTimer(c.restartDelay)
	c.restartAt = time.Now().Add(c.restartDelay)
}

func (c *Controller) stopRestart() {
	if c.restart != nil {
		c.restart.Stop()
		c.restart = nil
	}
}

func (c *Controller) restartC() <-chan time.Time {
	if c.restart == nil {
		return nil
	}
	return c.restart.C
}

// onRestartExpiry re-enters BETTING locally when no fresh server
// notification arrived after a crash. The real round-phase event, if it
// shows up later, simply lands on an already-open betting phase.
func (c *Controller) onRestartExpiry() {
	c.restart = nil
	if c.rounds.Snapshot().Phase != PhaseCrashed {
		return
	}
	c.log.Warnw("[CTRL] no new round announced, reopening betting locally")
	c.handleRoundPhase(PhaseBetting, "")
}
