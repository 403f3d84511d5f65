package game

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Gateway executes the two player-initiated calls against the authority.
// Preconditions and local mutations run on the controller queue; the
// remote call itself runs on the caller's goroutine, and its continuation
// is queued back, so a crash event can land in between and take priority.
type Gateway struct {
	log     *zap.SugaredLogger
	ctrl    *Controller
	auth    Authority
	timeout time.Duration
}

func NewGateway(ctrl *Controller, auth Authority, timeout time.Duration, log *zap.SugaredLogger) *Gateway {
	return &Gateway{log: log, ctrl: ctrl, auth: auth, timeout: timeout}
}

// Place wagers amount on the current round. The balance deduction and the
// PLACING status are applied optimistically before the call and rolled
// back on failure; on success the server-returned balance overwrites the
// local projection unconditionally.
func (g *Gateway) Place(ctx context.Context, amount decimal.Decimal) error {
	if err := call(g.ctrl, func() error {
		if amount.Sign() <= 0 {
			return ErrBadAmount
		}
		round := g.ctrl.rounds.Snapshot()
		if round.Phase != PhaseBetting {
			return ErrBettingClosed
		}
		if amount.GreaterThan(g.ctrl.balance) {
			return ErrInsufficientFunds
		}
		if err := g.ctrl.bets.BeginOptimistic(amount, round.ID); err != nil {
			return err
		}
		g.ctrl.balance = g.ctrl.balance.Sub(amount)
		return nil
	}); err != nil {
		return err
	}

	rctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	res, err := g.auth.PlaceBet(rctx, amount)

	return call(g.ctrl, func() error {
		if err != nil {
			g.ctrl.balance = g.ctrl.balance.Add(amount)
			g.ctrl.bets.MarkFailed()
			g.log.Warnw("[GATEWAY] place failed, rolled back", "amount", amount, "err", err)
			return err
		}
		g.ctrl.balance = res.RemainingBalance
		g.ctrl.bets.MarkActive(res.BetID)
		g.log.Infow("[GATEWAY] bet active", "betID", res.BetID, "balance", res.RemainingBalance)
		return nil
	})
}

// CashOut withdraws the active bet. The call is pessimistic: nothing but
// the CASHING_OUT guard is touched until the server confirms, and the
// settlement uses the server-confirmed multiplier, never the one observed
// locally at request time.
func (g *Gateway) CashOut(ctx context.Context) (Settlement, error) {
	if err := call(g.ctrl, func() error {
		if st := g.ctrl.bets.Snapshot().Status; st == BetCashingOut {
			return ErrCashoutPending
		}
		if g.ctrl.rounds.Snapshot().Phase != PhaseFlying {
			return ErrNotFlying
		}
		return g.ctrl.bets.BeginCashOut()
	}); err != nil {
		return Settlement{}, err
	}

	rctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	res, err := g.auth.CashOut(rctx)

	type outcome struct {
		settled Settlement
		err     error
	}
	o := call(g.ctrl, func() outcome {
		if g.ctrl.bets.Snapshot().Status != BetCashingOut {
			// The crash handler settled the bet while our call was in
			// flight. Its LOST transition wins, but a late success still
			// carries the authoritative balance and must not be dropped.
			if err == nil {
				g.log.Warnw("[GATEWAY] cash-out landed after crash, keeping server balance",
					"balance", res.NewBalance)
				g.ctrl.balance = res.NewBalance
			}
			return outcome{err: ErrRoundCrashed}
		}
		if err != nil {
			g.ctrl.bets.AbortCashOut()
			g.log.Warnw("[GATEWAY] cash-out failed, bet still active", "err", err)
			return outcome{err: err}
		}
		g.ctrl.balance = res.NewBalance
		settled := g.ctrl.bets.RecordSettlement(OutcomeWon, res.CashoutMultiplier)
		g.log.Infow("[GATEWAY] cashed out",
			"multiplier", res.CashoutMultiplier, "win", res.WinAmount, "balance", res.NewBalance)
		return outcome{settled: settled}
	})
	if err != nil {
		// The server may have settled the cash-out before the call failed
		// on our side, so a failed call says nothing about the ledger.
		// Re-read the authoritative balance instead of trusting the
		// projection.
		g.reconcileBalance(ctx)
	}
	return o.settled, o.err
}

// reconcileBalance overwrites the balance projection with the profile's
// authoritative value. Used after a failed remote call whose server-side
// effect is unknown.
func (g *Gateway) reconcileBalance(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	p, err := g.auth.Profile(rctx)
	if err != nil {
		g.log.Warnw("[GATEWAY] balance reconciliation failed", "err", err)
		return
	}
	call(g.ctrl, func() struct{} {
		g.ctrl.balance = p.Balance
		return struct{}{}
	})
	g.log.Infow("[GATEWAY] balance reconciled from profile", "balance", p.Balance)
}
