package game

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// HistoryCap bounds the settled-bet ring buffer.
const HistoryCap = 4

// BetStore holds the player's current bet lifecycle and the bounded
// history of settled bets. Like RoundStore it is confined to the
// controller goroutine.
type BetStore struct {
	log     *zap.SugaredLogger
	bet     Bet
	history []Settlement
}

func NewBetStore(log *zap.SugaredLogger) *BetStore {
	return &BetStore{
		log: log,
		bet: Bet{Status: BetNone},
	}
}

func (s *BetStore) Snapshot() Bet {
	return s.bet
}

// History returns the settled bets, newest first.
func (s *BetStore) History() []Settlement {
	out := make([]Settlement, len(s.history))
	copy(out, s.history)
	return out
}

// BeginOptimistic opens the single bet slot, NONE -> PLACING. It fails
// with ErrBetPending while another bet is live.
func (s *BetStore) BeginOptimistic(amount decimal.Decimal, roundID string) error {
	if s.bet.Status.Live() {
		return ErrBetPending
	}
	s.bet = Bet{
		RoundID:         roundID,
		Amount:          amount,
		Status:          BetPlacing,
		EntryMultiplier: decimal.New(1, 0),
	}
	return nil
}

// MarkActive confirms the placement, PLACING -> ACTIVE.
func (s *BetStore) MarkActive(betID string) {
	if s.bet.Status != BetPlacing {
		s.log.Warnw("[BET] MarkActive outside PLACING", "status", s.bet.Status)
		return
	}
	s.bet.BetID = betID
	s.bet.Status = BetActive
}

// MarkFailed rolls the optimistic placement back, PLACING -> FAILED.
// The player may place again.
func (s *BetStore) MarkFailed() {
	if s.bet.Status != BetPlacing {
		s.log.Warnw("[BET] MarkFailed outside PLACING", "status", s.bet.Status)
		return
	}
	s.bet.Status = BetFailed
}

// BeginCashOut guards the at-most-once cash-out call, ACTIVE -> CASHING_OUT.
// A second invocation while one is in flight is rejected.
func (s *BetStore) BeginCashOut() error {
	switch s.bet.Status {
	case BetCashingOut:
		return ErrCashoutPending
	case BetActive:
		s.bet.Status = BetCashingOut
		return nil
	default:
		return ErrNoActiveBet
	}
}

// AbortCashOut returns a failed cash-out to ACTIVE so the player can retry.
func (s *BetStore) AbortCashOut() {
	if s.bet.Status != BetCashingOut {
		s.log.Warnw("[BET] AbortCashOut outside CASHING_OUT", "status", s.bet.Status)
		return
	}
	s.bet.Status = BetActive
}

// RecordSettlement closes the live bet at the given multiplier and appends
// it to the history ring, evicting the oldest entry past capacity.
func (s *BetStore) RecordSettlement(outcome Outcome, multiplier decimal.Decimal) Settlement {
	s.bet.SettledMultiplier = multiplier
	winnings := decimal.Zero
	if outcome == OutcomeWon {
		s.bet.Status = BetWon
		winnings = s.bet.Amount.Mul(multiplier)
	} else {
		s.bet.Status = BetLost
	}

	settled := Settlement{
		RoundID:    s.bet.RoundID,
		Amount:     s.bet.Amount,
		Multiplier: multiplier,
		Winnings:   winnings,
		Outcome:    outcome,
	}
	s.history = append([]Settlement{settled}, s.history...)
	if len(s.history) > HistoryCap {
		s.history = s.history[:HistoryCap]
	}
	return settled
}

// ResetForRound clears a terminal bet when a new round opens. The outcome
// stays visible in the history only.
func (s *BetStore) ResetForRound() {
	switch s.bet.Status {
	case BetWon, BetLost, BetFailed:
		s.bet = Bet{Status: BetNone}
	}
}
