package game

import (
	"context"

	"github.com/shopspring/decimal"
)

// Phase is the authoritative round phase as mirrored from the server.
// IDLE is the local pre-connection state before the first push event.
type Phase string

const (
	PhaseIdle    Phase = "IDLE"
	PhaseBetting Phase = "BETTING"
	PhaseFlying  Phase = "FLYING"
	PhaseCrashed Phase = "CRASHED"
)

// ParsePhase maps a wire phase string to a Phase. The second return is
// false for anything the client does not understand.
func ParsePhase(s string) (Phase, bool) {
	switch Phase(s) {
	case PhaseBetting, PhaseFlying, PhaseCrashed:
		return Phase(s), true
	}
	return PhaseIdle, false
}

type BetStatus string

const (
	BetNone       BetStatus = "NONE"
	BetPlacing    BetStatus = "PLACING"
	BetActive     BetStatus = "ACTIVE"
	BetCashingOut BetStatus = "CASHING_OUT"
	BetWon        BetStatus = "WON"
	BetLost       BetStatus = "LOST"
	BetFailed     BetStatus = "FAILED"
)

// Live reports whether the bet occupies the single in-flight slot.
func (s BetStatus) Live() bool {
	return s == BetPlacing || s == BetActive || s == BetCashingOut
}

// Round is the client's projection of the shared round. The client never
// constructs a round of its own; it only mirrors what the authority pushes.
type Round struct {
	ID         string
	Phase      Phase
	Multiplier decimal.Decimal
	CrashPoint decimal.Decimal // zero until the crash event reveals it
}

type Bet struct {
	BetID             string
	RoundID           string
	Amount            decimal.Decimal
	Status            BetStatus
	EntryMultiplier   decimal.Decimal
	SettledMultiplier decimal.Decimal
}

type Outcome string

const (
	OutcomeWon  Outcome = "WON"
	OutcomeLost Outcome = "LOST"
)

// Settlement is one finished bet as kept in the bounded history.
type Settlement struct {
	RoundID    string
	Amount     decimal.Decimal
	Multiplier decimal.Decimal
	Winnings   decimal.Decimal // amount * multiplier for wins, zero for losses
	Outcome    Outcome
}

// Snapshot is the single consistent view handed to the presentation layer.
type Snapshot struct {
	Player    string
	Balance   decimal.Decimal
	Round     Round
	Bet       Bet
	History   []Settlement
	Countdown int // whole seconds until the local restart fallback, 0 unless CRASHED
}

type Profile struct {
	Name    string
	Balance decimal.Decimal
}

type PlaceResult struct {
	BetID            string
	RemainingBalance decimal.Decimal
}

type CashOutResult struct {
	CashoutMultiplier decimal.Decimal
	WinAmount         decimal.Decimal
	NewBalance        decimal.Decimal
}

// Authority is the remote owner of true balance and round state. The two
// mutating calls are request/response with client-side timeouts; the push
// stream arrives separately through the feed.
type Authority interface {
	Profile(ctx context.Context) (Profile, error)
	PlaceBet(ctx context.Context, amount decimal.Decimal) (PlaceResult, error)
	CashOut(ctx context.Context) (CashOutResult, error)
}
