package game

import (
	"errors"
	"fmt"
)

// Validation failures. These are rejected locally and never reach the wire.
var (
	ErrBadAmount         = errors.New("bet amount must be positive")
	ErrInsufficientFunds = errors.New("bet exceeds available balance")
	ErrBetPending        = errors.New("a bet is already live")
	ErrBettingClosed     = errors.New("betting is closed for this round")
	ErrNoActiveBet       = errors.New("no active bet to cash out")
	ErrNotFlying         = errors.New("round is not in flight")
	ErrCashoutPending    = errors.New("cash-out already in flight")

	// ErrRoundCrashed reports that the crash settled the bet while a
	// cash-out was in flight; the crash-driven LOST transition wins.
	ErrRoundCrashed = errors.New("round crashed before cash-out completed")
)

// RemoteError is a business rejection from the authority. The message is
// surfaced to the player verbatim.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rejected by server: %s", e.Message)
}

// TransportError is a network or timeout failure. Unlike RemoteError the
// player may simply retry.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
