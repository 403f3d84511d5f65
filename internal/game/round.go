package game

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RoundStore holds the single round projection. It is confined to the
// controller goroutine and therefore carries no lock; every mutation is
// idempotent against duplicate delivery of the same event.
type RoundStore struct {
	log   *zap.SugaredLogger
	round Round
}

func NewRoundStore(log *zap.SugaredLogger) *RoundStore {
	return &RoundStore{
		log: log,
		round: Round{
			Phase:      PhaseIdle,
			Multiplier: decimal.New(1, 0),
		},
	}
}

func (s *RoundStore) Snapshot() Round {
	return s.round
}

// ApplyPhase mirrors a round-phase event. Entering BETTING resets the
// multiplier and forgets the previous crash point; a duplicate BETTING for
// the round already in progress is a no-op beyond that reset. Returns
// whether the phase actually changed.
func (s *RoundStore) ApplyPhase(phase Phase, roundID string) bool {
	switch phase {
	case PhaseBetting:
		changed := s.round.Phase != PhaseBetting
		if !changed {
			s.log.Debugw("[ROUND] duplicate BETTING event", "round", roundID)
		}
		s.round = Round{
			ID:         roundID,
			Phase:      PhaseBetting,
			Multiplier: decimal.New(1, 0),
		}
		return changed
	case PhaseFlying:
		if s.round.Phase == PhaseFlying {
			return false
		}
		// The cadence never goes CRASHED -> FLYING directly; a fresh
		// BETTING event must intervene.
		if s.round.Phase == PhaseCrashed {
			s.log.Warnw("[ROUND] FLYING event while crashed, dropped", "round", roundID)
			return false
		}
		s.round.Phase = PhaseFlying
		if roundID != "" {
			s.round.ID = roundID
		}
		return true
	default:
		s.log.Warnw("[ROUND] unexpected phase event", "phase", phase, "round", roundID)
		return false
	}
}

// ApplyMultiplier records a live multiplier tick. A tick while BETTING
// means the flight has begun and promotes the phase; ticks outside a
// round, and values below the current multiplier, are stale and dropped.
func (s *RoundStore) ApplyMultiplier(v decimal.Decimal) bool {
	switch s.round.Phase {
	case PhaseIdle, PhaseCrashed:
		s.log.Debugw("[ROUND] stale multiplier dropped", "phase", s.round.Phase, "value", v)
		return false
	}
	if v.LessThan(s.round.Multiplier) {
		s.log.Debugw("[ROUND] decreasing multiplier dropped",
			"have", s.round.Multiplier, "got", v)
		return false
	}
	if s.round.Phase == PhaseBetting {
		s.round.Phase = PhaseFlying
	}
	s.round.Multiplier = v
	return true
}

// ApplyCrash freezes the round at the revealed crash point. The frozen
// multiplier holds until the next BETTING transition.
func (s *RoundStore) ApplyCrash(crashPoint decimal.Decimal) bool {
	if s.round.Phase == PhaseCrashed {
		s.log.Debugw("[ROUND] duplicate crash event dropped", "crashPoint", crashPoint)
		return false
	}
	s.round.Phase = PhaseCrashed
	s.round.CrashPoint = crashPoint
	s.round.Multiplier = crashPoint
	return true
}
