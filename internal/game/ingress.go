package game

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ingress translates decoded push notifications into controller mutations.
// It implements feed.Handler; each callback only enqueues work, so the feed
// reader never blocks on game logic.
type Ingress struct {
	log  *zap.SugaredLogger
	ctrl *Controller
}

func NewIngress(ctrl *Controller, log *zap.SugaredLogger) *Ingress {
	return &Ingress{log: log, ctrl: ctrl}
}

func (i *Ingress) OnRoundPhase(phase string, roundID string) {
	p, ok := ParsePhase(phase)
	if !ok {
		i.log.Warnw("[INGRESS] unknown phase dropped", "phase", phase, "round", roundID)
		return
	}
	i.ctrl.do(func() { i.ctrl.handleRoundPhase(p, roundID) })
}

func (i *Ingress) OnMultiplier(value decimal.Decimal) {
	i.ctrl.do(func() { i.ctrl.handleMultiplier(value) })
}

func (i *Ingress) OnCrash(crashPoint decimal.Decimal) {
	i.ctrl.do(func() { i.ctrl.handleCrash(crashPoint) })
}

// OnSnapshot installs the current-round snapshot sent on (re)connect. The
// feed requests state instead of replaying missed events, so the snapshot
// is treated as a compressed phase history: whatever phase the round is
// in, re-derive the projection from it.
func (i *Ingress) OnSnapshot(phase string, roundID string, multiplier, crashPoint decimal.Decimal) {
	p, ok := ParsePhase(phase)
	if !ok {
		i.log.Warnw("[INGRESS] snapshot with unknown phase dropped", "phase", phase)
		return
	}
	i.ctrl.do(func() {
		switch p {
		case PhaseBetting:
			i.ctrl.handleRoundPhase(PhaseBetting, roundID)
		case PhaseFlying:
			// A different round id means we missed at least one full
			// cycle; run the implied BETTING transition first.
			if i.ctrl.rounds.Snapshot().ID != roundID {
				i.ctrl.handleRoundPhase(PhaseBetting, roundID)
			}
			i.ctrl.handleMultiplier(multiplier)
		case PhaseCrashed:
			cp := crashPoint
			if cp.IsZero() {
				cp = multiplier
			}
			i.ctrl.handleCrash(cp)
		}
	})
}
