package sim

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	tickInterval = 100 * time.Millisecond

	// Crash happens at a step in [crashStepMin, crashStepMax], step 0.01x,
	// so the multiplier lands between 1.10x and 5.00x.
	crashStepMin = 10
	crashStepMax = 400
)

type phase string

const (
	phaseBetting phase = "BETTING"
	phaseFlying  phase = "FLYING"
	phaseCrashed phase = "CRASHED"
)

type activeBet struct {
	BetID     string
	Amount    decimal.Decimal
	CashedOut bool
}

type cashoutReply struct {
	Multiplier decimal.Decimal
	WinAmount  decimal.Decimal
	NewBalance decimal.Decimal
}

// Engine runs the authoritative round cycle: a betting window, ascending
// ticks, a crash, a pause, forever. It is the house; the client never sees
// the crash point before the crash frame.
type Engine struct {
	log    *zap.SugaredLogger
	hub    *Hub
	wallet *Wallet

	bettingWindow time.Duration
	roundPause    time.Duration

	mu         sync.Mutex
	roundID    string
	phase      phase
	multiplier decimal.Decimal
	crashPoint decimal.Decimal
	bets       map[string]*activeBet
	replies    map[string]cashoutReply // keyed by X-Request-ID, at-most-once

	nonce int
	stop  chan struct{}
}

func NewEngine(hub *Hub, wallet *Wallet, bettingWindow, roundPause time.Duration, log *zap.SugaredLogger) *Engine {
	return &Engine{
		log:           log,
		hub:           hub,
		wallet:        wallet,
		bettingWindow: bettingWindow,
		roundPause:    roundPause,
		phase:         phaseBetting,
		multiplier:    decimal.New(1, 0),
		bets:          make(map[string]*activeBet),
		replies:       make(map[string]cashoutReply),
		stop:          make(chan struct{}),
	}
}

func (e *Engine) Run() {
	for {
		select {
		case <-e.stop:
			e.log.Infow("[SIM] engine stopped")
			return
		default:
			e.runRound()
		}
	}
}

func (e *Engine) Stop() {
	close(e.stop)
}

func (e *Engine) runRound() {
	e.nonce++
	roundID := fmt.Sprintf("R%d-%d", time.Now().Unix(), e.nonce)
	crashPoint := randomCrashPoint()

	e.mu.Lock()
	e.roundID = roundID
	e.phase = phaseBetting
	e.multiplier = decimal.New(1, 0)
	e.crashPoint = crashPoint
	e.bets = make(map[string]*activeBet)
	e.replies = make(map[string]cashoutReply)
	e.mu.Unlock()

	e.log.Infow("[SIM] betting open", "round", roundID, "crashPoint", crashPoint)
	e.hub.Broadcast("round_phase", map[string]any{
		"phase":    string(phaseBetting),
		"round_id": roundID,
	})

	if !e.sleep(e.bettingWindow) {
		return
	}

	e.mu.Lock()
	e.phase = phaseFlying
	e.mu.Unlock()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
		}

		mult := multiplierAt(time.Since(start))

		e.mu.Lock()
		if mult.GreaterThanOrEqual(e.crashPoint) {
			e.phase = phaseCrashed
			e.multiplier = e.crashPoint
			e.mu.Unlock()

			e.hub.Broadcast("crash", map[string]any{
				"crash_point": crashPoint,
				"round_id":    roundID,
			})
			e.log.Infow("[SIM] round crashed", "round", roundID, "crashPoint", crashPoint)
			break
		}
		e.multiplier = mult
		e.mu.Unlock()

		e.hub.Broadcast("multiplier", map[string]any{
			"multiplier": mult,
		})
	}

	e.sleep(e.roundPause)
}

// sleep waits for d unless the engine is stopped first.
func (e *Engine) sleep(d time.Duration) bool {
	select {
	case <-e.stop:
		return false
	case <-time.After(d):
		return true
	}
}

// Snapshot returns the state pushed to a subscriber on attach.
func (e *Engine) Snapshot() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := map[string]any{
		"phase":      string(e.phase),
		"round_id":   e.roundID,
		"multiplier": e.multiplier,
	}
	if e.phase == phaseCrashed {
		snap["crash_point"] = e.crashPoint
	}
	return snap
}

// PlaceBet accepts one stake per player while betting is open.
func (e *Engine) PlaceBet(ctx context.Context, player string, amount decimal.Decimal) (string, decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != phaseBetting {
		return "", decimal.Zero, fmt.Errorf("betting is closed")
	}
	if _, exists := e.bets[player]; exists {
		return "", decimal.Zero, fmt.Errorf("bet already placed for this round")
	}
	newBalance, err := e.wallet.Debit(ctx, player, amount)
	if err != nil {
		return "", newBalance, err
	}

	betID := uuid.NewString()
	e.bets[player] = &activeBet{BetID: betID, Amount: amount}
	e.log.Infow("[SIM] bet placed", "player", player, "amount", amount, "betID", betID)
	return betID, newBalance, nil
}

// CashOut settles the player's bet at the multiplier current when the
// request is processed. Repeats of the same request id return the first
// reply instead of paying twice.
func (e *Engine) CashOut(ctx context.Context, player, requestID string) (cashoutReply, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if requestID != "" {
		if prior, ok := e.replies[requestID]; ok {
			return prior, nil
		}
	}
	if e.phase != phaseFlying {
		return cashoutReply{}, fmt.Errorf("round is not in flight")
	}
	bet, ok := e.bets[player]
	if !ok {
		return cashoutReply{}, fmt.Errorf("no active bet")
	}
	if bet.CashedOut {
		return cashoutReply{}, fmt.Errorf("already cashed out")
	}

	win := bet.Amount.Mul(e.multiplier)
	newBalance := e.wallet.Credit(ctx, player, win)
	bet.CashedOut = true

	reply := cashoutReply{
		Multiplier: e.multiplier,
		WinAmount:  win,
		NewBalance: newBalance,
	}
	if requestID != "" {
		e.replies[requestID] = reply
	}
	e.log.Infow("[SIM] cashed out", "player", player, "multiplier", e.multiplier, "win", win)
	return reply, nil
}

// multiplierAt maps elapsed flight time to the display multiplier,
// rounded down to the cent.
func multiplierAt(elapsed time.Duration) decimal.Decimal {
	s := elapsed.Seconds()
	m := 1.0 + s/1.5 + s*s*0.005
	return decimal.NewFromFloat(m).RoundDown(2)
}

// randomCrashPoint draws the hidden crash point with a CSPRNG.
func randomCrashPoint() decimal.Decimal {
	n := big.NewInt(int64(crashStepMax - crashStepMin + 1))
	v, err := rand.Int(rand.Reader, n)
	step := int64(crashStepMin)
	if err == nil {
		step += v.Int64()
	}
	return decimal.New(100+step, -2)
}
