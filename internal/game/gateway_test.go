package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// stubAuthority scripts the remote side of the gateway. A non-nil gate
// makes CashOut block until the gate closes, which is how the tests slide
// a crash event under an in-flight call.
type stubAuthority struct {
	mu         sync.Mutex
	profile    Profile
	placeRes   PlaceResult
	placeErr   error
	cashRes    CashOutResult
	cashErr    error
	gate       chan struct{}
	placeCalls int
	cashCalls  int
}

func (s *stubAuthority) Profile(ctx context.Context) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile.Name == "" {
		return Profile{Name: "tester", Balance: dec("1000")}, nil
	}
	return s.profile, nil
}

func (s *stubAuthority) PlaceBet(ctx context.Context, amount decimal.Decimal) (PlaceResult, error) {
	s.mu.Lock()
	s.placeCalls++
	res, err := s.placeRes, s.placeErr
	s.mu.Unlock()
	return res, err
}

func (s *stubAuthority) CashOut(ctx context.Context) (CashOutResult, error) {
	s.mu.Lock()
	s.cashCalls++
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	s.mu.Lock()
	res, err := s.cashRes, s.cashErr
	s.mu.Unlock()
	return res, err
}

func (s *stubAuthority) calls() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.placeCalls, s.cashCalls
}

func newTestGateway(t *testing.T, auth *stubAuthority) (*Controller, *Gateway, *Ingress) {
	t.Helper()
	ctrl := newTestController(t, time.Minute)
	gw := NewGateway(ctrl, auth, time.Second, zap.NewNop().Sugar())
	return ctrl, gw, newTestIngress(ctrl)
}

func TestGateway_PlaceThenCashOut(t *testing.T) {
	auth := &stubAuthority{
		placeRes: PlaceResult{BetID: "b1", RemainingBalance: dec("800")},
		cashRes: CashOutResult{
			CashoutMultiplier: dec("2.50"),
			WinAmount:         dec("500"),
			NewBalance:        dec("1300"),
		},
	}
	ctrl, gw, in := newTestGateway(t, auth)
	ctrl.SeedProfile(Profile{Name: "tester", Balance: dec("1000")})
	in.OnRoundPhase("BETTING", "R1")
	waitFor(t, ctrl, "BETTING", func(s Snapshot) bool { return s.Round.Phase == PhaseBetting })

	if err := gw.Place(context.Background(), dec("200")); err != nil {
		t.Fatalf("Place: %v", err)
	}
	snap := ctrl.Snapshot()
	if snap.Bet.Status != BetActive || snap.Bet.BetID != "b1" {
		t.Fatalf("after place: %+v", snap.Bet)
	}
	if !snap.Balance.Equal(dec("800")) {
		t.Fatalf("Balance = %v, want server value 800", snap.Balance)
	}

	in.OnMultiplier(dec("2.50"))
	settled, err := gw.CashOut(context.Background())
	if err != nil {
		t.Fatalf("CashOut: %v", err)
	}
	if !settled.Multiplier.Equal(dec("2.50")) || !settled.Winnings.Equal(dec("500")) {
		t.Errorf("settlement = %+v, want 2.50x for 500", settled)
	}

	snap = ctrl.Snapshot()
	if snap.Bet.Status != BetWon {
		t.Errorf("Bet.Status = %v, want WON", snap.Bet.Status)
	}
	if !snap.Balance.Equal(dec("1300")) {
		t.Errorf("Balance = %v, want 1300", snap.Balance)
	}
	if len(snap.History) != 1 || snap.History[0].Outcome != OutcomeWon {
		t.Errorf("History = %+v, want one WON entry", snap.History)
	}
}

func TestGateway_PlaceValidation(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		balance string
		phase   string
		wantErr error
	}{
		{"zero amount", "0", "1000", "BETTING", ErrBadAmount},
		{"negative amount", "-5", "1000", "BETTING", ErrBadAmount},
		{"exceeds balance", "2000", "1000", "BETTING", ErrInsufficientFunds},
		{"betting closed", "100", "1000", "FLYING", ErrBettingClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &stubAuthority{}
			ctrl, gw, in := newTestGateway(t, auth)
			ctrl.SeedProfile(Profile{Name: "tester", Balance: dec(tt.balance)})
			in.OnRoundPhase("BETTING", "R1")
			if tt.phase == "FLYING" {
				in.OnMultiplier(dec("1.2"))
			}
			waitFor(t, ctrl, "phase", func(s Snapshot) bool {
				return string(s.Round.Phase) == tt.phase
			})

			err := gw.Place(context.Background(), dec(tt.amount))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Place = %v, want %v", err, tt.wantErr)
			}
			if calls, _ := auth.calls(); calls != 0 {
				t.Errorf("remote calls = %d, want 0 for local rejection", calls)
			}
			if snap := ctrl.Snapshot(); !snap.Balance.Equal(dec(tt.balance)) {
				t.Errorf("Balance = %v, want untouched %s", snap.Balance, tt.balance)
			}
		})
	}
}

func TestGateway_PlaceFailureRollsBack(t *testing.T) {
	auth := &stubAuthority{placeErr: &TransportError{Err: errors.New("timeout")}}
	ctrl, gw, in := newTestGateway(t, auth)
	ctrl.SeedProfile(Profile{Name: "tester", Balance: dec("1000")})
	in.OnRoundPhase("BETTING", "R1")
	waitFor(t, ctrl, "BETTING", func(s Snapshot) bool { return s.Round.Phase == PhaseBetting })

	err := gw.Place(context.Background(), dec("50"))
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Place = %v, want TransportError", err)
	}

	snap := ctrl.Snapshot()
	if snap.Bet.Status != BetFailed {
		t.Errorf("Bet.Status = %v, want FAILED", snap.Bet.Status)
	}
	if !snap.Balance.Equal(dec("1000")) {
		t.Errorf("Balance = %v, want restored 1000", snap.Balance)
	}

	// The state is eligible again; a retry reaches the wire.
	auth.mu.Lock()
	auth.placeErr = nil
	auth.placeRes = PlaceResult{BetID: "b2", RemainingBalance: dec("950")}
	auth.mu.Unlock()
	if err := gw.Place(context.Background(), dec("50")); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if calls, _ := auth.calls(); calls != 2 {
		t.Errorf("remote calls = %d, want 2", calls)
	}
}

func TestGateway_CashOutPreconditions(t *testing.T) {
	auth := &stubAuthority{}
	ctrl, gw, in := newTestGateway(t, auth)
	ctrl.SeedProfile(Profile{Name: "tester", Balance: dec("1000")})

	if _, err := gw.CashOut(context.Background()); !errors.Is(err, ErrNotFlying) {
		t.Errorf("CashOut while IDLE = %v, want ErrNotFlying", err)
	}

	in.OnRoundPhase("BETTING", "R1")
	in.OnMultiplier(dec("1.5"))
	waitFor(t, ctrl, "FLYING", func(s Snapshot) bool { return s.Round.Phase == PhaseFlying })

	if _, err := gw.CashOut(context.Background()); !errors.Is(err, ErrNoActiveBet) {
		t.Errorf("CashOut without bet = %v, want ErrNoActiveBet", err)
	}
	if _, calls := auth.calls(); calls != 0 {
		t.Errorf("remote calls = %d, want 0", calls)
	}
}

func TestGateway_DoubleCashOutIsNoOp(t *testing.T) {
	gate := make(chan struct{})
	auth := &stubAuthority{
		gate:     gate,
		placeRes: PlaceResult{BetID: "b1", RemainingBalance: dec("900")},
		cashRes: CashOutResult{
			CashoutMultiplier: dec("2.00"),
			WinAmount:         dec("200"),
			NewBalance:        dec("1100"),
		},
	}
	ctrl, gw, in := newTestGateway(t, auth)
	ctrl.SeedProfile(Profile{Name: "tester", Balance: dec("1000")})
	in.OnRoundPhase("BETTING", "R1")
	waitFor(t, ctrl, "BETTING", func(s Snapshot) bool { return s.Round.Phase == PhaseBetting })
	if err := gw.Place(context.Background(), dec("100")); err != nil {
		t.Fatal(err)
	}
	in.OnMultiplier(dec("2.00"))
	waitFor(t, ctrl, "FLYING", func(s Snapshot) bool { return s.Round.Phase == PhaseFlying })

	first := make(chan error, 1)
	go func() {
		_, err := gw.CashOut(context.Background())
		first <- err
	}()
	waitFor(t, ctrl, "CASHING_OUT", func(s Snapshot) bool {
		return s.Bet.Status == BetCashingOut
	})

	if _, err := gw.CashOut(context.Background()); !errors.Is(err, ErrCashoutPending) {
		t.Errorf("second CashOut = %v, want ErrCashoutPending", err)
	}

	close(gate)
	if err := <-first; err != nil {
		t.Fatalf("first CashOut: %v", err)
	}
	if _, calls := auth.calls(); calls != 1 {
		t.Errorf("remote calls = %d, want exactly 1", calls)
	}
}

func TestGateway_CrashBeatsLateCashOutSuccess(t *testing.T) {
	gate := make(chan struct{})
	auth := &stubAuthority{
		gate:     gate,
		placeRes: PlaceResult{BetID: "b1", RemainingBalance: dec("800")},
		cashRes: CashOutResult{
			CashoutMultiplier: dec("1.70"),
			WinAmount:         dec("340"),
			NewBalance:        dec("1140"),
		},
	}
	ctrl, gw, in := newTestGateway(t, auth)
	ctrl.SeedProfile(Profile{Name: "tester", Balance: dec("1000")})
	in.OnRoundPhase("BETTING", "R1")
	waitFor(t, ctrl, "BETTING", func(s Snapshot) bool { return s.Round.Phase == PhaseBetting })
	if err := gw.Place(context.Background(), dec("200")); err != nil {
		t.Fatal(err)
	}
	in.OnMultiplier(dec("1.70"))
	waitFor(t, ctrl, "FLYING", func(s Snapshot) bool { return s.Round.Phase == PhaseFlying })

	first := make(chan error, 1)
	go func() {
		_, err := gw.CashOut(context.Background())
		first <- err
	}()
	waitFor(t, ctrl, "CASHING_OUT", func(s Snapshot) bool {
		return s.Bet.Status == BetCashingOut
	})

	// The crash lands while the call is in flight; its LOST transition wins.
	in.OnCrash(dec("1.80"))
	waitFor(t, ctrl, "LOST", func(s Snapshot) bool { return s.Bet.Status == BetLost })

	close(gate)
	if err := <-first; !errors.Is(err, ErrRoundCrashed) {
		t.Fatalf("late CashOut = %v, want ErrRoundCrashed", err)
	}

	snap := ctrl.Snapshot()
	if snap.Bet.Status != BetLost || !snap.Bet.SettledMultiplier.Equal(dec("1.80")) {
		t.Errorf("bet = %+v, want LOST at 1.80", snap.Bet)
	}
	// The late success still carried the authoritative balance.
	if !snap.Balance.Equal(dec("1140")) {
		t.Errorf("Balance = %v, want server value 1140", snap.Balance)
	}
}

func TestGateway_CashOutTimeoutReconcilesBalance(t *testing.T) {
	// The server settles the cash-out but the response never makes it back;
	// the failed call must trigger a profile re-read so the credited win
	// reaches the projection.
	auth := &stubAuthority{
		profile:  Profile{Name: "tester", Balance: dec("1140")},
		placeRes: PlaceResult{BetID: "b1", RemainingBalance: dec("800")},
		cashErr:  &TransportError{Err: errors.New("timeout")},
	}
	ctrl, gw, in := newTestGateway(t, auth)
	ctrl.SeedProfile(Profile{Name: "tester", Balance: dec("1000")})
	in.OnRoundPhase("BETTING", "R1")
	waitFor(t, ctrl, "BETTING", func(s Snapshot) bool { return s.Round.Phase == PhaseBetting })
	if err := gw.Place(context.Background(), dec("200")); err != nil {
		t.Fatal(err)
	}
	in.OnMultiplier(dec("1.70"))
	waitFor(t, ctrl, "FLYING", func(s Snapshot) bool { return s.Round.Phase == PhaseFlying })

	_, err := gw.CashOut(context.Background())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("CashOut = %v, want TransportError", err)
	}

	snap := ctrl.Snapshot()
	if snap.Bet.Status != BetActive {
		t.Errorf("Bet.Status = %v, want ACTIVE for retry", snap.Bet.Status)
	}
	if !snap.Balance.Equal(dec("1140")) {
		t.Errorf("Balance = %v, want authoritative 1140 after reconciliation", snap.Balance)
	}
}

func TestGateway_CashOutFailureReturnsToActive(t *testing.T) {
	auth := &stubAuthority{
		placeRes: PlaceResult{BetID: "b1", RemainingBalance: dec("900")},
		cashErr:  &TransportError{Err: errors.New("timeout")},
	}
	ctrl, gw, in := newTestGateway(t, auth)
	ctrl.SeedProfile(Profile{Name: "tester", Balance: dec("1000")})
	in.OnRoundPhase("BETTING", "R1")
	waitFor(t, ctrl, "BETTING", func(s Snapshot) bool { return s.Round.Phase == PhaseBetting })
	if err := gw.Place(context.Background(), dec("100")); err != nil {
		t.Fatal(err)
	}
	in.OnMultiplier(dec("1.50"))
	waitFor(t, ctrl, "FLYING", func(s Snapshot) bool { return s.Round.Phase == PhaseFlying })

	_, err := gw.CashOut(context.Background())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("CashOut = %v, want TransportError", err)
	}
	if st := ctrl.Snapshot().Bet.Status; st != BetActive {
		t.Errorf("Bet.Status = %v, want back to ACTIVE for retry", st)
	}
}
