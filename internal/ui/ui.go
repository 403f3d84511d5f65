// Package ui renders controller snapshots to the terminal and turns typed
// commands into gateway calls. It holds no game state of its own: every
// frame is drawn from a fresh snapshot.
package ui

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pterm/pterm"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"aviatorclient/internal/game"
)

// QuickBets are the amounts offered as shortcuts, mirroring the betting
// panel of the web client.
var QuickBets = []int64{100, 200, 500, 1000}

const refreshInterval = 100 * time.Millisecond

type UI struct {
	log     *zap.SugaredLogger
	ctrl    *game.Controller
	gateway *game.Gateway

	// Last action feedback, rendered as part of the frame. Printing it
	// directly would lose it to the next area redraw.
	mu     sync.Mutex
	notice string
}

func New(ctrl *game.Controller, gateway *game.Gateway, log *zap.SugaredLogger) *UI {
	return &UI{log: log, ctrl: ctrl, gateway: gateway}
}

func (u *UI) setNotice(s string) {
	u.mu.Lock()
	u.notice = s
	u.mu.Unlock()
}

func (u *UI) lastNotice() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.notice
}

// Run draws until ctx is cancelled. The command reader stays blocked on
// stdin after cancellation; it never touches state once Run returns.
func (u *UI) Run(ctx context.Context) error {
	area, err := pterm.DefaultArea.WithFullscreen().Start()
	if err != nil {
		return err
	}
	defer area.Stop()

	go u.readCommands(ctx)

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			area.Update(u.render(u.ctrl.Snapshot()))
		}
	}
}

func (u *UI) readCommands(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "bet", "b":
			if len(fields) < 2 {
				u.setNotice(pterm.LightYellow("usage: bet <amount>"))
				continue
			}
			amount, err := decimal.NewFromString(fields[1])
			if err != nil {
				u.setNotice(pterm.LightYellow(fmt.Sprintf("not an amount: %s", fields[1])))
				continue
			}
			go u.place(ctx, amount)
		case "cashout", "c":
			go u.cashOut(ctx)
		default:
			u.setNotice(pterm.LightYellow(fmt.Sprintf("unknown command %q (bet <amount> | cashout)", fields[0])))
		}
	}
}

func (u *UI) place(ctx context.Context, amount decimal.Decimal) {
	if err := u.gateway.Place(ctx, amount); err != nil {
		u.setNotice(pterm.LightRed(fmt.Sprintf("bet rejected: %v", err)))
		return
	}
	u.setNotice(pterm.LightGreen(fmt.Sprintf("bet of %s placed", amount.StringFixed(2))))
}

func (u *UI) cashOut(ctx context.Context) {
	settled, err := u.gateway.CashOut(ctx)
	if err != nil {
		u.setNotice(pterm.LightRed(fmt.Sprintf("cash-out failed: %v", err)))
		return
	}
	u.setNotice(pterm.LightGreen(fmt.Sprintf("cashed out at %sx for %s",
		settled.Multiplier.StringFixed(2), settled.Winnings.StringFixed(2))))
}

func (u *UI) render(snap game.Snapshot) string {
	var b strings.Builder

	b.WriteString(pterm.DefaultHeader.Sprint("AVIATOR"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("player: %s    balance: %s\n\n",
		snap.Player, pterm.LightCyan(snap.Balance.StringFixed(2))))

	switch snap.Round.Phase {
	case game.PhaseIdle:
		b.WriteString(pterm.Gray("waiting for the first round..."))
	case game.PhaseBetting:
		b.WriteString(pterm.LightGreen("BETTING OPEN"))
		b.WriteString(fmt.Sprintf("  quick bets: %v", QuickBets))
	case game.PhaseFlying:
		b.WriteString(pterm.LightYellow(fmt.Sprintf("FLYING  %sx", snap.Round.Multiplier.StringFixed(2))))
		if snap.Bet.Status == game.BetActive {
			potential := snap.Bet.Amount.Mul(snap.Round.Multiplier)
			b.WriteString(fmt.Sprintf("  potential win: %s", potential.StringFixed(2)))
		}
	case game.PhaseCrashed:
		b.WriteString(pterm.LightRed(fmt.Sprintf("CRASHED at %sx", snap.Round.CrashPoint.StringFixed(2))))
		if snap.Countdown > 0 {
			b.WriteString(fmt.Sprintf("  next round in %ds", snap.Countdown))
		}
	}
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("bet: %s", betLine(snap.Bet)))
	b.WriteString("\n\n")
	b.WriteString(historyTable(snap.History))
	if notice := u.lastNotice(); notice != "" {
		b.WriteString("\n")
		b.WriteString(notice)
		b.WriteString("\n")
	}
	b.WriteString("\ncommands: bet <amount> | cashout\n")
	return b.String()
}

func betLine(bet game.Bet) string {
	switch bet.Status {
	case game.BetNone:
		return pterm.Gray("none")
	case game.BetWon:
		return pterm.LightGreen(fmt.Sprintf("WON %s at %sx",
			bet.Amount.StringFixed(2), bet.SettledMultiplier.StringFixed(2)))
	case game.BetLost:
		return pterm.LightRed(fmt.Sprintf("LOST %s at %sx",
			bet.Amount.StringFixed(2), bet.SettledMultiplier.StringFixed(2)))
	case game.BetFailed:
		return pterm.LightRed("FAILED (you may retry)")
	default:
		return fmt.Sprintf("%s %s", bet.Status, bet.Amount.StringFixed(2))
	}
}

// historyTable shows recent wins, the way the web client's history panel
// does. Losses stay in the snapshot for anyone who wants them.
func historyTable(history []game.Settlement) string {
	rows := pterm.TableData{{"ROUND", "BET", "MULTIPLIER", "WINNINGS"}}
	for _, s := range history {
		if s.Outcome != game.OutcomeWon {
			continue
		}
		rows = append(rows, []string{
			s.RoundID,
			s.Amount.StringFixed(2),
			s.Multiplier.StringFixed(2) + "x",
			s.Winnings.StringFixed(2),
		})
	}
	if len(rows) == 1 {
		return pterm.Gray("no wins yet")
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return ""
	}
	return out
}
