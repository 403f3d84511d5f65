// Package api is the request/response half of the backend contract: the
// profile read plus the two wagering calls. The push half lives in feed.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"aviatorclient/internal/game"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	profilePath = "/api/user/profile"
	placePath   = "/api/bets/place"
	cashoutPath = "/api/bets/cashout"
)

type Client struct {
	log     *zap.SugaredLogger
	baseURL string
	timeout time.Duration
}

func New(baseURL string, timeout time.Duration, log *zap.SugaredLogger) *Client {
	return &Client{log: log, baseURL: baseURL, timeout: timeout}
}

type placeRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type placeResponse struct {
	BetID            string          `json:"bet_id"`
	Status           string          `json:"status"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	Message          string          `json:"message"`
}

type cashoutResponse struct {
	CashoutMultiplier decimal.Decimal `json:"cashout_multiplier"`
	WinAmount         decimal.Decimal `json:"win_amount"`
	NewBalance        decimal.Decimal `json:"new_balance"`
	Message           string          `json:"message"`
}

type profileResponse struct {
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) Profile(ctx context.Context) (game.Profile, error) {
	var res profileResponse
	if err := c.get(ctx, profilePath, &res); err != nil {
		return game.Profile{}, err
	}
	return game.Profile{Name: res.Name, Balance: res.Balance}, nil
}

func (c *Client) PlaceBet(ctx context.Context, amount decimal.Decimal) (game.PlaceResult, error) {
	var res placeResponse
	if err := c.post(ctx, placePath, placeRequest{Amount: amount}, &res); err != nil {
		return game.PlaceResult{}, err
	}
	return game.PlaceResult{BetID: res.BetID, RemainingBalance: res.RemainingBalance}, nil
}

func (c *Client) CashOut(ctx context.Context) (game.CashOutResult, error) {
	var res cashoutResponse
	if err := c.post(ctx, cashoutPath, nil, &res); err != nil {
		return game.CashOutResult{}, err
	}
	return game.CashOutResult{
		CashoutMultiplier: res.CashoutMultiplier,
		WinAmount:         res.WinAmount,
		NewBalance:        res.NewBalance,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	agent := fiber.Get(c.baseURL + path)
	return c.send(ctx, agent, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	agent := fiber.Post(c.baseURL + path)
	// A client-generated request id lets the authority deduplicate, which
	// keeps cash-out at-most-once even across client-side timeouts.
	agent.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		agent.JSON(body)
	} else {
		agent.JSON(fiber.Map{})
	}
	return c.send(ctx, agent, out)
}

func (c *Client) send(ctx context.Context, agent *fiber.Agent, out any) error {
	if err := ctx.Err(); err != nil {
		return &game.TransportError{Err: err}
	}
	agent.Timeout(c.timeout)

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return &game.TransportError{Err: errs[0]}
	}
	if code < 200 || code >= 300 {
		var rej errorResponse
		if err := codec.Unmarshal(body, &rej); err != nil || rej.Error == "" {
			rej.Error = fmt.Sprintf("unexpected status %d", code)
		}
		return &game.RemoteError{Message: rej.Error}
	}
	if err := codec.Unmarshal(body, out); err != nil {
		return &game.TransportError{Err: err}
	}
	return nil
}
