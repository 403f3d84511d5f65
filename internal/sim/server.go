package sim

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// defaultPlayer is used when a request carries no X-Player header. The
// simulator is a single-seat dev authority, not an account system.
const defaultPlayer = "player1"

// Server is the local stand-in for the production backend: the HTTP
// request/response calls plus the websocket push channel, speaking exactly
// the contract the client consumes.
type Server struct {
	*fiber.App

	log    *zap.SugaredLogger
	hub    *Hub
	wallet *Wallet
	engine *Engine
}

func New(bettingWindow, roundPause time.Duration, wallet *Wallet, log *zap.SugaredLogger) *Server {
	hub := NewHub(log)
	engine := NewEngine(hub, wallet, bettingWindow, roundPause, log)

	s := &Server{
		App: fiber.New(fiber.Config{
			ServerHeader: "aviator-sim",
			AppName:      "aviator-sim",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}),
		log:    log,
		hub:    hub,
		wallet: wallet,
		engine: engine,
	}

	s.App.Use(recover.New())
	s.App.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Accept,Authorization,Content-Type,X-Player,X-Request-ID",
	}))

	s.App.Get("/health", s.healthHandler)
	s.App.Get("/api/user/profile", s.profileHandler)
	s.App.Post("/api/bets/place", s.placeBetHandler)
	s.App.Post("/api/bets/cashout", s.cashoutHandler)
	s.App.Get("/ws", websocket.New(s.feedHandler))

	return s
}

// Start launches the round engine and serves until Shutdown.
func (s *Server) Start(addr string) error {
	go s.engine.Run()
	s.log.Infow("[SIM] listening", "addr", addr)
	return s.Listen(addr)
}

func (s *Server) Close() error {
	s.engine.Stop()
	s.wallet.Close()
	return s.App.Shutdown()
}

func player(c *fiber.Ctx) string {
	if p := c.Get("X-Player"); p != "" {
		return p
	}
	return defaultPlayer
}

func (s *Server) healthHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "running",
		"subscribers": s.hub.ClientCount(),
	})
}

func (s *Server) profileHandler(c *fiber.Ctx) error {
	p := player(c)
	return c.JSON(fiber.Map{
		"name":    p,
		"balance": s.wallet.Balance(c.Context(), p),
	})
}

func (s *Server) placeBetHandler(c *fiber.Ctx) error {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Amount.Sign() <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "amount must be positive"})
	}

	betID, balance, err := s.engine.PlaceBet(c.Context(), player(c), req.Amount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"bet_id":            betID,
		"status":            "ACTIVE",
		"remaining_balance": balance,
		"message":           "bet placed",
	})
}

func (s *Server) cashoutHandler(c *fiber.Ctx) error {
	reply, err := s.engine.CashOut(c.Context(), player(c), c.Get("X-Request-ID"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"cashout_multiplier": reply.Multiplier,
		"win_amount":         reply.WinAmount,
		"new_balance":        reply.NewBalance,
		"message":            "cashed out",
	})
}

// feedHandler subscribes a connection to the push channel. The current
// round snapshot goes out first so a reconnecting client re-derives state
// instead of replaying missed events.
func (s *Server) feedHandler(conn *websocket.Conn) {
	cl := s.hub.Register(conn)

	if raw, err := encodeFrame("initial_state", s.engine.Snapshot()); err == nil {
		if err := cl.send(raw); err != nil {
			s.log.Warnw("[SIM] initial state send failed", "err", err)
		}
	}

	// The feed is one-directional; the read loop only detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.hub.Unregister(conn)
			return
		}
	}
}
