package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const balanceKeyPrefix = "crash:balance:"

// StartingBalance is credited to a player on first sight.
var StartingBalance = decimal.New(10000, 0)

var ErrInsufficientBalance = errors.New("insufficient balance")

// Wallet is the simulator's balance ledger. It keeps balances in Redis
// when one is reachable and falls back to memory otherwise, so local play
// needs no infrastructure.
type Wallet struct {
	log *zap.SugaredLogger
	rdb *redis.Client

	mu  sync.Mutex
	mem map[string]decimal.Decimal
}

func NewWallet(addr, password string, db int, log *zap.SugaredLogger) *Wallet {
	w := &Wallet{
		log: log,
		mem: make(map[string]decimal.Decimal),
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Warnw("[WALLET] redis unreachable, balances kept in memory", "addr", addr, "err", err)
		client.Close()
		return w
	}
	log.Infow("[WALLET] redis connected", "addr", addr)
	w.rdb = client
	return w
}

func (w *Wallet) Close() {
	if w.rdb != nil {
		w.rdb.Close()
	}
}

// Balance reads the player's balance, crediting the starting amount on
// first sight.
func (w *Wallet) Balance(ctx context.Context, player string) decimal.Decimal {
	if w.rdb != nil {
		key := balanceKeyPrefix + player
		val, err := w.rdb.Get(ctx, key).Float64()
		if err == redis.Nil {
			w.rdb.Set(ctx, key, StartingBalance.InexactFloat64(), 0)
			return StartingBalance
		}
		if err != nil {
			w.log.Warnw("[WALLET] balance read failed", "player", player, "err", err)
			return decimal.Zero
		}
		return decimal.NewFromFloat(val)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	bal, ok := w.mem[player]
	if !ok {
		bal = StartingBalance
		w.mem[player] = bal
	}
	return bal
}

// Debit removes amount from the player's balance and returns the new
// balance, or ErrInsufficientBalance leaving the ledger untouched.
func (w *Wallet) Debit(ctx context.Context, player string, amount decimal.Decimal) (decimal.Decimal, error) {
	if w.rdb != nil {
		bal := w.Balance(ctx, player)
		if bal.LessThan(amount) {
			return bal, ErrInsufficientBalance
		}
		key := balanceKeyPrefix + player
		after, err := w.rdb.IncrByFloat(ctx, key, -amount.InexactFloat64()).Result()
		if err != nil {
			return bal, err
		}
		if after < 0 {
			w.rdb.IncrByFloat(ctx, key, amount.InexactFloat64())
			return bal, ErrInsufficientBalance
		}
		return decimal.NewFromFloat(after), nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	bal, ok := w.mem[player]
	if !ok {
		bal = StartingBalance
	}
	if bal.LessThan(amount) {
		w.mem[player] = bal
		return bal, ErrInsufficientBalance
	}
	bal = bal.Sub(amount)
	w.mem[player] = bal
	return bal, nil
}

// Credit adds amount to the player's balance and returns the new balance.
func (w *Wallet) Credit(ctx context.Context, player string, amount decimal.Decimal) decimal.Decimal {
	if w.rdb != nil {
		after, err := w.rdb.IncrByFloat(ctx, balanceKeyPrefix+player, amount.InexactFloat64()).Result()
		if err != nil {
			w.log.Errorw("[WALLET] credit failed", "player", player, "err", err)
			return w.Balance(ctx, player)
		}
		return decimal.NewFromFloat(after)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	bal, ok := w.mem[player]
	if !ok {
		bal = StartingBalance
	}
	bal = bal.Add(amount)
	w.mem[player] = bal
	return bal
}
