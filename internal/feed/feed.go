package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Handler receives decoded push notifications. Implementations must not
// block; the game's ingress satisfies this by enqueueing work.
type Handler interface {
	OnRoundPhase(phase string, roundID string)
	OnMultiplier(value decimal.Decimal)
	OnCrash(crashPoint decimal.Decimal)
	OnSnapshot(phase string, roundID string, multiplier, crashPoint decimal.Decimal)
}

// Frame is the envelope every push message arrives in.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type phasePayload struct {
	Phase   string `json:"phase"`
	RoundID string `json:"round_id"`
}

type multiplierPayload struct {
	Multiplier decimal.Decimal `json:"multiplier"`
}

type crashPayload struct {
	CrashPoint decimal.Decimal `json:"crash_point"`
	RoundID    string          `json:"round_id"`
}

type snapshotPayload struct {
	Phase      string          `json:"phase"`
	RoundID    string          `json:"round_id"`
	Multiplier decimal.Decimal `json:"multiplier"`
	CrashPoint decimal.Decimal `json:"crash_point"`
}

// Feed maintains the subscription session against the push channel,
// reconnecting with bounded backoff. Each (re)connect receives a fresh
// round snapshot from the server instead of a replay of missed events.
type Feed struct {
	log     *zap.SugaredLogger
	url     string
	handler Handler
}

func New(url string, handler Handler, log *zap.SugaredLogger) *Feed {
	return &Feed{log: log, url: url, handler: handler}
}

// Run blocks until ctx is cancelled, dialing and redialing the feed.
func (f *Feed) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		start := time.Now()
		if err := f.session(ctx); err != nil && ctx.Err() == nil {
			f.log.Warnw("[FEED] session ended", "err", err, "retryIn", backoff)
		}
		if time.Since(start) > maxBackoff {
			backoff = initialBackoff
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (f *Feed) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	f.log.Infow("[FEED] connected", "url", f.url)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.dispatch(raw)
	}
}

func (f *Feed) dispatch(raw []byte) {
	var fr Frame
	if err := codec.Unmarshal(raw, &fr); err != nil {
		f.log.Warnw("[FEED] unreadable frame dropped", "err", err)
		return
	}
	switch fr.Type {
	case "round_phase":
		var p phasePayload
		if err := codec.Unmarshal(fr.Data, &p); err != nil {
			f.log.Warnw("[FEED] bad round_phase payload", "err", err)
			return
		}
		f.handler.OnRoundPhase(p.Phase, p.RoundID)
	case "multiplier":
		var p multiplierPayload
		if err := codec.Unmarshal(fr.Data, &p); err != nil {
			f.log.Warnw("[FEED] bad multiplier payload", "err", err)
			return
		}
		f.handler.OnMultiplier(p.Multiplier)
	case "crash":
		var p crashPayload
		if err := codec.Unmarshal(fr.Data, &p); err != nil {
			f.log.Warnw("[FEED] bad crash payload", "err", err)
			return
		}
		f.handler.OnCrash(p.CrashPoint)
	case "initial_state":
		var p snapshotPayload
		if err := codec.Unmarshal(fr.Data, &p); err != nil {
			f.log.Warnw("[FEED] bad initial_state payload", "err", err)
			return
		}
		f.handler.OnSnapshot(p.Phase, p.RoundID, p.Multiplier, p.CrashPoint)
	default:
		f.log.Debugw("[FEED] unknown frame type dropped", "type", fr.Type)
	}
}
