package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

// LiquidationSink receives forced-liquidation events. Optional — the
// supervisor only starts a liquidation task when EnableLiquidations is
// set (§4.4 "liquidations WS (optional)").
type LiquidationSink interface {
	OnLiquidation(symbol, side string, qty, price float64, eventTsMs int64)
}

// LiquidationClient consumes Binance's all-market forced-order stream
// (`!forceOrder@arr`), reusing the same reconnect-with-backoff shape as
// Client.Run.
type LiquidationClient struct {
	wsBaseURL string
	log       *slog.Logger
	sink      LiquidationSink

	OnReconnect func()
}

// NewLiquidationClient creates a LiquidationClient.
func NewLiquidationClient(wsBaseURL string, sink LiquidationSink, log *slog.Logger) *LiquidationClient {
	if log == nil {
		log = slog.Default()
	}
	return &LiquidationClient{wsBaseURL: wsBaseURL, log: log, sink: sink}
}

// Run blocks until ctx is cancelled, reconnecting with exponential backoff.
func (c *LiquidationClient) Run(ctx context.Context) {
	delay := minReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ok := c.connectAndConsume(ctx)
		if ctx.Err() != nil {
			return
		}
		if ok {
			delay = minReconnectDelay
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (c *LiquidationClient) connectAndConsume(ctx context.Context) bool {
	url := c.wsBaseURL + "?streams=!forceOrder@arr"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		c.log.Debug("liquidation ws dial failed", "err", err)
		return false
	}
	defer conn.Close()

	if c.OnReconnect != nil {
		c.OnReconnect()
	}

	received := false
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return received
			}
			return received
		}
		if c.handleMessage(raw) {
			received = true
		}
	}
}

type forceOrderEvent struct {
	Data struct {
		O struct {
			Symbol string `json:"s"`
			Side   string `json:"S"`
			Qty    string `json:"q"`
			Price  string `json:"p"`
			TsMs   int64  `json:"T"`
		} `json:"o"`
	} `json:"data"`
}

func (c *LiquidationClient) handleMessage(raw []byte) bool {
	var ev forceOrderEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return false
	}
	qty, errQ := strconv.ParseFloat(ev.Data.O.Qty, 64)
	price, errP := strconv.ParseFloat(ev.Data.O.Price, 64)
	if errQ != nil || errP != nil || ev.Data.O.Symbol == "" {
		return false
	}
	c.sink.OnLiquidation(ev.Data.O.Symbol, ev.Data.O.Side, qty, price, ev.Data.O.TsMs)
	return true
}
