// Package ws implements the exchange WebSocket ingest clients (§6.1):
// combined 1m-kline and mini-ticker streams, with a ctx-cancellable
// connect/read/reconnect loop. Grounded on the teacher's
// internal/marketdata/ws connect/read/reconnect shape (subscribe on open,
// dispatch on data, reconnect on close/error) and on
// yoghaf-market-indikator's internal/ingest.Ingester exponential-backoff
// loop, adapted from Angel-One SmartAPI framing to Binance-style combined
// JSON streams.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	minReconnectDelay = 1 * time.Second
	maxReconnectDelay = 25 * time.Second
)

// Sink receives normalized events from the ingest client. Implementations
// must not block — the Aggregator's ingest methods are expected to be
// fast, in-memory map mutations (§5 "single logical writer").
type Sink interface {
	OnKline(symbol string, openTimeMs, closeTimeMs int64, open, high, low, close, volume float64, closed bool)
	OnMiniTicker(symbol string, price float64, eventTsMs int64)
}

// Config bundles one client's connection parameters.
type Config struct {
	WSBaseURL        string
	Symbols          []string
	PingIntervalSec  int
	PongTimeoutSec   int
	CloseTimeoutSec  int
}

func (c Config) pingInterval() time.Duration {
	if c.PingIntervalSec > 0 {
		return time.Duration(c.PingIntervalSec) * time.Second
	}
	return 15 * time.Second
}

func (c Config) pongTimeout() time.Duration {
	if c.PongTimeoutSec > 0 {
		return time.Duration(c.PongTimeoutSec) * time.Second
	}
	return 60 * time.Second
}

func (c Config) closeTimeout() time.Duration {
	if c.CloseTimeoutSec > 0 {
		return time.Duration(c.CloseTimeoutSec) * time.Second
	}
	return 10 * time.Second
}

// Client is a combined-stream WS ingest client for one exchange.
type Client struct {
	cfg  Config
	log  *slog.Logger
	sink Sink

	// OnReconnect is an optional hook fired every time a fresh connection
	// is (re-)established, used by the supervisor/metrics layer to count
	// reconnects.
	OnReconnect func()
	// OnMessage is an optional hook fired on every successfully parsed
	// message, used by the watchdog to track last-ingest age.
	OnMessage func(nowMs int64)
}

// New creates a Client.
func New(cfg Config, sink Sink, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{cfg: cfg, log: log, sink: sink}
}

func (c *Client) streamURL() string {
	streams := make([]string, 0, len(c.cfg.Symbols)*2)
	for _, sym := range c.cfg.Symbols {
		lower := strings.ToLower(sym)
		streams = append(streams, lower+"@kline_1m", lower+"@miniTicker")
	}
	return c.cfg.WSBaseURL + "?streams=" + strings.Join(streams, "/")
}

// Run blocks until ctx is cancelled, reconnecting with exponential backoff
// (1s floor, 25s cap, reset to floor on any successfully parsed message)
// on every disconnect (§6.1 "Reconnect contract", §4.4).
func (c *Client) Run(ctx context.Context) {
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

		c.log.Warn("ws ingest reconnecting", "delay", delay)
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

// connectAndConsume returns true if at least one message was successfully
// received before the connection dropped (so the backoff loop can reset).
func (c *Client) connectAndConsume(ctx context.Context) bool {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.streamURL(), nil)
	if err != nil {
		c.log.Error("ws dial failed", "err", err)
		return false
	}
	defer conn.Close()

	if c.OnReconnect != nil {
		c.OnReconnect()
	}
	c.log.Info("ws connected", "url", c.streamURL())

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.cfg.closeTimeout()))
		conn.Close()
		close(done)
	}()

	ticker := time.NewTicker(c.cfg.pingInterval())
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.pongTimeout()))
			}
		}
	}()

	received := false
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return received
			}
			c.log.Warn("ws read failed", "err", err)
			return received
		}
		if c.handleMessage(raw) {
			received = true
			if c.OnMessage != nil {
				c.OnMessage(time.Now().UnixMilli())
			}
		}
	}
}

// envelope matches Binance's combined-stream wrapper: {"stream":"...","data":{...}}.
type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type klineEvent struct {
	EventType string `json:"e"`
	K         struct {
		OpenTimeMs  int64  `json:"t"`
		CloseTimeMs int64  `json:"T"`
		Open        string `json:"o"`
		High        string `json:"h"`
		Low         string `json:"l"`
		Close       string `json:"c"`
		QuoteVolume string `json:"q"`
		Closed      bool   `json:"x"`
		Symbol      string `json:"s"`
	} `json:"k"`
}

type miniTickerEvent struct {
	EventType string `json:"e"`
	EventTsMs int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

// handleMessage parses one combined-stream frame and dispatches to the
// sink. Malformed payloads are logged at debug and skipped — the stream
// continues (§7 "Malformed payload").
func (c *Client) handleMessage(raw []byte) bool {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Debug("ws malformed envelope", "err", err)
		return false
	}

	var probe struct {
		E string `json:"e"`
	}
	if err := json.Unmarshal(env.Data, &probe); err != nil {
		c.log.Debug("ws malformed payload", "err", err)
		return false
	}

	switch probe.E {
	case "kline":
		var ev klineEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			c.log.Debug("ws malformed kline", "err", err)
			return false
		}
		open, okO := parseFloat(ev.K.Open)
		high, okH := parseFloat(ev.K.High)
		low, okL := parseFloat(ev.K.Low)
		closeP, okC := parseFloat(ev.K.Close)
		vol, okV := parseFloat(ev.K.QuoteVolume)
		if !okO || !okH || !okL || !okC || !okV {
			c.log.Debug("ws kline field parse failed", "symbol", ev.K.Symbol)
			return false
		}
		c.sink.OnKline(ev.K.Symbol, ev.K.OpenTimeMs, ev.K.CloseTimeMs, open, high, low, closeP, vol, ev.K.Closed)
		return true

	case "24hrMiniTicker":
		var ev miniTickerEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			c.log.Debug("ws malformed miniTicker", "err", err)
			return false
		}
		price, ok := parseFloat(ev.Close)
		if !ok {
			return false
		}
		c.sink.OnMiniTicker(ev.Symbol, price, ev.EventTsMs)
		return true

	default:
		return false
	}
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
