package supervisor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kestrel-labs/perpscreen/internal/marketdata/ws"
	"github.com/kestrel-labs/perpscreen/internal/model"
)

func candleFrom(exchange, symbol string, openTimeMs, closeTimeMs int64, open, high, low, close, volume float64, closed bool) model.Candle {
	return model.Candle{
		Exchange:    exchange,
		Symbol:      symbol,
		Interval:    model.Interval1m,
		OpenTimeMs:  openTimeMs,
		CloseTimeMs: closeTimeMs,
		Open:        open,
		High:        high,
		Low:         low,
		Close:       close,
		Volume:      volume,
		Closed:      closed,
	}
}

// klineTickerSink adapts Aggregator.IngestKline/UpdateTicker to ws.Sink.
// These callbacks run on the WS client's read goroutine for the "stream"
// task, the independent "oi" task calls UpdateOpenInterest concurrently,
// and a full-refresh loop may call HeartbeatEmit/SeedHTF from yet another
// goroutine — the Aggregator's single-logical-writer invariant (§5) is
// therefore enforced by its own mutex (internal/aggregator.Aggregator.mu),
// not by any guarantee about how many goroutines call in.
type klineTickerSink struct {
	s *Supervisor
}

func (k klineTickerSink) OnKline(symbol string, openTimeMs, closeTimeMs int64, open, high, low, close, volume float64, closed bool) {
	c := candleFrom(k.s.Exchange, symbol, openTimeMs, closeTimeMs, open, high, low, close, volume, closed)
	k.s.agg.IngestKline(c, time.Now().UnixMilli())
}

func (k klineTickerSink) OnMiniTicker(symbol string, price float64, eventTsMs int64) {
	k.s.agg.UpdateTicker(symbol, price, eventTsMs)
}

// runStream runs the combined kline+miniTicker WS client for the current
// universe. Both are carried on one wire connection, so a single "stream"
// task backs both the kline and ticker watchdogs — each watchdog restarts
// the same task independently on its own staleness signal (§4.4 "so that
// one dying does not mask the other").
func (s *Supervisor) runStream(ctx context.Context) {
	sink := klineTickerSink{s: s}
	client := ws.New(ws.Config{
		WSBaseURL:       s.wsBaseURL,
		Symbols:         s.symbolList(),
		PingIntervalSec: s.cfg.WSPingIntervalSec,
		PongTimeoutSec:  s.cfg.WSPongTimeoutSec,
		CloseTimeoutSec: s.cfg.WSCloseTimeoutSec,
	}, sink, s.log)
	client.OnReconnect = func() { atomic.AddInt64(&s.reconnectsTotal, 1) }
	client.Run(ctx)
}

// liquidationSink counts forced liquidations for the metrics surface; the
// spec does not define a persisted schema for these, so they are
// observational only (§4.4 "liquidations WS (optional)").
type liquidationSink struct {
	s *Supervisor
}

func (l liquidationSink) OnLiquidation(symbol, side string, qty, price float64, eventTsMs int64) {
	atomic.AddInt64(&l.s.liquidationsTotal, 1)
}

func (s *Supervisor) runLiquidations(ctx context.Context) {
	client := ws.NewLiquidationClient(s.wsBaseURL, liquidationSink{s: s}, s.log)
	client.OnReconnect = func() { atomic.AddInt64(&s.reconnectsTotal, 1) }
	client.Run(ctx)
}

// runOIPoll polls open interest for every tracked symbol at a fixed
// cadence (§6.2, default 60s) and feeds it to the Aggregator without
// triggering an emit.
func (s *Supervisor) runOIPoll(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.cfg.OIPollIntervalSec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range s.symbolList() {
				oi, err := s.rest.OpenInterest(ctx, symbol)
				if err != nil {
					s.log.Debug("open interest poll failed", "exchange", s.Exchange, "symbol", symbol, "err", err)
					continue
				}
				s.agg.UpdateOpenInterest(symbol, oi)
			}
		}
	}
}
