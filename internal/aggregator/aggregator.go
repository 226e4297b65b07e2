// Package aggregator implements the per-exchange Aggregator (SPEC_FULL.md
// §4.3): owns the {symbol -> SymbolState} map, ingests klines/tickers/OI,
// throttles snapshot emission, computes liquidity ranks, grades fresh
// signals, builds and persists trade plans, and fans snapshots out to
// subscribers. Grounded on the teacher's internal/marketdata/agg.Aggregator
// (mutex-guarded per-instrument state map, channel-driven ingest loop) and
// internal/gateway.Hub (bounded per-subscriber fan-out), generalized from
// tick-to-1s-candle aggregation to symbol-to-snapshot aggregation.
package aggregator

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/kestrel-labs/perpscreen/internal/grader"
	"github.com/kestrel-labs/perpscreen/internal/model"
	"github.com/kestrel-labs/perpscreen/internal/symbolstate"
	"github.com/kestrel-labs/perpscreen/internal/tradeplan"
)

// CandleStore is the persistence contract the Aggregator writes through.
type CandleStore interface {
	UpsertCandle(c model.Candle) error
	GetRecent(exchange, symbol string, interval model.Interval, limit int) []model.Candle
	InsertAlert(a model.Alert) (int64, error)
	InsertTradePlan(p model.TradePlan) error
}

// MarketCapProvider supplies an optional, null-tolerant market cap lookup
// (§4.3 step 2). Implementations may be backed by the store's
// market_cap_cache table or an external provider.
type MarketCapProvider interface {
	MarketCap(symbol string) (float64, bool)
}

// Alerter receives every emitted snapshot for best-effort dispatch to
// external channels (§6.3). Implementations must not block the emit path.
type Alerter interface {
	Dispatch(exchange string, metrics []*model.Metrics)
}

// SnapshotPublisher optionally fans an emitted snapshot payload out to an
// external transport (e.g. Redis pub/sub) in addition to in-process
// subscriber queues (§DOMAIN STACK).
type SnapshotPublisher interface {
	PublishSnapshot(exchange string, payload []byte)
}

// Config bundles the Aggregator's tunables from config.CoreConfig.
type Config struct {
	SnapshotIntervalMs int64
	StaleTickerMs       int64
	StaleKlineMs        int64
	LiqTopN             int
	LiqWeightTurnover   float64
	LiqWeightOI         float64
	LiqWeightActivity   float64
	LiqCacheTTLSec      int
	TradePlanEnable           bool
	TradePlanSwingLookback15M int

	SymbolState symbolstate.Config
	Grader      grader.Config
	TradePlan   tradeplan.Config
}

func defaultConfig(cfg Config) Config {
	if cfg.SnapshotIntervalMs == 0 {
		cfg.SnapshotIntervalMs = 30_000
	}
	if cfg.StaleTickerMs == 0 {
		cfg.StaleTickerMs = 90_000
	}
	if cfg.StaleKlineMs == 0 {
		cfg.StaleKlineMs = 150_000
	}
	if cfg.LiqTopN == 0 {
		cfg.LiqTopN = 200
	}
	if cfg.LiqWeightTurnover == 0 && cfg.LiqWeightOI == 0 && cfg.LiqWeightActivity == 0 {
		cfg.LiqWeightTurnover, cfg.LiqWeightOI, cfg.LiqWeightActivity = 0.6, 0.3, 0.1
	}
	if cfg.LiqCacheTTLSec == 0 {
		cfg.LiqCacheTTLSec = 60
	}
	if cfg.TradePlanSwingLookback15M == 0 {
		cfg.TradePlanSwingLookback15M = 20
	}
	return cfg
}

// Aggregator owns every SymbolState for one exchange (§5 "all mutations to
// an Aggregator's SymbolState map ... occur in a single logical writer").
// The StreamSupervisor drives IngestKline/UpdateTicker from the "stream"
// task, UpdateOpenInterest from the independent "oi" task, and (when
// ENABLE_FULL_REFRESH_5M is set) HeartbeatEmit/SeedHTF from the full-refresh
// loop — three separate goroutines. mu is the single-writer lock those
// entrypoints all take, mirroring the teacher's mutex-guarded
// marketdata/agg.Aggregator map; it is what makes "single logical writer"
// true, not goroutine layout by itself.
type Aggregator struct {
	Exchange string

	cfg         Config
	store       CandleStore
	marketCap   MarketCapProvider
	alerter     Alerter
	publisher   SnapshotPublisher
	grader      *grader.Grader
	planBuilder *tradeplan.Builder
	log         *slog.Logger

	// mu guards states, lastEmitMs and lastSignalFired — every field
	// mutated along the ingest/emit path that isn't already behind its
	// own mutex (freshMu, subsMu).
	mu              sync.Mutex
	states          map[string]*symbolstate.SymbolState
	lastEmitMs      int64
	lastSignalFired map[string]map[string]bool // symbol -> signal name -> currently active

	// freshMu guards lastTickerMs/lastKlineMs: mutated by the ingest
	// writers under mu, read by the StreamSupervisor's watchdogs from a
	// separate goroutine (§4.4, §5 "Suspension points").
	freshMu      sync.RWMutex
	lastTickerMs map[string]int64
	lastKlineMs  map[string]int64

	liq *liquidityCohort

	subsMu      sync.Mutex
	subscribers map[*Subscriber]struct{}
}

// New creates an Aggregator for one exchange.
func New(exchange string, cfg Config, store CandleStore, g *grader.Grader, planBuilder *tradeplan.Builder, marketCap MarketCapProvider, alerter Alerter, publisher SnapshotPublisher, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	cfg = defaultConfig(cfg)
	return &Aggregator{
		Exchange:        exchange,
		cfg:             cfg,
		store:           store,
		marketCap:       marketCap,
		alerter:         alerter,
		publisher:       publisher,
		grader:          g,
		planBuilder:     planBuilder,
		log:             log,
		states:          make(map[string]*symbolstate.SymbolState),
		// One interval in the past, so the first ingest always emits.
		lastEmitMs:      -cfg.SnapshotIntervalMs,
		lastTickerMs:    make(map[string]int64),
		lastKlineMs:     make(map[string]int64),
		lastSignalFired: make(map[string]map[string]bool),
		liq:             newLiquidityCohort(cfg.LiqCacheTTLSec),
		subscribers:     make(map[*Subscriber]struct{}),
	}
}

// stateForLocked requires mu to be held by the caller.
func (a *Aggregator) stateForLocked(symbol string) *symbolstate.SymbolState {
	st, ok := a.states[symbol]
	if !ok {
		st = symbolstate.New(a.Exchange, symbol, a.cfg.SymbolState, a.store, a.log)
		a.states[symbol] = st
	}
	return st
}

// IngestKline updates SymbolState for a kline event and stamps freshness
// (§4.3 "Ingest contract"). Returns the snapshot if an emit was due.
func (a *Aggregator) IngestKline(c model.Candle, nowMs int64) []*model.Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.stateForLocked(c.Symbol)
	st.Update(c)
	a.freshMu.Lock()
	a.lastKlineMs[c.Symbol] = nowMs
	a.freshMu.Unlock()
	return a.emitIfDueLocked(nowMs)
}

// UpdateTicker sets the last trade price from a mini-ticker update and
// stamps ticker freshness.
func (a *Aggregator) UpdateTicker(symbol string, price float64, nowMs int64) []*model.Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.stateForLocked(symbol)
	st.UpdateTicker(price)
	a.freshMu.Lock()
	a.lastTickerMs[symbol] = nowMs
	a.freshMu.Unlock()
	return a.emitIfDueLocked(nowMs)
}

// UpdateOpenInterest records the latest OI reading. Does not trigger emit
// (§4.3 "Ingest contract"). Runs on the supervisor's independent "oi" task,
// so it takes mu just like the kline/ticker path even though it never
// emits.
func (a *Aggregator) UpdateOpenInterest(symbol string, oi float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.stateForLocked(symbol)
	st.UpdateOpenInterest(oi)
}

// emitIfDueLocked emits a full snapshot when the throttle interval has
// elapsed. Requires mu to be held by the caller.
func (a *Aggregator) emitIfDueLocked(nowMs int64) []*model.Metrics {
	if nowMs-a.lastEmitMs < a.cfg.SnapshotIntervalMs {
		return nil
	}
	return a.heartbeatEmitLocked(nowMs)
}

// HeartbeatEmit forces an emit regardless of the throttle (§4.3). Safe to
// call from any goroutine (e.g. the full-refresh loop) — it takes mu itself.
func (a *Aggregator) HeartbeatEmit(nowMs int64) []*model.Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.heartbeatEmitLocked(nowMs)
}

// heartbeatEmitLocked requires mu to be held by the caller.
func (a *Aggregator) heartbeatEmitLocked(nowMs int64) []*model.Metrics {
	a.lastEmitMs = nowMs

	metrics := make([]*model.Metrics, 0, len(a.states))
	for symbol, st := range a.states {
		m := st.ComputeMetrics(nowMs)
		m.Symbol = symbol
		m.Exchange = a.Exchange
		metrics = append(metrics, m)
	}

	a.liq.enrich(a, metrics, nowMs)
	a.enrichMarketCap(metrics)
	a.gradeAndPlanFreshSignals(metrics, nowMs)

	a.publish(metrics, nowMs)

	if a.alerter != nil {
		a.alerter.Dispatch(a.Exchange, metrics)
	}

	return metrics
}

func (a *Aggregator) enrichMarketCap(metrics []*model.Metrics) {
	if a.marketCap == nil {
		return
	}
	for _, m := range metrics {
		if cap, ok := a.marketCap.MarketCap(m.Symbol); ok {
			m.MarketCap = &cap
		}
	}
}

func (a *Aggregator) publish(metrics []*model.Metrics, nowMs int64) {
	payload, err := json.Marshal(struct {
		Exchange string           `json:"exchange"`
		Ts       int64            `json:"ts"`
		Metrics  []*model.Metrics `json:"metrics"`
	}{Exchange: a.Exchange, Ts: nowMs, Metrics: metrics})
	if err != nil {
		a.log.Error("marshal snapshot failed", "err", err)
		return
	}

	a.subsMu.Lock()
	for sub := range a.subscribers {
		sub.push(payload)
	}
	a.subsMu.Unlock()

	if a.publisher != nil {
		a.publisher.PublishSnapshot(a.Exchange, payload)
	}
}

// FreshnessCounts is the result of StaleSymbols (§4.3 "Freshness reporting").
type FreshnessCounts struct {
	StaleTicker      int
	StaleKline       int
	StaleTickerNames []string
	StaleKlineNames  []string
}

// StaleSymbols returns counts and, optionally, sorted symbol lists whose
// most recent update age exceeds tickerMs/klineMs.
func (a *Aggregator) StaleSymbols(nowMs, tickerMs, klineMs int64, includeLists bool) FreshnessCounts {
	var out FreshnessCounts
	symbols := a.Symbols()
	a.freshMu.RLock()
	for _, symbol := range symbols {
		if nowMs-a.lastTickerMs[symbol] > tickerMs {
			out.StaleTicker++
			if includeLists {
				out.StaleTickerNames = append(out.StaleTickerNames, symbol)
			}
		}
		if nowMs-a.lastKlineMs[symbol] > klineMs {
			out.StaleKline++
			if includeLists {
				out.StaleKlineNames = append(out.StaleKlineNames, symbol)
			}
		}
	}
	a.freshMu.RUnlock()
	if includeLists {
		sort.Strings(out.StaleTickerNames)
		sort.Strings(out.StaleKlineNames)
	}
	return out
}

// LastKlineIngestMs returns the most recent kline-ingest timestamp across
// all symbols, used by the StreamSupervisor's watchdog (§4.4).
func (a *Aggregator) LastKlineIngestMs() int64 {
	a.freshMu.RLock()
	defer a.freshMu.RUnlock()
	var max int64
	for _, ts := range a.lastKlineMs {
		if ts > max {
			max = ts
		}
	}
	return max
}

// LastTickerIngestMs returns the most recent ticker-ingest timestamp across
// all symbols, used by the StreamSupervisor's watchdog (§4.4).
func (a *Aggregator) LastTickerIngestMs() int64 {
	a.freshMu.RLock()
	defer a.freshMu.RUnlock()
	var max int64
	for _, ts := range a.lastTickerMs {
		if ts > max {
			max = ts
		}
	}
	return max
}

// SeedHTF exposes the backfill hook used by StreamSupervisor's startup
// backfill (§4.4): writes 15m/4h candles directly to the store and seeds
// the in-memory rolling series so indicators don't need to warm up live.
func (a *Aggregator) SeedHTF(symbol string, tf model.Interval, candles []model.Candle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stateForLocked(symbol).SeedHTF(tf, candles)
}

// Symbols returns the current set of tracked symbols.
func (a *Aggregator) Symbols() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.states))
	for s := range a.states {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
