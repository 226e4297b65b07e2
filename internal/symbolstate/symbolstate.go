// Package symbolstate owns the rolling windows and derived-metric cache for
// a single (exchange, symbol) pair. Everything here is accessed from the
// owning Aggregator's single logical writer (§5 CONCURRENCY MODEL) — no
// locking is done inside SymbolState itself.
package symbolstate

import (
	"fmt"
	"log/slog"

	"github.com/kestrel-labs/perpscreen/internal/indicator"
	"github.com/kestrel-labs/perpscreen/internal/model"
	"github.com/kestrel-labs/perpscreen/internal/rollingseries"
)

const (
	series1mCapacity  = 1500
	seriesHTFCapacity = 600
	atrHistoryCap     = 100
	indicatorCacheTTLMs = 15_000
)

var htfIntervals = []model.Interval{model.Interval15m, model.Interval4h}

func bucketWidthMs(tf model.Interval) int64 {
	switch tf {
	case model.Interval15m:
		return 15 * 60 * 1000
	case model.Interval4h:
		return 4 * 60 * 60 * 1000
	default:
		return 0
	}
}

// htfBucket is the currently-forming higher-timeframe candle for one tf.
type htfBucket struct {
	started       bool
	bucketStartMs int64
	openTimeMs    int64
	open, high, low, close, volume float64
}

// tfSeries bundles the rolling series for one finalized higher timeframe.
type tfSeries struct {
	opens, highs, lows, closes, volumes *rollingseries.Series
	atrHistory                          []float64
}

func newTFSeries() *tfSeries {
	return &tfSeries{
		opens:   rollingseries.New(seriesHTFCapacity),
		highs:   rollingseries.New(seriesHTFCapacity),
		lows:    rollingseries.New(seriesHTFCapacity),
		closes:  rollingseries.New(seriesHTFCapacity),
		volumes: rollingseries.New(seriesHTFCapacity),
	}
}

// squeezeTracking holds the Vol-Due/squeeze rising-edge state for one tf.
type squeezeTracking struct {
	prevSqueeze    bool
	lastRisingEdge bool
	ageBars        int
	everFired      bool
}

// CandleStore is the persistence contract SymbolState calls when an HTF
// bucket finalizes. Implemented by internal/store/sqlite.Store.
type CandleStore interface {
	UpsertCandle(c model.Candle) error
}

// Config bundles the tunables SymbolState needs from config.CoreConfig
// without importing the config package directly (avoids an import cycle
// with model and keeps this package testable with literal values).
type Config struct {
	ATRPeriod              int
	VolLookback            int
	WindowShort            int // breakout/breakdown/VWAP lookback
	WindowMedium           int // MFI lookback
	CipherBOSLevel         float64
	CipherBOBLevel         float64
	VolDueBBWidthThreshold map[string]float64
	VolDueATRPctThreshold  map[string]float64
	VolDuePercentile       float64
	VolDueLookbackBars     int
}

type cacheEntry struct {
	computedAtMs int64
	value        any
}

// SymbolState owns the rolling windows for one (exchange, symbol) pair and
// computes a Metrics snapshot on demand.
type SymbolState struct {
	Exchange string
	Symbol   string

	cfg   Config
	store CandleStore
	log   *slog.Logger

	opens1m, highs1m, lows1m, closes1m, volumes1m *rollingseries.Series
	oi1m *rollingseries.Series

	lastPrice    float64
	hasLastPrice bool
	openInterest float64
	atr1m        *float64
	atrHistory1m []float64

	htfForming map[model.Interval]*htfBucket
	htf        map[model.Interval]*tfSeries
	squeeze    map[model.Interval]*squeezeTracking

	lastSignalTsMs map[string]int64

	cache map[string]cacheEntry
}

// New creates a SymbolState with empty rolling windows.
func New(exchange, symbol string, cfg Config, store CandleStore, log *slog.Logger) *SymbolState {
	if log == nil {
		log = slog.Default()
	}
	s := &SymbolState{
		Exchange: exchange,
		Symbol:   symbol,
		cfg:      cfg,
		store:    store,
		log:      log,

		opens1m:   rollingseries.New(series1mCapacity),
		highs1m:   rollingseries.New(series1mCapacity),
		lows1m:    rollingseries.New(series1mCapacity),
		closes1m:  rollingseries.New(series1mCapacity),
		volumes1m: rollingseries.New(series1mCapacity),
		oi1m:      rollingseries.New(series1mCapacity),

		htfForming: make(map[model.Interval]*htfBucket, len(htfIntervals)),
		htf:        make(map[model.Interval]*tfSeries, len(htfIntervals)),
		squeeze:    make(map[model.Interval]*squeezeTracking, len(htfIntervals)),

		lastSignalTsMs: make(map[string]int64),
		cache:          make(map[string]cacheEntry),
	}
	for _, tf := range htfIntervals {
		s.htfForming[tf] = &htfBucket{}
		s.htf[tf] = newTFSeries()
		s.squeeze[tf] = &squeezeTracking{}
	}
	return s
}

// Update folds a 1m candle into the rolling windows (§4.1 Update contract).
// Intrabar (non-closed) updates never feed the HTF resampler.
func (s *SymbolState) Update(c model.Candle) {
	s.opens1m.Append(c.Open)
	s.highs1m.Append(c.High)
	s.lows1m.Append(c.Low)
	s.closes1m.Append(c.Close)
	s.volumes1m.Append(c.Volume)
	s.lastPrice = c.Close
	s.hasLastPrice = true

	if s.closes1m.Len() >= 15 {
		closes := s.closes1m.Slice()
		highs := s.highs1m.Slice()
		lows := s.lows1m.Slice()
		if atr := indicator.ATR(highs, lows, closes, s.atrPeriod()); atr != nil {
			s.atr1m = atr
			s.atrHistory1m = append(s.atrHistory1m, *atr)
			if len(s.atrHistory1m) > atrHistoryCap {
				s.atrHistory1m = s.atrHistory1m[len(s.atrHistory1m)-atrHistoryCap:]
			}
		}
	}

	if c.Closed {
		for _, tf := range htfIntervals {
			s.foldHTF(tf, c)
		}
	}
}

// UpdateTicker sets the last trade price from a standalone ticker update
// (no candle context, so no indicator recomputation is forced here).
func (s *SymbolState) UpdateTicker(price float64) {
	s.lastPrice = price
	s.hasLastPrice = true
}

// UpdateOpenInterest records the latest open-interest reading.
func (s *SymbolState) UpdateOpenInterest(oi float64) {
	s.openInterest = oi
	s.oi1m.Append(oi)
}

func (s *SymbolState) atrPeriod() int {
	if s.cfg.ATRPeriod > 0 {
		return s.cfg.ATRPeriod
	}
	return 14
}

// foldHTF extends the current bucket for tf or finalizes it and starts a
// new one, grounded on the bucket-align / finalize-on-new-bucket algorithm
// used by the source screener's timeframe resampler.
func (s *SymbolState) foldHTF(tf model.Interval, c model.Candle) {
	width := bucketWidthMs(tf)
	if width == 0 {
		return
	}
	bStart := c.OpenTimeMs - (c.OpenTimeMs % width)
	b := s.htfForming[tf]

	if b.started && bStart == b.bucketStartMs {
		if c.High > b.high {
			b.high = c.High
		}
		if c.Low < b.low {
			b.low = c.Low
		}
		b.close = c.Close
		b.volume += c.Volume
		return
	}

	if b.started {
		s.finalizeHTF(tf, b)
	}

	*b = htfBucket{
		started:       true,
		bucketStartMs: bStart,
		openTimeMs:    c.OpenTimeMs,
		open:          c.Open,
		high:          c.High,
		low:           c.Low,
		close:         c.Close,
		volume:        c.Volume,
	}
}

// finalizeHTF appends the closed bucket to the rolling series, persists it,
// and updates the Vol-Due/squeeze rising-edge tracker for that timeframe.
func (s *SymbolState) finalizeHTF(tf model.Interval, b *htfBucket) {
	ts := s.htf[tf]
	ts.opens.Append(b.open)
	ts.highs.Append(b.high)
	ts.lows.Append(b.low)
	ts.closes.Append(b.close)
	ts.volumes.Append(b.volume)

	closes := ts.closes.Slice()
	highs := ts.highs.Slice()
	lows := ts.lows.Slice()
	if atr := indicator.ATR(highs, lows, closes, s.atrPeriod()); atr != nil {
		ts.atrHistory = append(ts.atrHistory, *atr)
		if len(ts.atrHistory) > atrHistoryCap {
			ts.atrHistory = ts.atrHistory[len(ts.atrHistory)-atrHistoryCap:]
		}
	}

	s.updateSqueezeTracking(tf)

	width := bucketWidthMs(tf)
	candle := model.Candle{
		Exchange:    s.Exchange,
		Symbol:      s.Symbol,
		Interval:    tf,
		OpenTimeMs:  b.bucketStartMs,
		CloseTimeMs: b.bucketStartMs + width,
		Open:        b.open,
		High:        b.high,
		Low:         b.low,
		Close:       b.close,
		Volume:      b.volume,
		Closed:      true,
	}
	if s.store != nil {
		if err := s.store.UpsertCandle(candle); err != nil {
			s.log.Error("htf candle persist failed", "exchange", s.Exchange, "symbol", s.Symbol, "interval", tf, "err", err)
		}
	}
}

// SeedHTF pre-populates a finalized higher-timeframe series from backfilled
// store rows (oldest-to-newest), used by StreamSupervisor's startup
// backfill (§4.4) so indicators don't need to warm up live.
func (s *SymbolState) SeedHTF(tf model.Interval, candles []model.Candle) {
	ts := s.htf[tf]
	if ts == nil {
		return
	}
	for _, c := range candles {
		ts.opens.Append(c.Open)
		ts.highs.Append(c.High)
		ts.lows.Append(c.Low)
		ts.closes.Append(c.Close)
		ts.volumes.Append(c.Volume)
	}
}

// memo returns a cached value for (name, seriesLen) if computed within the
// last 15s, else computes, caches and returns it (§4.1 Caching).
func (s *SymbolState) memo(name string, seriesLen int, nowMs int64, compute func() any) any {
	key := fmt.Sprintf("%s:%d", name, seriesLen)
	if e, ok := s.cache[key]; ok && nowMs-e.computedAtMs < indicatorCacheTTLMs {
		return e.value
	}
	v := compute()
	s.cache[key] = cacheEntry{computedAtMs: nowMs, value: v}
	return v
}

// LastPrice returns the most recent trade price, if any has been observed.
func (s *SymbolState) LastPrice() (float64, bool) {
	return s.lastPrice, s.hasLastPrice
}

// ATR1m returns the current 1m ATR(14), if provisioned.
func (s *SymbolState) ATR1m() *float64 { return s.atr1m }

// Closes1mLen reports how many 1m closes have been observed, used by
// callers to gate whether a symbol is warm enough to grade.
func (s *SymbolState) Closes1mLen() int { return s.closes1m.Len() }

// LastVolume1m returns the most recent 1m bar volume, used by the
// Aggregator's liquidity cohort turnover-proxy feature (§4.5).
func (s *SymbolState) LastVolume1m() (float64, bool) { return s.volumes1m.Last() }

// OpenInterestValue returns the latest open-interest reading.
func (s *SymbolState) OpenInterestValue() float64 { return s.openInterest }
