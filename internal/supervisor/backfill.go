package supervisor

import (
	"context"
	"time"

	"github.com/kestrel-labs/perpscreen/internal/model"
)

var backfillIntervals = []model.Interval{model.Interval1m, model.Interval15m, model.Interval4h}

// backfillAll fetches BackfillCandleLimit candles at 1m/15m/4h for every
// tracked symbol. 1m candles are replayed through the Aggregator so
// indicators warm up; 15m/4h are written to the store and seeded directly
// into SymbolState's HTF rolling series (§4.4 "Startup backfill"). Failures
// for one symbol never abort the batch.
func (s *Supervisor) backfillAll(ctx context.Context) {
	for _, symbol := range s.symbolList() {
		s.backfillSymbol(ctx, symbol)
	}
}

func (s *Supervisor) backfillSymbol(ctx context.Context, symbol string) {
	for _, interval := range backfillIntervals {
		candles, err := s.rest.Klines(ctx, symbol, interval, s.cfg.BackfillCandleLimit)
		if err != nil {
			s.log.Warn("backfill failed", "exchange", s.Exchange, "symbol", symbol, "interval", interval, "err", err)
			continue
		}

		switch interval {
		case model.Interval1m:
			nowMs := time.Now().UnixMilli()
			for _, c := range candles {
				s.agg.IngestKline(c, nowMs)
			}
		default:
			for _, c := range candles {
				if err := s.store.UpsertCandle(c); err != nil {
					s.log.Warn("backfill store write failed", "exchange", s.Exchange, "symbol", symbol, "interval", interval, "err", err)
				}
			}
			s.agg.SeedHTF(symbol, interval, candles)
		}
	}
}
