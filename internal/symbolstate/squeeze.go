package symbolstate

import (
	"github.com/kestrel-labs/perpscreen/internal/indicator"
	"github.com/kestrel-labs/perpscreen/internal/model"
)

const bollingerPeriod = 20

// updateSqueezeTracking recomputes squeeze_tf for the given timeframe and
// advances the rising-edge age counter (§4.2). Called once per finalized
// HTF bucket, after the bucket's rolling series and ATR history have been
// updated.
func (s *SymbolState) updateSqueezeTracking(tf model.Interval) {
	ts := s.htf[tf]
	tracker := s.squeeze[tf]
	if ts == nil || tracker == nil {
		return
	}

	closes := ts.closes.Slice()
	bb := indicator.Bollinger(closes, bollingerPeriod, 2)
	if bb == nil || len(ts.atrHistory) == 0 {
		tracker.prevSqueeze = false
		tracker.lastRisingEdge = false
		return
	}

	bbThreshold, ok := s.cfg.VolDueBBWidthThreshold[string(tf)]
	if !ok {
		bbThreshold = 0.03
	}
	atrPctThreshold, ok := s.cfg.VolDueATRPctThreshold[string(tf)]
	if !ok {
		atrPctThreshold = 20
	}
	percentile := s.cfg.VolDuePercentile
	if percentile == 0 {
		percentile = 20
	}

	currentATR := ts.atrHistory[len(ts.atrHistory)-1]
	lastClose := closes[len(closes)-1]
	var atrPctOfPrice float64
	if lastClose != 0 {
		atrPctOfPrice = currentATR / lastClose * 100
	}

	bbWidthOK := bb.Width <= bbThreshold
	atrPctOK := atrPctOfPrice <= atrPctThreshold

	history := ts.atrHistory
	if len(history) > 1 {
		history = history[:len(history)-1]
	}
	percentileOK := true
	if rank := indicator.VolatilityPercentile(history, currentATR); rank != nil {
		percentileOK = *rank <= percentile
	}

	squeeze := bbWidthOK && atrPctOK && percentileOK
	risingEdge := squeeze && !tracker.prevSqueeze

	if risingEdge {
		tracker.ageBars = 0
		tracker.everFired = true
	} else if tracker.everFired {
		tracker.ageBars++
	}
	tracker.lastRisingEdge = risingEdge
	tracker.prevSqueeze = squeeze
}
