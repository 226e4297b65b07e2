package aggregator

import (
	"math"
	"sort"

	"github.com/kestrel-labs/perpscreen/internal/model"
)

// liquidityCohort computes and caches the per-symbol liquidity rank and
// top-N cohort flag (§4.5): three min-max-normalized feature vectors
// (turnover proxy, open interest, short-term activity) combined with a
// weighted sum, ranked descending, top LiqTopN flagged. Recomputed at most
// once per cacheTTLMs.
type liquidityCohort struct {
	cacheTTLMs   int64
	computedAtMs int64
	ranks        map[string]int
	top200       map[string]bool
}

func newLiquidityCohort(cacheTTLSec int) *liquidityCohort {
	if cacheTTLSec <= 0 {
		cacheTTLSec = 60
	}
	return &liquidityCohort{cacheTTLMs: int64(cacheTTLSec) * 1000}
}

// enrich stamps LiquidityRank/LiquidityTop200 onto every metrics snapshot,
// recomputing the ranking only when the cache has expired.
func (l *liquidityCohort) enrich(a *Aggregator, metrics []*model.Metrics, nowMs int64) {
	if nowMs-l.computedAtMs >= l.cacheTTLMs || l.ranks == nil {
		l.recompute(a, metrics, nowMs)
	}
	for _, m := range metrics {
		m.LiquidityRank = l.ranks[m.Symbol]
		m.LiquidityTop200 = l.top200[m.Symbol]
	}
}

type liquidityFeatures struct {
	symbol    string
	turnover  float64
	oi        float64
	activity  float64
}

func (l *liquidityCohort) recompute(a *Aggregator, metrics []*model.Metrics, nowMs int64) {
	feats := make([]liquidityFeatures, 0, len(metrics))
	for _, m := range metrics {
		st := a.states[m.Symbol]
		if st == nil {
			continue
		}
		turnover, _ := st.LastVolume1m()
		activity := 0.0
		if m.ZScoreAbsReturn != nil {
			activity = math.Abs(*m.ZScoreAbsReturn)
		} else if m.Change5m != nil {
			activity = math.Abs(*m.Change5m)
		}
		feats = append(feats, liquidityFeatures{
			symbol:   m.Symbol,
			turnover: turnover,
			oi:       st.OpenInterestValue(),
			activity: activity,
		})
	}

	turnoverNorm := normalize(extract(feats, func(f liquidityFeatures) float64 { return f.turnover }))
	oiNorm := normalize(extract(feats, func(f liquidityFeatures) float64 { return f.oi }))
	activityNorm := normalize(extract(feats, func(f liquidityFeatures) float64 { return f.activity }))

	type scored struct {
		symbol string
		score  float64
	}
	scores := make([]scored, len(feats))
	for i, f := range feats {
		scores[i] = scored{
			symbol: f.symbol,
			score: a.cfg.LiqWeightTurnover*turnoverNorm[i] +
				a.cfg.LiqWeightOI*oiNorm[i] +
				a.cfg.LiqWeightActivity*activityNorm[i],
		}
	}

	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	ranks := make(map[string]int, len(scores))
	top200 := make(map[string]bool, len(scores))
	for i, s := range scores {
		rank := i + 1
		ranks[s.symbol] = rank
		if rank <= a.cfg.LiqTopN {
			top200[s.symbol] = true
		}
	}

	l.ranks = ranks
	l.top200 = top200
	l.computedAtMs = nowMs
}

func extract(feats []liquidityFeatures, pick func(liquidityFeatures) float64) []float64 {
	out := make([]float64, len(feats))
	for i, f := range feats {
		out[i] = pick(f)
	}
	return out
}

// normalize min-max scales values into [0,1]; a degenerate (flat) input
// maps every value to 0 rather than dividing by zero.
func normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	span := max - min
	if span == 0 {
		return out
	}
	for i, v := range values {
		out[i] = (v - min) / span
	}
	return out
}
