package model

// Side is the direction of a signal or trade plan.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Grade is the setup-quality bucket assigned by the Grader.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
)

// WaveTrendState holds the Cipher B / WaveTrend outputs for one timeframe.
type WaveTrendState struct {
	WT1        *float64 `json:"wt1,omitempty"`
	WT2        *float64 `json:"wt2,omitempty"`
	CipherBuy  bool     `json:"cipher_buy"`
	CipherSell bool     `json:"cipher_sell"`
}

// WilliamsRState holds the dual-period %R trend-exhaustion outputs for one timeframe.
type WilliamsRState struct {
	Fast            *float64 `json:"fast,omitempty"`
	Slow            *float64 `json:"slow,omitempty"`
	Overbought      bool     `json:"overbought"`
	Oversold        bool     `json:"oversold"`
	TrendStartBull  bool     `json:"trend_start_bull"`
	TrendStartBear  bool     `json:"trend_start_bear"`
	ReversalBull    bool     `json:"reversal_bull"`
	ReversalBear    bool     `json:"reversal_bear"`
	CrossBull       bool     `json:"cross_bull"`
	CrossBear       bool     `json:"cross_bear"`
}

// MACDState holds the MACD(12,26,9) triple.
type MACDState struct {
	MACD      *float64 `json:"macd,omitempty"`
	Signal    *float64 `json:"signal,omitempty"`
	Histogram *float64 `json:"histogram,omitempty"`
}

// StochRSIState holds the smoothed stochastic-RSI %K/%D pair.
type StochRSIState struct {
	K *float64 `json:"k,omitempty"`
	D *float64 `json:"d,omitempty"`
}

// BollingerState holds Bollinger Band outputs for one timeframe.
type BollingerState struct {
	Upper    *float64 `json:"upper,omitempty"`
	Middle   *float64 `json:"middle,omitempty"`
	Lower    *float64 `json:"lower,omitempty"`
	Width    *float64 `json:"width,omitempty"`
	Position *float64 `json:"position,omitempty"`
}

// SqueezeState holds the Vol-Due / squeeze flags for one timeframe (§4.2).
type SqueezeState struct {
	Squeeze  bool  `json:"squeeze"`
	VolDue   bool  `json:"vol_due"`
	AgeBars  int   `json:"age_bars"`
}

// ByTF is a per-timeframe value map keyed by the interval string ("15m", "4h").
type ByTF[T any] map[string]T

// Metrics is the value object produced by SymbolState.ComputeMetrics once per
// emit cycle. All indicator fields are nullable: nil means "under-provisioned
// window", never zero-as-sentinel.
type Metrics struct {
	Symbol    string `json:"symbol"`
	Exchange  string `json:"exchange"`
	EventTsMs int64  `json:"event_ts"`

	LastPrice *float64 `json:"last_price,omitempty"`

	OpenInterest *float64 `json:"open_interest,omitempty"`
	OIChange5m   *float64 `json:"oi_change_5m,omitempty"`

	Change1m  *float64 `json:"change_1m,omitempty"`
	Change5m  *float64 `json:"change_5m,omitempty"`
	Change15m *float64 `json:"change_15m,omitempty"`
	Change60m *float64 `json:"change_60m,omitempty"`
	Change1d  *float64 `json:"change_1d,omitempty"`

	ATR1m *float64 `json:"atr_1m,omitempty"`
	ATR4h *float64 `json:"atr_4h,omitempty"`

	ZScoreAbsReturn *float64 `json:"zscore_abs_return,omitempty"`
	RVOL            *float64 `json:"rvol,omitempty"`

	Breakout15  *float64 `json:"breakout_15,omitempty"`
	Breakdown15 *float64 `json:"breakdown_15,omitempty"`
	VWAP15      *float64 `json:"vwap_15,omitempty"`

	Momentum5m        *float64 `json:"momentum_5m,omitempty"`
	Momentum15m       *float64 `json:"momentum_15m,omitempty"`
	MomentumScore     *float64 `json:"momentum_score,omitempty"`

	WaveTrend map[string]WaveTrendState `json:"wavetrend,omitempty"`
	CipherSourceTF string              `json:"cipher_source_tf,omitempty"`
	CipherReason   string              `json:"cipher_reason,omitempty"`

	WilliamsR map[string]WilliamsRState `json:"williams_r,omitempty"`

	ImpulseScore *float64 `json:"impulse_score,omitempty"`
	ImpulseDir   int      `json:"impulse_dir"`
	SignalScore  *float64 `json:"signal_score,omitempty"`

	RSI  map[string]*float64   `json:"rsi,omitempty"`
	MACD map[string]MACDState  `json:"macd,omitempty"`
	StochRSI map[string]StochRSIState `json:"stoch_rsi,omitempty"`
	MFI  map[string]*float64   `json:"mfi,omitempty"`

	MTFBullCount int    `json:"mtf_bull_count"`
	MTFBearCount int    `json:"mtf_bear_count"`
	MTFAligned   bool   `json:"mtf_aligned"`
	MTFSummary   string `json:"mtf_summary,omitempty"`

	Bollinger map[string]BollingerState `json:"bollinger,omitempty"`

	VolatilityPercentile *float64 `json:"volatility_percentile,omitempty"`
	Squeeze              map[string]SqueezeState `json:"squeeze,omitempty"`

	SwingLong bool `json:"swing_long"`

	LiquidityRank    int     `json:"liquidity_rank,omitempty"`
	LiquidityTop200  bool    `json:"liquidity_top200"`
	MarketCap        *float64 `json:"market_cap,omitempty"`

	SetupScore   float64  `json:"setup_score"`
	SetupGrade   Grade    `json:"setup_grade,omitempty"`
	AvoidReasons []string `json:"avoid_reasons,omitempty"`

	FundingRate *float64 `json:"funding_rate,omitempty"`

	SignalAgeMs map[string]int64 `json:"signal_age_ms,omitempty"`

	SectorTags []string `json:"sector_tags,omitempty"`
}
