package model

// Resolution is the terminal (or pending) state of a BacktestTrade simulation.
type Resolution string

const (
	ResolutionPending Resolution = "PENDING"
	ResolutionTP1     Resolution = "TP1"
	ResolutionTP2     Resolution = "TP2"
	ResolutionTP3     Resolution = "TP3"
	ResolutionSL      Resolution = "SL"
	ResolutionNone    Resolution = "NONE"
)

// BacktestTrade is one forward-simulated outcome for a persisted (alert, plan)
// pair. Uniqueness key: (AlertID, WindowDays, StrategyVersion).
type BacktestTrade struct {
	AlertID         int64      `json:"alert_id"`
	WindowDays      int        `json:"window_days"`
	StrategyVersion string     `json:"strategy_version"`
	CreatedTsMs     int64      `json:"created_ts"`
	Exchange        string     `json:"exchange"`
	Symbol          string     `json:"symbol"`
	Signal          Side       `json:"signal"`
	SourceTF        string     `json:"source_tf"`
	Grade           Grade      `json:"grade"`
	Score           float64    `json:"score"`
	LiquidityTop200 bool       `json:"liquidity_top200"`
	Entry           float64    `json:"entry"`
	Stop            float64    `json:"stop"`
	TP1             float64    `json:"tp1"`
	TP2             float64    `json:"tp2"`
	TP3             float64    `json:"tp3"`
	Resolved        Resolution `json:"resolved"`
	RMultiple       float64    `json:"r_multiple"`
	MAE_R           float64    `json:"mae_r"`
	MFE_R           float64    `json:"mfe_r"`
	BarsToResolve   int        `json:"bars_to_resolve"`
	ResolvedTsMs    int64      `json:"resolved_ts"`
}

// SymbolBucketStats aggregates BacktestTrade rows per (symbol, exchange) or
// per (grade, source_tf, signal) bucket, with both win-rate definitions
// surfaced side by side (§4.7 step 5).
type SymbolBucketStats struct {
	Key            string  `json:"key"`
	Count          int     `json:"count"`
	WinRateAnyTP   float64 `json:"win_rate_any_tp"`
	WinRateR1      float64 `json:"win_rate_r1"`
	AvgR           float64 `json:"avg_r"`
	AvgMAE_R       float64 `json:"avg_mae_r"`
	AvgMFE_R       float64 `json:"avg_mfe_r"`
	AvgBars        float64 `json:"avg_bars"`
}

// AnalysisRun records metadata for one Backtester invocation.
type AnalysisRun struct {
	ID                int64  `json:"id"`
	StartedTsMs       int64  `json:"started_ts"`
	FinishedTsMs      int64  `json:"finished_ts"`
	WindowDays        int    `json:"window_days"`
	StrategyVersion   string `json:"strategy_version"`
	SymbolsConsidered int    `json:"symbols_considered"`
	TradesResolved    int    `json:"trades_resolved"`
	Status            string `json:"status"`
	Error             string `json:"error,omitempty"`
}

// MarketCapEntry is one row of the market-cap cache (§ SUPPLEMENTED FEATURES).
type MarketCapEntry struct {
	Symbol      string  `json:"symbol"`
	MarketCap   float64 `json:"market_cap"`
	UpdatedTsMs int64   `json:"updated_ts"`
}
