package model

// TradePlan is the entry/stop/take-profit plan generated for a fresh signal.
// Invariant: for BUY, StopLoss < EntryPrice <= TP1 <= TP2 <= TP3 (mirror for
// SELL). TP1/TP2/TP3 are nil when RiskPerUnit is zero (§4.6 step 3: "if
// risk==0, tp1..3 = null").
type TradePlan struct {
	ID          int64    `json:"id"`
	AlertID     int64    `json:"alert_id"`
	EventTsMs   int64    `json:"event_ts"`
	Exchange    string   `json:"exchange"`
	Symbol      string   `json:"symbol"`
	Side        Side     `json:"side"`
	EntryType   string   `json:"entry_type"`
	EntryPrice  float64  `json:"entry_price"`
	StopLoss    float64  `json:"stop_loss"`
	TP1         *float64 `json:"tp1"`
	TP2         *float64 `json:"tp2"`
	TP3         *float64 `json:"tp3"`
	ATR         float64  `json:"atr"`
	ATRMult     float64  `json:"atr_mult"`
	SwingRef    float64  `json:"swing_ref"`
	RiskPerUnit float64  `json:"risk_per_unit"`
	RRTP1       float64  `json:"rr_tp1"`
	RRTP2       float64  `json:"rr_tp2"`
	RRTP3       float64  `json:"rr_tp3"`
	PlanJSON    string   `json:"plan_json"`
}

// EntryTypeMarket is the only entry type this spec produces.
const EntryTypeMarket = "market"
