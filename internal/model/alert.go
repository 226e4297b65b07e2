package model

// Alert is a persisted signal firing. Uniqueness key: (Exchange, Symbol,
// Signal, EventTsMs) — idempotent on replay via INSERT OR IGNORE.
type Alert struct {
	ID           int64    `json:"id"`
	EventTsMs    int64    `json:"event_ts"`
	CreatedTsMs  int64    `json:"created_ts"`
	Exchange     string   `json:"exchange"`
	Symbol       string   `json:"symbol"`
	Signal       Side     `json:"signal"`
	SourceTF     string   `json:"source_tf"`
	Price        float64  `json:"price"`
	Reason       string   `json:"reason"`
	SetupScore   float64  `json:"setup_score"`
	SetupGrade   Grade    `json:"setup_grade"`
	AvoidReasons []string `json:"avoid_reasons,omitempty"`
	MetricsJSON  string   `json:"metrics_json"`
}
