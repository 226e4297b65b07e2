package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/kestrel-labs/perpscreen/internal/model"
)

// CoreConfig holds all application configuration loaded from environment
// variables (§6.5). It is a flat option bag read once at process start.
type CoreConfig struct {
	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Exchange endpoints
	RESTBaseURL string
	WSBaseURL   string

	// Universe selection
	TopSymbols     int
	IncludeSymbols []string
	ExcludeSymbols []string

	// Indicator windows
	WindowShort int // breakout/breakdown/VWAP lookback (15)
	WindowMedium int // MFI lookback (60)
	ATRPeriod   int
	VolLookback int // z-score / RVOL lookback (30)

	// Emit cadence
	SnapshotIntervalMs int64

	// Exchange WS tuning
	WSHeartbeatSec   int
	WSPingIntervalSec int
	WSPongTimeoutSec int
	WSCloseTimeoutSec int
	WSInboundQueueCap int
	RESTTimeoutSec   int

	// Reconnect / watchdog
	ReconnectBackoffMinMs int
	ReconnectBackoffMaxMs int
	WatchdogPollSec       int
	WatchdogStallSec      int
	TaskHealthPollSec     int
	BackfillCandleLimit   int

	// Cipher B thresholds
	CipherBOSLevel float64
	CipherBOBLevel float64

	// Liquidity cohort
	LiqTopN            int
	LiqWeightTurnover   float64
	LiqWeightOI         float64
	LiqWeightActivity   float64
	LiqCacheTTLSec      int

	// Vol-Due / squeeze
	VolDueBBWidthThreshold map[string]float64
	VolDueATRPctThreshold  map[string]float64
	VolDuePercentile       float64
	VolDueLookbackBars     int

	// TradePlanBuilder
	TradePlanEnable           bool
	TradePlanATRMult          float64
	TradePlanSwingLookback15M int
	TradePlanTPRMults         [3]float64
	TradePlanSwingR           float64
	TradePlanSwingATRMult     float64

	// Full refresh healing loop
	EnableFullRefresh5M bool
	FullRefreshOffsetSec int

	// Freshness
	StaleTickerMs int64
	StaleKlineMs  int64

	// Alert dispatch
	AlertCooldownTop200Sec int
	AlertCooldownOtherSec  int
	AlertMinGrade          model.Grade
	AlertGlobalDedupSec    int

	// Backtester autorun
	AnalysisAutorunIntervalSec int
	AnalysisWindowDays         []int
	StrategyVersion            string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *CoreConfig {
	return &CoreConfig{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/ohlc.sqlite3"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		RESTBaseURL: getEnv("REST_BASE_URL", "https://fapi.binance.com"),
		WSBaseURL:   getEnv("WS_BASE_URL", "wss://fstream.binance.com/stream"),

		TopSymbols:     getEnvInt("TOP_SYMBOLS", 200),
		IncludeSymbols: getEnvList("INCLUDE_SYMBOLS"),
		ExcludeSymbols: getEnvList("EXCLUDE_SYMBOLS"),

		WindowShort:  getEnvInt("WINDOW_SHORT", 15),
		WindowMedium: getEnvInt("WINDOW_MEDIUM", 60),
		ATRPeriod:    getEnvInt("ATR_PERIOD", 14),
		VolLookback:  getEnvInt("VOL_LOOKBACK", 30),

		SnapshotIntervalMs: int64(getEnvInt("SNAPSHOT_INTERVAL_MS", 30000)),

		WSHeartbeatSec:    getEnvInt("WS_HEARTBEAT_SEC", 15),
		WSPingIntervalSec: getEnvInt("WS_PING_INTERVAL", 15),
		WSPongTimeoutSec:  getEnvInt("WS_PONG_TIMEOUT_SEC", 60),
		WSCloseTimeoutSec: getEnvInt("WS_CLOSE_TIMEOUT_SEC", 10),
		WSInboundQueueCap: getEnvInt("WS_INBOUND_QUEUE_CAP", 4096),
		RESTTimeoutSec:    getEnvInt("REST_TIMEOUT_SEC", 20),

		ReconnectBackoffMinMs: getEnvInt("RECONNECT_BACKOFF_MIN_MS", 1000),
		ReconnectBackoffMaxMs: getEnvInt("RECONNECT_BACKOFF_MAX_MS", 25000),
		WatchdogPollSec:       getEnvInt("WATCHDOG_POLL_SEC", 20),
		WatchdogStallSec:      getEnvInt("WATCHDOG_STALL_SEC", 60),
		TaskHealthPollSec:     getEnvInt("TASK_HEALTH_POLL_SEC", 15),
		BackfillCandleLimit:   getEnvInt("BACKFILL_CANDLE_LIMIT", 200),

		CipherBOSLevel: getEnvFloat("CIPHERB_OS_LEVEL", -40),
		CipherBOBLevel: getEnvFloat("CIPHERB_OB_LEVEL", 40),

		LiqTopN:          getEnvInt("LIQ_TOP_N", 200),
		LiqWeightTurnover: getEnvFloat("LIQ_WEIGHT_TURNOVER", 0.6),
		LiqWeightOI:       getEnvFloat("LIQ_WEIGHT_OI", 0.3),
		LiqWeightActivity: getEnvFloat("LIQ_WEIGHT_ACTIVITY", 0.1),
		LiqCacheTTLSec:    getEnvInt("LIQ_CACHE_TTL_SEC", 60),

		VolDueBBWidthThreshold: map[string]float64{
			"15m": getEnvFloat("VOLDUE_BBWIDTH_15M", 0.03),
			"4h":  getEnvFloat("VOLDUE_BBWIDTH_4H", 0.05),
		},
		VolDueATRPctThreshold: map[string]float64{
			"15m": getEnvFloat("VOLDUE_ATRPCT_15M", 20),
			"4h":  getEnvFloat("VOLDUE_ATRPCT_4H", 20),
		},
		VolDuePercentile:   getEnvFloat("VOLDUE_PERCENTILE", 20),
		VolDueLookbackBars: getEnvInt("VOLDUE_LOOKBACK_BARS", 50),

		TradePlanEnable:           getEnvBool("TRADEPLAN_ENABLE", true),
		TradePlanATRMult:          getEnvFloat("TRADEPLAN_ATR_MULT", 2.5),
		TradePlanSwingLookback15M: getEnvInt("TRADEPLAN_SWING_LOOKBACK_15M", 20),
		TradePlanTPRMults:         [3]float64{1.5, 2.5, 4.0},
		TradePlanSwingR:           getEnvFloat("TRADEPLAN_SWING_R", 1.25),
		TradePlanSwingATRMult:     getEnvFloat("TRADEPLAN_SWING_ATR_MULT", 2.0),

		EnableFullRefresh5M:  getEnvBool("ENABLE_FULL_REFRESH_5M", false),
		FullRefreshOffsetSec: getEnvInt("FULL_REFRESH_OFFSET_SEC", 2),

		StaleTickerMs: int64(getEnvInt("STALE_TICKER_MS", 90000)),
		StaleKlineMs:  int64(getEnvInt("STALE_KLINE_MS", 150000)),

		AlertCooldownTop200Sec: getEnvInt("ALERT_COOLDOWN_TOP200_SEC", 120),
		AlertCooldownOtherSec:  getEnvInt("ALERT_COOLDOWN_OTHER_SEC", 300),
		AlertMinGrade:          model.Grade(getEnv("ALERT_MIN_GRADE", string(model.GradeB))),
		AlertGlobalDedupSec:    getEnvInt("ALERT_GLOBAL_DEDUP_SEC", 60),

		AnalysisAutorunIntervalSec: getEnvInt("ANALYSIS_AUTORUN_INTERVAL_SEC", 3600),
		AnalysisWindowDays:         getEnvIntList("ANALYSIS_WINDOW_DAYS", []int{7, 30}),
		StrategyVersion:            getEnv("STRATEGY_VERSION", "v1"),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s=%q, using default %v", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid bool for %s=%q, using default %v", key, v, fallback)
		return fallback
	}
	return b
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvIntList(key string, fallback []int) []int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			log.Printf("[config] skipping invalid int list value: %q", p)
			continue
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
