// Package sqlite implements the CandleStore (§4.8): an embedded
// SQL store for OHLC candles, alerts, trade plans, backtest outcomes,
// analysis-run metadata and the market-cap cache. Grounded on the teacher's
// internal/store/sqlite writer/reader pair (WAL journaling, NORMAL sync,
// single-writer discipline) generalized from the teacher's tick-candle
// schema to this domain's (exchange, symbol, interval, open_time) schema.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kestrel-labs/perpscreen/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the CandleStore implementation. All writes serialize through mu
// (§5 "the candle store is the only shared mutable resource; its write lock
// is process-wide"); reads proceed concurrently under SQLite's WAL mode.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	log *slog.Logger
}

// Config configures the store.
type Config struct {
	Path string // e.g. "data/ohlc.sqlite3" (§6.4 default)
}

// New opens (creating if absent) the SQLite database at cfg.Path in WAL mode
// with NORMAL synchronous and builds the schema if missing.
func New(cfg Config, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	dsn := cfg.Path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// Readers may run concurrently; writes are serialized by Store.mu, not
	// by restricting the pool, so reads are never blocked behind a writer
	// waiting on another read.
	db.SetMaxOpenConns(8)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	log.Info("sqlite store opened", "path", cfg.Path)
	return &Store{db: db, log: log}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ohlc (
			exchange    TEXT    NOT NULL,
			symbol      TEXT    NOT NULL,
			interval    TEXT    NOT NULL,
			open_time   INTEGER NOT NULL,
			close_time  INTEGER NOT NULL,
			open        REAL    NOT NULL,
			high        REAL    NOT NULL,
			low         REAL    NOT NULL,
			close       REAL    NOT NULL,
			volume      REAL    NOT NULL,
			closed      INTEGER NOT NULL,
			PRIMARY KEY (exchange, symbol, interval, open_time)
		);
		CREATE INDEX IF NOT EXISTS idx_ohlc_lookup ON ohlc(exchange, symbol, interval, open_time);

		CREATE TABLE IF NOT EXISTS alerts (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			event_ts      INTEGER NOT NULL,
			created_ts    INTEGER NOT NULL,
			exchange      TEXT    NOT NULL,
			symbol        TEXT    NOT NULL,
			signal        TEXT    NOT NULL,
			source_tf     TEXT,
			price         REAL    NOT NULL,
			reason        TEXT,
			setup_score   REAL,
			setup_grade   TEXT,
			avoid_reasons TEXT,
			metrics_json  TEXT,
			UNIQUE(exchange, symbol, signal, event_ts)
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_filter ON alerts(created_ts, setup_grade, signal, source_tf);

		CREATE TABLE IF NOT EXISTS trade_plans (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			alert_id       INTEGER NOT NULL,
			event_ts       INTEGER NOT NULL,
			exchange       TEXT    NOT NULL,
			symbol         TEXT    NOT NULL,
			side           TEXT    NOT NULL,
			entry_type     TEXT    NOT NULL,
			entry_price    REAL    NOT NULL,
			stop_loss      REAL    NOT NULL,
			tp1            REAL,
			tp2            REAL,
			tp3            REAL,
			atr            REAL,
			atr_mult       REAL,
			swing_ref      REAL,
			risk_per_unit  REAL,
			rr_tp1         REAL,
			rr_tp2         REAL,
			rr_tp3         REAL,
			plan_json      TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_trade_plans_alert ON trade_plans(alert_id);

		CREATE TABLE IF NOT EXISTS backtest_trades (
			alert_id          INTEGER NOT NULL,
			window_days       INTEGER NOT NULL,
			strategy_version  TEXT    NOT NULL,
			created_ts        INTEGER NOT NULL,
			exchange          TEXT    NOT NULL,
			symbol            TEXT    NOT NULL,
			signal            TEXT    NOT NULL,
			source_tf         TEXT,
			grade             TEXT,
			score             REAL,
			liquidity_top200  INTEGER,
			entry             REAL,
			stop              REAL,
			tp1               REAL,
			tp2               REAL,
			tp3               REAL,
			resolved          TEXT NOT NULL,
			r_multiple        REAL,
			mae_r             REAL,
			mfe_r             REAL,
			bars_to_resolve   INTEGER,
			resolved_ts       INTEGER,
			PRIMARY KEY (alert_id, window_days, strategy_version)
		);
		CREATE INDEX IF NOT EXISTS idx_backtest_trades_symbol ON backtest_trades(symbol, exchange);
		CREATE INDEX IF NOT EXISTS idx_backtest_trades_bucket ON backtest_trades(grade, source_tf, signal);

		CREATE TABLE IF NOT EXISTS backtest_results (
			bucket_key      TEXT    NOT NULL,
			window_days     INTEGER NOT NULL,
			strategy_version TEXT   NOT NULL,
			count           INTEGER NOT NULL,
			win_rate_any_tp REAL,
			win_rate_r1     REAL,
			avg_r           REAL,
			avg_mae_r       REAL,
			avg_mfe_r       REAL,
			avg_bars        REAL,
			updated_ts      INTEGER NOT NULL,
			PRIMARY KEY (bucket_key, window_days, strategy_version)
		);

		CREATE TABLE IF NOT EXISTS analysis_runs (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			started_ts          INTEGER NOT NULL,
			finished_ts         INTEGER,
			window_days         INTEGER NOT NULL,
			strategy_version    TEXT    NOT NULL,
			symbols_considered  INTEGER,
			trades_resolved     INTEGER,
			status              TEXT,
			error               TEXT
		);

		CREATE TABLE IF NOT EXISTS market_cap_cache (
			symbol      TEXT PRIMARY KEY,
			market_cap  REAL NOT NULL,
			updated_ts  INTEGER NOT NULL
		);
	`)
	return err
}

// DB exposes the underlying connection pool for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// UpsertCandle inserts or updates a candle keyed by (exchange, symbol,
// interval, open_time) — idempotent (§8 testable property 1): the same
// candle upserted twice leaves the store unchanged, and a candle with a
// later close_time for the same key overwrites the row.
func (s *Store) UpsertCandle(c model.Candle) error {
	if err := c.Valid(); err != nil {
		return fmt.Errorf("upsert candle: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO ohlc (exchange, symbol, interval, open_time, close_time, open, high, low, close, volume, closed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(exchange, symbol, interval, open_time) DO UPDATE SET
			close_time = excluded.close_time,
			open       = excluded.open,
			high       = excluded.high,
			low        = excluded.low,
			close      = excluded.close,
			volume     = excluded.volume,
			closed     = excluded.closed
	`, c.Exchange, c.Symbol, string(c.Interval), c.OpenTimeMs, c.CloseTimeMs,
		c.Open, c.High, c.Low, c.Close, c.Volume, boolToInt(c.Closed))
	if err != nil {
		s.log.Error("upsert candle failed", "err", err, "key", c.Key())
		return err
	}
	return nil
}

// GetRecent returns the last limit candles for one instrument, oldest-first.
// Returns an empty slice (never an error to the in-memory path) on a read
// failure, per §4.8 "Failure semantics".
func (s *Store) GetRecent(exchange, symbol string, interval model.Interval, limit int) []model.Candle {
	rows, err := s.db.Query(`
		SELECT exchange, symbol, interval, open_time, close_time, open, high, low, close, volume, closed
		FROM ohlc WHERE exchange = ? AND symbol = ? AND interval = ?
		ORDER BY open_time DESC LIMIT ?
	`, exchange, symbol, string(interval), limit)
	if err != nil {
		s.log.Error("get recent failed", "err", err)
		return nil
	}
	defer rows.Close()
	out := scanCandles(rows, s.log)
	reverse(out)
	return out
}

// GetRecentBatch returns the last limit candles for every symbol in symbols
// using a windowed per-symbol row-number query to avoid N+1 round trips.
func (s *Store) GetRecentBatch(exchange string, symbols []string, interval model.Interval, limit int) map[string][]model.Candle {
	out := make(map[string][]model.Candle, len(symbols))
	if len(symbols) == 0 {
		return out
	}
	placeholders := make([]string, len(symbols))
	args := make([]any, 0, len(symbols)+3)
	args = append(args, exchange, string(interval))
	for i, sym := range symbols {
		placeholders[i] = "?"
		args = append(args, sym)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		WITH ranked AS (
			SELECT exchange, symbol, interval, open_time, close_time, open, high, low, close, volume, closed,
			       ROW_NUMBER() OVER (PARTITION BY symbol ORDER BY open_time DESC) AS rn
			FROM ohlc
			WHERE exchange = ? AND interval = ? AND symbol IN (%s)
		)
		SELECT exchange, symbol, interval, open_time, close_time, open, high, low, close, volume, closed
		FROM ranked WHERE rn <= ?
		ORDER BY symbol, open_time ASC
	`, joinPlaceholders(placeholders))
	rows, err := s.db.Query(query, args...)
	if err != nil {
		s.log.Error("get recent batch failed", "err", err)
		return out
	}
	defer rows.Close()
	for _, c := range scanCandles(rows, s.log) {
		out[c.Symbol] = append(out[c.Symbol], c)
	}
	return out
}

// GetAfter returns up to limit candles at or after startOpenTimeMs, ordered
// ascending by open_time.
func (s *Store) GetAfter(exchange, symbol string, interval model.Interval, startOpenTimeMs int64, limit int) []model.Candle {
	rows, err := s.db.Query(`
		SELECT exchange, symbol, interval, open_time, close_time, open, high, low, close, volume, closed
		FROM ohlc WHERE exchange = ? AND symbol = ? AND interval = ? AND open_time >= ?
		ORDER BY open_time ASC LIMIT ?
	`, exchange, symbol, string(interval), startOpenTimeMs, limit)
	if err != nil {
		s.log.Error("get after failed", "err", err)
		return nil
	}
	defer rows.Close()
	return scanCandles(rows, s.log)
}

func scanCandles(rows *sql.Rows, log *slog.Logger) []model.Candle {
	var out []model.Candle
	for rows.Next() {
		var c model.Candle
		var closedInt int
		if err := rows.Scan(&c.Exchange, &c.Symbol, &c.Interval, &c.OpenTimeMs, &c.CloseTimeMs,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &closedInt); err != nil {
			log.Error("scan candle failed", "err", err)
			continue
		}
		c.Closed = closedInt != 0
		out = append(out, c)
	}
	return out
}

// InsertAlert inserts the alert with INSERT OR IGNORE on its unique key
// (exchange, symbol, signal, event_ts); on conflict, returns the existing
// row's id (§4.3 step 3 "idempotent on replay").
func (s *Store) InsertAlert(a model.Alert) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	avoidJSON, _ := json.Marshal(a.AvoidReasons)
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO alerts
			(event_ts, created_ts, exchange, symbol, signal, source_tf, price, reason, setup_score, setup_grade, avoid_reasons, metrics_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.EventTsMs, a.CreatedTsMs, a.Exchange, a.Symbol, string(a.Signal), a.SourceTF, a.Price, a.Reason,
		a.SetupScore, string(a.SetupGrade), string(avoidJSON), a.MetricsJSON)
	if err != nil {
		return 0, fmt.Errorf("insert alert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if id != 0 {
		n, _ := res.RowsAffected()
		if n > 0 {
			return id, nil
		}
	}
	var existing int64
	err = s.db.QueryRow(`
		SELECT id FROM alerts WHERE exchange = ? AND symbol = ? AND signal = ? AND event_ts = ?
	`, a.Exchange, a.Symbol, string(a.Signal), a.EventTsMs).Scan(&existing)
	if err != nil {
		return 0, fmt.Errorf("lookup existing alert: %w", err)
	}
	return existing, nil
}

// InsertTradePlan persists a plan referencing its alert id.
func (s *Store) InsertTradePlan(p model.TradePlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO trade_plans
			(alert_id, event_ts, exchange, symbol, side, entry_type, entry_price, stop_loss,
			 tp1, tp2, tp3, atr, atr_mult, swing_ref, risk_per_unit, rr_tp1, rr_tp2, rr_tp3, plan_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.AlertID, p.EventTsMs, p.Exchange, p.Symbol, string(p.Side), p.EntryType, p.EntryPrice, p.StopLoss,
		p.TP1, p.TP2, p.TP3, p.ATR, p.ATRMult, p.SwingRef, p.RiskPerUnit, p.RRTP1, p.RRTP2, p.RRTP3, p.PlanJSON)
	if err != nil {
		return fmt.Errorf("insert trade plan: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func joinPlaceholders(ps []string) string {
	out := ""
	for i, p := range ps {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

func reverse(cs []model.Candle) {
	for i, j := 0, len(cs)-1; i < j; i, j = i+1, j-1 {
		cs[i], cs[j] = cs[j], cs[i]
	}
}
