package sqlite

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kestrel-labs/perpscreen/internal/model"
)

// AlertPlanPair bundles a persisted alert with its trade plan, the shape the
// Backtester iterates (§4.7 step 1).
type AlertPlanPair struct {
	Alert model.Alert
	Plan  model.TradePlan
}

// GetAlertPlanPairs selects (alert, plan) pairs with created_ts >=
// sinceTsMs, optionally restricted to exchange (empty = all) and/or the
// top200 cohort (probed via metrics_json per §4.7 step 1).
func (s *Store) GetAlertPlanPairs(sinceTsMs int64, exchange string, top200Only bool) ([]AlertPlanPair, error) {
	query := `
		SELECT a.id, a.event_ts, a.created_ts, a.exchange, a.symbol, a.signal, a.source_tf, a.price,
		       a.reason, a.setup_score, a.setup_grade, a.avoid_reasons, a.metrics_json,
		       p.id, p.alert_id, p.event_ts, p.exchange, p.symbol, p.side, p.entry_type, p.entry_price,
		       p.stop_loss, p.tp1, p.tp2, p.tp3, p.atr, p.atr_mult, p.swing_ref, p.risk_per_unit,
		       p.rr_tp1, p.rr_tp2, p.rr_tp3, p.plan_json
		FROM alerts a
		JOIN trade_plans p ON p.alert_id = a.id
		WHERE a.created_ts >= ?
	`
	args := []any{sinceTsMs}
	if exchange != "" {
		query += " AND a.exchange = ?"
		args = append(args, exchange)
	}
	if top200Only {
		query += ` AND a.metrics_json LIKE ?`
		args = append(args, `%"liquidity_top200":true%`)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("get alert plan pairs: %w", err)
	}
	defer rows.Close()

	var out []AlertPlanPair
	for rows.Next() {
		var pair AlertPlanPair
		var avoidJSON string
		var signal, grade, side string
		if err := rows.Scan(
			&pair.Alert.ID, &pair.Alert.EventTsMs, &pair.Alert.CreatedTsMs, &pair.Alert.Exchange, &pair.Alert.Symbol,
			&signal, &pair.Alert.SourceTF, &pair.Alert.Price, &pair.Alert.Reason, &pair.Alert.SetupScore, &grade,
			&avoidJSON, &pair.Alert.MetricsJSON,
			&pair.Plan.ID, &pair.Plan.AlertID, &pair.Plan.EventTsMs, &pair.Plan.Exchange, &pair.Plan.Symbol,
			&side, &pair.Plan.EntryType, &pair.Plan.EntryPrice, &pair.Plan.StopLoss, &pair.Plan.TP1, &pair.Plan.TP2,
			&pair.Plan.TP3, &pair.Plan.ATR, &pair.Plan.ATRMult, &pair.Plan.SwingRef, &pair.Plan.RiskPerUnit,
			&pair.Plan.RRTP1, &pair.Plan.RRTP2, &pair.Plan.RRTP3, &pair.Plan.PlanJSON,
		); err != nil {
			s.log.Error("scan alert plan pair failed", "err", err)
			continue
		}
		pair.Alert.Signal = model.Side(signal)
		pair.Alert.SetupGrade = model.Grade(grade)
		pair.Plan.Side = model.Side(side)
		if avoidJSON != "" {
			_ = decodeJSONStrings(avoidJSON, &pair.Alert.AvoidReasons)
		}
		out = append(out, pair)
	}
	return out, rows.Err()
}

// UpsertBacktestTrade inserts or overwrites a backtest trade row keyed by
// (alert_id, window_days, strategy_version) — changing strategy_version
// creates new rows rather than overwriting existing history (§6.4).
func (s *Store) UpsertBacktestTrade(bt model.BacktestTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO backtest_trades
			(alert_id, window_days, strategy_version, created_ts, exchange, symbol, signal, source_tf,
			 grade, score, liquidity_top200, entry, stop, tp1, tp2, tp3, resolved, r_multiple, mae_r, mfe_r,
			 bars_to_resolve, resolved_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(alert_id, window_days, strategy_version) DO UPDATE SET
			grade = excluded.grade, score = excluded.score, resolved = excluded.resolved,
			r_multiple = excluded.r_multiple, mae_r = excluded.mae_r, mfe_r = excluded.mfe_r,
			bars_to_resolve = excluded.bars_to_resolve, resolved_ts = excluded.resolved_ts
	`, bt.AlertID, bt.WindowDays, bt.StrategyVersion, bt.CreatedTsMs, bt.Exchange, bt.Symbol, string(bt.Signal),
		bt.SourceTF, string(bt.Grade), bt.Score, boolToInt(bt.LiquidityTop200), bt.Entry, bt.Stop,
		bt.TP1, bt.TP2, bt.TP3, string(bt.Resolved), bt.RMultiple, bt.MAE_R, bt.MFE_R, bt.BarsToResolve, bt.ResolvedTsMs)
	if err != nil {
		return fmt.Errorf("upsert backtest trade: %w", err)
	}
	return nil
}

// UpsertBacktestResult stores one aggregated bucket row (§4.7 step 5).
func (s *Store) UpsertBacktestResult(bucketKey string, windowDays int, strategyVersion string, stats model.SymbolBucketStats, updatedTsMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO backtest_results
			(bucket_key, window_days, strategy_version, count, win_rate_any_tp, win_rate_r1, avg_r, avg_mae_r, avg_mfe_r, avg_bars, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bucket_key, window_days, strategy_version) DO UPDATE SET
			count = excluded.count, win_rate_any_tp = excluded.win_rate_any_tp, win_rate_r1 = excluded.win_rate_r1,
			avg_r = excluded.avg_r, avg_mae_r = excluded.avg_mae_r, avg_mfe_r = excluded.avg_mfe_r,
			avg_bars = excluded.avg_bars, updated_ts = excluded.updated_ts
	`, bucketKey, windowDays, strategyVersion, stats.Count, stats.WinRateAnyTP, stats.WinRateR1,
		stats.AvgR, stats.AvgMAE_R, stats.AvgMFE_R, stats.AvgBars, updatedTsMs)
	if err != nil {
		return fmt.Errorf("upsert backtest result: %w", err)
	}
	return nil
}

// InsertAnalysisRun records a new run and returns its id.
func (s *Store) InsertAnalysisRun(run model.AnalysisRun) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		INSERT INTO analysis_runs (started_ts, finished_ts, window_days, strategy_version, symbols_considered, trades_resolved, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.StartedTsMs, nullIfZero(run.FinishedTsMs), run.WindowDays, run.StrategyVersion,
		run.SymbolsConsidered, run.TradesResolved, run.Status, run.Error)
	if err != nil {
		return 0, fmt.Errorf("insert analysis run: %w", err)
	}
	return res.LastInsertId()
}

// FinishAnalysisRun updates a run row with its completion status.
func (s *Store) FinishAnalysisRun(id int64, finishedTsMs int64, symbolsConsidered, tradesResolved int, status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE analysis_runs SET finished_ts = ?, symbols_considered = ?, trades_resolved = ?, status = ?, error = ?
		WHERE id = ?
	`, finishedTsMs, symbolsConsidered, tradesResolved, status, errMsg, id)
	return err
}

// GetMarketCap reads a cached market-cap value (§SUPPLEMENTED FEATURES), or
// ok=false on miss.
func (s *Store) GetMarketCap(symbol string) (entry model.MarketCapEntry, ok bool) {
	err := s.db.QueryRow(`SELECT symbol, market_cap, updated_ts FROM market_cap_cache WHERE symbol = ?`, symbol).
		Scan(&entry.Symbol, &entry.MarketCap, &entry.UpdatedTsMs)
	if err != nil {
		return model.MarketCapEntry{}, false
	}
	return entry, true
}

// SetMarketCap upserts a market-cap cache row.
func (s *Store) SetMarketCap(entry model.MarketCapEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO market_cap_cache (symbol, market_cap, updated_ts) VALUES (?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET market_cap = excluded.market_cap, updated_ts = excluded.updated_ts
	`, entry.Symbol, entry.MarketCap, entry.UpdatedTsMs)
	return err
}

func nullIfZero(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

// decodeJSONStrings decodes a JSON string array, treating an empty or
// "null" column as no entries; kept local to this file since it is only
// used for the avoid_reasons column round-trip.
func decodeJSONStrings(s string, out *[]string) error {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return nil
	}
	return json.Unmarshal([]byte(s), out)
}
