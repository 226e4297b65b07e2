// Package notification provides alert delivery to external channels
// (Telegram, Discord, webhooks) for fresh trading signals.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kestrel-labs/perpscreen/internal/model"
)

// gradeRank orders grades so a minimum-grade filter can be expressed as a
// single comparison (§6.3 "respecting ... a minimum grade").
var gradeRank = map[model.Grade]int{model.GradeC: 0, model.GradeB: 1, model.GradeA: 2}

// DispatchConfig bundles the Dispatcher's tunables from config.CoreConfig.
type DispatchConfig struct {
	CooldownTop200Sec int
	CooldownOtherSec  int
	MinGrade          model.Grade
	GlobalDedupSec    int
}

func defaultDispatchConfig(cfg DispatchConfig) DispatchConfig {
	if cfg.CooldownTop200Sec == 0 {
		cfg.CooldownTop200Sec = 120
	}
	if cfg.CooldownOtherSec == 0 {
		cfg.CooldownOtherSec = 300
	}
	if cfg.MinGrade == "" {
		cfg.MinGrade = model.GradeB
	}
	if cfg.GlobalDedupSec == 0 {
		cfg.GlobalDedupSec = 60
	}
	return cfg
}

// Dispatcher implements aggregator.Alerter: it filters each emitted snapshot
// down to symbols meeting the minimum grade, applies a per-symbol cooldown
// (shorter for the liquidity top200) and a minute-scale global dedup key,
// and forwards survivors to every registered Notifier (§6.3). Send is
// best-effort and never blocks the emit path — failures are logged, not
// propagated.
type Dispatcher struct {
	cfg       DispatchConfig
	notifiers []Notifier
	log       *slog.Logger

	mu             sync.Mutex
	lastSentMs     map[string]int64 // "exchange|symbol" -> last dispatch time
	lastGlobalKey  string
	lastGlobalMs   int64
}

// NewDispatcher creates a Dispatcher fanning alerts out to the given
// notifiers.
func NewDispatcher(cfg DispatchConfig, log *slog.Logger, notifiers ...Notifier) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		cfg:        defaultDispatchConfig(cfg),
		notifiers:  notifiers,
		log:        log,
		lastSentMs: make(map[string]int64),
	}
}

// Dispatch is called by the Aggregator on every emit (§6.3). It never
// blocks: each alert is sent on its own goroutine under a bounded timeout
// shared by its notifier sends, and errors are logged, not returned.
func (d *Dispatcher) Dispatch(exchange string, metrics []*model.Metrics) {
	nowMs := time.Now().UnixMilli()
	for _, m := range metrics {
		if m.SetupGrade == "" || gradeRank[m.SetupGrade] < gradeRank[d.cfg.MinGrade] {
			continue
		}
		if !d.allow(exchange, m, nowMs) {
			continue
		}
		go d.send(exchange, m)
	}
}

func (d *Dispatcher) allow(exchange string, m *model.Metrics, nowMs int64) bool {
	cooldown := int64(d.cfg.CooldownOtherSec) * 1000
	if m.LiquidityTop200 {
		cooldown = int64(d.cfg.CooldownTop200Sec) * 1000
	}
	globalKey := fmt.Sprintf("%s|%s|%s", exchange, m.Symbol, m.SetupGrade)
	globalWindowMs := int64(d.cfg.GlobalDedupSec) * 1000

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastGlobalKey == globalKey && nowMs-d.lastGlobalMs < globalWindowMs {
		return false
	}

	key := exchange + "|" + m.Symbol
	if last, ok := d.lastSentMs[key]; ok && nowMs-last < cooldown {
		return false
	}

	d.lastSentMs[key] = nowMs
	d.lastGlobalKey = globalKey
	d.lastGlobalMs = nowMs
	return true
}

func (d *Dispatcher) send(exchange string, m *model.Metrics) {
	alert := Alert{
		Level:   AlertInfo,
		Title:   fmt.Sprintf("%s %s %s", exchange, m.Symbol, m.SetupGrade),
		Message: fmt.Sprintf("score=%.1f liquidity_top200=%v reasons=%v", m.SetupScore, m.LiquidityTop200, m.AvoidReasons),
	}
	if m.SetupGrade == model.GradeA {
		alert.Level = AlertWarning
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, n := range d.notifiers {
		if err := n.Send(ctx, alert); err != nil {
			d.log.Error("notifier send failed", "symbol", m.Symbol, "err", err)
		}
	}
}
