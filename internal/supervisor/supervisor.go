// Package supervisor implements the StreamSupervisor (§4.4):
// per-exchange ingest task management with reconnect backoff, stall
// watchdogs, a task health monitor, startup backfill and an optional
// periodic full refresh. Grounded on the teacher's
// internal/indengine.Service orchestrator (Run(ctx) blocking on ctx.Done,
// startXxx helpers spinning managed goroutines, an explicit shutdown path)
// generalized from a single Redis-stream consumer to up to three independent
// per-exchange ingest tasks (stream, OI poll, optional liquidations) that
// must each survive and recover on their own.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kestrel-labs/perpscreen/internal/aggregator"
	"github.com/kestrel-labs/perpscreen/internal/exchange"
	"github.com/kestrel-labs/perpscreen/internal/model"
)

// CandleStore is the persistence contract the supervisor backfills through
// directly, alongside the Aggregator's own CandleStore usage.
type CandleStore interface {
	UpsertCandle(c model.Candle) error
}

// Config bundles the supervisor's tunables from config.CoreConfig.
type Config struct {
	TopSymbols     int
	IncludeSymbols []string
	ExcludeSymbols []string

	WSPingIntervalSec int
	WSPongTimeoutSec  int
	WSCloseTimeoutSec int
	RESTTimeoutSec    int

	WatchdogPollSec     int
	WatchdogStallSec    int
	TaskHealthPollSec   int
	BackfillCandleLimit int

	OIPollIntervalSec int

	EnableFullRefresh5M  bool
	FullRefreshOffsetSec int

	EnableLiquidations bool
}

func defaultConfig(cfg Config) Config {
	if cfg.TopSymbols == 0 {
		cfg.TopSymbols = 200
	}
	if cfg.WatchdogPollSec == 0 {
		cfg.WatchdogPollSec = 20
	}
	if cfg.WatchdogStallSec == 0 {
		cfg.WatchdogStallSec = 60
	}
	if cfg.TaskHealthPollSec == 0 {
		cfg.TaskHealthPollSec = 15
	}
	if cfg.BackfillCandleLimit == 0 {
		cfg.BackfillCandleLimit = 200
	}
	if cfg.OIPollIntervalSec == 0 {
		cfg.OIPollIntervalSec = 60
	}
	if cfg.FullRefreshOffsetSec == 0 {
		cfg.FullRefreshOffsetSec = 2
	}
	return cfg
}

// task is one managed, restartable goroutine.
type task struct {
	name            string
	cancel          context.CancelFunc
	done            chan struct{}
	run             func(ctx context.Context)
	cancelRequested int32 // set via atomic before cancel(), distinguishes a deliberate stop from a dead task
}

// TaskStatus is the debug-endpoint status of one managed task (§7
// "per-task status {running, cancelled, dead, not_started}").
type TaskStatus string

const (
	TaskRunning     TaskStatus = "running"
	TaskCancelled   TaskStatus = "cancelled"
	TaskDead        TaskStatus = "dead"
	TaskNotStarted  TaskStatus = "not_started"
)

// TaskStatuses returns the current status of every task this Supervisor
// has ever started, keyed by task name.
func (s *Supervisor) TaskStatuses() map[string]TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]TaskStatus, len(s.tasks))
	for name, t := range s.tasks {
		select {
		case <-t.done:
			if atomic.LoadInt32(&t.cancelRequested) == 1 {
				out[name] = TaskCancelled
			} else {
				out[name] = TaskDead
			}
		default:
			out[name] = TaskRunning
		}
	}
	return out
}

// Supervisor owns all ingest tasks for one exchange and keeps them alive.
type Supervisor struct {
	Exchange string

	cfg   Config
	rest  *exchange.Client
	agg   *aggregator.Aggregator
	store CandleStore
	log   *slog.Logger

	wsBaseURL string

	mu      sync.Mutex
	symbols []string
	tasks   map[string]*task

	reconnectsTotal   int64
	restartsTotal     int64
	liquidationsTotal int64
}

// Stats returns lifetime counters for the metrics/debug surface.
func (s *Supervisor) Stats() (reconnects, restarts, liquidations int64) {
	return atomic.LoadInt64(&s.reconnectsTotal), atomic.LoadInt64(&s.restartsTotal), atomic.LoadInt64(&s.liquidationsTotal)
}

// New creates a Supervisor for one exchange.
func New(exchangeName string, cfg Config, restBaseURL, wsBaseURL string, agg *aggregator.Aggregator, store CandleStore, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	cfg = defaultConfig(cfg)
	return &Supervisor{
		Exchange:  exchangeName,
		cfg:       cfg,
		rest:      exchange.New(exchangeName, restBaseURL, time.Duration(cfg.RESTTimeoutSec)*time.Second),
		agg:       agg,
		store:     store,
		log:       log,
		wsBaseURL: wsBaseURL,
		tasks:     make(map[string]*task),
	}
}

// Run selects the universe, backfills, starts all ingest tasks plus the
// watchdogs and health monitor, and blocks until ctx is cancelled (§4.4).
func (s *Supervisor) Run(ctx context.Context) error {
	include := toSet(s.cfg.IncludeSymbols)
	exclude := toSet(s.cfg.ExcludeSymbols)

	symbols, err := s.rest.SelectUniverse(ctx, s.cfg.TopSymbols, include, exclude)
	if err != nil {
		s.log.Error("universe selection failed", "exchange", s.Exchange, "err", err)
	}
	s.mu.Lock()
	s.symbols = symbols
	s.mu.Unlock()
	s.log.Info("universe selected", "exchange", s.Exchange, "count", len(symbols))

	s.backfillAll(ctx)

	s.startTask("stream", s.runStream)
	s.startTask("oi", s.runOIPoll)
	if s.cfg.EnableLiquidations {
		s.startTask("liquidations", s.runLiquidations)
	}

	go s.watchdog(ctx, "stream", s.agg.LastKlineIngestMs)
	go s.watchdog(ctx, "stream", s.agg.LastTickerIngestMs)
	go s.taskHealthMonitor(ctx)
	if s.cfg.EnableFullRefresh5M {
		go s.fullRefreshLoop(ctx)
	}

	<-ctx.Done()
	s.stop()
	return nil
}

func (s *Supervisor) symbolList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

func toSet(symbols []string) map[string]bool {
	out := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		out[s] = true
	}
	return out
}
