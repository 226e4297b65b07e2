// Package redis provides the Aggregator's optional Redis pub/sub fan-out
// and the Grader's cross-process win-rate cache distribution (§DOMAIN
// STACK). Grounded on the teacher's internal/store/redis writer (go-redis
// client, circuit breaker around every remote call) and
// internal/gateway.Hub (fan-out to external consumers), generalized from
// Redis Streams ingestion to a lightweight pub/sub publisher.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/kestrel-labs/perpscreen/internal/grader"
)

const snapshotChannelPrefix = "pub:snapshot:"
const winRateChannel = "pub:winrates"

// Publisher fans emitted snapshots out to Redis pub/sub so an external
// gateway process can serve WebSocket clients without linking against the
// core (§6.3, DOMAIN STACK). Every publish goes through a circuit breaker:
// once Redis is unreachable, PublishSnapshot returns immediately instead of
// blocking the Aggregator's emit path.
type Publisher struct {
	client *goredis.Client
	cb     *CircuitBreaker
	log    *slog.Logger
}

// NewPublisher creates a Publisher. addr/password configure the Redis
// client; maxFailures/resetTimeout tune the circuit breaker.
func NewPublisher(addr, password string, maxFailures int, resetTimeout time.Duration, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 10 * time.Second
	}
	return &Publisher{
		client: goredis.NewClient(&goredis.Options{Addr: addr, Password: password}),
		cb:     NewCircuitBreaker(maxFailures, resetTimeout),
		log:    log,
	}
}

// PublishSnapshot implements aggregator.SnapshotPublisher.
func (p *Publisher) PublishSnapshot(exchange string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := p.cb.Execute(func() error {
		return p.client.Publish(ctx, snapshotChannelPrefix+exchange, payload).Err()
	})
	if err != nil {
		p.log.Debug("redis snapshot publish skipped", "exchange", exchange, "err", err)
	}
}

// PublishWinRates broadcasts the whole win-rate table so sibling processes
// can refresh their local WinRateCache via SubscribeWinRates (§4.5,
// DOMAIN STACK).
func (p *Publisher) PublishWinRates(entries map[string]grader.WinRateEntry) {
	body, err := json.Marshal(entries)
	if err != nil {
		p.log.Error("marshal win-rate table failed", "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = p.cb.Execute(func() error {
		return p.client.Publish(ctx, winRateChannel, body).Err()
	})
	if err != nil {
		p.log.Debug("redis win-rate publish skipped", "err", err)
	}
}

// SubscribeWinRates listens for win-rate broadcasts and applies them to the
// local cache until ctx is cancelled. Intended for a secondary process that
// runs Aggregators without running its own Backtester.
func SubscribeWinRates(ctx context.Context, addr, password string, cache *grader.WinRateCache, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr, Password: password})
	sub := client.Subscribe(ctx, winRateChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var entries map[string]grader.WinRateEntry
			if err := json.Unmarshal([]byte(msg.Payload), &entries); err != nil {
				log.Warn("malformed win-rate broadcast", "err", err)
				continue
			}
			cache.Publish(entries)
		}
	}
}

// Close releases the underlying Redis client.
func (p *Publisher) Close() error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("redis: close: %w", err)
	}
	return nil
}
