package supervisor

import (
	"context"
	"time"
)

const fullRefreshBoundary = 5 * time.Minute

// fullRefreshLoop sleeps until the next 5-minute wall-clock boundary plus
// FullRefreshOffsetSec, then restarts every ingest task, re-runs backfill,
// and forces a heartbeat emit — a healing pass for silent partial stalls
// that the watchdogs alone might not catch (§4.4 "Periodic full refresh").
func (s *Supervisor) fullRefreshLoop(ctx context.Context) {
	for {
		wait := untilNextBoundary(time.Now(), fullRefreshBoundary, time.Duration(s.cfg.FullRefreshOffsetSec)*time.Second)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		if ctx.Err() != nil {
			return
		}
		s.runFullRefresh(ctx)
	}
}

func (s *Supervisor) runFullRefresh(ctx context.Context) {
	s.log.Info("full refresh starting", "exchange", s.Exchange)

	s.mu.Lock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	s.mu.Unlock()
	for _, name := range names {
		s.restart(name)
	}

	s.backfillAll(ctx)
	s.agg.HeartbeatEmit(time.Now().UnixMilli())

	s.log.Info("full refresh complete", "exchange", s.Exchange)
}

// untilNextBoundary returns the wait duration until the next multiple of
// boundary past the epoch, shifted by offset.
func untilNextBoundary(now time.Time, boundary, offset time.Duration) time.Duration {
	elapsed := now.Sub(now.Truncate(boundary))
	wait := boundary - elapsed + offset
	if wait <= 0 {
		wait += boundary
	}
	return wait
}
