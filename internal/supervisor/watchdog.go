package supervisor

import (
	"context"
	"time"
)

// watchdog polls lastIngestMs() at WatchdogPollSec and restarts the named
// task when the age since the most recent ingest exceeds WatchdogStallSec
// (§4.4). One watchdog per stream so a stalled kline feed doesn't mask a
// healthy ticker feed or vice versa.
func (s *Supervisor) watchdog(ctx context.Context, taskName string, lastIngestMs func() int64) {
	ticker := time.NewTicker(time.Duration(s.cfg.WatchdogPollSec) * time.Second)
	defer ticker.Stop()
	stallMs := int64(s.cfg.WatchdogStallSec) * 1000

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := lastIngestMs()
			if last == 0 {
				continue // nothing ingested yet; backfill or first connect still pending
			}
			age := time.Now().UnixMilli() - last
			if age > stallMs {
				s.log.Warn("ingest stall detected", "exchange", s.Exchange, "task", taskName, "age_ms", age)
				s.restart(taskName)
			}
		}
	}
}
