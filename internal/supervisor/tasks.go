package supervisor

import (
	"context"
	"sync/atomic"
	"time"
)

// startTask launches a managed goroutine under its own cancellable context.
func (s *Supervisor) startTask(name string, run func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{name: name, cancel: cancel, done: make(chan struct{}), run: run}

	s.mu.Lock()
	s.tasks[name] = t
	s.mu.Unlock()

	go func() {
		defer close(t.done)
		run(ctx)
	}()
}

// restart cancels the named task, waits for it to exit, and starts a fresh
// one with the same run function (§4.4 "restart(task)"). Cancellation
// errors from the old task are expected and already swallowed by run().
func (s *Supervisor) restart(name string) {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return
	}

	atomic.StoreInt32(&t.cancelRequested, 1)
	t.cancel()
	<-t.done

	atomic.AddInt64(&s.restartsTotal, 1)
	s.log.Warn("restarting ingest task", "exchange", s.Exchange, "task", name)
	s.startTask(name, t.run)
}

// stop cancels every managed task and waits for each to exit. Idempotent:
// calling it twice, or on a Supervisor with no tasks, is a no-op.
func (s *Supervisor) stop() {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.tasks = make(map[string]*task)
	s.mu.Unlock()

	for _, t := range tasks {
		atomic.StoreInt32(&t.cancelRequested, 1)
		t.cancel()
	}
	for _, t := range tasks {
		<-t.done
	}
}

// taskHealthMonitor unconditionally restarts any task whose goroutine has
// already terminated, regardless of cause (§4.4 "Task health monitor").
func (s *Supervisor) taskHealthMonitor(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.cfg.TaskHealthPollSec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			names := make([]string, 0, len(s.tasks))
			for name, t := range s.tasks {
				select {
				case <-t.done:
					names = append(names, name)
				default:
				}
			}
			s.mu.Unlock()

			for _, name := range names {
				s.log.Warn("ingest task terminated, restarting", "exchange", s.Exchange, "task", name)
				s.restart(name)
			}
		}
	}
}
