// Package api exposes the screener's HTTP surface: the latest snapshot per
// exchange, health, and debug task status. Grounded on the teacher's
// internal/metrics health-server shape and internal/gateway.Hub snapshot
// fan-out, generalized from a market-data WS gateway to a small read-only
// REST surface (§6.3, §7 "User-visible failure surface").
package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"

	"github.com/kestrel-labs/perpscreen/internal/supervisor"
)

// SnapshotCache holds the most recently emitted snapshot payload per
// exchange, kept current by subscribing to each Aggregator.
type SnapshotCache struct {
	mu       sync.Mutex
	payloads map[string][]byte
}

// NewSnapshotCache creates an empty cache.
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{payloads: make(map[string][]byte)}
}

// Set stores the latest payload for one exchange.
func (c *SnapshotCache) Set(exchange string, payload []byte) {
	c.mu.Lock()
	c.payloads[exchange] = payload
	c.mu.Unlock()
}

// Get returns the latest payload for one exchange, or the empty snapshot
// shape on a miss (§7 "empty metrics[] with ts=0 on internal failure").
func (c *SnapshotCache) Get(exchange string) []byte {
	c.mu.Lock()
	payload, ok := c.payloads[exchange]
	c.mu.Unlock()
	if !ok {
		return []byte(`{"exchange":"` + exchange + `","ts":0,"metrics":[]}`)
	}
	return payload
}

// TaskStatusProvider is implemented by supervisor.Supervisor.
type TaskStatusProvider interface {
	TaskStatuses() map[string]supervisor.TaskStatus
}

// NewRouter wires the snapshot, health, and debug endpoints. supervisors is
// keyed by exchange name, matching the snapshots cache's keys.
func NewRouter(snapshots *SnapshotCache, health http.HandlerFunc, supervisors map[string]TaskStatusProvider) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		health(w, r)
	})

	mux.HandleFunc("/api/v1/snapshot", func(w http.ResponseWriter, r *http.Request) {
		exchange := r.URL.Query().Get("exchange")
		if exchange == "" {
			http.Error(w, `{"error":"missing exchange query param"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(snapshots.Get(exchange))
	})

	mux.HandleFunc("/api/v1/debug/tasks", func(w http.ResponseWriter, r *http.Request) {
		out := make(map[string]map[string]string, len(supervisors))
		for exchange, sup := range supervisors {
			statuses := sup.TaskStatuses()
			names := make([]string, 0, len(statuses))
			for name := range statuses {
				names = append(names, name)
			}
			sort.Strings(names)
			byTask := make(map[string]string, len(names))
			for _, name := range names {
				byTask[name] = string(statuses[name])
			}
			out[exchange] = byTask
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	})

	return mux
}
