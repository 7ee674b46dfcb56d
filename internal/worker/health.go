package worker

import (
	"sort"
	"sync"
	"time"
)

// aliveWindow is how recently a worker must have published a heartbeat
// to be considered alive.
const aliveWindow = 60 * time.Second

// WorkerHealth is the heartbeat snapshot a worker publishes on every
// loop iteration, idle or working.
type WorkerHealth struct {
	WorkerID      int       `json:"worker_id"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	JobsProcessed int       `json:"jobs_processed"`
	Alive         bool      `json:"alive"`
}

// HealthMap is the shared, coarsely-locked structure workers publish
// heartbeats into and the supervisor/CLI reads from. One writer per
// worker, many readers.
type HealthMap struct {
	mu      sync.Mutex
	workers map[int]*workerState
}

type workerState struct {
	lastHeartbeat time.Time
	jobsProcessed int
}

// NewHealthMap constructs an empty HealthMap.
func NewHealthMap() *HealthMap {
	return &HealthMap{workers: make(map[int]*workerState)}
}

// Heartbeat records that worker id is alive right now.
func (h *HealthMap) Heartbeat(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.stateFor(id)
	s.lastHeartbeat = time.Now()
}

// IncrementProcessed records one more completed job for worker id.
func (h *HealthMap) IncrementProcessed(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.stateFor(id)
	s.jobsProcessed++
}

func (h *HealthMap) stateFor(id int) *workerState {
	s, ok := h.workers[id]
	if !ok {
		s = &workerState{}
		h.workers[id] = s
	}
	return s
}

// Snapshot returns the current health of every worker that has ever
// published a heartbeat, ordered by worker id.
func (h *HealthMap) Snapshot() []WorkerHealth {
	h.mu.Lock()
	defer h.mu.Unlock()

	result := make([]WorkerHealth, 0, len(h.workers))
	for id, s := range h.workers {
		result = append(result, WorkerHealth{
			WorkerID:      id,
			LastHeartbeat: s.lastHeartbeat,
			JobsProcessed: s.jobsProcessed,
			Alive:         time.Since(s.lastHeartbeat) < aliveWindow,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].WorkerID < result[j].WorkerID })
	return result
}
