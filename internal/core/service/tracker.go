package service

import (
	"sync"

	"upscaler/internal/core/domain"
)

// StatsTracker counts per-backend wins and failures over the process
// lifetime. Fed by the dispatcher, read by the diagnostics endpoint.
type StatsTracker struct {
	stats map[string]domain.Stat
	mutex sync.Mutex
}

func NewStatsTracker() *StatsTracker {
	return &StatsTracker{
		stats: make(map[string]domain.Stat),
	}
}

func (t *StatsTracker) Win(backend string) {
	t.mutex.Lock()
	s := t.stats[backend]
	s.Wins++
	t.stats[backend] = s
	t.mutex.Unlock()
}

func (t *StatsTracker) Failure(backend string) {
	t.mutex.Lock()
	s := t.stats[backend]
	s.Failures++
	t.stats[backend] = s
	t.mutex.Unlock()
}

func (t *StatsTracker) Snapshot() map[string]domain.Stat {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	out := make(map[string]domain.Stat, len(t.stats))
	for k, v := range t.stats {
		out[k] = v
	}

	return out
}
