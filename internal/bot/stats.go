package bot

import (
	"sync"
	"time"
)

// Stats counts finished jobs since start.
type Stats struct {
	mu        sync.Mutex
	started   time.Time
	processed int
	errors    int
	total     time.Duration
	fastest   time.Duration
	largest   int64
}

func NewStats() *Stats { return &Stats{started: time.Now()} }

type StatsSnapshot struct {
	Processed int           `json:"processed"`
	Errors    int           `json:"errors"`
	Average   time.Duration `json:"average_ns"`
	Fastest   time.Duration `json:"fastest_ns"`
	Largest   int64         `json:"largest_bytes"`
	Uptime    time.Duration `json:"uptime_ns"`
}

func (s *Stats) Success(took time.Duration, inputSize int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	s.total += took
	if s.fastest == 0 || took < s.fastest {
		s.fastest = took
	}
	if inputSize > s.largest {
		s.largest = inputSize
	}
}

func (s *Stats) Failure() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := StatsSnapshot{
		Processed: s.processed,
		Errors:    s.errors,
		Fastest:   s.fastest,
		Largest:   s.largest,
		Uptime:    time.Since(s.started),
	}
	if s.processed > 0 {
		snap.Average = s.total / time.Duration(s.processed)
	}
	return snap
}
