package cache

import (
	"log/slog"
	"math/rand"
	"time"
)

// Sweeper amortizes expiry cleanup across requests: each trigger runs a
// full sweep with a configured probability, so average cleanup cost is
// bounded without an external cron. The same type backs the periodic
// ticker in the server binary, so the inline trigger can be disabled
// without touching request handling.
type Sweeper struct {
	cache       *FileCache
	maxAge      time.Duration
	probability float64
}

func NewSweeper(c *FileCache, maxAge time.Duration, probability float64) *Sweeper {
	return &Sweeper{cache: c, maxAge: maxAge, probability: probability}
}

// Maybe runs a sweep with the configured probability. Probability 0
// never sweeps, 1 always does.
func (s *Sweeper) Maybe() int {
	if s.probability <= 0 {
		return 0
	}
	if s.probability < 1 && rand.Float64() >= s.probability {
		return 0
	}
	return s.Run()
}

// Run sweeps unconditionally.
func (s *Sweeper) Run() int {
	deleted := s.cache.Sweep(s.maxAge)
	if deleted > 0 {
		slog.Info("cache sweep", "deleted", deleted, "max_age", s.maxAge.String())
	}
	return deleted
}

// Every runs a sweep on a fixed interval until stop is closed.
func (s *Sweeper) Every(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Run()
		case <-stop:
			return
		}
	}
}
