package worker

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"docchat/internal/logger"
)

type Sweepable interface {
	Sweep() int
}

// CacheSweeper purges expired retrieval cache entries on a fixed interval so
// memory stays bounded between bursts of activity.
type CacheSweeper struct {
	scheduler *gocron.Scheduler
	target    Sweepable
	interval  time.Duration
}

func NewCacheSweeper(target Sweepable, interval time.Duration) *CacheSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &CacheSweeper{scheduler: s, target: target, interval: interval}
}

func (s *CacheSweeper) Start() error {
	_, err := s.scheduler.Every(s.interval).Do(s.sweep)
	if err != nil {
		return fmt.Errorf("schedule cache sweep failed: %w", err)
	}
	s.scheduler.StartAsync()
	return nil
}

func (s *CacheSweeper) sweep() {
	if removed := s.target.Sweep(); removed > 0 {
		logger.Debug("worker: swept retrieval cache", "removed", removed)
	}
}

func (s *CacheSweeper) Stop() {
	s.scheduler.Stop()
}
