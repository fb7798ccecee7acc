// Package jobs runs the periodic background work: the breach sweep, photo
// re-validation and webhook event retention.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"fiberops/core/utils"
)

// JobFunc is one unit of scheduled work. The registry supplies the tick
// instant so jobs stay testable without a real clock.
type JobFunc func(ctx context.Context, now time.Time) error

type Scheduler struct {
	logger *utils.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	baseCtx context.Context
	cancel  context.CancelFunc
	running bool
	names   []string
}

func NewScheduler(logger *utils.Logger) *Scheduler {
	return &Scheduler{logger: logger, cron: cron.New()}
}

// Register adds a named job on a cron spec ("@every 15m" or a standard five
// field expression). Must be called before StartWithContext.
func (s *Scheduler) Register(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	_, err := s.cron.AddFunc(spec, func() {
		s.runJob(name, fn)
	})
	if err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}
	s.names = append(s.names, name)
	return nil
}

func (s *Scheduler) runJob(name string, fn JobFunc) {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	start := time.Now().UTC()
	if err := fn(ctx, start); err != nil {
		s.logger.Errorf("job %s: %v", name, err)
		return
	}
	s.logger.Printf("job %s: done in %s", name, time.Since(start))
}

func (s *Scheduler) StartWithContext(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.cron.Start()
	s.logger.Printf("scheduler started with %d jobs: %v", len(s.names), s.names)
}

// StopWithContext stops ticking and waits for in-flight jobs, bounded by ctx.
func (s *Scheduler) StopWithContext(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	stopCtx := s.cron.Stop()
	s.mu.Unlock()

	if cancel != nil {
		defer cancel()
	}
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
