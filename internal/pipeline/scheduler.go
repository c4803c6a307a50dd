package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"stopgraph/internal/catalog"
)

// Scheduler reruns a set of targets on a fixed interval. A failed run keeps
// the stored snapshot and is retried on the next tick.
type Scheduler struct {
	Updater  *Updater
	Targets  []catalog.Target
	Interval time.Duration
	Enrich   bool // rebuild from the store instead of the row source

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Start runs once immediately and then on every tick until Stop or until
// parent is cancelled.
func (s *Scheduler) Start(parent context.Context) {
	if s.Interval <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// immediate refresh on start
		_ = s.RunOnce(ctx)
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.RunOnce(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// RunOnce runs every target. Targets are independent, so one failure does
// not skip the rest; all failures are returned joined.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var errs []error
	for _, t := range s.Targets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		var err error
		if s.Enrich {
			_, err = s.Updater.Enrich(ctx, t)
		} else {
			_, err = s.Updater.Run(ctx, t)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		s.Updater.logger().Warn("scheduled refresh incomplete",
			slog.Int("failed", len(errs)), slog.Int("targets", len(s.Targets)))
	}
	return errors.Join(errs...)
}
