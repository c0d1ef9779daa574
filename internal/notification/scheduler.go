package notification

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// dueDeliverer is satisfied by *Service.
type dueDeliverer interface {
	DeliverDue(ctx context.Context) (int, error)
}

// Scheduler periodically sends notifications whose scheduled time has passed.
type Scheduler struct {
	svc      dueDeliverer
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewScheduler creates a scheduler checking every interval (default 30s).
func NewScheduler(svc dueDeliverer, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		svc:      svc,
		interval: interval,
		logger:   logger.Named("scheduler"),
	}
}

// Start begins the scheduler loop. It stops when ctx is cancelled or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.loop(ctx, s.stopCh, s.doneCh)
}

// Stop halts the scheduler and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()
	<-done
}

func (s *Scheduler) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce delivers everything currently due.
func (s *Scheduler) RunOnce(ctx context.Context) {
	n, err := s.svc.DeliverDue(ctx)
	if err != nil {
		s.logger.Error("scheduled run finished with errors", zap.Int("due", n), zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("scheduled notifications delivered", zap.Int("count", n))
	}
}
