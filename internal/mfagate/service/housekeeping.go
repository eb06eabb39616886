package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/store"
)

// HousekeepingService periodically sweeps expired attempts and redirect
// bindings, and prunes audit events past their retention.
type HousekeepingService struct {
	Attempts  store.Attempts
	Events    store.Events // optional
	Logger    *slog.Logger
	Interval  time.Duration
	Retention time.Duration

	Now func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service. If interval is 0 or
// negative, it defaults to one minute.
func NewHousekeepingService(attempts store.Attempts, events store.Events, logger *slog.Logger, interval, retention time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Minute
	}

	return &HousekeepingService{
		Attempts:  attempts,
		Events:    events,
		Logger:    logger,
		Interval:  interval,
		Retention: retention,
		Now:       time.Now,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress sweep has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup runs one sweep. Each step is independent; a failure in one does
// not stop the other.
func (s *HousekeepingService) Cleanup(ctx context.Context) {
	n, err := s.Attempts.DeleteExpired(ctx)
	if err != nil {
		s.Logger.Error("failed to delete expired attempts", "error", err)
	} else if n > 0 {
		s.Logger.Debug("deleted expired attempts", "count", n)
	}

	if s.Events == nil || s.Retention <= 0 {
		return
	}
	pruned, err := s.Events.DeleteEventsBefore(ctx, s.Now().Add(-s.Retention))
	if err != nil {
		s.Logger.Error("failed to prune login events", "error", err)
	} else if pruned > 0 {
		s.Logger.Debug("pruned login events", "count", pruned)
	}
}
