package service

import (
	"context"
	"sync"
	"time"

	dErrors "attestor/pkg/domain-errors"
)

// periodicRunner owns the lifecycle of the background verification sweep.
// Unlike the fire-and-forget timer it replaces, the sweep is explicitly
// cancellable so shutdown and tests can stop it deterministically.
type periodicRunner struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newPeriodicRunner() *periodicRunner {
	return &periodicRunner{}
}

// StartPeriodicVerification runs VerifyAll on a fixed cadence until Stop is
// called. Starting an already-running sweep fails with CodeInvariantViolation.
func (s *Service) StartPeriodicVerification(interval time.Duration) error {
	if interval <= 0 {
		return dErrors.New(dErrors.CodeValidation, "verification interval must be positive")
	}

	s.periodic.mu.Lock()
	defer s.periodic.mu.Unlock()

	if s.periodic.cancel != nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "periodic verification is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.periodic.cancel = cancel
	s.periodic.done = done

	go s.runSweeps(ctx, interval, done)
	return nil
}

// Stop cancels the periodic sweep and waits for the current pass to finish.
// Safe to call when nothing is running.
func (s *Service) Stop() {
	s.periodic.mu.Lock()
	cancel := s.periodic.cancel
	done := s.periodic.done
	s.periodic.cancel = nil
	s.periodic.done = nil
	s.periodic.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Service) runSweeps(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := s.VerifyAll(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "periodic verification sweep failed", "error", err)
				continue
			}
			if !status.Secure {
				s.logger.ErrorContext(ctx, "periodic verification found failed components",
					"failed_ids", status.FailedIDs)
				continue
			}
			s.logger.InfoContext(ctx, "periodic verification sweep complete",
				"verified", len(status.VerifiedIDs),
				"total_edges", status.TotalEdges,
			)
		}
	}
}
