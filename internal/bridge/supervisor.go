package bridge

import (
	"context"
	"time"

	"github.com/quickcall/quickcall/internal/ctxlog"
)

// Supervisor keeps one persistent agent worker running so the gateway can
// dispatch inbound calls to it. The worker is restarted with capped backoff
// when it exits.
type Supervisor struct {
	runner Runner
	spec   CommandSpec

	// restart backoff bounds, overridable in tests
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewSupervisor builds a supervisor for the given worker command.
func NewSupervisor(runner Runner, spec CommandSpec) *Supervisor {
	return &Supervisor{
		runner:     runner,
		spec:       spec,
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// Run spawns the worker and restarts it until the context is canceled.
func (s *Supervisor) Run(ctx context.Context) {
	logger := ctxlog.FromContext(ctx).With("component", "worker_supervisor")
	backoff := s.minBackoff

	for {
		start := time.Now()
		proc, err := s.runner.Start(ctx, s.spec)
		if err != nil {
			logger.Error("Failed to start persistent worker.", "error", err)
		} else {
			done := make(chan error, 1)
			go func() { done <- proc.Wait() }()

			select {
			case err := <-done:
				logger.Warn("Persistent worker exited.", "error", err, "uptime", time.Since(start))
			case <-ctx.Done():
				_ = proc.Kill()
				<-done
				logger.Info("Persistent worker stopped.")
				return
			}

			// A worker that stayed up long enough earns a fresh backoff.
			if time.Since(start) > s.maxBackoff {
				backoff = s.minBackoff
			}
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = min(backoff*2, s.maxBackoff)
	}
}
