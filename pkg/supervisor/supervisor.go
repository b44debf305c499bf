// Package supervisor owns the lifetimes of the engine's long-running
// components: start order, restart policies, health ticking, and orderly
// shutdown.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/orderstream-io/orderstream/pkg/fault"
	"github.com/orderstream-io/orderstream/pkg/health"
)

// Supervisor starts children in registration order, watches the
// long-running ones, and stops everything in reverse order on shutdown.
type Supervisor struct {
	children []Child
	logger   *slog.Logger
	registry *health.Registry

	startupTimeout  time.Duration
	shutdownTimeout time.Duration
	healthTick      time.Duration
	restartInitial  time.Duration
	restartMax      time.Duration

	mu       sync.Mutex
	running  []Service
	fatalErr error
	cancel   context.CancelFunc
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithHealthRegistry lets the supervisor report child states and drive the
// periodic health tick.
func WithHealthRegistry(registry *health.Registry) Option {
	return func(s *Supervisor) {
		s.registry = registry
	}
}

// WithStartupTimeout bounds each child's Start call. Default 1 minute.
func WithStartupTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.startupTimeout = d
	}
}

// WithShutdownTimeout bounds the whole shutdown sequence. Default 30
// seconds.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.shutdownTimeout = d
	}
}

// WithHealthTick sets the periodic health log interval. Default 30
// seconds; 0 disables.
func WithHealthTick(d time.Duration) Option {
	return func(s *Supervisor) {
		s.healthTick = d
	}
}

// WithRestartBackoff tunes the delay between restart attempts. Defaults
// 500ms initial, 30s cap.
func WithRestartBackoff(initial, max time.Duration) Option {
	return func(s *Supervisor) {
		s.restartInitial = initial
		s.restartMax = max
	}
}

// New creates a supervisor over the given children.
func New(children []Child, opts ...Option) *Supervisor {
	s := &Supervisor{
		children:        children,
		logger:          slog.Default(),
		startupTimeout:  time.Minute,
		shutdownTimeout: 30 * time.Second,
		healthTick:      30 * time.Second,
		restartInitial:  500 * time.Millisecond,
		restartMax:      30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.running = make([]Service, len(children))
	return s
}

// Run starts all children and blocks until ctx is cancelled or a Fatal
// child fails. Children are stopped in reverse registration order on the
// way out. A fatal failure is returned as a SupervisorFatal error.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Info("starting services", "count", len(s.children))
	for i, child := range s.children {
		svc, err := child.Factory()
		if err != nil {
			s.stopAll()
			return fault.Wrap(fault.KindSupervisorFatal, err, "create child %d", i)
		}

		startCtx, startCancel := context.WithTimeout(ctx, s.startupTimeout)
		err = svc.Start(startCtx)
		startCancel()
		if err != nil {
			s.stopAll()
			return fault.Wrap(fault.KindSupervisorFatal, err, "start service %s", svc.Name())
		}

		s.setRunning(i, svc)
		s.markHealthy(svc.Name())
		s.logger.Info("service started", "service", svc.Name())
	}

	var wg sync.WaitGroup
	for i := range s.children {
		if _, ok := s.serviceAt(i).(Watcher); !ok {
			continue
		}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			s.supervise(ctx, idx)
		}(i)
	}

	if s.healthTick > 0 && s.registry != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.tickHealth(ctx)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	s.stopAll()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatalErr != nil {
		return fault.Wrap(fault.KindSupervisorFatal, s.fatalErr, "supervisor shutting down after fatal child failure")
	}
	return nil
}

// supervise watches one child and applies its policy on failure.
func (s *Supervisor) supervise(ctx context.Context, idx int) {
	child := s.children[idx]
	backoff := s.restartInitial

	for {
		svc := s.serviceAt(idx)
		watcher, ok := svc.(Watcher)
		if !ok {
			return
		}

		select {
		case <-ctx.Done():
			return
		case err := <-watcher.Done():
			if err == nil {
				return
			}

			s.logger.Error("service failed",
				"service", svc.Name(),
				"policy", child.Policy.String(),
				"error", err)

			switch child.Policy {
			case Fatal:
				s.fatal(err)
				return

			case Resume:
				s.markDegraded(svc.Name(), err.Error())
				return

			case Restart:
				s.markUnhealthy(svc.Name(), err.Error())
				replacement, ok := s.restart(ctx, idx, backoff)
				if !ok {
					return
				}
				backoff = s.restartInitial
				s.setRunning(idx, replacement)
				s.markHealthy(replacement.Name())
			}
		}
	}
}

// restart tears down the failed instance and brings up a fresh one from
// the factory, backing off between attempts until ctx is cancelled.
func (s *Supervisor) restart(ctx context.Context, idx int, backoff time.Duration) (Service, bool) {
	child := s.children[idx]

	if old := s.serviceAt(idx); old != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		if err := old.Stop(stopCtx); err != nil {
			s.logger.Warn("error stopping failed service", "service", old.Name(), "error", err)
		}
		cancel()
	}

	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(backoff):
		}
		if backoff < s.restartMax {
			backoff = min(backoff*2, s.restartMax)
		}

		svc, err := child.Factory()
		if err != nil {
			s.logger.Error("restart: factory failed", "error", err)
			continue
		}

		startCtx, cancel := context.WithTimeout(ctx, s.startupTimeout)
		err = svc.Start(startCtx)
		cancel()
		if err != nil {
			s.logger.Error("restart: start failed", "service", svc.Name(), "error", err)
			continue
		}

		s.logger.Info("service restarted", "service", svc.Name())
		return svc, true
	}
}

// tickHealth periodically surfaces non-healthy components in the logs.
func (s *Supervisor) tickHealth(ctx context.Context) {
	ticker := time.NewTicker(s.healthTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.registry.LogNonHealthy()
		}
	}
}

// stopAll stops running services sequentially in reverse registration
// order under one shared deadline, so the consumer drains before its
// downstreams go away.
func (s *Supervisor) stopAll() {
	stopCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	for i := len(s.children) - 1; i >= 0; i-- {
		svc := s.serviceAt(i)
		if svc == nil {
			continue
		}
		s.logger.Info("stopping service", "service", svc.Name())
		if err := svc.Stop(stopCtx); err != nil {
			s.logger.Error("error stopping service", "service", svc.Name(), "error", err)
			continue
		}
		s.setRunning(i, nil)
		s.logger.Info("service stopped", "service", svc.Name())
	}
}

// fatal records the first fatal error and cancels the run.
func (s *Supervisor) fatal(err error) {
	s.mu.Lock()
	if s.fatalErr == nil {
		s.fatalErr = err
	}
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Supervisor) serviceAt(idx int) Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[idx]
}

func (s *Supervisor) setRunning(idx int, svc Service) {
	s.mu.Lock()
	s.running[idx] = svc
	s.mu.Unlock()
}

func (s *Supervisor) markHealthy(name string) {
	if s.registry != nil {
		s.registry.SetHealthy(name)
	}
}

func (s *Supervisor) markDegraded(name, reason string) {
	if s.registry != nil {
		s.registry.SetDegraded(name, reason)
	}
}

func (s *Supervisor) markUnhealthy(name, reason string) {
	if s.registry != nil {
		s.registry.SetUnhealthy(name, reason)
	}
}
