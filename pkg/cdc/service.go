package cdc

import (
	"context"
	"log/slog"
	"time"

	"github.com/orderstream-io/orderstream/pkg/supervisor"
)

// ProcessorService adapts a Consumer to the supervisor's lifecycle
// contract. Stop cancels the consume loop and waits for in-flight work up
// to the drain deadline; the consumer is cancellation-safe at the record
// boundary, so a record is either fully processed and committed or dropped
// before its publish attempt.
type ProcessorService struct {
	consumer *Consumer
	logger   *slog.Logger
	drain    time.Duration

	cancel context.CancelFunc
	done   chan error
}

// ServiceOption configures a ProcessorService.
type ServiceOption func(*ProcessorService)

// WithServiceLogger sets the logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *ProcessorService) {
		s.logger = logger
	}
}

// WithDrainTimeout bounds how long Stop waits for in-flight publishes.
// Default 5 seconds.
func WithDrainTimeout(d time.Duration) ServiceOption {
	return func(s *ProcessorService) {
		s.drain = d
	}
}

// NewProcessorService wraps the consumer for supervision.
func NewProcessorService(consumer *Consumer, opts ...ServiceOption) *ProcessorService {
	s := &ProcessorService{
		consumer: consumer,
		logger:   slog.Default(),
		drain:    5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements supervisor.Service.
func (s *ProcessorService) Name() string {
	return "cdc-processor"
}

// Start launches the consume loop.
func (s *ProcessorService) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)

	go func() {
		err := s.consumer.Run(runCtx)
		if err != nil {
			s.logger.Error("cdc processor terminated", "error", err)
		}
		s.done <- err
		close(s.done)
	}()

	s.logger.Info("cdc processor started")
	return nil
}

// Stop cancels the loop and waits for the drain deadline.
func (s *ProcessorService) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()

	drain := time.NewTimer(s.drain)
	defer drain.Stop()

	select {
	case <-s.done:
	case <-drain.C:
		s.logger.Warn("cdc processor drain deadline exceeded")
	case <-ctx.Done():
	}

	if err := s.consumer.stream.Close(); err != nil {
		s.logger.Warn("error closing cdc stream", "error", err)
	}
	return nil
}

// Done implements supervisor.Watcher.
func (s *ProcessorService) Done() <-chan error {
	return s.done
}

var (
	_ supervisor.Service = (*ProcessorService)(nil)
	_ supervisor.Watcher = (*ProcessorService)(nil)
)
