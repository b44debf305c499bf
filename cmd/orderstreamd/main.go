// Command orderstreamd hosts the engine: it loads configuration, connects
// storage and broker, and runs the supervisor until a shutdown signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gocql/gocql"

	"github.com/orderstream-io/orderstream/pkg/breaker"
	"github.com/orderstream-io/orderstream/pkg/broker"
	kafkabroker "github.com/orderstream-io/orderstream/pkg/broker/kafka"
	natsbroker "github.com/orderstream-io/orderstream/pkg/broker/nats"
	"github.com/orderstream-io/orderstream/pkg/cdc"
	"github.com/orderstream-io/orderstream/pkg/config"
	"github.com/orderstream-io/orderstream/pkg/dlq"
	"github.com/orderstream-io/orderstream/pkg/domain/customer"
	"github.com/orderstream-io/orderstream/pkg/domain/order"
	"github.com/orderstream-io/orderstream/pkg/health"
	"github.com/orderstream-io/orderstream/pkg/metrics"
	"github.com/orderstream-io/orderstream/pkg/observability"
	"github.com/orderstream-io/orderstream/pkg/retry"
	"github.com/orderstream-io/orderstream/pkg/scylla"
	"github.com/orderstream-io/orderstream/pkg/supervisor"
)

func main() {
	if err := run(); err != nil {
		slog.Error("orderstreamd exiting", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config (env-only when empty)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry, err := observability.Init(ctx, observability.Config{
		ServiceName: "orderstreamd",
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	m := metrics.New()
	registry := health.NewRegistry(
		health.WithLogger(logger),
		health.WithGauge(m.ActorHealthGauge()),
	)

	session, err := scylla.NewSession(scylla.DefaultSessionConfig(cfg.Storage.ContactPoints, cfg.Storage.Keyspace))
	if err != nil {
		return err
	}
	defer session.Close()

	if err := scylla.EnsureSchema(ctx, session); err != nil {
		return err
	}

	topics := map[string]string{
		order.AggregateType:    "orders",
		customer.AggregateType: "customers",
	}

	publisher, err := newPublisher(cfg, topics, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	brk := breaker.New(breaker.Config{
		Name:             "broker",
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		Timeout:          time.Duration(cfg.CircuitBreaker.TimeoutMs) * time.Millisecond,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
	}, breaker.WithLogger(logger), breaker.WithStateGauge(m.CircuitBreakerState))

	sink := dlq.NewSink(scylla.NewDLQStore(session), cfg.DLQ.MaxInsertRetries,
		dlq.WithLogger(logger),
		dlq.WithCounter(m),
		dlq.WithRetryOptions(retry.WithObserver(m)),
	)

	initialDelay, maxDelay := cfg.RetryDurations()
	retryCfg := retry.Config{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: initialDelay,
		MaxDelay:     maxDelay,
		Multiplier:   cfg.Retry.Multiplier,
	}

	children := []supervisor.Child{
		{
			Policy: supervisor.Resume,
			Factory: func() (supervisor.Service, error) {
				return newMetricsServer(cfg.Metrics.Port, m, registry, logger), nil
			},
		},
		{
			Policy: supervisor.Resume,
			Factory: func() (supervisor.Service, error) {
				return &dlqService{sink: sink}, nil
			},
		},
		{
			Policy: supervisor.Restart,
			Factory: func() (supervisor.Service, error) {
				return newProcessor(cfg, session, publisher, brk, sink, retryCfg, m, telemetry, logger), nil
			},
		},
	}

	sup := supervisor.New(children,
		supervisor.WithLogger(logger),
		supervisor.WithHealthRegistry(registry),
		supervisor.WithHealthTick(time.Duration(cfg.Supervision.HealthTickMs)*time.Millisecond),
	)

	logger.Info("orderstreamd starting",
		"keyspace", cfg.Storage.Keyspace,
		"broker_kind", cfg.Broker.Kind,
		"metrics_port", cfg.Metrics.Port)
	return sup.Run(ctx)
}

// newPublisher selects the broker implementation from configuration.
func newPublisher(cfg *config.Config, topics map[string]string, logger *slog.Logger) (broker.Publisher, error) {
	switch cfg.Broker.Kind {
	case "nats":
		topicNames := make([]string, 0, len(topics))
		for _, topic := range topics {
			topicNames = append(topicNames, topic)
		}
		natsCfg := natsbroker.DefaultConfig(cfg.Broker.Brokers[0], topicNames)
		return natsbroker.NewPublisher(natsCfg, natsbroker.WithLogger(logger))
	default:
		return kafkabroker.NewPublisher(kafkabroker.DefaultConfig(cfg.Broker.Brokers), kafkabroker.WithLogger(logger))
	}
}

// newProcessor builds a fresh consumer pipeline; the supervisor calls this
// again with fresh CDC checkpointing state after a failure.
func newProcessor(cfg *config.Config, session *gocql.Session, publisher broker.Publisher, brk *breaker.Breaker, sink *dlq.Sink, retryCfg retry.Config, m *metrics.Registry, telemetry *observability.Telemetry, logger *slog.Logger) supervisor.Service {
	reader := scylla.NewLogReader(session,
		scylla.WithPollInterval(time.Duration(cfg.CDC.PollIntervalMs)*time.Millisecond),
		scylla.WithLogReaderLogger(logger),
	)
	consumer := cdc.NewConsumer(reader, publisher, brk, sink,
		cdc.WithRetryConfig(retryCfg),
		cdc.WithRetryOptions(retry.WithObserver(m)),
		cdc.WithLogger(logger),
		cdc.WithTracer(telemetry.Tracer("cdc")),
		cdc.WithMetrics(m),
	)
	return cdc.NewProcessorService(consumer,
		cdc.WithServiceLogger(logger),
		cdc.WithDrainTimeout(time.Duration(cfg.CDC.DrainTimeoutMs)*time.Millisecond),
	)
}

// metricsServer serves GET /metrics and GET /health.
type metricsServer struct {
	server *http.Server
	logger *slog.Logger
	done   chan error
}

func newMetricsServer(port int, m *metrics.Registry, registry *health.Registry, logger *slog.Logger) *metricsServer {
	router := chi.NewRouter()
	router.Method(http.MethodGet, "/metrics", m.Handler())
	router.Get("/health", registry.Handler())

	return &metricsServer{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		},
		logger: logger,
	}
}

func (s *metricsServer) Name() string { return "metrics-server" }

func (s *metricsServer) Start(ctx context.Context) error {
	s.done = make(chan error, 1)
	go func() {
		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			s.done <- err
		} else {
			s.done <- nil
		}
		close(s.done)
	}()
	s.logger.Info("metrics server listening", "addr", s.server.Addr)
	return nil
}

func (s *metricsServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *metricsServer) Done() <-chan error { return s.done }

// dlqService gives the dead-letter sink a supervised lifetime. A broken
// DLQ store degrades the process rather than killing it: a failed startup
// probe is reported through Done, where the Resume policy applies.
type dlqService struct {
	sink *dlq.Sink
	done chan error
}

func (s *dlqService) Name() string { return "dlq-sink" }

func (s *dlqService) Start(ctx context.Context) error {
	s.done = make(chan error, 1)
	if _, err := s.sink.Count(ctx); err != nil {
		s.done <- err
	}
	return nil
}

func (s *dlqService) Stop(ctx context.Context) error { return nil }

func (s *dlqService) Done() <-chan error { return s.done }
