// Package nats provides the NATS JetStream implementation of the broker
// contract.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/orderstream-io/orderstream/pkg/broker"
	"github.com/orderstream-io/orderstream/pkg/fault"
)

// Config holds the JetStream publisher settings.
type Config struct {
	// URL is the NATS server URL.
	URL string

	// StreamName is the JetStream stream receiving outbox messages.
	StreamName string

	// Topics are the logical channels to bind as stream subjects
	// ("<topic>.>" each).
	Topics []string

	// MaxAge bounds stream retention.
	MaxAge time.Duration

	// DedupWindow is the server-side Nats-Msg-Id deduplication window.
	DedupWindow time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url string, topics []string) Config {
	return Config{
		URL:         url,
		StreamName:  "OUTBOX",
		Topics:      topics,
		MaxAge:      24 * time.Hour,
		DedupWindow: 10 * time.Minute,
	}
}

// Publisher publishes to JetStream. Subjects are "<topic>.<key>" so
// consumers can bind per topic; the event ID rides as Nats-Msg-Id, which
// the server uses to drop duplicates inside the dedup window.
type Publisher struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher connects to NATS and ensures the stream exists.
func NewPublisher(cfg Config, opts ...Option) (*Publisher, error) {
	if len(cfg.Topics) == 0 {
		return nil, fault.New(fault.KindInvalidInput, "nats publisher requires at least one topic")
	}

	p := &Publisher{logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}

	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fault.Wrap(fault.KindBrokerUnavailable, err, "connect to NATS at %s", cfg.URL)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fault.Wrap(fault.KindBrokerUnavailable, err, "create JetStream context")
	}
	p.nc = nc
	p.js = js

	if err := p.ensureStream(cfg); err != nil {
		nc.Close()
		return nil, err
	}

	return p, nil
}

func (p *Publisher) ensureStream(cfg Config) error {
	subjects := make([]string, len(cfg.Topics))
	for i, topic := range cfg.Topics {
		subjects[i] = topic + ".>"
	}

	streamConfig := &nats.StreamConfig{
		Name:       cfg.StreamName,
		Subjects:   subjects,
		Retention:  nats.LimitsPolicy,
		MaxAge:     cfg.MaxAge,
		Duplicates: cfg.DedupWindow,
		Storage:    nats.FileStorage,
		Replicas:   1,
	}

	if _, err := p.js.StreamInfo(cfg.StreamName); err != nil {
		if _, err := p.js.AddStream(streamConfig); err != nil {
			return fault.Wrap(fault.KindBrokerUnavailable, err, "create stream %s", cfg.StreamName)
		}
		return nil
	}

	if _, err := p.js.UpdateStream(streamConfig); err != nil {
		return fault.Wrap(fault.KindBrokerUnavailable, err, "update stream %s", cfg.StreamName)
	}
	return nil
}

// Publish implements broker.Publisher.
func (p *Publisher) Publish(ctx context.Context, msg broker.Message) error {
	subject := fmt.Sprintf("%s.%s", msg.Topic, sanitizeToken(msg.Key))

	m := nats.NewMsg(subject)
	m.Data = msg.Value
	for k, v := range msg.Headers {
		m.Header.Set(k, v)
	}

	_, err := p.js.PublishMsg(m, nats.MsgId(msg.DedupID), nats.Context(ctx))
	if err != nil {
		return fault.Wrap(fault.KindBrokerUnavailable, err, "publish to %s", subject)
	}

	p.logger.Debug("message published",
		"subject", subject,
		"event_id", msg.DedupID)
	return nil
}

// Close closes the connection without draining it.
func (p *Publisher) Close() error {
	p.nc.Close()
	return nil
}

// sanitizeToken makes a partition key safe as a NATS subject token.
func sanitizeToken(key string) string {
	if key == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ':
			return '_'
		}
		return r
	}, key)
}

var _ broker.Publisher = (*Publisher)(nil)
