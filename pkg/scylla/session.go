// Package scylla implements the storage side of the engine on a
// Cassandra-compatible wide-column store: the event store with its
// transactional outbox, the dead-letter store, and the CDC log reader.
package scylla

import (
	"time"

	"github.com/gocql/gocql"

	"github.com/orderstream-io/orderstream/pkg/fault"
)

// SessionConfig holds the cluster connection settings.
type SessionConfig struct {
	// ContactPoints are the seed hosts (host:port).
	ContactPoints []string

	// Keyspace is the keyspace all engine tables live in.
	Keyspace string

	// RequestTimeout bounds one request round-trip. Timeouts surface as
	// transient storage errors.
	RequestTimeout time.Duration

	// ConnectTimeout bounds session establishment.
	ConnectTimeout time.Duration
}

// DefaultSessionConfig returns sensible defaults for the given contact
// points and keyspace.
func DefaultSessionConfig(contactPoints []string, keyspace string) SessionConfig {
	return SessionConfig{
		ContactPoints:  contactPoints,
		Keyspace:       keyspace,
		RequestTimeout: 5 * time.Second,
		ConnectTimeout: 10 * time.Second,
	}
}

// NewSession connects a session with quorum consistency.
func NewSession(cfg SessionConfig) (*gocql.Session, error) {
	if len(cfg.ContactPoints) == 0 {
		return nil, fault.New(fault.KindInvalidInput, "storage requires at least one contact point")
	}
	if cfg.Keyspace == "" {
		return nil, fault.New(fault.KindInvalidInput, "storage requires a keyspace")
	}

	cluster := gocql.NewCluster(cfg.ContactPoints...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = cfg.RequestTimeout
	cluster.ConnectTimeout = cfg.ConnectTimeout

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fault.Wrap(fault.KindStorageUnavailable, err, "connect to storage cluster")
	}
	return session, nil
}

// storageFault classifies a gocql error. The version-guard mismatch is the
// only storage outcome with its own kind; everything else on an
// established session is connectivity or load and recovers on its own.
func storageFault(err error, format string, args ...any) error {
	return fault.Wrap(fault.KindStorageUnavailable, err, format, args...)
}
