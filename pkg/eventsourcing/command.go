package eventsourcing

// Command represents an intention to change the state of one aggregate.
type Command interface {
	// CommandID returns the unique identifier of this command. It becomes
	// the causation_id of every event the command produces.
	CommandID() string

	// AggregateID returns the ID of the aggregate this command targets.
	AggregateID() string

	// CommandType returns the short stable name, e.g. "CreateOrder".
	CommandType() string
}

// Creator marks commands that may create a new aggregate instance. Commands
// without this marker are rejected when the target aggregate does not exist.
type Creator interface {
	Command

	// CreatesAggregate is a marker; implementations leave it empty.
	CreatesAggregate()
}

// CommandMetadata carries request-scoped context into command execution.
type CommandMetadata struct {
	// CorrelationID groups everything produced by one request. Generated
	// when empty.
	CorrelationID string

	// UserID is the principal issuing the command, if any.
	UserID string

	// Custom is copied into the metadata of every produced envelope.
	Custom map[string]string
}
