package eventsourcing

import (
	"encoding/json"

	"github.com/orderstream-io/orderstream/pkg/fault"
)

// EncodeEnvelope serializes an envelope to its textual wire form. The
// encoding round-trips losslessly through DecodeEnvelope.
func EncodeEnvelope(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, fault.New(fault.KindInvalidInput, "cannot encode nil envelope")
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fault.Wrap(fault.KindEncodingFailed, err, "encode envelope %s", env.EventID)
	}
	return data, nil
}

// DecodeEnvelope parses the textual wire form produced by EncodeEnvelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fault.Wrap(fault.KindEncodingFailed, err, "decode envelope")
	}
	env.Timestamp = env.Timestamp.UTC()
	if env.Metadata == nil {
		env.Metadata = map[string]string{}
	}
	return &env, nil
}

// MarshalEventData serializes a domain event body to the envelope's textual
// payload form.
func MarshalEventData(event DomainEvent) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fault.Wrap(fault.KindEncodingFailed, err, "marshal %s body", event.EventType())
	}
	return string(data), nil
}

// UnmarshalEventData deserializes an envelope payload into the concrete
// event shape chosen by the caller from the envelope's EventType.
func UnmarshalEventData(env *Envelope, into any) error {
	if err := json.Unmarshal([]byte(env.EventData), into); err != nil {
		return fault.Wrap(fault.KindEncodingFailed, err, "unmarshal %s body of event %s", env.EventType, env.EventID)
	}
	return nil
}
