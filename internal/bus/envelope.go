package bus

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// Envelope is the message unit carried by the bus. Once constructed it must
// be treated as immutable: it is shared by reference across every mailbox it
// fans out to and is never copied defensively on the hot path.
type Envelope struct {
	// Kind classifies the message (e.g. "task_started", "data_update").
	Kind string `json:"kind"`
	// Payload carries the message content as string-keyed values.
	Payload map[string]any `json:"payload"`
	// Timestamp is the construction time in Unix nanoseconds. Carried as an
	// integer so the wire round trip is exact.
	Timestamp int64 `json:"timestamp"`
	// ID uniquely identifies the envelope within the process.
	ID string `json:"id"`
}

// seq discriminates envelopes constructed at the same instant by concurrent
// producers, standing in for the producing-context identity.
var seq atomic.Uint64

// New constructs an envelope for the given kind and payload, stamping it with
// the current time and a process-unique ID.
func New(kind string, payload map[string]any) (Envelope, error) {
	if kind == "" {
		return Envelope{}, fmt.Errorf("%w: kind cannot be empty", ErrInvalidEnvelope)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	ts := time.Now().UnixNano()
	return Envelope{
		Kind:      kind,
		Payload:   payload,
		Timestamp: ts,
		ID:        fmt.Sprintf("%d-%d", ts, seq.Add(1)),
	}, nil
}

// MustNew is New for envelopes whose kind is a compile-time constant.
func MustNew(kind string, payload map[string]any) Envelope {
	e, err := New(kind, payload)
	if err != nil {
		panic(err)
	}
	return e
}

// Encode renders the envelope in its canonical wire form:
//
//	{ "kind": <string>, "payload": <object>, "timestamp": <number>, "id": <string> }
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses an envelope from its canonical wire form. Numeric payload
// values come back as float64, per encoding/json.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if e.Kind == "" {
		return Envelope{}, fmt.Errorf("%w: kind cannot be empty", ErrInvalidEnvelope)
	}
	return e, nil
}

// retireKind marks the sentinel envelope pushed into a mailbox at retirement.
// It is never observable outside the package: workers and pull handles both
// translate it into termination.
const retireKind = "\x00bus.retire"

var sentinel = Envelope{Kind: retireKind}

func (e Envelope) isSentinel() bool {
	return e.Kind == retireKind
}
