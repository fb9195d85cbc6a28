package bus

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEnvelope is returned when an envelope fails construction
	// validation, e.g. an empty kind.
	ErrInvalidEnvelope = errors.New("invalid envelope")

	// ErrUnknownTopic is returned when subscribing against a topic that is
	// not part of the registry's closed set. Publishing to an unknown topic
	// is a no-op, not an error.
	ErrUnknownTopic = errors.New("unknown topic")

	// ErrEmptyName is returned when subscribing without a subscriber name.
	ErrEmptyName = errors.New("subscriber name cannot be empty")
)

// RejectedKindError is returned by Mailbox.Put when the mailbox has an
// allow-list configured and the envelope's kind is not on it. The rejection
// is surfaced to the caller synchronously rather than counted as a drop.
type RejectedKindError struct {
	Mailbox string
	Kind    string
	Allowed []string
}

// Error implements the error interface.
func (e *RejectedKindError) Error() string {
	return fmt.Sprintf("mailbox %q does not accept kind %q (allowed: %v)", e.Mailbox, e.Kind, e.Allowed)
}
