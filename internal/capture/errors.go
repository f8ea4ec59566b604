package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocolViolation marks an event sequence the client cannot accept.
	// It is fatal for the whole session.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrCancelled marks a capture the compositor cancelled
	ErrCancelled = errors.New("capture cancelled")

	// ErrNoOutcome is returned when the round-trip budget runs out before
	// ready or cancel arrives
	ErrNoOutcome = errors.New("frame reached no outcome")

	// ErrResultCollected is returned when a ready result was already handed
	// over or discarded
	ErrResultCollected = errors.New("result already collected")
)

// ProtocolError describes an unexpected event for a frame
type ProtocolError struct {
	FrameID uint32
	State   State
	Event   string
	Reason  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: frame %d in state %s: %s event: %s",
		ErrProtocolViolation, e.FrameID, e.State, e.Event, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocolViolation
}

// CancelledError is the typed cancellation handed to the caller
type CancelledError struct {
	FrameID uint32
	Reason  CancelReason
}

func (e *CancelledError) Error() string {
	kind := "permanent"
	if e.Transient() {
		kind = "transient"
	}
	return fmt.Sprintf("%s: frame %d: %s (%s)", ErrCancelled, e.FrameID, e.Reason, kind)
}

func (e *CancelledError) Unwrap() error {
	return ErrCancelled
}

// Transient reports whether the caller may retry
func (e *CancelledError) Transient() bool {
	return e.Reason.Transient()
}
