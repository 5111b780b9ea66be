package channel

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelUnavailable means the real channel is not connected. Sends
	// fall back to the simulated channel instead of surfacing it.
	ErrChannelUnavailable = errors.New("channel unavailable")

	// ErrSessionFailed is returned by Start once the session has given up.
	// Only Reset leaves that state.
	ErrSessionFailed = errors.New("channel session failed")

	ErrManagerClosed = errors.New("channel manager closed")
)

// ValidationError reports malformed send input. It is the only error Send
// returns to callers.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransportError wraps a failed real send.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s send failed: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed append to the attempt log.
type PersistenceError struct {
	AttemptID string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("record attempt %s: %v", e.AttemptID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
