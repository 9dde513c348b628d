package flock

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownEvent is returned when registering a handler for an event
	// name outside the supported set.
	ErrUnknownEvent = errors.New("flock: unknown event name")

	// ErrNilHandler is returned when registering a nil callback. Handlers
	// are always scheduled as independent goroutines, so a nil callback can
	// never be dispatched and is rejected at registration time.
	ErrNilHandler = errors.New("flock: handler must not be nil")

	// ErrUnsupportedAPIVersion is returned for API versions other than 9
	// and 10.
	ErrUnsupportedAPIVersion = errors.New("flock: unsupported api version")

	// ErrNotConnected is returned by gateway-only operations when the
	// account has no live session.
	ErrNotConnected = errors.New("flock: account has no gateway connection")

	// ErrNoAccounts is returned when running a client whose login yielded
	// no valid accounts.
	ErrNoAccounts = errors.New("flock: no valid accounts loaded")
)

// A TerminalError reports that a session died without resume data and will
// not reconnect. Run returns it once and the session stays terminated.
type TerminalError struct {
	AccountID string
	Err       error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("flock: session for account %s terminated: %s", e.AccountID, e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }
