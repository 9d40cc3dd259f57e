package relay

import "errors"

var (
	// ErrDuplicateConnection is returned when a connection id is registered
	// twice. The transport never reuses ids, so hitting this indicates a bug.
	ErrDuplicateConnection = errors.New("duplicate connection id")

	// ErrInvalidSignal is returned when a required field is empty or blank.
	ErrInvalidSignal = errors.New("invalid signal")

	// ErrNotAuthorized is returned when a join is rejected by policy or a
	// signal is sent to a group the sender has not joined.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrUnknownConnection is returned for operations referencing a connection
	// id that is not (or no longer) registered.
	ErrUnknownConnection = errors.New("unknown connection")
)
