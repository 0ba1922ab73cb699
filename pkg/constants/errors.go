package constants

import "errors"

// Session errors. Every error surfaced by the SDK wraps one of these, so
// callers match with errors.Is.
var (
	ErrConnectionTimeout    = errors.New("connection timeout")
	ErrConnectionLost       = errors.New("connection lost")
	ErrAuthorization        = errors.New("authorization failure")
	ErrInvalidPath          = errors.New("invalid scene path")
	ErrCancelled            = errors.New("cancelled")
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

var (
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrInvalidTransition = errors.New("invalid phase transition")
	ErrNotConnected      = errors.New("session is not connected")
	ErrIDInUse           = errors.New("id already in use")
	ErrNoMarshaler       = errors.New("marshaler is not set")
	ErrNoUnmarshaler     = errors.New("unmarshaler is not set")
)
