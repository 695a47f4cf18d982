package sentinel

import "errors"

// Infrastructure facts returned by stores and clients. Services translate them
// into domain errors; they never reach a transport unwrapped.
//
//   - ErrNotFound: key or record does not exist
//   - ErrCorrupt: a stored value exists but cannot be decoded
//   - ErrExpired: session or cache entry outlived its lifetime
//   - ErrInvalidState: entity in the wrong state for the requested operation
//   - ErrUnavailable: backing service temporarily unreachable
var (
	ErrNotFound     = errors.New("not found")
	ErrCorrupt      = errors.New("corrupt entry")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
