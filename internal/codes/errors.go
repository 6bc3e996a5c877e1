package codes

import "errors"

var (
	// ErrNotFound means the referenced code does not exist in the registry.
	ErrNotFound = errors.New("access code not found")
	// ErrRevoked means the code exists but has been revoked.
	ErrRevoked = errors.New("access code revoked")
	// ErrCollisionExhausted means generation could not find a free code
	// within its retry bound. Treat as a configuration error (code space
	// too small for the collection), not something to retry forever.
	ErrCollisionExhausted = errors.New("code generation exhausted retries")
	// ErrRemoteUnavailable wraps store failures on mutations whose whole
	// purpose is persistence.
	ErrRemoteUnavailable = errors.New("code store unavailable")
)
