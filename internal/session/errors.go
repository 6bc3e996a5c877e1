package session

import "errors"

var (
	// ErrCodeInvalid means the presented access code does not exist.
	ErrCodeInvalid = errors.New("access code invalid")
	// ErrCodeRevoked means the code exists but was revoked.
	ErrCodeRevoked = errors.New("access code revoked")
	// ErrValidationUnavailable means the validity of the code could not
	// be determined at all. Fatal to session creation.
	ErrValidationUnavailable = errors.New("code validation unreachable")
)
