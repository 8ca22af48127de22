package domain

import "errors"

// Error taxonomy for the routing engine. Every error surfaced to a client
// maps onto exactly one of these sentinels; anything else is reported as
// an internal error. Errors are always connection-local.
var (
	ErrValidation          = errors.New("malformed event payload")
	ErrAuth                = errors.New("authentication failed")
	ErrNotOwner            = errors.New("requester is not the message sender")
	ErrInvalidParticipants = errors.New("invalid conversation participants")
	ErrNotFound            = errors.New("not found")
	ErrPersistence         = errors.New("persistence unavailable")
)

// Error codes sent to clients in error events.
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeAuth                = "AUTH_ERROR"
	ErrCodeNotOwner            = "NOT_OWNER"
	ErrCodeInvalidParticipants = "INVALID_PARTICIPANTS"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodePersistence         = "PERSISTENCE_UNAVAILABLE"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// ErrorCode maps an error to the code reported on the wire.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return ErrCodeValidation
	case errors.Is(err, ErrAuth):
		return ErrCodeAuth
	case errors.Is(err, ErrNotOwner):
		return ErrCodeNotOwner
	case errors.Is(err, ErrInvalidParticipants):
		return ErrCodeInvalidParticipants
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrPersistence):
		return ErrCodePersistence
	default:
		return ErrCodeInternal
	}
}
