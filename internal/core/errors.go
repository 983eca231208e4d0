package core

// Error codes surfaced to clients on the wire.
const (
	ErrCodeNotFound     = "not_found"
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeInternal     = "internal_error"
)
