package session

import "errors"

// Sentinel errors for store operations. Check with errors.Is.
var (
	// ErrNotFound indicates the requested session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrForbidden indicates the session exists but belongs to a different
	// owner. Callers must not reveal more than that to the client.
	ErrForbidden = errors.New("session access forbidden")

	// ErrInvalidCursor indicates a pagination cursor that was not produced
	// by this store.
	ErrInvalidCursor = errors.New("invalid pagination cursor")
)
