package user

import "errors"

// Shared repo sentinels so callers don't depend on a concrete storage
// backend to classify failures.
var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
)
