package app

import "errors"

var (
	// ErrInvalidCredentials is returned for unknown emails and wrong
	// passwords alike, so responses cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrEmailAlreadyExists    = errors.New("email already registered")
	ErrUsernameAlreadyExists = errors.New("username already taken")
	ErrMissingFields         = errors.New("username, email and password are required")

	ErrPasswordRequired = errors.New("password is required")
	// ErrInvalidResetToken covers bad signatures, malformed payloads, and
	// expiry; callers are not told which.
	ErrInvalidResetToken = errors.New("reset token is invalid or has expired")

	ErrNotInList    = errors.New("entry is not in the list")
	ErrUserNotFound = errors.New("user not found")

	ErrConfigurationMissing = errors.New("catalog API key is not configured")
	ErrAPIKeyRequired       = errors.New("API key is required")
	// ErrUpstream wraps failures talking to the upstream catalog.
	ErrUpstream = errors.New("upstream catalog request failed")
)
