package auth

import "errors"

var (
	// ErrUserNotFound indicates no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidEmail indicates the address does not parse.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrTokenExpired indicates a structurally valid magic-link token
	// past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidToken indicates a magic-link or state token that fails
	// signature or format checks.
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnauthenticated indicates a request without a valid session.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrOAuthStateMismatch indicates an OAuth callback whose state
	// token fails verification.
	ErrOAuthStateMismatch = errors.New("oauth state mismatch")

	// ErrOAuthExchange indicates the provider rejected the code exchange
	// or the profile fetch failed.
	ErrOAuthExchange = errors.New("oauth exchange failed")
)
