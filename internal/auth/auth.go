// Package auth manages the bearer credential used to log in to the broker.
//
// A single credential exists system-wide. It is persisted through a Store,
// reused while its embedded expiry lies in the future, and refreshed through
// the authentication service otherwise.
package auth

import (
	"errors"
	"time"
)

var (
	// ErrConfig is returned when a required auth setting is missing.
	ErrConfig = errors.New("auth: missing authentication configuration")

	// ErrAuth is returned when the login or identity call fails.
	ErrAuth = errors.New("auth: authentication failed")

	// ErrTokenDecode is returned when a token's expiry claim cannot be read.
	ErrTokenDecode = errors.New("auth: failed to decode token expiration")
)

// Credential is the broker login: the bearer token doubles as the MQTT
// password and AccountID as the MQTT username.
type Credential struct {
	Token     string
	AccountID string
	ExpiresAt time.Time
}

// Valid reports whether the credential can be used at now.
func (c Credential) Valid(now time.Time) bool {
	return IsValid(c.Token, c.ExpiresAt, now)
}

// IsValid reports whether token is non-empty and expiresAt is after now.
func IsValid(token string, expiresAt, now time.Time) bool {
	return token != "" && expiresAt.After(now)
}
