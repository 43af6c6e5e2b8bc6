// Package shared holds cross-module sentinel errors and context helpers.
package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDeactivated indicates a login attempt against a deactivated
	// account. Distinguished from ErrInvalidCredentials so the caller can
	// show "contact an administrator" instead of "wrong password".
	ErrAccountDeactivated = errors.New("account deactivated")
)
