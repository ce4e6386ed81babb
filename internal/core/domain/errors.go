package domain

import "errors"

var (
	ErrSessionNotFound        = errors.New("session not found")
	ErrSessionInactive        = errors.New("session inactive")
	ErrUserNotFound           = errors.New("user not found")
	ErrUserExists             = errors.New("user already exists")
	ErrNotHost                = errors.New("user is not the session host")
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrUnknownProvider        = errors.New("unknown video provider")
	ErrVideoNotResolved       = errors.New("video metadata could not be resolved")
)
