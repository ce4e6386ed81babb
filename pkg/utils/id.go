package utils

import "github.com/google/uuid"

// NewSessionID generates a unique session identifier
func NewSessionID() string {
	return uuid.New().String()
}

// NewUserID generates a unique user identifier
func NewUserID() string {
	return uuid.New().String()
}

// NewMessageID generates a unique chat message identifier
func NewMessageID() string {
	return uuid.New().String()
}
