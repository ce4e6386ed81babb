package domain

import "time"

// Participant is a durable roster entry: one user present in one session.
// Unique per (SessionID, UserID); re-joining refreshes JoinedAt.
type Participant struct {
	SessionID SessionID `json:"session_id"`
	UserID    UserID    `json:"user_id"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	JoinedAt  time.Time `json:"joined_at"`
}
