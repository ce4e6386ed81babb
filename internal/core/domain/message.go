package domain

import "time"

// ChatMessage is ephemeral: relayed to the room, never stored.
type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    UserID    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Text      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
