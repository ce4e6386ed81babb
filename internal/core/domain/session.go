package domain

import (
	"time"
)

type SessionID string
type UserID string

// PlaybackAction is the last host command applied to a session's player.
type PlaybackAction string

const (
	ActionPlay  PlaybackAction = "play"
	ActionPause PlaybackAction = "pause"
	ActionSeek  PlaybackAction = "seek"
)

// Valid reports whether a is one of the three wire actions.
func (a PlaybackAction) Valid() bool {
	return a == ActionPlay || a == ActionPause || a == ActionSeek
}

// Video is the metadata of the clip currently assigned to a session.
type Video struct {
	Provider        string `json:"provider"`
	ID              string `json:"id"`
	Title           string `json:"title"`
	DurationSeconds int    `json:"duration_seconds"`
}

// PlaybackState is the authoritative (action, time, timestamp) triple every
// client converges to. Time is the media position in seconds at UpdatedAt;
// for ActionPlay the real position advances with wall-clock time.
type PlaybackState struct {
	Action      PlaybackAction `json:"action"`
	TimeSeconds float64        `json:"time_seconds"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// PositionAt returns the media position the state implies at the given
// instant. Play extrapolates; pause and seek hold the stored time.
func (p PlaybackState) PositionAt(now time.Time) float64 {
	if p.Action == ActionPlay {
		return p.TimeSeconds + now.Sub(p.UpdatedAt).Seconds()
	}
	return p.TimeSeconds
}

type Session struct {
	ID        SessionID     `json:"id"`
	Title     string        `json:"title"`
	HostID    UserID        `json:"host_id"`
	Video     *Video        `json:"video,omitempty"`
	Playback  PlaybackState `json:"playback"`
	Active    bool          `json:"active"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
