package ports

import (
	"context"

	"watchparty/internal/core/domain"
)

type SessionService interface {
	CreateSession(ctx context.Context, title string, hostID domain.UserID) (*domain.Session, error)
	GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error)
	ListActiveSessions(ctx context.Context) ([]*domain.Session, error)
}

// PresenceService keeps the durable roster consistent with live connections
// and decides when a session must be deactivated.
type PresenceService interface {
	// Join validates session and user and upserts the roster entry.
	// Idempotent for an already-present user. Returns the session and the
	// ordered roster for the caller to push to the new connection.
	Join(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) (*domain.Session, []*domain.Participant, error)

	// Leave removes the roster entry unconditionally (explicit graceful
	// leave). Deactivated reports whether the session was shut down because
	// the roster became empty.
	Leave(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) (deactivated bool, err error)

	// Disconnect is the transport-close path: the roster entry is removed
	// only when no live connection for the user remains in the session.
	Disconnect(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) (removed bool, deactivated bool, err error)

	RosterSnapshot(ctx context.Context, sessionID domain.SessionID) ([]*domain.Participant, error)
}

// SyncService is the host-authoritative playback state machine.
type SyncService interface {
	// SetVideo replaces the session's video assignment and resets playback
	// to pause at zero. Host only.
	SetVideo(ctx context.Context, sessionID domain.SessionID, userID domain.UserID, provider, videoID string) (*domain.Session, error)

	// ApplyAction applies a host playback command and returns the new
	// authoritative state. A non-host caller gets domain.ErrNotHost and no
	// state changes.
	ApplyAction(ctx context.Context, sessionID domain.SessionID, userID domain.UserID, action domain.PlaybackAction, timeSeconds float64) (*domain.PlaybackState, error)

	// CurrentTime computes the position playback should be at right now.
	CurrentTime(ctx context.Context, sessionID domain.SessionID) (float64, error)

	// JoinSnapshot returns the video assignment and the authoritative state
	// (play time extrapolated to now) for a late joiner.
	JoinSnapshot(ctx context.Context, sessionID domain.SessionID) (*domain.Video, *domain.PlaybackState, error)
}

// VideoResolver looks up title and duration for a provider-specific video id.
type VideoResolver interface {
	Resolve(ctx context.Context, provider, videoID string) (*domain.Video, error)
}

// ConnectionCounter is the slice of the connection registry the presence
// layer consults before evicting a user from the roster.
type ConnectionCounter interface {
	LiveCount(sessionID domain.SessionID, userID domain.UserID) int
}
