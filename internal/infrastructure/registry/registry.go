package registry

import (
	"sync"

	"watchparty/internal/core/domain"

	"go.uber.org/zap"
)

// Conn is a live transport handle. The websocket adapter implements it; the
// registry never touches transport details beyond write and close.
type Conn interface {
	WriteMessage(data []byte) error
	Close() error
}

// Identity is the (session, user) pair a connection is bound to.
type Identity struct {
	SessionID domain.SessionID
	UserID    domain.UserID
}

// Registry is the bidirectional index between live connections and their
// identities. It is the only component that knows who is physically
// connected; everything else consults it instead of keeping its own maps.
type Registry struct {
	mu         sync.RWMutex
	sessions   map[domain.SessionID]map[Conn]struct{}
	identities map[Conn]Identity

	logger *zap.SugaredLogger
}

func New(logger *zap.SugaredLogger) *Registry {
	return &Registry{
		sessions:   make(map[domain.SessionID]map[Conn]struct{}),
		identities: make(map[Conn]Identity),
		logger:     logger,
	}
}

// Register binds conn to (sessionID, userID). Multiple connections per user
// are legal; there is no uniqueness constraint on the identity. Registering
// without a session or user context is an authentication failure.
func (r *Registry) Register(sessionID domain.SessionID, userID domain.UserID, conn Conn) error {
	if sessionID == "" || userID == "" {
		return domain.ErrAuthenticationRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sessions[sessionID]
	if !ok {
		set = make(map[Conn]struct{})
		r.sessions[sessionID] = set
	}
	set[conn] = struct{}{}
	r.identities[conn] = Identity{SessionID: sessionID, UserID: userID}
	return nil
}

// Unregister removes conn from both indexes and reports the identity it was
// bound to. A second call for the same conn is a no-op: explicit leave and
// transport close may both fire for one connection.
func (r *Registry) Unregister(conn Conn) (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.identities[conn]
	if !ok {
		return Identity{}, false
	}

	delete(r.identities, conn)
	if set, ok := r.sessions[id.SessionID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(r.sessions, id.SessionID)
		}
	}
	return id, true
}

// ConnectionsFor returns a snapshot of the session's connection set, so
// callers can iterate without holding the registry lock across network
// writes. Unknown sessions yield an empty slice.
func (r *Registry) ConnectionsFor(sessionID domain.SessionID) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.sessions[sessionID]
	conns := make([]Conn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	return conns
}

// IdentityOf reports the identity conn was registered under.
func (r *Registry) IdentityOf(conn Conn) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.identities[conn]
	return id, ok
}

// LiveCount returns the number of live connections the user still holds in
// the session. The presence layer uses this to keep a multi-tab user on the
// roster until their last connection is gone.
func (r *Registry) LiveCount(sessionID domain.SessionID, userID domain.UserID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for c := range r.sessions[sessionID] {
		if r.identities[c].UserID == userID {
			count++
		}
	}
	return count
}

// ConnectionCount returns the total number of live connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.identities)
}

// CloseSession closes and removes every connection registered under the
// session. Used after deactivation so no connection references an inactive
// session.
func (r *Registry) CloseSession(sessionID domain.SessionID) {
	for _, conn := range r.ConnectionsFor(sessionID) {
		if _, ok := r.Unregister(conn); ok {
			if err := conn.Close(); err != nil {
				r.logger.Debugw("error closing connection", "session_id", sessionID, "error", err)
			}
		}
	}
}

// CloseAll closes every live connection. Called on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.identities))
	for c := range r.identities {
		conns = append(conns, c)
	}
	r.sessions = make(map[domain.SessionID]map[Conn]struct{})
	r.identities = make(map[Conn]Identity)
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
