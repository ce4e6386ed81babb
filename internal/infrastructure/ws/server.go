package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/internal/core/services"
	"watchparty/internal/infrastructure/monitoring"
	"watchparty/internal/infrastructure/registry"
	"watchparty/pkg/config"
	"watchparty/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server owns the websocket endpoint: it authenticates the upgrade, joins the
// user into the session, registers the connection, and runs one read loop per
// connection. All mutations go through the presence and sync services; the
// server itself holds no session state.
type Server struct {
	registry    *registry.Registry
	presence    ports.PresenceService
	sync        ports.SyncService
	broadcaster *Broadcaster
	auth        services.AuthService
	metrics     *monitoring.PrometheusCollector

	pingInterval      time.Duration
	pongTimeout       time.Duration
	writeTimeout      time.Duration
	maxMessageBytes   int64
	messagesPerSecond float64
	burst             int

	logger *zap.SugaredLogger
}

func NewServer(
	reg *registry.Registry,
	presence ports.PresenceService,
	syncSvc ports.SyncService,
	broadcaster *Broadcaster,
	auth services.AuthService,
	metrics *monitoring.PrometheusCollector,
	cfg *config.Config,
	logger *zap.SugaredLogger,
) *Server {
	return &Server{
		registry:          reg,
		presence:          presence,
		sync:              syncSvc,
		broadcaster:       broadcaster,
		auth:              auth,
		metrics:           metrics,
		pingInterval:      cfg.WebSocket.PingInterval,
		pongTimeout:       cfg.WebSocket.PongTimeout,
		writeTimeout:      cfg.WebSocket.WriteTimeout,
		maxMessageBytes:   cfg.WebSocket.MaxMessageBytes,
		messagesPerSecond: cfg.WebSocket.MessagesPerSecond,
		burst:             cfg.WebSocket.Burst,
		logger:            logger,
	}
}

// wsConn adapts a gorilla connection to the registry's transport handle.
// gorilla allows at most one concurrent writer, so every write path
// (broadcast, unicast, loop replies) goes through the mutex here.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) writePing() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// HandleWebSocket upgrades GET /ws/:id. Identity comes from the token query
// parameter; connections without a verified identity get an error message and
// are closed before registration.
func (s *Server) HandleWebSocket(c *gin.Context) {
	sessionID := domain.SessionID(c.Param("id"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}

	wc := &wsConn{conn: conn, writeTimeout: s.writeTimeout}

	claims, err := s.auth.ValidateToken(c.Query("token"))
	if err != nil {
		s.logger.Warnw("websocket auth failed", "session_id", sessionID, "error", err)
		s.reject(wc, "authentication required")
		return
	}
	userID := claims.UserID

	ctx := c.Request.Context()
	session, roster, err := s.presence.Join(ctx, sessionID, userID)
	if err != nil {
		s.logger.Infow("websocket join rejected",
			"session_id", sessionID,
			"user_id", userID,
			"error", err,
		)
		s.reject(wc, joinErrorMessage(err))
		return
	}

	if err := s.registry.Register(sessionID, userID, wc); err != nil {
		s.reject(wc, "authentication required")
		return
	}

	if s.metrics != nil {
		s.metrics.RecordConnectionOpened()
		s.metrics.UpdateParticipantCount(string(sessionID), len(roster))
	}
	s.logger.Infow("user connected",
		"session_id", sessionID,
		"user_id", userID,
		"participants", len(roster),
	)

	// The late joiner gets the current video assignment and playback state
	// before any broadcast reaches them; then everyone sees the new roster.
	s.sendJoinSync(ctx, wc, session)
	s.broadcaster.Broadcast(sessionID, TypeParticipants, NewParticipantsPayload(roster))

	s.readLoop(wc, sessionID, userID)
}

// sendJoinSync pushes the current video and authoritative playback state to a
// single new connection so a late joiner starts in sync without disturbing
// the others.
func (s *Server) sendJoinSync(ctx context.Context, wc *wsConn, session *domain.Session) {
	video, state, err := s.sync.JoinSnapshot(ctx, session.ID)
	if err != nil {
		s.logger.Warnw("failed to build join snapshot", "session_id", session.ID, "error", err)
		return
	}

	if video != nil {
		if err := s.broadcaster.SendTo(wc, TypeVideoUpdate, NewVideoUpdatePayload(video)); err != nil {
			s.logger.Warnw("failed to send video update to late joiner", "session_id", session.ID, "error", err)
		}
	}
	if err := s.broadcaster.SendTo(wc, TypeVideoSync, NewVideoSyncPayload(state)); err != nil {
		s.logger.Warnw("failed to send video sync to late joiner", "session_id", session.ID, "error", err)
	}
}

func (s *Server) readLoop(wc *wsConn, sessionID domain.SessionID, userID domain.UserID) {
	conn := wc.conn
	if s.maxMessageBytes > 0 {
		conn.SetReadLimit(s.maxMessageBytes)
	}
	conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	limiter := rate.NewLimiter(rate.Limit(s.messagesPerSecond), s.burst)

	messageChan := make(chan Envelope, 10)
	errorChan := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				select {
				case errorChan <- err:
				case <-done:
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.pongTimeout))

			// A malformed frame is scoped to itself: reply with an error and
			// keep the connection open. Only transport errors end the loop.
			var env Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				s.sendError(wc, "malformed message")
				continue
			}

			select {
			case messageChan <- env:
			case <-done:
				return
			}
		}
	}()

	explicitLeave := false

	for {
		select {
		case env := <-messageChan:
			if !limiter.Allow() {
				s.sendError(wc, "rate limit exceeded")
				continue
			}
			if env.Type == TypeLeave {
				explicitLeave = true
				goto cleanup
			}
			s.handleMessage(wc, sessionID, userID, env)

		case <-pingTicker.C:
			if err := wc.writePing(); err != nil {
				s.logger.Debugw("error sending ping",
					"session_id", sessionID,
					"user_id", userID,
					"error", err,
				)
				goto cleanup
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("error reading message",
					"session_id", sessionID,
					"user_id", userID,
					"error", err,
				)
			}
			goto cleanup
		}
	}

cleanup:
	s.teardown(wc, sessionID, userID, explicitLeave)
}

func (s *Server) handleMessage(wc *wsConn, sessionID domain.SessionID, userID domain.UserID, env Envelope) {
	start := time.Now()
	if s.metrics != nil {
		s.metrics.RecordMessageReceived(env.Type)
		defer func() {
			s.metrics.RecordMessageHandling(env.Type, time.Since(start))
		}()
	}

	switch env.Type {
	case TypeVideoAction:
		s.handleVideoAction(wc, sessionID, userID, env.Data)
	case TypeChat:
		s.handleChat(wc, sessionID, userID, env.Data)
	case TypePing:
		if err := s.broadcaster.SendTo(wc, TypePong, PongPayload{Timestamp: time.Now()}); err != nil {
			s.logger.Debugw("failed to send pong", "session_id", sessionID, "error", err)
		}
	default:
		s.sendError(wc, "unknown message type: "+env.Type)
	}
}

func (s *Server) handleVideoAction(wc *wsConn, sessionID domain.SessionID, userID domain.UserID, data json.RawMessage) {
	var payload VideoActionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.sendError(wc, "invalid video_action payload")
		return
	}

	ctx := context.Background()
	state, err := s.sync.ApplyAction(ctx, sessionID, userID, domain.PlaybackAction(payload.Action), payload.Time)
	if err != nil {
		// A non-host command is dropped without a reply; client-side playback
		// mutations from guests are advisory only.
		if errors.Is(err, domain.ErrNotHost) {
			s.logger.Debugw("dropping playback command from non-host",
				"session_id", sessionID,
				"user_id", userID,
				"action", payload.Action,
			)
			return
		}
		s.sendError(wc, err.Error())
		return
	}

	s.broadcaster.Broadcast(sessionID, TypeVideoSync, NewVideoSyncPayload(state))
}

func (s *Server) handleChat(wc *wsConn, sessionID domain.SessionID, userID domain.UserID, data json.RawMessage) {
	var payload ChatPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.sendError(wc, "invalid chat payload")
		return
	}

	text := strings.TrimSpace(payload.Message)
	if text == "" {
		s.sendError(wc, "chat message must not be empty")
		return
	}

	name := string(userID)
	roster, err := s.presence.RosterSnapshot(context.Background(), sessionID)
	if err == nil {
		for _, p := range roster {
			if p.UserID == userID {
				name = p.Name
				break
			}
		}
	}

	msg := domain.ChatMessage{
		ID:        utils.NewMessageID(),
		UserID:    userID,
		UserName:  name,
		Text:      text,
		Timestamp: time.Now(),
	}
	s.broadcaster.Broadcast(sessionID, TypeChat, NewChatMessagePayload(msg))
}

// teardown is the single cleanup path: explicit leave and transport close
// both converge here, and a second invocation for the same connection is a
// no-op because Unregister is idempotent.
func (s *Server) teardown(wc *wsConn, sessionID domain.SessionID, userID domain.UserID, explicitLeave bool) {
	defer wc.Close()

	if _, ok := s.registry.Unregister(wc); !ok {
		return
	}
	if s.metrics != nil {
		s.metrics.RecordConnectionClosed()
	}

	ctx := context.Background()
	var (
		removed     bool
		deactivated bool
		err         error
	)
	if explicitLeave {
		removed = true
		deactivated, err = s.presence.Leave(ctx, sessionID, userID)
	} else {
		removed, deactivated, err = s.presence.Disconnect(ctx, sessionID, userID)
	}
	if err != nil {
		s.logger.Warnw("error removing participant on disconnect",
			"session_id", sessionID,
			"user_id", userID,
			"error", err,
		)
		return
	}

	s.logger.Infow("user disconnected",
		"session_id", sessionID,
		"user_id", userID,
		"explicit", explicitLeave,
		"removed", removed,
		"deactivated", deactivated,
	)

	if deactivated {
		if s.metrics != nil {
			s.metrics.RecordSessionEnded(string(sessionID))
		}
		s.broadcaster.Broadcast(sessionID, TypeSessionEnded, SessionEndedPayload{
			Reason:  "empty",
			Message: "all participants left the session",
		})
		s.registry.CloseSession(sessionID)
		return
	}

	if removed {
		roster, err := s.presence.RosterSnapshot(ctx, sessionID)
		if err != nil {
			s.logger.Warnw("failed to load roster after disconnect", "session_id", sessionID, "error", err)
			return
		}
		if s.metrics != nil {
			s.metrics.UpdateParticipantCount(string(sessionID), len(roster))
		}
		s.broadcaster.Broadcast(sessionID, TypeParticipants, NewParticipantsPayload(roster))
	}
}

func (s *Server) sendError(wc *wsConn, message string) {
	if err := s.broadcaster.SendTo(wc, TypeError, ErrorPayload{Message: message}); err != nil {
		s.logger.Debugw("failed to send error reply", "error", err)
	}
}

// reject sends an error message and closes the connection before it was ever
// registered.
func (s *Server) reject(wc *wsConn, message string) {
	s.sendError(wc, message)
	wc.Close()
}

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return "session not found"
	case errors.Is(err, domain.ErrUserNotFound):
		return "user not found"
	default:
		return "failed to join session"
	}
}
