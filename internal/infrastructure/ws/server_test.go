package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/services"
	"watchparty/internal/infrastructure/registry"
	"watchparty/internal/infrastructure/repositories/memory"
	"watchparty/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newWSStack(t *testing.T) (*httptest.Server, services.AuthService) {
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t).Sugar()
	ctx := context.Background()

	sessionRepo := memory.NewMemorySessionRepository()
	participantRepo := memory.NewMemoryParticipantRepository()
	userRepo := memory.NewMemoryUserRepository()

	for _, u := range []*domain.User{
		{ID: "host", Email: "host@example.com", Name: "Host", CreatedAt: time.Now()},
		{ID: "guest", Email: "guest@example.com", Name: "Guest", CreatedAt: time.Now()},
	} {
		require.NoError(t, userRepo.Create(ctx, u))
	}

	now := time.Now()
	require.NoError(t, sessionRepo.Create(ctx, &domain.Session{
		ID:     "s1",
		Title:  "movie night",
		HostID: "host",
		Playback: domain.PlaybackState{
			Action:      domain.ActionPause,
			TimeSeconds: 0,
			UpdatedAt:   now,
		},
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}))

	locks := services.NewSessionLocks()
	reg := registry.New(log)
	auth := services.NewAuthService("test-secret", time.Hour, time.Hour)
	presence := services.NewPresenceService(sessionRepo, participantRepo, userRepo, reg, locks, log)
	syncSvc := services.NewSyncService(sessionRepo, &stubWSResolver{}, locks, log)

	cfg := config.DefaultConfig()
	broadcaster := NewBroadcaster(reg, nil, log)
	server := NewServer(reg, presence, syncSvc, broadcaster, auth, nil, cfg, log)

	router := gin.New()
	router.GET("/ws/:id", server.HandleWebSocket)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts, auth
}

type stubWSResolver struct{}

func (r *stubWSResolver) Resolve(ctx context.Context, provider, videoID string) (*domain.Video, error) {
	return &domain.Video{Provider: provider, ID: videoID, Title: "stub", DurationSeconds: 60}, nil
}

func dialSession(t *testing.T, ts *httptest.Server, auth services.AuthService, userID domain.UserID, email, name string) *websocket.Conn {
	token, err := auth.GenerateToken(userID, email, name)
	require.NoError(t, err)

	wsURL := "ws" + ts.URL[4:] + "/ws/s1?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, messageType string, payload interface{}) {
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Envelope{Type: messageType, Data: data}))
}

func decodePayload(t *testing.T, env Envelope, out interface{}) {
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func TestJoinPushesSyncBeforeRoster(t *testing.T) {
	ts, auth := newWSStack(t)

	conn := dialSession(t, ts, auth, "host", "host@example.com", "Host")

	// The sync snapshot arrives before any broadcast reaches the new
	// connection.
	env := readEnvelope(t, conn)
	require.Equal(t, TypeVideoSync, env.Type)
	var sync VideoSyncPayload
	decodePayload(t, env, &sync)
	assert.Equal(t, "pause", sync.Action)
	assert.Equal(t, 0.0, sync.Time)

	env = readEnvelope(t, conn)
	require.Equal(t, TypeParticipants, env.Type)
	var roster ParticipantsPayload
	decodePayload(t, env, &roster)
	require.Len(t, roster.Participants, 1)
	assert.Equal(t, "host", roster.Participants[0].UserID)
}

func TestRejectsInvalidToken(t *testing.T) {
	ts, _ := newWSStack(t)

	wsURL := "ws" + ts.URL[4:] + "/ws/s1?token=garbage"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	env := readEnvelope(t, conn)
	assert.Equal(t, TypeError, env.Type)

	// The server closes the transport after the error reply.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var next Envelope
	assert.Error(t, conn.ReadJSON(&next))
}

func TestPingPong(t *testing.T) {
	ts, auth := newWSStack(t)

	conn := dialSession(t, ts, auth, "host", "host@example.com", "Host")
	readEnvelope(t, conn) // video_sync
	readEnvelope(t, conn) // participants

	sendEnvelope(t, conn, TypePing, struct{}{})

	env := readEnvelope(t, conn)
	assert.Equal(t, TypePong, env.Type)
}

func TestUnknownMessageTypeGetsErrorReply(t *testing.T) {
	ts, auth := newWSStack(t)

	conn := dialSession(t, ts, auth, "host", "host@example.com", "Host")
	readEnvelope(t, conn)
	readEnvelope(t, conn)

	sendEnvelope(t, conn, "teleport", struct{}{})

	env := readEnvelope(t, conn)
	assert.Equal(t, TypeError, env.Type)

	// The connection stays usable afterwards.
	sendEnvelope(t, conn, TypePing, struct{}{})
	env = readEnvelope(t, conn)
	assert.Equal(t, TypePong, env.Type)
}

func TestHostDrivenPlaybackScenario(t *testing.T) {
	ts, auth := newWSStack(t)

	host := dialSession(t, ts, auth, "host", "host@example.com", "Host")
	readEnvelope(t, host) // video_sync
	readEnvelope(t, host) // participants (host alone)

	guest := dialSession(t, ts, auth, "guest", "guest@example.com", "Guest")
	env := readEnvelope(t, guest)
	require.Equal(t, TypeVideoSync, env.Type)
	env = readEnvelope(t, guest)
	require.Equal(t, TypeParticipants, env.Type)

	env = readEnvelope(t, host) // roster update after guest joined
	require.Equal(t, TypeParticipants, env.Type)
	var roster ParticipantsPayload
	decodePayload(t, env, &roster)
	assert.Len(t, roster.Participants, 2)

	// Host drives playback; both sides converge.
	sendEnvelope(t, host, TypeVideoAction, VideoActionPayload{Action: "play", Time: 10})

	for _, conn := range []*websocket.Conn{host, guest} {
		env := readEnvelope(t, conn)
		require.Equal(t, TypeVideoSync, env.Type)
		var sync VideoSyncPayload
		decodePayload(t, env, &sync)
		assert.Equal(t, "play", sync.Action)
		assert.Equal(t, 10.0, sync.Time)
	}

	// A guest command is dropped silently: no broadcast, no state change.
	sendEnvelope(t, guest, TypeVideoAction, VideoActionPayload{Action: "pause", Time: 15})

	// The next message anyone sees is the host's follow-up command.
	sendEnvelope(t, host, TypeVideoAction, VideoActionPayload{Action: "pause", Time: 15})

	for _, conn := range []*websocket.Conn{host, guest} {
		env := readEnvelope(t, conn)
		require.Equal(t, TypeVideoSync, env.Type)
		var sync VideoSyncPayload
		decodePayload(t, env, &sync)
		assert.Equal(t, "pause", sync.Action)
		assert.Equal(t, 15.0, sync.Time)
	}
}

func TestLateJoinerReceivesExtrapolatedPlayTime(t *testing.T) {
	ts, auth := newWSStack(t)

	host := dialSession(t, ts, auth, "host", "host@example.com", "Host")
	readEnvelope(t, host)
	readEnvelope(t, host)

	sendEnvelope(t, host, TypeVideoAction, VideoActionPayload{Action: "play", Time: 42})
	env := readEnvelope(t, host)
	require.Equal(t, TypeVideoSync, env.Type)

	guest := dialSession(t, ts, auth, "guest", "guest@example.com", "Guest")
	env = readEnvelope(t, guest)
	require.Equal(t, TypeVideoSync, env.Type)
	var sync VideoSyncPayload
	decodePayload(t, env, &sync)
	assert.Equal(t, "play", sync.Action)
	assert.GreaterOrEqual(t, sync.Time, 42.0)

	env = readEnvelope(t, guest)
	require.Equal(t, TypeParticipants, env.Type)
}

func TestChatRelay(t *testing.T) {
	ts, auth := newWSStack(t)

	host := dialSession(t, ts, auth, "host", "host@example.com", "Host")
	readEnvelope(t, host)
	readEnvelope(t, host)

	guest := dialSession(t, ts, auth, "guest", "guest@example.com", "Guest")
	readEnvelope(t, guest) // video_sync
	readEnvelope(t, guest) // participants
	readEnvelope(t, host)  // roster update

	sendEnvelope(t, guest, TypeChat, ChatPayload{Message: "  hello everyone  "})

	for _, conn := range []*websocket.Conn{host, guest} {
		env := readEnvelope(t, conn)
		require.Equal(t, TypeChat, env.Type)
		var msg ChatMessagePayload
		decodePayload(t, env, &msg)
		assert.Equal(t, "hello everyone", msg.Message)
		assert.Equal(t, "guest", msg.UserID)
		assert.Equal(t, "Guest", msg.UserName)
		assert.NotEmpty(t, msg.ID)
	}
}

func TestEmptyChatRejected(t *testing.T) {
	ts, auth := newWSStack(t)

	conn := dialSession(t, ts, auth, "host", "host@example.com", "Host")
	readEnvelope(t, conn)
	readEnvelope(t, conn)

	sendEnvelope(t, conn, TypeChat, ChatPayload{Message: "   "})

	env := readEnvelope(t, conn)
	assert.Equal(t, TypeError, env.Type)
}

func TestMalformedFrameGetsErrorReply(t *testing.T) {
	ts, auth := newWSStack(t)

	conn := dialSession(t, ts, auth, "host", "host@example.com", "Host")
	readEnvelope(t, conn) // video_sync
	readEnvelope(t, conn) // participants

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	env := readEnvelope(t, conn)
	assert.Equal(t, TypeError, env.Type)

	// The connection survives the malformed frame.
	sendEnvelope(t, conn, TypePing, struct{}{})
	env = readEnvelope(t, conn)
	assert.Equal(t, TypePong, env.Type)

	// And the session is still joinable: the frame did not tear the host down.
	guest := dialSession(t, ts, auth, "guest", "guest@example.com", "Guest")
	env = readEnvelope(t, guest)
	assert.Equal(t, TypeVideoSync, env.Type)
}

func TestLeaveWithBufferedMessagesReleasesReader(t *testing.T) {
	ts, auth := newWSStack(t)
	baseline := runtime.NumGoroutine()

	conn := dialSession(t, ts, auth, "host", "host@example.com", "Host")
	readEnvelope(t, conn) // video_sync
	readEnvelope(t, conn) // participants

	// Queue a burst of frames behind the leave so the reader still holds
	// undelivered messages when the dispatch loop exits. Writes may race the
	// server-side close, so their errors are ignored.
	sendEnvelope(t, conn, TypeLeave, struct{}{})
	chat, err := json.Marshal(ChatPayload{Message: "late"})
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		_ = conn.WriteJSON(Envelope{Type: TypeChat, Data: chat})
	}

	// The server tears the connection down after the leave.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			break
		}
	}
	conn.Close()

	// Every per-connection goroutine, the reader included, must exit.
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, 3*time.Second, 10*time.Millisecond)
}

func TestExplicitLeaveEndsEmptySession(t *testing.T) {
	ts, auth := newWSStack(t)

	host := dialSession(t, ts, auth, "host", "host@example.com", "Host")
	readEnvelope(t, host)
	readEnvelope(t, host)

	sendEnvelope(t, host, TypeLeave, struct{}{})

	// The roster is empty after the leave, so the session deactivates and the
	// connection is closed by the server.
	require.NoError(t, host.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env Envelope
		if err := host.ReadJSON(&env); err != nil {
			break
		}
	}

	// A rejoin attempt hits the terminal deactivation.
	token, err := auth.GenerateToken("guest", "guest@example.com", "Guest")
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+ts.URL[4:]+"/ws/s1?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()

	env := readEnvelope(t, conn)
	assert.Equal(t, TypeError, env.Type)
}
