package ws

import (
	"encoding/json"
	"errors"
	"testing"

	"watchparty/internal/infrastructure/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingConn struct {
	failWrites bool
	messages   [][]byte
	closed     bool
}

func (c *recordingConn) WriteMessage(data []byte) error {
	if c.failWrites {
		return errors.New("write on broken pipe")
	}
	c.messages = append(c.messages, data)
	return nil
}

func (c *recordingConn) Close() error {
	c.closed = true
	return nil
}

func (c *recordingConn) lastEnvelope(t *testing.T) Envelope {
	require.NotEmpty(t, c.messages)
	var env Envelope
	require.NoError(t, json.Unmarshal(c.messages[len(c.messages)-1], &env))
	return env
}

func TestBroadcastReachesAllConnections(t *testing.T) {
	reg := registry.New(zaptest.NewLogger(t).Sugar())
	b := NewBroadcaster(reg, nil, zaptest.NewLogger(t).Sugar())

	c1 := &recordingConn{}
	c2 := &recordingConn{}
	require.NoError(t, reg.Register("s1", "u1", c1))
	require.NoError(t, reg.Register("s1", "u2", c2))

	b.Broadcast("s1", TypeChat, ChatPayload{Message: "hello"})

	for _, c := range []*recordingConn{c1, c2} {
		env := c.lastEnvelope(t)
		assert.Equal(t, TypeChat, env.Type)

		var payload ChatPayload
		require.NoError(t, json.Unmarshal(env.Data, &payload))
		assert.Equal(t, "hello", payload.Message)
	}
}

func TestBroadcastSurvivesBrokenConnection(t *testing.T) {
	reg := registry.New(zaptest.NewLogger(t).Sugar())
	b := NewBroadcaster(reg, nil, zaptest.NewLogger(t).Sugar())

	healthy1 := &recordingConn{}
	broken := &recordingConn{failWrites: true}
	healthy2 := &recordingConn{}
	require.NoError(t, reg.Register("s1", "u1", healthy1))
	require.NoError(t, reg.Register("s1", "u2", broken))
	require.NoError(t, reg.Register("s1", "u3", healthy2))

	b.Broadcast("s1", TypeVideoSync, VideoSyncPayload{Action: "play", Time: 10})

	assert.Len(t, healthy1.messages, 1)
	assert.Len(t, healthy2.messages, 1)
	assert.Empty(t, broken.messages)
}

func TestBroadcastUnknownSessionIsNoop(t *testing.T) {
	reg := registry.New(zaptest.NewLogger(t).Sugar())
	b := NewBroadcaster(reg, nil, zaptest.NewLogger(t).Sugar())

	// Must not panic or error; there is simply no one to deliver to.
	b.Broadcast("missing", TypeChat, ChatPayload{Message: "anyone?"})
}

func TestSendToUnicast(t *testing.T) {
	reg := registry.New(zaptest.NewLogger(t).Sugar())
	b := NewBroadcaster(reg, nil, zaptest.NewLogger(t).Sugar())

	target := &recordingConn{}
	other := &recordingConn{}
	require.NoError(t, reg.Register("s1", "u1", target))
	require.NoError(t, reg.Register("s1", "u2", other))

	err := b.SendTo(target, TypeVideoSync, VideoSyncPayload{Action: "play", Time: 42})
	require.NoError(t, err)

	env := target.lastEnvelope(t)
	assert.Equal(t, TypeVideoSync, env.Type)

	var payload VideoSyncPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, 42.0, payload.Time)

	// Late-joiner sync never reaches the already-connected clients.
	assert.Empty(t, other.messages)
}

func TestSendToPropagatesWriteError(t *testing.T) {
	reg := registry.New(zaptest.NewLogger(t).Sugar())
	b := NewBroadcaster(reg, nil, zaptest.NewLogger(t).Sugar())

	broken := &recordingConn{failWrites: true}
	err := b.SendTo(broken, TypeError, ErrorPayload{Message: "nope"})
	assert.Error(t, err)
}
