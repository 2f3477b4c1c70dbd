package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chase-Garrett/towhee/internal/metrics"
	"github.com/Chase-Garrett/towhee/internal/protocol"
	"github.com/Chase-Garrett/towhee/internal/store"
)

// fakeTokens maps raw tokens to user ids.
type fakeTokens map[string]string

func (f fakeTokens) Verify(token string) (string, error) {
	if userID, ok := f[token]; ok {
		return userID, nil
	}
	return "", errors.New("invalid token")
}

func newTestGateway(fs *fakeStore) *Gateway {
	return New(context.Background(), testLogger(), fs, fakeTokens{
		"tok-alice": "alice",
		"tok-bob":   "bob",
	}, metrics.New(prometheus.NewRegistry()), Config{MaxMessageLength: 2000})
}

// connect wires a transportless session through the same steps the
// handshake runs after upgrade.
func connect(g *Gateway, userID string) *Session {
	s := newSession(g, nil, userID, testLogger())
	g.groups.Register(s)
	if g.presence.Increment(userID) {
		g.broadcastPresence()
	}
	g.groups.Subscribe(s, UserGroup(userID))
	return s
}

func event(name string, payload any) []byte {
	raw, _ := json.Marshal(payload)
	data, _ := json.Marshal(protocol.Envelope{Event: name, Payload: raw})
	return data
}

func decodePayload[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Payload, &v))
	return v
}

func findEvent(events []protocol.Envelope, name string) (protocol.Envelope, bool) {
	for _, env := range events {
		if env.Event == name {
			return env, true
		}
	}
	return protocol.Envelope{}, false
}

func TestJoinSubscribesAndAcks(t *testing.T) {
	fs := newFakeStore()
	fs.addRoomChannel("c1", "r1", "alice")
	g := newTestGateway(fs)
	a := connect(g, "alice")
	received(t, a) // drop the connect-time presence broadcast

	g.dispatch(a, event(protocol.EventChannelJoin, protocol.ChannelJoinPayload{ChannelID: "c1"}))

	events := received(t, a)
	joined, ok := findEvent(events, protocol.EventChannelJoined)
	require.True(t, ok)
	assert.Equal(t, "c1", decodePayload[protocol.ChannelJoinedPayload](t, joined).ChannelID)
	assert.True(t, g.groups.Subscribed(a, ChannelGroup("c1")))
}

func TestJoinDeniedAndNotFound(t *testing.T) {
	fs := newFakeStore()
	fs.addRoomChannel("c1", "r1", "bob")
	g := newTestGateway(fs)
	a := connect(g, "alice")
	received(t, a)

	g.dispatch(a, event(protocol.EventChannelJoin, protocol.ChannelJoinPayload{ChannelID: "c1"}))
	errEvent, ok := findEvent(received(t, a), protocol.EventError)
	require.True(t, ok)
	payload := decodePayload[protocol.ErrorPayload](t, errEvent)
	assert.Equal(t, protocol.EventChannelJoin, payload.Type)
	assert.Equal(t, protocol.CodeAccessDenied, payload.Message)
	assert.False(t, g.groups.Subscribed(a, ChannelGroup("c1")), "denied join must not subscribe")

	g.dispatch(a, event(protocol.EventChannelJoin, protocol.ChannelJoinPayload{ChannelID: "missing"}))
	errEvent, ok = findEvent(received(t, a), protocol.EventError)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeNotFound, decodePayload[protocol.ErrorPayload](t, errEvent).Message)
}

func TestSendBroadcastsToChannelGroup(t *testing.T) {
	fs := newFakeStore()
	fs.addRoomChannel("c1", "r1", "alice", "bob")
	fs.users["alice"] = store.PublicUser{ID: "alice", DisplayName: "Alice"}
	g := newTestGateway(fs)

	a := connect(g, "alice")
	b := connect(g, "bob")
	c := connect(g, "carol")
	g.dispatch(a, event(protocol.EventChannelJoin, protocol.ChannelJoinPayload{ChannelID: "c1"}))
	g.dispatch(b, event(protocol.EventChannelJoin, protocol.ChannelJoinPayload{ChannelID: "c1"}))
	received(t, a)
	received(t, b)
	received(t, c)

	g.dispatch(a, event(protocol.EventMessageSend, protocol.MessageSendPayload{ChannelID: "c1", Content: "hi"}))

	for _, s := range []*Session{a, b} {
		env, ok := findEvent(received(t, s), protocol.EventMessageNew)
		require.True(t, ok, "subscriber %s must receive the message", s.UserID())
		msg := decodePayload[store.Message](t, env)
		assert.Equal(t, "hi", msg.Content)
		assert.Equal(t, "alice", msg.Author.ID)
	}
	_, ok := findEvent(received(t, c), protocol.EventMessageNew)
	assert.False(t, ok, "carol never joined and receives nothing")
}

func TestSendValidation(t *testing.T) {
	fs := newFakeStore()
	fs.addRoomChannel("c1", "r1", "alice")
	g := newTestGateway(fs)
	a := connect(g, "alice")
	received(t, a)

	for _, content := range []string{"", strings.Repeat("x", 2001)} {
		g.dispatch(a, event(protocol.EventMessageSend, protocol.MessageSendPayload{ChannelID: "c1", Content: content}))
		env, ok := findEvent(received(t, a), protocol.EventError)
		require.True(t, ok)
		payload := decodePayload[protocol.ErrorPayload](t, env)
		assert.Equal(t, protocol.EventMessageSend, payload.Type)
		assert.Equal(t, protocol.CodeValidationFailed, payload.Message)
	}
	assert.Empty(t, fs.messages, "validation failures must not persist")
}

func TestSendReauthorizesEveryAction(t *testing.T) {
	fs := newFakeStore()
	fs.addRoomChannel("c1", "r1", "alice")
	g := newTestGateway(fs)
	a := connect(g, "alice")

	g.dispatch(a, event(protocol.EventChannelJoin, protocol.ChannelJoinPayload{ChannelID: "c1"}))
	received(t, a)

	// membership revoked after a successful join
	delete(fs.roomMembers["r1"], "alice")

	g.dispatch(a, event(protocol.EventMessageSend, protocol.MessageSendPayload{ChannelID: "c1", Content: "hi"}))
	env, ok := findEvent(received(t, a), protocol.EventError)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeAccessDenied, decodePayload[protocol.ErrorPayload](t, env).Message)
	assert.Empty(t, fs.messages)
}

func TestSendPersistenceFailure(t *testing.T) {
	fs := newFakeStore()
	fs.addRoomChannel("c1", "r1", "alice")
	fs.createErr = errors.New("disk on fire")
	g := newTestGateway(fs)
	a := connect(g, "alice")
	received(t, a)

	g.dispatch(a, event(protocol.EventMessageSend, protocol.MessageSendPayload{ChannelID: "c1", Content: "hi"}))
	env, ok := findEvent(received(t, a), protocol.EventError)
	require.True(t, ok)
	assert.Equal(t, protocol.CodePersistenceFailure, decodePayload[protocol.ErrorPayload](t, env).Message)
}

func TestConcurrentSendsBroadcastInStoreOrder(t *testing.T) {
	fs := newFakeStore()
	fs.addRoomChannel("c1", "r1", "alice", "bob", "carol")
	g := newTestGateway(fs)

	a := connect(g, "alice")
	b := connect(g, "bob")
	sub := connect(g, "carol")
	g.dispatch(sub, event(protocol.EventChannelJoin, protocol.ChannelJoinPayload{ChannelID: "c1"}))
	received(t, a)
	received(t, b)
	received(t, sub)

	stalled := make(chan struct{})
	release := make(chan struct{})
	fs.createHook = func(m *store.Message) {
		if m.Content == "first" {
			close(stalled)
			<-release
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		g.dispatch(a, event(protocol.EventMessageSend, protocol.MessageSendPayload{ChannelID: "c1", Content: "first"}))
	}()
	<-stalled

	// the second send races in while the first is committed but not yet
	// broadcast
	go func() {
		defer wg.Done()
		g.dispatch(b, event(protocol.EventMessageSend, protocol.MessageSendPayload{ChannelID: "c1", Content: "second"}))
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	var stored []string
	for _, m := range fs.messages {
		stored = append(stored, m.Content)
	}
	require.Equal(t, []string{"first", "second"}, stored)

	var got []string
	for _, env := range received(t, sub) {
		if env.Event == protocol.EventMessageNew {
			got = append(got, decodePayload[store.Message](t, env).Content)
		}
	}
	assert.Equal(t, stored, got, "broadcast order must match the store's write order")
}

func TestDisconnectMidSendStillPersistsAndBroadcasts(t *testing.T) {
	fs := newFakeStore()
	fs.addRoomChannel("c1", "r1", "alice", "bob")
	g := newTestGateway(fs)

	a := connect(g, "alice")
	b := connect(g, "bob")
	g.dispatch(b, event(protocol.EventChannelJoin, protocol.ChannelJoinPayload{ChannelID: "c1"}))
	received(t, a)
	received(t, b)

	stalled := make(chan struct{})
	release := make(chan struct{})
	fs.createHook = func(*store.Message) {
		close(stalled)
		<-release
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.dispatch(a, event(protocol.EventMessageSend, protocol.MessageSendPayload{ChannelID: "c1", Content: "hi"}))
	}()
	<-stalled

	// the sender's transport dies while the store call is in flight
	g.handleDisconnect(a)
	close(release)
	<-done

	require.Len(t, fs.messages, 1, "the in-flight send still persists")
	env, ok := findEvent(received(t, b), protocol.EventMessageNew)
	require.True(t, ok, "remaining subscribers still get the message")
	assert.Equal(t, "hi", decodePayload[store.Message](t, env).Content)
	assert.Empty(t, received(t, a), "the departed sender gets nothing")
}

func TestTypingExcludesSender(t *testing.T) {
	fs := newFakeStore()
	fs.addRoomChannel("c1", "r1", "alice", "bob")
	g := newTestGateway(fs)
	a := connect(g, "alice")
	b := connect(g, "bob")
	g.dispatch(a, event(protocol.EventChannelJoin, protocol.ChannelJoinPayload{ChannelID: "c1"}))
	g.dispatch(b, event(protocol.EventChannelJoin, protocol.ChannelJoinPayload{ChannelID: "c1"}))
	received(t, a)
	received(t, b)

	g.dispatch(a, event(protocol.EventTyping, protocol.TypingPayload{ChannelID: "c1", IsTyping: true}))

	env, ok := findEvent(received(t, b), protocol.EventTyping)
	require.True(t, ok)
	typing := decodePayload[protocol.TypingEvent](t, env)
	assert.Equal(t, "alice", typing.UserID)
	assert.True(t, typing.IsTyping)

	_, ok = findEvent(received(t, a), protocol.EventTyping)
	assert.False(t, ok, "typing must not echo to the sender")
}

func TestPresenceRequestAnswersRequesterOnly(t *testing.T) {
	g := newTestGateway(newFakeStore())
	a := connect(g, "alice")
	b := connect(g, "bob")
	received(t, a)
	received(t, b)

	g.dispatch(a, event(protocol.EventPresenceRequest, nil))

	env, ok := findEvent(received(t, a), protocol.EventPresenceList)
	require.True(t, ok)
	assert.Equal(t, []string{"alice", "bob"}, decodePayload[protocol.PresenceListPayload](t, env).Users)
	assert.Empty(t, received(t, b), "snapshot answers only the requester")
}

func TestChannelLeaveBestEffort(t *testing.T) {
	fs := newFakeStore()
	fs.addRoomChannel("c1", "r1", "alice")
	g := newTestGateway(fs)
	a := connect(g, "alice")
	g.dispatch(a, event(protocol.EventChannelJoin, protocol.ChannelJoinPayload{ChannelID: "c1"}))
	received(t, a)

	// malformed leave payloads are silently ignored
	g.dispatch(a, []byte(`{"event":"channel:leave","payload":{"channelId":42}}`))
	assert.Empty(t, received(t, a))
	assert.True(t, g.groups.Subscribed(a, ChannelGroup("c1")))

	g.dispatch(a, event(protocol.EventChannelLeave, protocol.ChannelJoinPayload{ChannelID: "c1"}))
	assert.False(t, g.groups.Subscribed(a, ChannelGroup("c1")))
}

func TestUnknownEventGetsScopedError(t *testing.T) {
	g := newTestGateway(newFakeStore())
	a := connect(g, "alice")
	received(t, a)

	g.dispatch(a, event("message:edit", nil))

	env, ok := findEvent(received(t, a), protocol.EventError)
	require.True(t, ok)
	payload := decodePayload[protocol.ErrorPayload](t, env)
	assert.Equal(t, "message:edit", payload.Type)
	assert.Equal(t, protocol.CodeValidationFailed, payload.Message)
}

func TestNotifyUserReachesAllUserSessions(t *testing.T) {
	g := newTestGateway(newFakeStore())
	device1 := connect(g, "alice")
	device2 := connect(g, "alice")
	b := connect(g, "bob")
	received(t, device1)
	received(t, device2)
	received(t, b)

	g.NotifyUser("alice", protocol.EventFriendsRefresh)

	for _, s := range []*Session{device1, device2} {
		_, ok := findEvent(received(t, s), protocol.EventFriendsRefresh)
		assert.True(t, ok)
	}
	_, ok := findEvent(received(t, b), protocol.EventFriendsRefresh)
	assert.False(t, ok, "refresh targets only the named user's sessions")
}

func TestDisconnectMultiDevice(t *testing.T) {
	g := newTestGateway(newFakeStore())
	device1 := connect(g, "alice")
	device2 := connect(g, "alice")
	b := connect(g, "bob")
	received(t, device1)
	received(t, device2)
	received(t, b)

	g.handleDisconnect(device1)
	assert.True(t, g.presence.IsOnline("alice"), "one device still open")
	_, ok := findEvent(received(t, b), protocol.EventPresenceList)
	assert.False(t, ok, "no offline transition yet")

	g.handleDisconnect(device2)
	assert.False(t, g.presence.IsOnline("alice"))
	env, ok := findEvent(received(t, b), protocol.EventPresenceList)
	require.True(t, ok)
	assert.Equal(t, []string{"bob"}, decodePayload[protocol.PresenceListPayload](t, env).Users)
}

func TestHandshakeOverWebsocket(t *testing.T) {
	fs := newFakeStore()
	g := newTestGateway(fs)
	srv := httptest.NewServer(http.HandlerFunc(g.HandleWS))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	// missing credential refuses the transport before the upgrade
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// bad credential as well
	_, resp, err = websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=bogus", wsURL), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, g.presence.IsOnline("alice"), "failed handshakes never touch the registry")

	// valid credential via query parameter
	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=tok-alice", wsURL), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env protocol.Envelope
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, protocol.EventSessionReady, env.Event)
	assert.Equal(t, "alice", decodePayload[protocol.SessionReadyPayload](t, env).UserID)

	// the online transition broadcasts a presence snapshot
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, protocol.EventPresenceList, env.Event)
	assert.Equal(t, []string{"alice"}, decodePayload[protocol.PresenceListPayload](t, env).Users)

	assert.True(t, g.presence.IsOnline("alice"))
}
