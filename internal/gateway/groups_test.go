package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chase-Garrett/towhee/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testSession builds a session without a transport; delivered events pile up
// in the send channel where tests can inspect them.
func testSession(userID string) *Session {
	return newSession(nil, nil, userID, testLogger())
}

// received drains and decodes everything currently queued for the session.
func received(t *testing.T, s *Session) []protocol.Envelope {
	t.Helper()
	var events []protocol.Envelope
	for {
		select {
		case data := <-s.send:
			var env protocol.Envelope
			require.NoError(t, json.Unmarshal(data, &env))
			events = append(events, env)
		default:
			return events
		}
	}
}

func TestPublishReachesExactlySubscribers(t *testing.T) {
	g := NewGroupManager()
	a, b, c := testSession("a"), testSession("b"), testSession("c")
	for _, s := range []*Session{a, b, c} {
		g.Register(s)
	}
	g.Subscribe(a, ChannelGroup("c1"))
	g.Subscribe(b, ChannelGroup("c1"))

	n := g.Publish(ChannelGroup("c1"), protocol.EventMessageNew, map[string]string{"content": "hi"})
	assert.Equal(t, 2, n)

	assert.Len(t, received(t, a), 1)
	assert.Len(t, received(t, b), 1)
	assert.Empty(t, received(t, c), "unsubscribed session receives nothing")
}

func TestSubscribeIsIdempotent(t *testing.T) {
	g := NewGroupManager()
	a := testSession("a")
	g.Register(a)
	g.Subscribe(a, ChannelGroup("c1"))
	g.Subscribe(a, ChannelGroup("c1"))

	n := g.Publish(ChannelGroup("c1"), protocol.EventMessageNew, nil)
	assert.Equal(t, 1, n, "double subscribe must not double deliver")
	assert.Len(t, received(t, a), 1)
}

func TestSubscribeUnregisteredSessionIgnored(t *testing.T) {
	g := NewGroupManager()
	a := testSession("a")

	g.Subscribe(a, ChannelGroup("c1"))
	assert.False(t, g.Subscribed(a, ChannelGroup("c1")))
	assert.Zero(t, g.Publish(ChannelGroup("c1"), protocol.EventMessageNew, nil))
}

func TestPublishExceptSkipsSender(t *testing.T) {
	g := NewGroupManager()
	a, b := testSession("a"), testSession("b")
	g.Register(a)
	g.Register(b)
	g.Subscribe(a, ChannelGroup("c1"))
	g.Subscribe(b, ChannelGroup("c1"))

	n := g.PublishExcept(ChannelGroup("c1"), a, protocol.EventTyping, protocol.TypingEvent{ChannelID: "c1", UserID: "a", IsTyping: true})
	assert.Equal(t, 1, n)
	assert.Empty(t, received(t, a), "sender must not receive its own typing event")
	assert.Len(t, received(t, b), 1)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	g := NewGroupManager()
	a := testSession("a")
	g.Register(a)
	g.Subscribe(a, ChannelGroup("c1"))
	g.Unsubscribe(a, ChannelGroup("c1"))

	assert.Zero(t, g.Publish(ChannelGroup("c1"), protocol.EventMessageNew, nil))
	assert.Empty(t, received(t, a))
}

func TestDeregisterDropsAllGroups(t *testing.T) {
	g := NewGroupManager()
	a := testSession("a")
	g.Register(a)
	g.Subscribe(a, ChannelGroup("c1"))
	g.Subscribe(a, ChannelGroup("c2"))
	g.Subscribe(a, UserGroup("a"))

	g.Deregister(a)

	assert.Zero(t, g.Publish(ChannelGroup("c1"), protocol.EventMessageNew, nil))
	assert.Zero(t, g.Publish(ChannelGroup("c2"), protocol.EventMessageNew, nil))
	assert.Zero(t, g.Publish(UserGroup("a"), protocol.EventFriendsRefresh, nil))
	assert.Zero(t, g.BroadcastAll(protocol.EventPresenceList, nil))
}

func TestBroadcastAllReachesEveryRegisteredSession(t *testing.T) {
	g := NewGroupManager()
	a, b := testSession("a"), testSession("b")
	g.Register(a)
	g.Register(b)
	// b holds no subscriptions at all; presence still reaches it

	n := g.BroadcastAll(protocol.EventPresenceList, protocol.PresenceListPayload{Users: []string{"a"}})
	assert.Equal(t, 2, n)
	assert.Len(t, received(t, a), 1)
	assert.Len(t, received(t, b), 1)
}

func TestGroupNames(t *testing.T) {
	assert.Equal(t, "channel:c1", ChannelGroup("c1"))
	assert.Equal(t, "user:alice", UserGroup("alice"))
}
