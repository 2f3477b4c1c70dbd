package gateway

import (
	"encoding/json"
	"sync"

	"github.com/Chase-Garrett/towhee/internal/protocol"
)

// ChannelGroup names the broadcast group for a channel.
func ChannelGroup(channelID string) string { return "channel:" + channelID }

// UserGroup names the per-identity broadcast group used for refresh and
// notification delivery.
func UserGroup(userID string) string { return "user:" + userID }

// GroupManager maps live sessions to the broadcast groups they belong to.
// Groups have no persistence; they exist only as the union of currently
// subscribed sessions. All mutation happens under one lock so subscribe,
// unsubscribe and publish stay atomic with respect to each other.
type GroupManager struct {
	mu       sync.RWMutex
	groups   map[string]map[*Session]struct{}
	sessions map[*Session]map[string]struct{}
}

func NewGroupManager() *GroupManager {
	return &GroupManager{
		groups:   make(map[string]map[*Session]struct{}),
		sessions: make(map[*Session]map[string]struct{}),
	}
}

// Register makes a session visible to BroadcastAll. It holds no group
// subscriptions yet.
func (g *GroupManager) Register(s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.sessions[s]; !ok {
		g.sessions[s] = make(map[string]struct{})
	}
}

// Deregister removes the session from every group it holds. Publishes that
// snapshot their targets after this returns will not reach the session.
func (g *GroupManager) Deregister(s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for group := range g.sessions[s] {
		delete(g.groups[group], s)
		if len(g.groups[group]) == 0 {
			delete(g.groups, group)
		}
	}
	delete(g.sessions, s)
}

// Subscribe adds the session to a group. Subscribing twice is a no-op.
// Unregistered sessions are ignored so a racing teardown cannot resurrect
// membership.
func (g *GroupManager) Subscribe(s *Session, group string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	held, ok := g.sessions[s]
	if !ok {
		return
	}
	held[group] = struct{}{}
	if g.groups[group] == nil {
		g.groups[group] = make(map[*Session]struct{})
	}
	g.groups[group][s] = struct{}{}
}

func (g *GroupManager) Unsubscribe(s *Session, group string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions[s], group)
	delete(g.groups[group], s)
	if len(g.groups[group]) == 0 {
		delete(g.groups, group)
	}
}

// Subscribed reports whether the session currently holds the group.
func (g *GroupManager) Subscribed(s *Session, group string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.sessions[s][group]
	return ok
}

// Publish delivers the event to every session subscribed to the group at
// publish time, at most once each, and returns the number of deliveries.
func (g *GroupManager) Publish(group, event string, payload any) int {
	return g.PublishExcept(group, nil, event, payload)
}

// PublishExcept is Publish with the sender's own session excluded. Used for
// advisory signals like typing where echoing to the originator is noise.
func (g *GroupManager) PublishExcept(group string, sender *Session, event string, payload any) int {
	data, err := encodeEvent(event, payload)
	if err != nil {
		return 0
	}
	g.mu.RLock()
	targets := make([]*Session, 0, len(g.groups[group]))
	for s := range g.groups[group] {
		if s != sender {
			targets = append(targets, s)
		}
	}
	g.mu.RUnlock()

	// deliver outside the lock: a slow session may be forced closed, and its
	// teardown re-enters the manager.
	for _, s := range targets {
		s.enqueue(data)
	}
	return len(targets)
}

// BroadcastAll delivers the event to every registered session, subscribed or
// not. Presence transitions use this: presence is a shared global view.
func (g *GroupManager) BroadcastAll(event string, payload any) int {
	data, err := encodeEvent(event, payload)
	if err != nil {
		return 0
	}
	g.mu.RLock()
	targets := make([]*Session, 0, len(g.sessions))
	for s := range g.sessions {
		targets = append(targets, s)
	}
	g.mu.RUnlock()

	for _, s := range targets {
		s.enqueue(data)
	}
	return len(targets)
}

func encodeEvent(event string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(protocol.Envelope{Event: event, Payload: raw})
}
