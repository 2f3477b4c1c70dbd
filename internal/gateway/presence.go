package gateway

import (
	"sort"
	"sync"
)

// PresenceRegistry counts live connections per user. A user is online iff
// their count is positive; entries are deleted rather than stored at zero, so
// key presence and the online predicate always agree.
type PresenceRegistry struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{counts: make(map[string]int)}
}

// Increment raises the user's connection count and reports whether this was
// the offline-to-online transition.
func (p *PresenceRegistry) Increment(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[userID]++
	return p.counts[userID] == 1
}

// Decrement lowers the user's connection count and reports whether this was
// the online-to-offline transition. A count that would drop to or below zero
// removes the entry; decrementing an absent user is a no-op.
func (p *PresenceRegistry) Decrement(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	count, ok := p.counts[userID]
	if !ok {
		return false
	}
	if count <= 1 {
		delete(p.counts, userID)
		return true
	}
	p.counts[userID] = count - 1
	return false
}

func (p *PresenceRegistry) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[userID] > 0
}

// ListOnline returns a fresh snapshot of every online user id, sorted for
// stable output.
func (p *PresenceRegistry) ListOnline() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	users := make([]string, 0, len(p.counts))
	for userID := range p.counts {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// OnlineCount returns the number of distinct online users.
func (p *PresenceRegistry) OnlineCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.counts)
}
