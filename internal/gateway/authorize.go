package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/Chase-Garrett/towhee/internal/store"
)

// AccessStore is the slice of the record store the authorizer consults.
type AccessStore interface {
	ChannelByID(ctx context.Context, id string) (*store.Channel, error)
	RoomMembership(ctx context.Context, userID, roomID string) (*store.RoomMembership, error)
	IsChannelMember(ctx context.Context, userID, channelID string) (bool, error)
}

// Authorizer decides channel access per action. Results are never cached:
// membership can change between actions, so every join, send and typing event
// re-runs the check.
type Authorizer struct {
	store AccessStore
}

func NewAuthorizer(s AccessStore) *Authorizer {
	return &Authorizer{store: s}
}

// Authorize resolves the channel and checks the membership rule for its kind.
// Room channels require a room-membership record, direct channels an explicit
// channel-member record.
func (a *Authorizer) Authorize(ctx context.Context, userID, channelID string) (*store.Channel, error) {
	channel, err := a.store.ChannelByID(ctx, channelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("look up channel: %w", err)
	}

	switch channel.Kind {
	case store.ChannelKindRoom:
		if _, err := a.store.RoomMembership(ctx, userID, channel.RoomID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrAccessDenied
			}
			return nil, fmt.Errorf("check room membership: %w", err)
		}
	case store.ChannelKindDirect:
		member, err := a.store.IsChannelMember(ctx, userID, channelID)
		if err != nil {
			return nil, fmt.Errorf("check channel membership: %w", err)
		}
		if !member {
			return nil, ErrAccessDenied
		}
	default:
		return nil, fmt.Errorf("unknown channel kind %q", channel.Kind)
	}
	return channel, nil
}
