package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func scanChannel(row interface{ Scan(...any) error }) (*Channel, error) {
	var (
		c      Channel
		roomID sql.NullString
	)
	err := row.Scan(&c.ID, &c.Name, &c.Kind, &roomID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if roomID.Valid {
		c.RoomID = roomID.String
	}
	return &c, nil
}

func (s *Store) ChannelByID(ctx context.Context, id string) (*Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, kind, room_id, created_at FROM channels WHERE id = ?`, id)
	return scanChannel(row)
}

// IsChannelMember reports whether an explicit channel-member row links the
// user to the channel. Only direct channels carry member rows.
func (s *Store) IsChannelMember(ctx context.Context, userID, channelID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM channel_members WHERE channel_id = ? AND user_id = ?)`,
		channelID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check channel membership: %w", err)
	}
	return exists, nil
}

// DirectChannelBetween finds the direct channel whose two member rows are
// exactly this pair, or ErrNotFound.
func (s *Store) DirectChannelBetween(ctx context.Context, aID, bID string) (*Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT c.id, c.name, c.kind, c.room_id, c.created_at FROM channels c
		 WHERE c.kind = ?
		   AND EXISTS(SELECT 1 FROM channel_members WHERE channel_id = c.id AND user_id = ?)
		   AND EXISTS(SELECT 1 FROM channel_members WHERE channel_id = c.id AND user_id = ?)`,
		ChannelKindDirect, aID, bID)
	return scanChannel(row)
}

// CreateDirectChannel creates a direct channel and both member rows in one
// transaction. Callers enforce the friendship precondition first.
func (s *Store) CreateDirectChannel(ctx context.Context, aID, bID string) (*Channel, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("create direct channel: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	c := &Channel{
		ID:        uuid.NewString(),
		Name:      "Direct message",
		Kind:      ChannelKindDirect,
		CreatedAt: now,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO channels (id, name, kind, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, c.Kind, c.CreatedAt); err != nil {
		return nil, fmt.Errorf("create direct channel: %w", err)
	}
	for _, userID := range []string{aID, bID} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO channel_members (id, channel_id, user_id, created_at) VALUES (?, ?, ?, ?)`,
			uuid.NewString(), c.ID, userID, now); err != nil {
			return nil, fmt.Errorf("create channel member: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create direct channel: %w", err)
	}
	return c, nil
}

// ChannelMembers returns the public projections of a channel's explicit
// members, in join order.
func (s *Store) ChannelMembers(ctx context.Context, channelID string) ([]PublicUser, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.email, u.password_hash, u.display_name, u.status_message, u.avatar_url, u.created_at, u.updated_at
		 FROM channel_members m JOIN users u ON u.id = m.user_id
		 WHERE m.channel_id = ? ORDER BY m.created_at ASC`, channelID)
	if err != nil {
		return nil, fmt.Errorf("list channel members: %w", err)
	}
	defer rows.Close()

	var members []PublicUser
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, u.Public())
	}
	return members, rows.Err()
}
