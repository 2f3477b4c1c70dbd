package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateRoom creates the room, the owner membership, and a default "general"
// channel in one transaction.
func (s *Store) CreateRoom(ctx context.Context, name string, description *string, ownerID string) (*Room, *Channel, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create room: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	room := &Room{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		OwnerID:     ownerID,
		CreatedAt:   now,
	}
	var desc any
	if description != nil {
		desc = *description
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rooms (id, name, description, owner_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		room.ID, room.Name, desc, room.OwnerID, room.CreatedAt); err != nil {
		return nil, nil, fmt.Errorf("create room: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO room_memberships (id, user_id, room_id, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), ownerID, room.ID, RoleOwner, now); err != nil {
		return nil, nil, fmt.Errorf("create owner membership: %w", err)
	}
	channel := &Channel{
		ID:        uuid.NewString(),
		Name:      "general",
		Kind:      ChannelKindRoom,
		RoomID:    room.ID,
		CreatedAt: now,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO channels (id, name, kind, room_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		channel.ID, channel.Name, channel.Kind, channel.RoomID, channel.CreatedAt); err != nil {
		return nil, nil, fmt.Errorf("create default channel: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("create room: %w", err)
	}
	return room, channel, nil
}

func (s *Store) RoomByID(ctx context.Context, id string) (*Room, error) {
	var (
		r    Room
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, owner_id, created_at FROM rooms WHERE id = ?`, id).
		Scan(&r.ID, &r.Name, &desc, &r.OwnerID, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find room: %w", err)
	}
	if desc.Valid {
		r.Description = &desc.String
	}
	return &r, nil
}

// RoomMembership returns the membership record for (userID, roomID) or
// ErrNotFound.
func (s *Store) RoomMembership(ctx context.Context, userID, roomID string) (*RoomMembership, error) {
	var m RoomMembership
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, room_id, role, created_at FROM room_memberships WHERE user_id = ? AND room_id = ?`,
		userID, roomID).Scan(&m.ID, &m.UserID, &m.RoomID, &m.Role, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find room membership: %w", err)
	}
	return &m, nil
}

func (s *Store) CreateRoomMembership(ctx context.Context, userID, roomID, role string) (*RoomMembership, error) {
	m := &RoomMembership{
		ID:        uuid.NewString(),
		UserID:    userID,
		RoomID:    roomID,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO room_memberships (id, user_id, room_id, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.RoomID, m.Role, m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("create room membership: %w", err)
	}
	return m, nil
}

// DeleteRoomMembership removes a user from a room. Used when an invite is
// revoked; subsequent channel authorizations fail from that point on.
func (s *Store) DeleteRoomMembership(ctx context.Context, userID, roomID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM room_memberships WHERE user_id = ? AND room_id = ?`, userID, roomID)
	if err != nil {
		return fmt.Errorf("delete room membership: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRoomsForUser returns every room the user belongs to, with channels and
// member projections, oldest membership first.
func (s *Store) ListRoomsForUser(ctx context.Context, userID string) ([]RoomWithDetail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.name, r.description, r.owner_id, r.created_at, m.role
		 FROM room_memberships m JOIN rooms r ON r.id = m.room_id
		 WHERE m.user_id = ? ORDER BY m.created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var details []RoomWithDetail
	for rows.Next() {
		var (
			d    RoomWithDetail
			desc sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.Name, &desc, &d.OwnerID, &d.CreatedAt, &d.Role); err != nil {
			return nil, err
		}
		if desc.Valid {
			d.Description = &desc.String
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range details {
		channels, err := s.ListRoomChannels(ctx, details[i].ID)
		if err != nil {
			return nil, err
		}
		members, err := s.roomMembers(ctx, details[i].ID)
		if err != nil {
			return nil, err
		}
		details[i].Channels = channels
		details[i].Members = members
	}
	return details, nil
}

func (s *Store) roomMembers(ctx context.Context, roomID string) ([]PublicUser, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.email, u.password_hash, u.display_name, u.status_message, u.avatar_url, u.created_at, u.updated_at
		 FROM room_memberships m JOIN users u ON u.id = m.user_id
		 WHERE m.room_id = ? ORDER BY m.created_at ASC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list room members: %w", err)
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

func (s *Store) ListRoomChannels(ctx context.Context, roomID string) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, kind, room_id, created_at FROM channels WHERE room_id = ? ORDER BY created_at ASC`,
		roomID)
	if err != nil {
		return nil, fmt.Errorf("list room channels: %w", err)
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *c)
	}
	return channels, rows.Err()
}

func (s *Store) CreateRoomChannel(ctx context.Context, roomID, name string) (*Channel, error) {
	c := &Channel{
		ID:        uuid.NewString(),
		Name:      name,
		Kind:      ChannelKindRoom,
		RoomID:    roomID,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (id, name, kind, room_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Kind, c.RoomID, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create room channel: %w", err)
	}
	return c, nil
}
