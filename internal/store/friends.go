package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// orderPair normalizes a user pair so a friendship is stored once regardless
// of who initiated it.
func orderPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// CreateFriendRequest records a pending request. The caller is responsible
// for checking that no friendship or pending request already links the pair.
func (s *Store) CreateFriendRequest(ctx context.Context, senderID, receiverID string) (*FriendRequest, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO friend_requests (id, sender_id, receiver_id, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, senderID, receiverID, RequestPending, now)
	if err != nil {
		return nil, fmt.Errorf("create friend request: %w", err)
	}
	return s.FriendRequestByID(ctx, id)
}

func (s *Store) FriendRequestByID(ctx context.Context, id string) (*FriendRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, sender_id, receiver_id, status, created_at, responded_at FROM friend_requests WHERE id = ?`, id)
	return s.scanFriendRequest(ctx, row)
}

func (s *Store) scanFriendRequest(ctx context.Context, row interface{ Scan(...any) error }) (*FriendRequest, error) {
	var (
		fr          FriendRequest
		senderID    string
		receiverID  string
		respondedAt sql.NullTime
	)
	err := row.Scan(&fr.ID, &senderID, &receiverID, &fr.Status, &fr.CreatedAt, &respondedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if respondedAt.Valid {
		fr.RespondedAt = &respondedAt.Time
	}
	sender, err := s.UserByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	receiver, err := s.UserByID(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	fr.Sender = sender.Public()
	fr.Receiver = receiver.Public()
	return &fr, nil
}

// ListFriendRequests returns requests where the user is sender or receiver,
// newest first.
func (s *Store) ListFriendRequests(ctx context.Context, userID string) ([]FriendRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM friend_requests WHERE sender_id = ? OR receiver_id = ? ORDER BY created_at DESC`,
		userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list friend requests: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	requests := make([]FriendRequest, 0, len(ids))
	for _, id := range ids {
		fr, err := s.FriendRequestByID(ctx, id)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *fr)
	}
	return requests, nil
}

// PendingFriendRequest finds a pending request between two users in either
// direction.
func (s *Store) PendingFriendRequest(ctx context.Context, aID, bID string) (*FriendRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, sender_id, receiver_id, status, created_at, responded_at FROM friend_requests
		 WHERE ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)) AND status = ?`,
		aID, bID, bID, aID, RequestPending)
	return s.scanFriendRequest(ctx, row)
}

// ResolveFriendRequest marks a pending request accepted or declined.
func (s *Store) ResolveFriendRequest(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE friend_requests SET status = ?, responded_at = ? WHERE id = ? AND status = ?`,
		status, time.Now().UTC(), id, RequestPending)
	if err != nil {
		return fmt.Errorf("resolve friend request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateFriendship links two users. The pair is stored in sorted order so the
// unique constraint holds regardless of direction.
func (s *Store) CreateFriendship(ctx context.Context, aID, bID string) (*Friendship, error) {
	first, second := orderPair(aID, bID)
	f := &Friendship{
		ID:        uuid.NewString(),
		UserAID:   first,
		UserBID:   second,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO friendships (id, user_a_id, user_b_id, created_at) VALUES (?, ?, ?, ?)`,
		f.ID, f.UserAID, f.UserBID, f.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("create friendship: %w", err)
	}
	return f, nil
}

// Friendship looks up the friendship between two users, order-insensitive.
func (s *Store) Friendship(ctx context.Context, aID, bID string) (*Friendship, error) {
	first, second := orderPair(aID, bID)
	var f Friendship
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_a_id, user_b_id, created_at FROM friendships WHERE user_a_id = ? AND user_b_id = ?`,
		first, second).Scan(&f.ID, &f.UserAID, &f.UserBID, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find friendship: %w", err)
	}
	return &f, nil
}

// ListFriends returns the public projections of everyone the user holds a
// friendship with, newest friendships first.
func (s *Store) ListFriends(ctx context.Context, userID string) ([]PublicUser, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.email, u.password_hash, u.display_name, u.status_message, u.avatar_url, u.created_at, u.updated_at
		 FROM friendships f
		 JOIN users u ON u.id = CASE WHEN f.user_a_id = ? THEN f.user_b_id ELSE f.user_a_id END
		 WHERE f.user_a_id = ? OR f.user_b_id = ?
		 ORDER BY f.created_at DESC`,
		userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	defer rows.Close()

	var friends []PublicUser
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		friends = append(friends, u.Public())
	}
	return friends, rows.Err()
}
