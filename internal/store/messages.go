package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateMessage appends a message and returns the canonical record with the
// author resolved to the public projection. The insert order in the store is
// authoritative for broadcast order.
func (s *Store) CreateMessage(ctx context.Context, channelID, authorID, content string) (*Message, error) {
	author, err := s.UserByID(ctx, authorID)
	if err != nil {
		return nil, fmt.Errorf("resolve author: %w", err)
	}

	now := time.Now().UTC()
	m := &Message{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		Content:   content,
		Author:    author.Public(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, channel_id, author_id, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChannelID, authorID, m.Content, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return m, nil
}

// ListMessages pages through a channel's history newest-first. A non-empty
// beforeID resumes after that message (keyset pagination).
func (s *Store) ListMessages(ctx context.Context, channelID, beforeID string, limit int) ([]Message, error) {
	// rowid order is the store's write order, which is authoritative for
	// message ordering
	query := `SELECT m.id, m.channel_id, m.content, m.created_at, m.updated_at,
	                 u.id, u.email, u.password_hash, u.display_name, u.status_message, u.avatar_url, u.created_at, u.updated_at
	          FROM messages m JOIN users u ON u.id = m.author_id
	          WHERE m.channel_id = ?`
	args := []any{channelID}
	if beforeID != "" {
		query += ` AND m.rowid < (SELECT rowid FROM messages WHERE id = ?)`
		args = append(args, beforeID)
	}
	query += ` ORDER BY m.rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			m              Message
			u              User
			status, avatar sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.Content, &m.CreatedAt, &m.UpdatedAt,
			&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &status, &avatar, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		if status.Valid {
			u.StatusMessage = &status.String
		}
		if avatar.Valid {
			u.AvatarURL = &avatar.String
		}
		m.Author = u.Public()
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
