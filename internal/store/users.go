package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

const userColumns = `id, email, password_hash, display_name, status_message, avatar_url, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var (
		u      User
		status sql.NullString
		avatar sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &status, &avatar, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if status.Valid {
		u.StatusMessage = &status.String
	}
	if avatar.Valid {
		u.AvatarURL = &avatar.String
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// CreateUser registers a new account. Returns ErrDuplicate if the email is
// already taken.
func (s *Store) CreateUser(ctx context.Context, email string, passwordHash []byte, displayName string) (*User, error) {
	now := time.Now().UTC()
	u := &User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(email),
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, display_name, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.DisplayName, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(email))
	return scanUser(row)
}

func (s *Store) UserByID(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// ProfileUpdate carries the optional profile fields; nil means unchanged.
// Clearable fields distinguish "unset" from "set to empty" on the caller side.
type ProfileUpdate struct {
	DisplayName   *string
	StatusMessage *string
	ClearStatus   bool
	AvatarURL     *string
	ClearAvatar   bool
}

func (s *Store) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*User, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}
	if upd.DisplayName != nil {
		sets = append(sets, "display_name = ?")
		args = append(args, *upd.DisplayName)
	}
	if upd.ClearStatus {
		sets = append(sets, "status_message = NULL")
	} else if upd.StatusMessage != nil {
		sets = append(sets, "status_message = ?")
		args = append(args, *upd.StatusMessage)
	}
	if upd.ClearAvatar {
		sets = append(sets, "avatar_url = NULL")
	} else if upd.AvatarURL != nil {
		sets = append(sets, "avatar_url = ?")
		args = append(args, *upd.AvatarURL)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.UserByID(ctx, id)
}

// SearchUsers matches email or display name by substring, case-insensitive,
// excluding the searching user, newest accounts first.
func (s *Store) SearchUsers(ctx context.Context, q, excludeID string, limit int) ([]PublicUser, error) {
	pattern := "%" + strings.ToLower(q) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE (LOWER(email) LIKE ? OR LOWER(display_name) LIKE ?) AND id != ?
		 ORDER BY created_at DESC LIMIT ?`,
		pattern, pattern, excludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var users []PublicUser
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u.Public())
	}
	return users, rows.Err()
}
