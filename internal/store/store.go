package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a uniqueness constraint rejects a write.
	ErrDuplicate = errors.New("record already exists")
)

// Store manages all durable chat records in SQLite.
type Store struct {
	db *sql.DB
}

// Open connects to SQLite at path and creates the schema if needed.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite handles one writer at a time; a single pooled connection avoids
	// SQLITE_BUSY churn under concurrent handler load.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id              TEXT PRIMARY KEY,
	email           TEXT NOT NULL UNIQUE,
	password_hash   BLOB NOT NULL,
	display_name    TEXT NOT NULL,
	status_message  TEXT,
	avatar_url      TEXT,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS friend_requests (
	id           TEXT PRIMARY KEY,
	sender_id    TEXT NOT NULL REFERENCES users(id),
	receiver_id  TEXT NOT NULL REFERENCES users(id),
	status       TEXT NOT NULL DEFAULT 'PENDING',
	created_at   DATETIME NOT NULL,
	responded_at DATETIME
);

CREATE TABLE IF NOT EXISTS friendships (
	id         TEXT PRIMARY KEY,
	user_a_id  TEXT NOT NULL REFERENCES users(id),
	user_b_id  TEXT NOT NULL REFERENCES users(id),
	created_at DATETIME NOT NULL,
	UNIQUE (user_a_id, user_b_id)
);

CREATE TABLE IF NOT EXISTS rooms (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT,
	owner_id    TEXT NOT NULL REFERENCES users(id),
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS room_memberships (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id),
	room_id    TEXT NOT NULL REFERENCES rooms(id),
	role       TEXT NOT NULL DEFAULT 'MEMBER',
	created_at DATETIME NOT NULL,
	UNIQUE (user_id, room_id)
);

CREATE TABLE IF NOT EXISTS channels (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	room_id    TEXT REFERENCES rooms(id),
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS channel_members (
	id         TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL REFERENCES channels(id),
	user_id    TEXT NOT NULL REFERENCES users(id),
	created_at DATETIME NOT NULL,
	UNIQUE (channel_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL REFERENCES channels(id),
	author_id  TEXT NOT NULL REFERENCES users(id),
	content    TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_channel_created ON messages(channel_id, created_at);
CREATE INDEX IF NOT EXISTS idx_room_memberships_user ON room_memberships(user_id);
CREATE INDEX IF NOT EXISTS idx_channel_members_user ON channel_members(user_id);
`
