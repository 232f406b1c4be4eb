// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package kvstore

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a durable Store for callers that need work context to survive
// process restarts. Same expiry semantics as Memory.
type SQLite struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	namespace  TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (namespace, key)
);
CREATE INDEX IF NOT EXISTS kv_ns_prefix ON kv (namespace, key);
`

// OpenSQLite opens (or creates) the store database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store database: %w", err)
	}
	// The store is accessed from a single relay process; one connection
	// avoids SQLITE_BUSY between the tools and the purge path.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Put implements Store.
func (s *SQLite) Put(namespace, key, value string, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UnixMilli()
	}
	_, err := s.db.Exec(
		`INSERT INTO kv (namespace, key, value, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		namespace, key, value, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Get implements Store.
func (s *SQLite) Get(namespace, key string) (string, bool, error) {
	var value string
	var expiresAt int64
	err := s.db.QueryRow(
		`SELECT value, expires_at FROM kv WHERE namespace = ? AND key = ?`,
		namespace, key,
	).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s/%s: %w", namespace, key, err)
	}
	if expiresAt > 0 && time.Now().UnixMilli() > expiresAt {
		// Lazy purge on read, matching the in-memory store.
		_, _ = s.db.Exec(`DELETE FROM kv WHERE namespace = ? AND key = ?`, namespace, key)
		return "", false, nil
	}
	return value, true, nil
}

// List implements Store.
func (s *SQLite) List(namespace, prefix string) ([]Entry, error) {
	now := time.Now().UnixMilli()
	query := `SELECT key, value, expires_at FROM kv
		 WHERE namespace = ? AND key >= ?
		   AND (expires_at = 0 OR expires_at > ?)
		 ORDER BY key`
	args := []any{namespace, prefix, now}
	if upper, ok := prefixUpperBound(prefix); ok {
		query = `SELECT key, value, expires_at FROM kv
		 WHERE namespace = ? AND key >= ? AND key < ?
		   AND (expires_at = 0 OR expires_at > ?)
		 ORDER BY key`
		args = []any{namespace, prefix, upper, now}
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s/%s*: %w", namespace, prefix, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var expiresAt int64
		if err := rows.Scan(&e.Key, &e.Value, &expiresAt); err != nil {
			return nil, err
		}
		if expiresAt > 0 {
			e.ExpiresAt = time.UnixMilli(expiresAt)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Delete implements Store.
func (s *SQLite) Delete(namespace, key string) error {
	_, err := s.db.Exec(`DELETE FROM kv WHERE namespace = ? AND key = ?`, namespace, key)
	return err
}

// Close implements Store.
func (s *SQLite) Close() error { return s.db.Close() }

// prefixUpperBound returns the smallest string greater than every string
// with the given prefix, for range scans on the primary key. ok is false
// when no finite upper bound exists (empty or all-0xff prefix), in which
// case the caller scans to the end of the namespace.
func prefixUpperBound(prefix string) (string, bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}
