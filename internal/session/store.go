// Package session persists the password-gate state per visitor:
// whether protected content is unlocked, failed-attempt accounting
// with lockout, and the rotating CSRF token.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	unlocked INTEGER NOT NULL DEFAULT 0,
	failed_attempts INTEGER NOT NULL DEFAULT 0,
	locked_until INTEGER NOT NULL DEFAULT 0,
	csrf_token TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	seen_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS sessions_by_seen ON sessions(seen_at);
`

type Session struct {
	ID             string
	Unlocked       bool
	FailedAttempts int
	LockedUntil    time.Time
	CSRFToken      string
}

// LockedOut reports whether the session is inside an active lockout
// window.
func (s *Session) LockedOut(now time.Time) bool {
	return now.Before(s.LockedUntil)
}

type Store struct {
	db               *sql.DB
	lockoutThreshold int
	lockoutDuration  time.Duration
}

func Open(path string, lockoutThreshold int, lockoutDuration time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, lockoutThreshold: lockoutThreshold, lockoutDuration: lockoutDuration}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return err
	}
	version, err := s.schemaVer(ctx)
	if err != nil {
		return err
	}
	if version != schemaVersion {
		// Session state is disposable: a schema change drops it.
		if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions"); err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, "DELETE FROM schema_version"); err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) schemaVer(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

// GetOrCreate loads the session with the given id, or creates a fresh
// one when the id is empty or unknown. The returned session always has
// a CSRF token.
func (s *Store) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	if id != "" {
		sess, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			if err := s.touch(ctx, id); err != nil {
				return nil, err
			}
			return sess, nil
		}
	}
	return s.create(ctx)
}

func (s *Store) get(ctx context.Context, id string) (*Session, error) {
	sess := &Session{ID: id}
	var unlocked int
	var lockedUntil int64
	err := s.db.QueryRowContext(ctx,
		"SELECT unlocked, failed_attempts, locked_until, csrf_token FROM sessions WHERE id = ?", id).
		Scan(&unlocked, &sess.FailedAttempts, &lockedUntil, &sess.CSRFToken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sess.Unlocked = unlocked != 0
	if lockedUntil > 0 {
		sess.LockedUntil = time.Unix(lockedUntil, 0)
	}
	return sess, nil
}

func (s *Store) create(ctx context.Context) (*Session, error) {
	sess := &Session{
		ID:        uuid.NewString(),
		CSRFToken: uuid.NewString(),
	}
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, unlocked, failed_attempts, locked_until, csrf_token, created_at, seen_at) VALUES (?, 0, 0, 0, ?, ?, ?)",
		sess.ID, sess.CSRFToken, now, now)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *Store) touch(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE sessions SET seen_at = ? WHERE id = ?", time.Now().Unix(), id)
	return err
}

// Unlock marks the session as allowed to see gated content and clears
// failure accounting.
func (s *Store) Unlock(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET unlocked = 1, failed_attempts = 0, locked_until = 0 WHERE id = ?", id)
	return err
}

// RecordFailure increments the failed-attempt counter and starts a
// lockout window once the threshold is reached. It must run before any
// CSRF validation short-circuits the request, so invalid-token
// attempts still count. Returns whether the session is now locked out.
func (s *Store) RecordFailure(ctx context.Context, id string) (bool, error) {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET failed_attempts = failed_attempts + 1 WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	var attempts int
	if err := s.db.QueryRowContext(ctx,
		"SELECT failed_attempts FROM sessions WHERE id = ?", id).Scan(&attempts); err != nil {
		return false, err
	}
	if s.lockoutThreshold > 0 && attempts >= s.lockoutThreshold {
		until := time.Now().Add(s.lockoutDuration).Unix()
		if _, err := s.db.ExecContext(ctx,
			"UPDATE sessions SET locked_until = ? WHERE id = ?", until, id); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// RotateCSRF issues a new token for the session and returns it.
func (s *Store) RotateCSRF(ctx context.Context, id string) (string, error) {
	token := uuid.NewString()
	_, err := s.db.ExecContext(ctx, "UPDATE sessions SET csrf_token = ? WHERE id = ?", token, id)
	if err != nil {
		return "", err
	}
	return token, nil
}

// Purge deletes sessions idle for longer than maxIdle and reports how
// many were removed.
func (s *Store) Purge(ctx context.Context, maxIdle time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxIdle).Unix()
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE seen_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
