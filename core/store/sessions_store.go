package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type SessionsStore interface {
	Insert(ctx context.Context, sess *SessionRecord) error
	Get(ctx context.Context, id string) (*SessionRecord, error)
	ListByUser(ctx context.Context, userID int64) ([]SessionRecord, error)
	UpdateLastSeen(ctx context.Context, id string, now time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteAllForUser(ctx context.Context, userID int64) error
	DeleteExpired(ctx context.Context, now time.Time, ttl, idle time.Duration) (int64, error)
	CountActive(ctx context.Context, now time.Time, ttl, idle time.Duration) (int, error)
}

type sessionsStore struct {
	db *sql.DB
}

func NewSessionsStore(db *sql.DB) SessionsStore {
	return &sessionsStore{db: db}
}

const sessionColumns = `id, user_id, username, ip, user_agent, created_at, last_seen_at`

func (s *sessionsStore) Insert(ctx context.Context, sess *SessionRecord) error {
	if sess == nil || sess.ID == "" {
		return errors.New("invalid session")
	}
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.LastSeenAt.IsZero() {
		sess.LastSeenAt = sess.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions(id, user_id, username, ip, user_agent, created_at, last_seen_at)
		VALUES(?,?,?,?,?,?,?)`,
		sess.ID, sess.UserID, sess.Username, sess.IP, sess.UserAgent, sess.CreatedAt, sess.LastSeenAt)
	return err
}

func (s *sessionsStore) Get(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=?`, id)
	var sr SessionRecord
	if err := row.Scan(&sr.ID, &sr.UserID, &sr.Username, &sr.IP, &sr.UserAgent, &sr.CreatedAt, &sr.LastSeenAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sr, nil
}

func (s *sessionsStore) ListByUser(ctx context.Context, userID int64) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE user_id=? ORDER BY last_seen_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []SessionRecord
	for rows.Next() {
		var sr SessionRecord
		if err := rows.Scan(&sr.ID, &sr.UserID, &sr.Username, &sr.IP, &sr.UserAgent, &sr.CreatedAt, &sr.LastSeenAt); err != nil {
			return nil, err
		}
		res = append(res, sr)
	}
	return res, rows.Err()
}

func (s *sessionsStore) UpdateLastSeen(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_seen_at=? WHERE id=?`, now.UTC(), id)
	return err
}

func (s *sessionsStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id=?`, id)
	return err
}

func (s *sessionsStore) DeleteAllForUser(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id=?`, userID)
	return err
}

func (s *sessionsStore) DeleteExpired(ctx context.Context, now time.Time, ttl, idle time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ? OR last_seen_at < ?`,
		now.Add(-ttl).UTC(), now.Add(-idle).UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *sessionsStore) CountActive(ctx context.Context, now time.Time, ttl, idle time.Duration) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions WHERE created_at >= ? AND last_seen_at >= ?`,
		now.Add(-ttl).UTC(), now.Add(-idle).UTC()).Scan(&n)
	return n, err
}
