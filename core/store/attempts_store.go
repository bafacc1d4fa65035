package store

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// AttemptsStore is an append-only ledger; rows are never updated and are
// pruned only by retention.
type AttemptsStore interface {
	Append(ctx context.Context, ip, username string, success bool, at time.Time) error
	CountFailuresFromIP(ctx context.Context, ip string, since time.Time) (int, error)
	ListRecent(ctx context.Context, limit int) ([]LoginAttempt, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type attemptsStore struct {
	db *sql.DB
}

func NewAttemptsStore(db *sql.DB) AttemptsStore {
	return &attemptsStore{db: db}
}

func (s *attemptsStore) Append(ctx context.Context, ip, username string, success bool, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO login_attempts(ip, username, success, created_at) VALUES(?,?,?,?)`,
		strings.TrimSpace(ip), strings.TrimSpace(username), boolToInt(success), at.UTC())
	return err
}

func (s *attemptsStore) CountFailuresFromIP(ctx context.Context, ip string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM login_attempts WHERE ip=? AND success=? AND created_at >= ?`,
		strings.TrimSpace(ip), boolToInt(false), since.UTC()).Scan(&n)
	return n, err
}

func (s *attemptsStore) ListRecent(ctx context.Context, limit int) ([]LoginAttempt, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ip, username, success, created_at FROM login_attempts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []LoginAttempt
	for rows.Next() {
		var a LoginAttempt
		if err := rows.Scan(&a.ID, &a.IP, &a.Username, &a.Success, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s *attemptsStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM login_attempts WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
