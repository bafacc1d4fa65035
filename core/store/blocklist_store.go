package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type BlocklistStore interface {
	Block(ctx context.Context, ip, reason string, at time.Time) error
	IsBlocked(ctx context.Context, ip string) (bool, error)
	Unblock(ctx context.Context, ip string) error
	List(ctx context.Context) ([]BlockedIP, error)
	Count(ctx context.Context) (int, error)
}

type blocklistStore struct {
	db *sql.DB
}

func NewBlocklistStore(db *sql.DB) BlocklistStore {
	return &blocklistStore{db: db}
}

func (s *blocklistStore) Block(ctx context.Context, ip, reason string, at time.Time) error {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return errors.New("empty ip")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ip_blocklist(ip, reason, created_at) VALUES(?,?,?)
		ON CONFLICT(ip) DO NOTHING`, ip, strings.TrimSpace(reason), at.UTC())
	return err
}

func (s *blocklistStore) IsBlocked(ctx context.Context, ip string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM ip_blocklist WHERE ip=?`, strings.TrimSpace(ip)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *blocklistStore) Unblock(ctx context.Context, ip string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM ip_blocklist WHERE ip=?`, strings.TrimSpace(ip))
	return err
}

func (s *blocklistStore) List(ctx context.Context) ([]BlockedIP, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ip, reason, created_at FROM ip_blocklist ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []BlockedIP
	for rows.Next() {
		var b BlockedIP
		if err := rows.Scan(&b.IP, &b.Reason, &b.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func (s *blocklistStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM ip_blocklist`).Scan(&n)
	return n, err
}
