package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type CSRFStore interface {
	Insert(ctx context.Context, rec *CSRFTokenRecord) error
	Get(ctx context.Context, token string) (*CSRFTokenRecord, error)
	// Consume removes the token and reports whether this call removed it.
	// Exactly one of several concurrent submissions wins.
	Consume(ctx context.Context, token string) (bool, error)
	Delete(ctx context.Context, token string) error
	DeleteForScope(ctx context.Context, scope string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type csrfStore struct {
	db *sql.DB
}

func NewCSRFStore(db *sql.DB) CSRFStore {
	return &csrfStore{db: db}
}

func (s *csrfStore) Insert(ctx context.Context, rec *CSRFTokenRecord) error {
	if rec == nil || strings.TrimSpace(rec.Token) == "" || strings.TrimSpace(rec.Scope) == "" {
		return errors.New("invalid csrf token")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO csrf_tokens(token, scope, single_use, created_at, expires_at)
		VALUES(?,?,?,?,?)`,
		rec.Token, rec.Scope, boolToInt(rec.SingleUse), rec.CreatedAt, rec.ExpiresAt.UTC())
	return err
}

func (s *csrfStore) Get(ctx context.Context, token string) (*CSRFTokenRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT token, scope, single_use, created_at, expires_at FROM csrf_tokens WHERE token=?`, token)
	var rec CSRFTokenRecord
	if err := row.Scan(&rec.Token, &rec.Scope, &rec.SingleUse, &rec.CreatedAt, &rec.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (s *csrfStore) Consume(ctx context.Context, token string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM csrf_tokens WHERE token=?`, token)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *csrfStore) Delete(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM csrf_tokens WHERE token=?`, token)
	return err
}

func (s *csrfStore) DeleteForScope(ctx context.Context, scope string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM csrf_tokens WHERE scope=?`, scope)
	return err
}

func (s *csrfStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM csrf_tokens WHERE expires_at < ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
