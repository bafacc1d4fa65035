package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type UsersStore interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	Get(ctx context.Context, userID int64) (*User, error)
	Create(ctx context.Context, user *User) (int64, error)
	Count(ctx context.Context) (int, error)
	UpdatePassword(ctx context.Context, userID int64, hash, salt string) error
	SetActive(ctx context.Context, userID int64, active bool) error
	SetTOTP(ctx context.Context, userID int64, enabled bool, secretEnc string) error
	ClearTOTP(ctx context.Context, userID int64) error
	Delete(ctx context.Context, userID int64) error

	// RecordLoginFailure bumps the failure counter in a single statement and
	// arms the lockout when the counter reaches threshold. Concurrent failures
	// against the same account each land exactly once.
	RecordLoginFailure(ctx context.Context, userID int64, now time.Time, threshold int, lockFor time.Duration) (int, error)
	RecordLoginSuccess(ctx context.Context, userID int64, now time.Time) error
	ClearLockout(ctx context.Context, userID int64) error
}

type usersStore struct {
	db *sql.DB
}

func NewUsersStore(db *sql.DB) UsersStore {
	return &usersStore{db: db}
}

const userColumns = `id, username, role, password_hash, salt, active, failed_attempts, locked_until, totp_enabled, totp_secret_enc, last_login_at, last_failed_at, created_at, updated_at`

func (s *usersStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`, strings.TrimSpace(username))
	return scanUser(row)
}

func (s *usersStore) Get(ctx context.Context, userID int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, userID)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	u := User{}
	var locked, lastLogin, lastFailed sql.NullTime
	if err := row.Scan(
		&u.ID, &u.Username, &u.Role, &u.PasswordHash, &u.Salt, &u.Active,
		&u.FailedAttempts, &locked, &u.TOTPEnabled, &u.TOTPSecretEnc,
		&lastLogin, &lastFailed, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if locked.Valid {
		u.LockedUntil = &locked.Time
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	if lastFailed.Valid {
		u.LastFailedAt = &lastFailed.Time
	}
	return &u, nil
}

func (s *usersStore) Create(ctx context.Context, user *User) (int64, error) {
	if user == nil || strings.TrimSpace(user.Username) == "" {
		return 0, errors.New("invalid user")
	}
	now := time.Now().UTC()
	role := strings.TrimSpace(user.Role)
	if role == "" {
		role = "user"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users(username, role, password_hash, salt, active, failed_attempts, locked_until, totp_enabled, totp_secret_enc, last_login_at, last_failed_at, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		user.Username, role, user.PasswordHash, user.Salt, boolToInt(user.Active),
		user.FailedAttempts, nullTime(user.LockedUntil), boolToInt(user.TOTPEnabled), user.TOTPSecretEnc,
		nullTime(user.LastLoginAt), nullTime(user.LastFailedAt), now, now)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE username=?`, user.Username).Scan(&id); err != nil {
		return 0, err
	}
	user.ID = id
	return id, nil
}

func (s *usersStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&n)
	return n, err
}

func (s *usersStore) UpdatePassword(ctx context.Context, userID int64, hash, salt string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=?, salt=?, failed_attempts=0, locked_until=NULL, updated_at=?
		WHERE id=?`, hash, salt, time.Now().UTC(), userID)
	return err
}

func (s *usersStore) SetActive(ctx context.Context, userID int64, active bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET active=?, updated_at=? WHERE id=?`,
		boolToInt(active), time.Now().UTC(), userID)
	return err
}

func (s *usersStore) SetTOTP(ctx context.Context, userID int64, enabled bool, secretEnc string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET totp_enabled=?, totp_secret_enc=?, updated_at=? WHERE id=?`,
		boolToInt(enabled), secretEnc, time.Now().UTC(), userID)
	return err
}

func (s *usersStore) ClearTOTP(ctx context.Context, userID int64) error {
	return s.SetTOTP(ctx, userID, false, "")
}

func (s *usersStore) Delete(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=?`, userID)
	return err
}

func (s *usersStore) RecordLoginFailure(ctx context.Context, userID int64, now time.Time, threshold int, lockFor time.Duration) (int, error) {
	if threshold <= 0 {
		threshold = 5
	}
	lockedUntil := now.Add(lockFor).UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET failed_attempts = failed_attempts + 1,
		    last_failed_at = ?,
		    locked_until = CASE WHEN failed_attempts + 1 >= ? THEN ? ELSE locked_until END,
		    updated_at = ?
		WHERE id=?`, now.UTC(), threshold, lockedUntil, now.UTC(), userID)
	if err != nil {
		return 0, err
	}
	var attempts int
	if err := s.db.QueryRowContext(ctx, `SELECT failed_attempts FROM users WHERE id=?`, userID).Scan(&attempts); err != nil {
		return 0, err
	}
	return attempts, nil
}

func (s *usersStore) RecordLoginSuccess(ctx context.Context, userID int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET failed_attempts = 0, locked_until = NULL, last_failed_at = NULL, last_login_at = ?, updated_at = ?
		WHERE id=?`, now.UTC(), now.UTC(), userID)
	return err
}

func (s *usersStore) ClearLockout(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET failed_attempts = 0, locked_until = NULL, updated_at = ? WHERE id=?`,
		time.Now().UTC(), userID)
	return err
}
