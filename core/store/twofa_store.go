package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

type TwoFAStore interface {
	CreateChallenge(ctx context.Context, rec *ChallengeRecord) (string, error)
	GetChallenge(ctx context.Context, id string) (*ChallengeRecord, error)
	// UpdateChallengeEnrollment swaps the candidate secret and backup code
	// hashes on a pending enrollment, used when the user regenerates.
	UpdateChallengeEnrollment(ctx context.Context, id, secretEnc string, codes []BackupCodeHash) error
	DeleteChallenge(ctx context.Context, id string) error
	DeleteChallengesForUser(ctx context.Context, userID int64) error
	DeleteExpiredChallenges(ctx context.Context, now time.Time) (int64, error)

	InsertBackupCodes(ctx context.Context, userID int64, items []BackupCodeHash) error
	ListUnusedBackupCodes(ctx context.Context, userID int64) ([]BackupCodeRecord, error)
	// MarkBackupCodeUsed stamps the code used only if it is still unused and
	// reports whether this call won; the single-use guarantee lives here.
	MarkBackupCodeUsed(ctx context.Context, id int64, usedAt time.Time, ip, userAgent string) (bool, error)
	CountUnusedBackupCodes(ctx context.Context, userID int64) (int, error)
	DeleteBackupCodes(ctx context.Context, userID int64) error
}

type twoFAStore struct {
	db *sql.DB
}

func NewTwoFAStore(db *sql.DB) TwoFAStore {
	return &twoFAStore{db: db}
}

func (s *twoFAStore) CreateChallenge(ctx context.Context, rec *ChallengeRecord) (string, error) {
	if rec == nil || rec.UserID <= 0 {
		return "", errors.New("invalid challenge")
	}
	kind := strings.TrimSpace(rec.Kind)
	if kind != ChallengeKindTOTP && kind != ChallengeKindEnroll {
		return "", errors.New("invalid challenge kind")
	}
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	rec.ID = id.String()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	codesJSON, _ := json.Marshal(rec.CodeHashes)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO auth_challenges(id, user_id, kind, secret_enc, code_hashes, ip, user_agent, redirect_to, created_at, expires_at)
		VALUES(?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.UserID, kind, rec.SecretEnc, string(codesJSON),
		strings.TrimSpace(rec.IP), strings.TrimSpace(rec.UserAgent), rec.RedirectTo,
		rec.CreatedAt, rec.ExpiresAt.UTC())
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (s *twoFAStore) GetChallenge(ctx context.Context, id string) (*ChallengeRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, kind, secret_enc, code_hashes, ip, user_agent, redirect_to, created_at, expires_at
		FROM auth_challenges WHERE id=?`, id)
	var rec ChallengeRecord
	var codesRaw string
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Kind, &rec.SecretEnc, &codesRaw,
		&rec.IP, &rec.UserAgent, &rec.RedirectTo, &rec.CreatedAt, &rec.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if codesRaw != "" {
		_ = json.Unmarshal([]byte(codesRaw), &rec.CodeHashes)
	}
	return &rec, nil
}

func (s *twoFAStore) UpdateChallengeEnrollment(ctx context.Context, id, secretEnc string, codes []BackupCodeHash) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("empty challenge id")
	}
	codesJSON, _ := json.Marshal(codes)
	res, err := s.db.ExecContext(ctx, `
		UPDATE auth_challenges SET secret_enc=?, code_hashes=? WHERE id=? AND kind=?`,
		secretEnc, string(codesJSON), id, ChallengeKindEnroll)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New("challenge not found")
	}
	return nil
}

func (s *twoFAStore) DeleteChallenge(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM auth_challenges WHERE id=?`, id)
	return err
}

func (s *twoFAStore) DeleteChallengesForUser(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM auth_challenges WHERE user_id=?`, userID)
	return err
}

func (s *twoFAStore) DeleteExpiredChallenges(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM auth_challenges WHERE expires_at < ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *twoFAStore) InsertBackupCodes(ctx context.Context, userID int64, items []BackupCodeHash) error {
	if userID <= 0 {
		return errors.New("invalid user id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, it := range items {
		hash := strings.TrimSpace(it.Hash)
		salt := strings.TrimSpace(it.Salt)
		if hash == "" || salt == "" {
			_ = tx.Rollback()
			return errors.New("invalid backup code hash")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_backup_codes(user_id, code_hash, salt, created_at)
			VALUES(?,?,?,?)`, userID, hash, salt, time.Now().UTC()); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *twoFAStore) ListUnusedBackupCodes(ctx context.Context, userID int64) ([]BackupCodeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, code_hash, salt, created_at, used_at
		FROM user_backup_codes
		WHERE user_id=? AND used_at IS NULL
		ORDER BY id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []BackupCodeRecord{}
	for rows.Next() {
		var rec BackupCodeRecord
		var used sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Hash, &rec.Salt, &rec.CreatedAt, &used); err != nil {
			return nil, err
		}
		if used.Valid {
			rec.UsedAt = &used.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *twoFAStore) MarkBackupCodeUsed(ctx context.Context, id int64, usedAt time.Time, ip, userAgent string) (bool, error) {
	if id <= 0 {
		return false, errors.New("invalid id")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_backup_codes
		SET used_at=?, used_ip=?, used_user_agent=?
		WHERE id=? AND used_at IS NULL`,
		usedAt.UTC(), strings.TrimSpace(ip), strings.TrimSpace(userAgent), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *twoFAStore) CountUnusedBackupCodes(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM user_backup_codes WHERE user_id=? AND used_at IS NULL`, userID).Scan(&n)
	return n, err
}

func (s *twoFAStore) DeleteBackupCodes(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_backup_codes WHERE user_id=?`, userID)
	return err
}
