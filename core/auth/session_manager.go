package auth

import (
	"context"
	"time"

	"trustgate/config"
	"trustgate/core/store"
	"trustgate/core/utils"
)

// Session identifiers carry 256 bits of entropy.
const sessionIDBytes = 32

type TouchResult int

const (
	TouchValid TouchResult = iota
	TouchExpired
	TouchNotFound
)

// SessionManager owns session lifecycle: creation after all factors succeed,
// lazy expiry on access, explicit invalidation.
type SessionManager struct {
	sessions store.SessionsStore
	cfg      *config.AppConfig
	logger   *utils.Logger
}

func NewSessionManager(sessions store.SessionsStore, cfg *config.AppConfig, logger *utils.Logger) *SessionManager {
	return &SessionManager{sessions: sessions, cfg: cfg, logger: logger}
}

func (m *SessionManager) Create(ctx context.Context, userID int64, username, ip, userAgent string) (*store.SessionRecord, error) {
	id, err := utils.RandToken(sessionIDBytes)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	rec := &store.SessionRecord{
		ID:         id,
		UserID:     userID,
		Username:   username,
		IP:         ip,
		UserAgent:  userAgent,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := m.sessions.Insert(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Touch validates a session against both the absolute TTL (from CreatedAt)
// and the idle timeout (from LastSeenAt). An expired record is removed so a
// later Touch on the same ID reports NotFound.
func (m *SessionManager) Touch(ctx context.Context, sessionID string) (*store.SessionRecord, TouchResult, error) {
	rec, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, TouchNotFound, err
	}
	if rec == nil {
		return nil, TouchNotFound, nil
	}
	now := time.Now().UTC()
	if now.Sub(rec.CreatedAt) > m.cfg.EffectiveSessionTTL() || now.Sub(rec.LastSeenAt) > m.cfg.EffectiveIdleTimeout() {
		if err := m.sessions.Delete(ctx, sessionID); err != nil && m.logger != nil {
			m.logger.Errorf("session expiry delete %s: %v", sessionID, err)
		}
		return nil, TouchExpired, nil
	}
	// CreatedAt never changes after creation; only the activity timestamp moves.
	if !now.After(rec.LastSeenAt) {
		now = rec.LastSeenAt.Add(1 * time.Millisecond)
	}
	if err := m.sessions.UpdateLastSeen(ctx, sessionID, now); err != nil {
		return nil, TouchNotFound, err
	}
	rec.LastSeenAt = now
	return rec, TouchValid, nil
}

func (m *SessionManager) Invalidate(ctx context.Context, sessionID string) error {
	return m.sessions.Delete(ctx, sessionID)
}

func (m *SessionManager) InvalidateAllForUser(ctx context.Context, userID int64) error {
	return m.sessions.DeleteAllForUser(ctx, userID)
}
