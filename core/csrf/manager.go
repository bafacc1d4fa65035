package csrf

import (
	"context"
	"time"

	"trustgate/config"
	"trustgate/core/store"
	"trustgate/core/utils"

	"github.com/gofrs/uuid/v5"
)

// Tokens carry 256 bits of entropy.
const tokenBytes = 32

const anonScopePrefix = "anon:"

// Manager issues and validates anti-forgery tokens. Authenticated tokens are
// scoped to a session ID and stay valid until their TTL so concurrent tabs
// keep working. Pre-auth tokens are scoped to an anonymous pseudo-session and
// are consumed on first successful validation.
type Manager struct {
	tokens store.CSRFStore
	cfg    *config.AppConfig
	logger *utils.Logger
}

func NewManager(tokens store.CSRFStore, cfg *config.AppConfig, logger *utils.Logger) *Manager {
	return &Manager{tokens: tokens, cfg: cfg, logger: logger}
}

// NewAnonScope mints the pseudo-session identifier for pre-auth flows such as
// the login form itself.
func NewAnonScope() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return anonScopePrefix + id.String(), nil
}

func IsAnonScope(scope string) bool {
	return len(scope) > len(anonScopePrefix) && scope[:len(anonScopePrefix)] == anonScopePrefix
}

func (m *Manager) Issue(ctx context.Context, scope string) (string, error) {
	token, err := utils.RandToken(tokenBytes)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	single := IsAnonScope(scope)
	ttl := m.cfg.CSRF.AuthTTL
	if single {
		ttl = m.cfg.CSRF.PreAuthTTL
	}
	// Zero means unset; an explicit duration is honored as configured.
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	rec := &store.CSRFTokenRecord{
		Token:     token,
		Scope:     scope,
		SingleUse: single,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := m.tokens.Insert(ctx, rec); err != nil {
		return "", err
	}
	return token, nil
}

// Validate reports whether token is live and bound to scope. Expired and
// mismatched tokens are indistinguishable to the caller; no oracle about
// server state leaks. Single-use tokens are gone after the first true.
func (m *Manager) Validate(ctx context.Context, token, scope string) (bool, error) {
	if token == "" || scope == "" {
		return false, nil
	}
	rec, err := m.tokens.Get(ctx, token)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	if !utils.ConstantTimeEqualsString(rec.Scope, scope) {
		return false, nil
	}
	now := time.Now().UTC()
	if now.After(rec.ExpiresAt) {
		_ = m.tokens.Delete(ctx, token)
		return false, nil
	}
	if rec.SingleUse {
		consumed, err := m.tokens.Consume(ctx, token)
		if err != nil {
			return false, err
		}
		return consumed, nil
	}
	return true, nil
}

// DropScope removes all tokens bound to a scope, used on logout.
func (m *Manager) DropScope(ctx context.Context, scope string) error {
	return m.tokens.DeleteForScope(ctx, scope)
}

func (m *Manager) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return m.tokens.DeleteExpired(ctx, now)
}
