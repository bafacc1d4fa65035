package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"trustgate/config"
	"trustgate/core/auth"
	"trustgate/core/csrf"
	"trustgate/core/login"
	"trustgate/core/store"
	"trustgate/core/utils"
)

type AuthHandler struct {
	cfg     *config.AppConfig
	login   *login.Service
	logger  *utils.Logger
	cookies CookieWriter
}

func NewAuthHandler(cfg *config.AppConfig, loginSvc *login.Service, logger *utils.Logger, cookies CookieWriter) *AuthHandler {
	return &AuthHandler{cfg: cfg, login: loginSvc, logger: logger, cookies: cookies}
}

// IssueCSRF hands out an anti-forgery token for the caller's current scope.
// Authenticated callers get a reusable token bound to their session;
// everyone else gets a single-use token bound to a fresh (or existing)
// anonymous scope, which the login endpoints then require.
func (h *AuthHandler) IssueCSRF(w http.ResponseWriter, r *http.Request, rc auth.RequestContext) {
	scope := rc.SessionToken
	if _, ok := h.login.IsAuthenticated(r.Context(), rc); !ok {
		if !csrf.IsAnonScope(scope) {
			var err error
			scope, err = csrf.NewAnonScope()
			if err != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
		}
		h.cookies.SetAnon(w, scope)
	}
	token, err := h.login.CSRF().Issue(r.Context(), scope)
	if err != nil {
		h.logger.Errorf("csrf issue: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	ttl := h.cfg.CSRF.AuthTTL
	if csrf.IsAnonScope(scope) {
		ttl = h.cfg.CSRF.PreAuthTTL
	}
	h.cookies.SetCSRF(w, token, ttl)
	writeJSON(w, http.StatusOK, map[string]any{"csrf_token": token})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request, rc auth.RequestContext) {
	var cred auth.Credentials
	if err := json.NewDecoder(r.Body).Decode(&cred); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	// Usernames are case-sensitive keys; only surrounding whitespace is
	// stripped.
	cred.Username = strings.TrimSpace(cred.Username)
	if err := utils.ValidateUsername(cred.Username); err != nil {
		http.Error(w, "invalid username", http.StatusBadRequest)
		return
	}
	if !h.login.RequireCSRF(r.Context(), rc) {
		http.Error(w, "csrf invalid", http.StatusForbidden)
		return
	}

	res, err := h.login.Login(r.Context(), rc, cred.Username, cred.Password)
	if err != nil {
		h.logger.Errorf("login %q: %v", cred.Username, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	switch res.Status {
	case login.LoginAuthenticated:
		h.finishLogin(w, r, res.Session)
	case login.LoginTwoFactorRequired, login.LoginTwoFactorSetupRequired:
		// The next request needs a fresh pre-auth token; the old one was
		// consumed validating this one.
		token, err := h.reissuePreAuth(w, r, rc)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":       res.Status.String(),
			"challenge_id": res.ChallengeID,
			"expires_at":   res.ChallengeExpiresAt.Format(time.RFC3339),
			"csrf_token":   token,
		})
	case login.LoginAccountLocked:
		writeJSON(w, http.StatusForbidden, map[string]any{
			"status":       res.Status.String(),
			"locked_until": res.LockedUntil.Format(time.RFC3339),
		})
	case login.LoginIPBlocked:
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	}
}

// finishLogin promotes the connection to an authenticated one: session
// cookie, session-scoped CSRF token, anon scope dropped.
func (h *AuthHandler) finishLogin(w http.ResponseWriter, r *http.Request, sess *store.SessionRecord) {
	token, err := h.login.CSRF().Issue(r.Context(), sess.ID)
	if err != nil {
		h.logger.Errorf("csrf issue after login: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.cookies.SetSession(w, sess.ID)
	h.cookies.SetCSRF(w, token, h.cfg.CSRF.AuthTTL)
	h.cookies.Clear(w, h.cookies.AnonName)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     login.LoginAuthenticated.String(),
		"username":   sess.Username,
		"csrf_token": token,
	})
}

func (h *AuthHandler) reissuePreAuth(w http.ResponseWriter, r *http.Request, rc auth.RequestContext) (string, error) {
	scope := rc.SessionToken
	if !csrf.IsAnonScope(scope) {
		var err error
		scope, err = csrf.NewAnonScope()
		if err != nil {
			return "", err
		}
		h.cookies.SetAnon(w, scope)
	}
	token, err := h.login.CSRF().Issue(r.Context(), scope)
	if err != nil {
		return "", err
	}
	h.cookies.SetCSRF(w, token, h.cfg.CSRF.PreAuthTTL)
	return token, nil
}

// Logout invalidates the presented session. It succeeds even when no valid
// session was presented; the cookies are cleared either way.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request, rc auth.RequestContext) {
	if rc.SessionToken != "" && !csrf.IsAnonScope(rc.SessionToken) {
		if !h.login.RequireCSRF(r.Context(), rc) {
			http.Error(w, "csrf invalid", http.StatusForbidden)
			return
		}
		if err := h.login.Logout(r.Context(), rc.SessionToken); err != nil {
			h.logger.Errorf("logout: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}
	h.cookies.Clear(w, h.cookies.SessionName, h.cookies.CSRFName, h.cookies.AnonName)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	v := r.Context().Value(auth.SessionContextKey)
	if v == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	sess := v.(*store.SessionRecord)
	writeJSON(w, http.StatusOK, map[string]any{
		"username":     sess.Username,
		"user_id":      sess.UserID,
		"created_at":   sess.CreatedAt.Format(time.RFC3339),
		"last_seen_at": sess.LastSeenAt.Format(time.RFC3339),
	})
}

func (h *AuthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
