package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"trustgate/config"
	"trustgate/core/auth"
	"trustgate/core/login"
	"trustgate/core/utils"

	qrcode "github.com/skip2/go-qrcode"
)

type TwoFAHandler struct {
	cfg     *config.AppConfig
	login   *login.Service
	logger  *utils.Logger
	cookies CookieWriter
}

func NewTwoFAHandler(cfg *config.AppConfig, loginSvc *login.Service, logger *utils.Logger, cookies CookieWriter) *TwoFAHandler {
	return &TwoFAHandler{cfg: cfg, login: loginSvc, logger: logger, cookies: cookies}
}

type twoFARequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

// Verify completes a pending challenge with a TOTP or backup code.
func (h *TwoFAHandler) Verify(w http.ResponseWriter, r *http.Request, rc auth.RequestContext) {
	var req twoFARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChallengeID == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !h.login.RequireCSRF(r.Context(), rc) {
		http.Error(w, "csrf invalid", http.StatusForbidden)
		return
	}
	res, err := h.login.VerifyTwoFactor(r.Context(), rc, req.ChallengeID, req.Code)
	if err != nil {
		h.logger.Errorf("2fa verify: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	switch res.Status {
	case login.VerifyAuthenticated:
		token, err := h.login.CSRF().Issue(r.Context(), res.Session.ID)
		if err != nil {
			h.logger.Errorf("csrf issue after 2fa: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		h.cookies.SetSession(w, res.Session.ID)
		h.cookies.SetCSRF(w, token, h.cfg.CSRF.AuthTTL)
		h.cookies.Clear(w, h.cookies.AnonName)
		body := map[string]any{
			"status":     "authenticated",
			"username":   res.Session.Username,
			"csrf_token": token,
		}
		if res.UsedBackupCode {
			body["backup_codes_left"] = res.BackupCodesLeft
		}
		writeJSON(w, http.StatusOK, body)
	case login.VerifyExpired:
		http.Error(w, "challenge expired", http.StatusGone)
	case login.VerifyNotFound:
		http.Error(w, "challenge not found", http.StatusNotFound)
	default:
		// The pre-auth token was consumed; the client fetches a fresh one
		// before retrying while the challenge lives.
		writeJSON(w, http.StatusUnauthorized, map[string]any{"status": "invalid_code"})
	}
}

type enrollRequest struct {
	ChallengeID string `json:"challenge_id"`
}

// Enroll generates (or regenerates) enrollment material for a pending setup
// challenge. The plaintext backup codes appear in this response and nowhere
// else.
func (h *TwoFAHandler) Enroll(w http.ResponseWriter, r *http.Request, rc auth.RequestContext) {
	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChallengeID == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !h.login.RequireCSRF(r.Context(), rc) {
		http.Error(w, "csrf invalid", http.StatusForbidden)
		return
	}
	enr, err := h.login.EnrollTwoFactor(r.Context(), req.ChallengeID)
	if err != nil {
		h.writeEnrollError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"secret":           enr.Secret,
		"provisioning_uri": enr.ProvisioningURI,
		"backup_codes":     enr.BackupCodes,
		"expires_at":       time.Now().UTC().Add(h.cfg.Security.ChallengeTTL).Format(time.RFC3339),
	})
}

// EnrollQR renders the provisioning URI of an already-started enrollment as a
// PNG QR code. It never rotates the secret.
func (h *TwoFAHandler) EnrollQR(w http.ResponseWriter, r *http.Request, rc auth.RequestContext) {
	challengeID := r.URL.Query().Get("challenge")
	if challengeID == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	uri, err := h.login.EnrollmentURI(r.Context(), challengeID)
	if err != nil {
		h.writeEnrollError(w, err)
		return
	}
	png, err := qrcode.Encode(uri, qrcode.Medium, 256)
	if err != nil {
		h.logger.Errorf("2fa qr encode: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *TwoFAHandler) writeEnrollError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, login.ErrChallengeNotFound):
		http.Error(w, "challenge not found", http.StatusNotFound)
	case errors.Is(err, login.ErrChallengeExpired):
		http.Error(w, "challenge expired", http.StatusGone)
	default:
		h.logger.Errorf("2fa enroll: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
