package login

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trustgate/config"
	"trustgate/core/auth"
	"trustgate/core/csrf"
	"trustgate/core/secmon"
	"trustgate/core/store"
	"trustgate/core/utils"
)

const backupCodeCount = 10

// Service is the authentication boundary. Everything outside this package
// talks to it in terms of outcomes (LoginResult, VerifyResult) and never sees
// password hashes, TOTP secrets, or lockout bookkeeping directly.
type Service struct {
	users    store.UsersStore
	twoFA    store.TwoFAStore
	sessions *auth.SessionManager
	csrf     *csrf.Manager
	monitor  *secmon.Monitor
	cfg      *config.AppConfig
	logger   *utils.Logger

	// decoyHash absorbs a full argon2 verification for unknown usernames so
	// the response time does not reveal whether the account exists.
	decoyHash *auth.PasswordHash
}

func NewService(users store.UsersStore, twoFA store.TwoFAStore, sessions *auth.SessionManager,
	csrfMgr *csrf.Manager, monitor *secmon.Monitor, cfg *config.AppConfig, logger *utils.Logger) *Service {
	return &Service{
		users:     users,
		twoFA:     twoFA,
		sessions:  sessions,
		csrf:      csrfMgr,
		monitor:   monitor,
		cfg:       cfg,
		logger:    logger,
		decoyHash: auth.MustHashPassword("trustgate-decoy-credential", cfg.Pepper),
	}
}

func (s *Service) totpConfig() auth.TOTPConfig {
	cfg := auth.DefaultTOTPConfig()
	cfg.Skew = int64(s.cfg.Security.TOTPSkew)
	return cfg
}

// Login runs the first factor. Infrastructure errors are returned and must be
// treated as denial by callers; all policy outcomes come back as a status.
func (s *Service) Login(ctx context.Context, rc auth.RequestContext, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	now := time.Now().UTC()

	if s.monitor.IsBlocked(ctx, rc.IP) {
		if err := s.monitor.RecordAttempt(ctx, rc.IP, username, rc.UserAgent, false); err != nil {
			return nil, err
		}
		return &LoginResult{Status: LoginIPBlocked}, nil
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active {
		// Burn the same verification cost as the real path.
		_, _ = auth.VerifyPassword(password, s.cfg.Pepper, s.decoyHash)
		if err := s.monitor.RecordAttempt(ctx, rc.IP, username, rc.UserAgent, false); err != nil {
			return nil, err
		}
		return &LoginResult{Status: LoginInvalidCredentials}, nil
	}

	if user.LockedUntil != nil {
		if now.Before(*user.LockedUntil) {
			if err := s.monitor.RecordAttempt(ctx, rc.IP, username, rc.UserAgent, false); err != nil {
				return nil, err
			}
			return &LoginResult{Status: LoginAccountLocked, LockedUntil: user.LockedUntil.UTC()}, nil
		}
		// Lock has lapsed; the account gets a clean slate before this attempt.
		if err := s.users.ClearLockout(ctx, user.ID); err != nil {
			return nil, err
		}
	}

	stored, err := auth.ParsePasswordHash(user.PasswordHash, user.Salt)
	if err != nil {
		return nil, err
	}
	ok, err := auth.VerifyPassword(password, s.cfg.Pepper, stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		attempts, err := s.users.RecordLoginFailure(ctx, user.ID, now,
			s.cfg.Security.MaxFailedAttempts, s.cfg.Security.LockoutDuration)
		if err != nil {
			return nil, err
		}
		if err := s.monitor.RecordAttempt(ctx, rc.IP, username, rc.UserAgent, false); err != nil {
			return nil, err
		}
		if attempts >= s.cfg.Security.MaxFailedAttempts {
			s.monitor.Emit(ctx, store.EventAccountLocked, store.SeverityWarning, rc.IP, rc.UserAgent,
				fmt.Sprintf("account %q locked after %d failures", username, attempts))
		}
		return &LoginResult{Status: LoginInvalidCredentials}, nil
	}

	if user.TOTPEnabled {
		id, expiresAt, err := s.createChallenge(ctx, rc, user.ID, store.ChallengeKindTOTP)
		if err != nil {
			return nil, err
		}
		s.monitor.Emit(ctx, store.EventTwoFactorRequired, store.SeverityInfo, rc.IP, rc.UserAgent,
			fmt.Sprintf("second factor requested for %q", username))
		return &LoginResult{Status: LoginTwoFactorRequired, ChallengeID: id, ChallengeExpiresAt: expiresAt}, nil
	}
	if s.cfg.Security.TwoFactorRequired {
		id, expiresAt, err := s.createChallenge(ctx, rc, user.ID, store.ChallengeKindEnroll)
		if err != nil {
			return nil, err
		}
		return &LoginResult{Status: LoginTwoFactorSetupRequired, ChallengeID: id, ChallengeExpiresAt: expiresAt}, nil
	}

	sess, err := s.finalize(ctx, rc, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Status: LoginAuthenticated, Session: sess}, nil
}

func (s *Service) createChallenge(ctx context.Context, rc auth.RequestContext, userID int64, kind string) (string, time.Time, error) {
	now := time.Now().UTC()
	// Zero means unset; an explicit duration is honored as configured.
	ttl := s.cfg.Security.ChallengeTTL
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	rec := &store.ChallengeRecord{
		UserID:    userID,
		Kind:      kind,
		IP:        rc.IP,
		UserAgent: rc.UserAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	id, err := s.twoFA.CreateChallenge(ctx, rec)
	if err != nil {
		return "", time.Time{}, err
	}
	return id, rec.ExpiresAt, nil
}

// finalize is the single point where PasswordVerified (or a verified second
// factor) becomes Authenticated.
func (s *Service) finalize(ctx context.Context, rc auth.RequestContext, user *store.User) (*store.SessionRecord, error) {
	sess, err := s.sessions.Create(ctx, user.ID, user.Username, rc.IP, rc.UserAgent)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := s.users.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		return nil, err
	}
	if err := s.monitor.RecordAttempt(ctx, rc.IP, user.Username, rc.UserAgent, true); err != nil {
		s.logger.Errorf("login: record success attempt for %q: %v", user.Username, err)
	}
	return sess, nil
}

// EnrollTwoFactor generates (or regenerates) the enrollment material for a
// pending setup challenge: a fresh secret, the otpauth URI, and one batch of
// plaintext backup codes. Nothing touches the account until the user confirms
// with a valid code via VerifyTwoFactor.
func (s *Service) EnrollTwoFactor(ctx context.Context, challengeID string) (*Enrollment, error) {
	ch, err := s.twoFA.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if ch == nil || ch.Kind != store.ChallengeKindEnroll {
		return nil, ErrChallengeNotFound
	}
	if time.Now().UTC().After(ch.ExpiresAt) {
		_ = s.twoFA.DeleteChallenge(ctx, ch.ID)
		return nil, ErrChallengeExpired
	}
	user, err := s.users.Get(ctx, ch.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active {
		return nil, ErrChallengeNotFound
	}

	secret, err := auth.GenerateTOTPSecret()
	if err != nil {
		return nil, err
	}
	codes, err := auth.GenerateBackupCodes(backupCodeCount)
	if err != nil {
		return nil, err
	}
	hashes := make([]store.BackupCodeHash, 0, len(codes))
	for _, code := range codes {
		h, err := auth.HashBackupCode(code, s.cfg.Pepper)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, store.BackupCodeHash{Hash: h.Hash, Salt: h.Salt})
	}
	secretEnc, err := auth.EncryptTOTPSecret(secret, s.cfg.Pepper)
	if err != nil {
		return nil, err
	}
	if err := s.twoFA.UpdateChallengeEnrollment(ctx, ch.ID, secretEnc, hashes); err != nil {
		return nil, err
	}
	return &Enrollment{
		Secret:          secret,
		ProvisioningURI: auth.BuildTOTPProvisioningURI(s.cfg.Issuer, user.Username, secret),
		BackupCodes:     codes,
	}, nil
}

// EnrollmentURI rebuilds the provisioning URI for material already generated
// on a pending enrollment, so a QR code can be rendered without rotating the
// secret.
func (s *Service) EnrollmentURI(ctx context.Context, challengeID string) (string, error) {
	ch, err := s.twoFA.GetChallenge(ctx, challengeID)
	if err != nil {
		return "", err
	}
	if ch == nil || ch.Kind != store.ChallengeKindEnroll || ch.SecretEnc == "" {
		return "", ErrChallengeNotFound
	}
	if time.Now().UTC().After(ch.ExpiresAt) {
		return "", ErrChallengeExpired
	}
	user, err := s.users.Get(ctx, ch.UserID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrChallengeNotFound
	}
	secret, err := auth.DecryptTOTPSecret(ch.SecretEnc, s.cfg.Pepper)
	if err != nil {
		return "", err
	}
	return auth.BuildTOTPProvisioningURI(s.cfg.Issuer, user.Username, secret), nil
}

// VerifyTwoFactor completes a pending challenge. For verification challenges
// the code may be a TOTP code or one of the user's backup codes; for
// enrollment challenges only the TOTP code counts, and success persists the
// new secret and backup codes atomically with login completion.
func (s *Service) VerifyTwoFactor(ctx context.Context, rc auth.RequestContext, challengeID, code string) (*VerifyResult, error) {
	ch, err := s.twoFA.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return &VerifyResult{Status: VerifyNotFound}, nil
	}
	if time.Now().UTC().After(ch.ExpiresAt) {
		_ = s.twoFA.DeleteChallenge(ctx, ch.ID)
		s.monitor.Emit(ctx, store.EventTwoFactorFailed, store.SeverityInfo, rc.IP, rc.UserAgent, "challenge expired")
		return &VerifyResult{Status: VerifyExpired}, nil
	}
	user, err := s.users.Get(ctx, ch.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active {
		_ = s.twoFA.DeleteChallenge(ctx, ch.ID)
		return &VerifyResult{Status: VerifyNotFound}, nil
	}

	switch ch.Kind {
	case store.ChallengeKindEnroll:
		return s.verifyEnrollment(ctx, rc, ch, user, code)
	case store.ChallengeKindTOTP:
		return s.verifySecondFactor(ctx, rc, ch, user, code)
	default:
		return &VerifyResult{Status: VerifyNotFound}, nil
	}
}

func (s *Service) verifyEnrollment(ctx context.Context, rc auth.RequestContext, ch *store.ChallengeRecord, user *store.User, code string) (*VerifyResult, error) {
	if ch.SecretEnc == "" {
		// Enrollment material was never generated for this challenge.
		return s.rejectCode(ctx, rc, user, "enrollment not started")
	}
	secret, err := auth.DecryptTOTPSecret(ch.SecretEnc, s.cfg.Pepper)
	if err != nil {
		return nil, err
	}
	ok, err := auth.VerifyTOTP(secret, code, time.Now().UTC(), s.totpConfig())
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.rejectCode(ctx, rc, user, "enrollment code rejected")
	}

	if err := s.users.SetTOTP(ctx, user.ID, true, ch.SecretEnc); err != nil {
		return nil, err
	}
	if err := s.twoFA.DeleteBackupCodes(ctx, user.ID); err != nil {
		return nil, err
	}
	if err := s.twoFA.InsertBackupCodes(ctx, user.ID, ch.CodeHashes); err != nil {
		return nil, err
	}
	return s.completeChallenge(ctx, rc, ch, user, false)
}

func (s *Service) verifySecondFactor(ctx context.Context, rc auth.RequestContext, ch *store.ChallengeRecord, user *store.User, code string) (*VerifyResult, error) {
	if looksLikeTOTPCode(code) {
		secret, err := auth.DecryptTOTPSecret(user.TOTPSecretEnc, s.cfg.Pepper)
		if err != nil {
			return nil, err
		}
		ok, err := auth.VerifyTOTP(secret, code, time.Now().UTC(), s.totpConfig())
		if err != nil {
			return nil, err
		}
		if !ok {
			return s.rejectCode(ctx, rc, user, "totp code rejected")
		}
		return s.completeChallenge(ctx, rc, ch, user, false)
	}

	matched, err := s.consumeBackupCode(ctx, rc, user.ID, code)
	if err != nil {
		return nil, err
	}
	if !matched {
		return s.rejectCode(ctx, rc, user, "backup code rejected")
	}
	return s.completeChallenge(ctx, rc, ch, user, true)
}

// consumeBackupCode checks the submitted code against every unused hash and
// stamps the winner used. The conditional update in the store makes reuse a
// miss even under concurrent submission.
func (s *Service) consumeBackupCode(ctx context.Context, rc auth.RequestContext, userID int64, code string) (bool, error) {
	norm := auth.NormalizeBackupCode(code)
	if norm == "" {
		return false, nil
	}
	records, err := s.twoFA.ListUnusedBackupCodes(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, rec := range records {
		stored, err := auth.ParsePasswordHash(rec.Hash, rec.Salt)
		if err != nil {
			continue
		}
		ok, err := auth.VerifyBackupCode(norm, s.cfg.Pepper, stored)
		if err != nil || !ok {
			continue
		}
		won, err := s.twoFA.MarkBackupCodeUsed(ctx, rec.ID, time.Now().UTC(), rc.IP, rc.UserAgent)
		if err != nil {
			return false, err
		}
		return won, nil
	}
	return false, nil
}

func (s *Service) rejectCode(ctx context.Context, rc auth.RequestContext, user *store.User, detail string) (*VerifyResult, error) {
	s.monitor.Emit(ctx, store.EventTwoFactorFailed, store.SeverityWarning, rc.IP, rc.UserAgent,
		fmt.Sprintf("%s for %q", detail, user.Username))
	if err := s.monitor.RecordAttempt(ctx, rc.IP, user.Username, rc.UserAgent, false); err != nil {
		return nil, err
	}
	return &VerifyResult{Status: VerifyInvalidCode}, nil
}

func (s *Service) completeChallenge(ctx context.Context, rc auth.RequestContext, ch *store.ChallengeRecord, user *store.User, usedBackup bool) (*VerifyResult, error) {
	if err := s.twoFA.DeleteChallenge(ctx, ch.ID); err != nil {
		return nil, err
	}
	sess, err := s.finalize(ctx, rc, user)
	if err != nil {
		return nil, err
	}
	s.monitor.Emit(ctx, store.EventTwoFactorVerified, store.SeverityInfo, rc.IP, rc.UserAgent,
		fmt.Sprintf("second factor verified for %q", user.Username))
	res := &VerifyResult{Status: VerifyAuthenticated, Session: sess, UsedBackupCode: usedBackup}
	if usedBackup {
		left, err := s.twoFA.CountUnusedBackupCodes(ctx, user.ID)
		if err == nil {
			res.BackupCodesLeft = left
		}
	}
	return res, nil
}

func looksLikeTOTPCode(code string) bool {
	norm := auth.NormalizeTOTPCode(code)
	if len(norm) != auth.DefaultTOTPConfig().Digits {
		return false
	}
	for _, r := range norm {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsAuthenticated resolves a presented session token. Any failure along the
// way denies; there is no partial trust.
func (s *Service) IsAuthenticated(ctx context.Context, rc auth.RequestContext) (*store.SessionRecord, bool) {
	if rc.SessionToken == "" {
		return nil, false
	}
	rec, res, err := s.sessions.Touch(ctx, rc.SessionToken)
	if err != nil {
		s.logger.Errorf("login: session touch: %v", err)
		return nil, false
	}
	if res != auth.TouchValid {
		return nil, false
	}
	user, err := s.users.Get(ctx, rec.UserID)
	if err != nil {
		s.logger.Errorf("login: session user lookup: %v", err)
		return nil, false
	}
	if user == nil || !user.Active {
		_ = s.sessions.Invalidate(ctx, rec.ID)
		return nil, false
	}
	return rec, true
}

// RequireCSRF validates the request's anti-forgery token against its scope:
// the session token for authenticated requests, the anonymous pre-auth scope
// otherwise. Invalid tokens are logged as security events.
func (s *Service) RequireCSRF(ctx context.Context, rc auth.RequestContext) bool {
	ok, err := s.csrf.Validate(ctx, rc.CSRFToken, rc.SessionToken)
	if err != nil {
		s.logger.Errorf("login: csrf validate: %v", err)
		return false
	}
	if !ok {
		s.monitor.Emit(ctx, store.EventCSRFInvalid, store.SeverityWarning, rc.IP, rc.UserAgent, "csrf token rejected")
	}
	return ok
}

// Logout invalidates the session and drops every CSRF token scoped to it.
// Unknown session IDs are a no-op.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Invalidate(ctx, sessionID); err != nil {
		return err
	}
	return s.csrf.DropScope(ctx, sessionID)
}

// RemoveUser deletes an account and everything that trusts it: sessions,
// pending challenges, backup codes.
func (s *Service) RemoveUser(ctx context.Context, userID int64) error {
	if err := s.sessions.InvalidateAllForUser(ctx, userID); err != nil {
		return err
	}
	if err := s.twoFA.DeleteChallengesForUser(ctx, userID); err != nil {
		return err
	}
	if err := s.twoFA.DeleteBackupCodes(ctx, userID); err != nil {
		return err
	}
	return s.users.Delete(ctx, userID)
}

// DisableTwoFactor clears the TOTP secret and wipes backup codes.
func (s *Service) DisableTwoFactor(ctx context.Context, userID int64) error {
	if err := s.users.ClearTOTP(ctx, userID); err != nil {
		return err
	}
	return s.twoFA.DeleteBackupCodes(ctx, userID)
}

// CSRF exposes the token manager for handlers that issue tokens.
func (s *Service) CSRF() *csrf.Manager { return s.csrf }

// Sessions exposes the session manager for admin surfaces.
func (s *Service) Sessions() *auth.SessionManager { return s.sessions }
