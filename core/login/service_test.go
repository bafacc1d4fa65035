package login

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"trustgate/config"
	"trustgate/core/auth"
	"trustgate/core/csrf"
	"trustgate/core/secmon"
	"trustgate/core/store"
)

type testEnv struct {
	svc     *Service
	users   store.UsersStore
	twoFA   store.TwoFAStore
	monitor *secmon.Monitor
	cfg     *config.AppConfig
}

func newTestEnv(t *testing.T, mutate func(*config.AppConfig)) *testEnv {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver:    "sqlite",
		DBPath:      filepath.Join(t.TempDir(), "login.db"),
		Pepper:      "test-pepper",
		Issuer:      "Trustgate",
		SessionTTL:  time.Hour,
		IdleTimeout: 30 * time.Minute,
		Security: config.SecurityConfig{
			MaxFailedAttempts: 5,
			LockoutDuration:   15 * time.Minute,
			AlertWindow:       15 * time.Minute,
			// Keep IP-level blocking out of account-lockout tests.
			BruteForceLimit:   100,
			SuspiciousPerHour: 3,
			ChallengeTTL:      10 * time.Minute,
			TOTPSkew:          1,
		},
		CSRF: config.CSRFConfig{AuthTTL: time.Hour, PreAuthTTL: 15 * time.Minute},
	}
	if mutate != nil {
		mutate(cfg)
	}
	db, err := store.NewDB(cfg, nil)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, "sqlite", nil); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	users := store.NewUsersStore(db)
	twoFA := store.NewTwoFAStore(db)
	sessions := auth.NewSessionManager(store.NewSessionsStore(db), cfg, nil)
	csrfMgr := csrf.NewManager(store.NewCSRFStore(db), cfg, nil)
	monitor := secmon.NewMonitor(store.NewAttemptsStore(db), store.NewEventsStore(db), store.NewBlocklistStore(db), cfg, nil)
	svc := NewService(users, twoFA, sessions, csrfMgr, monitor, cfg, nil)
	return &testEnv{svc: svc, users: users, twoFA: twoFA, monitor: monitor, cfg: cfg}
}

func (e *testEnv) createUser(t *testing.T, username, password string) int64 {
	t.Helper()
	ph := auth.MustHashPassword(password, e.cfg.Pepper)
	id, err := e.users.Create(context.Background(), &store.User{
		Username:     username,
		PasswordHash: ph.Hash,
		Salt:         ph.Salt,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("create %s: %v", username, err)
	}
	return id
}

func (e *testEnv) enableTOTP(t *testing.T, userID int64) string {
	t.Helper()
	secret, err := auth.GenerateTOTPSecret()
	if err != nil {
		t.Fatalf("secret: %v", err)
	}
	enc, err := auth.EncryptTOTPSecret(secret, e.cfg.Pepper)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if err := e.users.SetTOTP(context.Background(), userID, true, enc); err != nil {
		t.Fatalf("set totp: %v", err)
	}
	return secret
}

var testRC = auth.RequestContext{IP: "10.0.0.1", UserAgent: "test-agent"}

func TestLoginSuccessWithoutTwoFactor(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createUser(t, "admin", "S3cure#Passw0rd")
	ctx := context.Background()

	res, err := env.svc.Login(ctx, testRC, "admin", "S3cure#Passw0rd")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Status != LoginAuthenticated {
		t.Fatalf("status %s, want authenticated", res.Status)
	}
	if res.Session == nil || res.Session.ID == "" {
		t.Fatal("no session issued")
	}

	rc := testRC
	rc.SessionToken = res.Session.ID
	if _, ok := env.svc.IsAuthenticated(ctx, rc); !ok {
		t.Fatal("fresh session not authenticated")
	}
}

func TestLoginRejectsUnknownUserAndWrongPassword(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createUser(t, "alice", "S3cure#Passw0rd")
	ctx := context.Background()

	unknown, err := env.svc.Login(ctx, testRC, "nobody", "whatever-pass")
	if err != nil {
		t.Fatalf("unknown user: %v", err)
	}
	wrong, err := env.svc.Login(ctx, testRC, "alice", "wrong-password")
	if err != nil {
		t.Fatalf("wrong password: %v", err)
	}
	// The two failure modes must be indistinguishable.
	if unknown.Status != LoginInvalidCredentials || wrong.Status != LoginInvalidCredentials {
		t.Fatalf("statuses %s/%s, want invalid_credentials for both", unknown.Status, wrong.Status)
	}
	if unknown.Session != nil || wrong.Session != nil || unknown.ChallengeID != "" || wrong.ChallengeID != "" {
		t.Fatal("failure results leaked session or challenge state")
	}
}

func TestLockoutAfterThresholdEvenWithCorrectPassword(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createUser(t, "alice", "S3cure#Passw0rd")
	ctx := context.Background()

	for i := 0; i < env.cfg.Security.MaxFailedAttempts; i++ {
		res, err := env.svc.Login(ctx, testRC, "alice", "wrong-password")
		if err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
		if res.Status != LoginInvalidCredentials {
			t.Fatalf("failure %d: status %s", i, res.Status)
		}
	}

	res, err := env.svc.Login(ctx, testRC, "alice", "S3cure#Passw0rd")
	if err != nil {
		t.Fatalf("post-lock login: %v", err)
	}
	if res.Status != LoginAccountLocked {
		t.Fatalf("status %s, want account_locked", res.Status)
	}
	if res.LockedUntil.IsZero() {
		t.Fatal("no locked_until on locked result")
	}
}

func TestLockoutExpiryResetsCounter(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.AppConfig) {
		// An already-elapsed lockout window: the lock arms and immediately lapses.
		cfg.Security.LockoutDuration = -time.Minute
	})
	env.createUser(t, "alice", "S3cure#Passw0rd")
	ctx := context.Background()

	for i := 0; i < env.cfg.Security.MaxFailedAttempts; i++ {
		_, _ = env.svc.Login(ctx, testRC, "alice", "wrong-password")
	}
	res, err := env.svc.Login(ctx, testRC, "alice", "S3cure#Passw0rd")
	if err != nil {
		t.Fatalf("login after lapsed lock: %v", err)
	}
	if res.Status != LoginAuthenticated {
		t.Fatalf("status %s, want authenticated after lock lapse", res.Status)
	}
	u, _ := env.users.FindByUsername(ctx, "alice")
	if u.FailedAttempts != 0 || u.LockedUntil != nil {
		t.Fatalf("counters not reset: %+v", u)
	}
}

func TestLoginBlockedIP(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createUser(t, "alice", "S3cure#Passw0rd")
	ctx := context.Background()

	if err := blockIPForTest(ctx, env); err != nil {
		t.Fatalf("block: %v", err)
	}

	res, err := env.svc.Login(ctx, testRC, "alice", "S3cure#Passw0rd")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Status != LoginIPBlocked {
		t.Fatalf("status %s, want ip_blocked", res.Status)
	}
}

func blockIPForTest(ctx context.Context, env *testEnv) error {
	// Drive the monitor over its own threshold instead of reaching into the
	// blocklist store.
	limit := env.cfg.Security.BruteForceLimit
	for i := 0; i < limit; i++ {
		if err := env.monitor.RecordAttempt(ctx, testRC.IP, "alice", "agent", false); err != nil {
			return err
		}
	}
	return nil
}

func TestTwoFactorLoginWithTOTP(t *testing.T) {
	env := newTestEnv(t, nil)
	uid := env.createUser(t, "alice", "S3cure#Passw0rd")
	secret := env.enableTOTP(t, uid)
	ctx := context.Background()

	res, err := env.svc.Login(ctx, testRC, "alice", "S3cure#Passw0rd")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Status != LoginTwoFactorRequired {
		t.Fatalf("status %s, want two_factor_required", res.Status)
	}
	if res.Session != nil {
		t.Fatal("session issued before second factor")
	}
	if res.ChallengeID == "" {
		t.Fatal("no challenge issued")
	}

	code, err := auth.ComputeTOTPCode(secret, time.Now().UTC(), auth.DefaultTOTPConfig())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	vr, err := env.svc.VerifyTwoFactor(ctx, testRC, res.ChallengeID, code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if vr.Status != VerifyAuthenticated || vr.Session == nil {
		t.Fatalf("verify status %s", vr.Status)
	}

	// The challenge is gone after completion.
	again, err := env.svc.VerifyTwoFactor(ctx, testRC, res.ChallengeID, code)
	if err != nil {
		t.Fatalf("replay verify: %v", err)
	}
	if again.Status != VerifyNotFound {
		t.Fatalf("replayed challenge: status %s, want not_found", again.Status)
	}
}

func TestTwoFactorRejectsWrongCode(t *testing.T) {
	env := newTestEnv(t, nil)
	uid := env.createUser(t, "alice", "S3cure#Passw0rd")
	env.enableTOTP(t, uid)
	ctx := context.Background()

	res, _ := env.svc.Login(ctx, testRC, "alice", "S3cure#Passw0rd")
	vr, err := env.svc.VerifyTwoFactor(ctx, testRC, res.ChallengeID, "000000")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if vr.Status != VerifyInvalidCode {
		t.Fatalf("status %s, want invalid_code", vr.Status)
	}
	// A wrong code does not burn the challenge.
	if ch, _ := env.twoFA.GetChallenge(ctx, res.ChallengeID); ch == nil {
		t.Fatal("challenge removed on wrong code")
	}
}

func TestTwoFactorChallengeExpires(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.AppConfig) {
		cfg.Security.ChallengeTTL = -time.Minute
	})
	uid := env.createUser(t, "alice", "S3cure#Passw0rd")
	secret := env.enableTOTP(t, uid)
	ctx := context.Background()

	res, _ := env.svc.Login(ctx, testRC, "alice", "S3cure#Passw0rd")
	code, _ := auth.ComputeTOTPCode(secret, time.Now().UTC(), auth.DefaultTOTPConfig())

	vr, err := env.svc.VerifyTwoFactor(ctx, testRC, res.ChallengeID, code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if vr.Status != VerifyExpired {
		t.Fatalf("status %s, want expired", vr.Status)
	}
	vr, _ = env.svc.VerifyTwoFactor(ctx, testRC, res.ChallengeID, code)
	if vr.Status != VerifyNotFound {
		t.Fatalf("second verify: status %s, want not_found", vr.Status)
	}
}

func TestBackupCodeLoginIsSingleUse(t *testing.T) {
	env := newTestEnv(t, nil)
	uid := env.createUser(t, "alice", "S3cure#Passw0rd")
	env.enableTOTP(t, uid)
	ctx := context.Background()

	codes, err := auth.GenerateBackupCodes(2)
	if err != nil {
		t.Fatalf("codes: %v", err)
	}
	hashes := make([]store.BackupCodeHash, 0, len(codes))
	for _, c := range codes {
		h, _ := auth.HashBackupCode(c, env.cfg.Pepper)
		hashes = append(hashes, store.BackupCodeHash{Hash: h.Hash, Salt: h.Salt})
	}
	if err := env.twoFA.InsertBackupCodes(ctx, uid, hashes); err != nil {
		t.Fatalf("insert codes: %v", err)
	}

	res, _ := env.svc.Login(ctx, testRC, "alice", "S3cure#Passw0rd")
	vr, err := env.svc.VerifyTwoFactor(ctx, testRC, res.ChallengeID, codes[0])
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if vr.Status != VerifyAuthenticated || !vr.UsedBackupCode {
		t.Fatalf("backup code login failed: %+v", vr)
	}
	if vr.BackupCodesLeft != 1 {
		t.Fatalf("codes left %d, want 1", vr.BackupCodesLeft)
	}

	res2, _ := env.svc.Login(ctx, testRC, "alice", "S3cure#Passw0rd")
	vr2, err := env.svc.VerifyTwoFactor(ctx, testRC, res2.ChallengeID, codes[0])
	if err != nil {
		t.Fatalf("reuse verify: %v", err)
	}
	if vr2.Status != VerifyInvalidCode {
		t.Fatalf("reused backup code: status %s, want invalid_code", vr2.Status)
	}
}

func TestEnrollmentFlow(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.AppConfig) {
		cfg.Security.TwoFactorRequired = true
	})
	env.createUser(t, "bob", "S3cure#Passw0rd")
	ctx := context.Background()

	res, err := env.svc.Login(ctx, testRC, "bob", "S3cure#Passw0rd")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Status != LoginTwoFactorSetupRequired {
		t.Fatalf("status %s, want two_factor_setup_required", res.Status)
	}

	enr, err := env.svc.EnrollTwoFactor(ctx, res.ChallengeID)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if enr.Secret == "" || enr.ProvisioningURI == "" {
		t.Fatalf("incomplete enrollment: %+v", enr)
	}
	if len(enr.BackupCodes) != backupCodeCount {
		t.Fatalf("got %d backup codes, want %d", len(enr.BackupCodes), backupCodeCount)
	}

	uri, err := env.svc.EnrollmentURI(ctx, res.ChallengeID)
	if err != nil {
		t.Fatalf("uri: %v", err)
	}
	if uri != enr.ProvisioningURI {
		t.Fatal("EnrollmentURI rotated the secret")
	}

	// Nothing persists on the account until confirmation.
	u, _ := env.users.FindByUsername(ctx, "bob")
	if u.TOTPEnabled {
		t.Fatal("totp enabled before confirmation")
	}

	code, _ := auth.ComputeTOTPCode(enr.Secret, time.Now().UTC(), auth.DefaultTOTPConfig())
	vr, err := env.svc.VerifyTwoFactor(ctx, testRC, res.ChallengeID, code)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if vr.Status != VerifyAuthenticated || vr.Session == nil {
		t.Fatalf("confirm status %s", vr.Status)
	}

	u, _ = env.users.FindByUsername(ctx, "bob")
	if !u.TOTPEnabled || u.TOTPSecretEnc == "" {
		t.Fatal("totp not persisted after confirmation")
	}
	n, _ := env.twoFA.CountUnusedBackupCodes(ctx, u.ID)
	if n != backupCodeCount {
		t.Fatalf("stored %d backup codes, want %d", n, backupCodeCount)
	}

	// Subsequent logins go through verification, not enrollment.
	res2, _ := env.svc.Login(ctx, testRC, "bob", "S3cure#Passw0rd")
	if res2.Status != LoginTwoFactorRequired {
		t.Fatalf("second login status %s, want two_factor_required", res2.Status)
	}

	// One of the issued backup codes completes verification.
	vr2, err := env.svc.VerifyTwoFactor(ctx, testRC, res2.ChallengeID, enr.BackupCodes[0])
	if err != nil {
		t.Fatalf("backup verify: %v", err)
	}
	if vr2.Status != VerifyAuthenticated {
		t.Fatalf("backup verify status %s", vr2.Status)
	}
}

func TestEnrollmentRegenerationInvalidatesOldSecret(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.AppConfig) {
		cfg.Security.TwoFactorRequired = true
	})
	env.createUser(t, "bob", "S3cure#Passw0rd")
	ctx := context.Background()

	res, _ := env.svc.Login(ctx, testRC, "bob", "S3cure#Passw0rd")
	first, err := env.svc.EnrollTwoFactor(ctx, res.ChallengeID)
	if err != nil {
		t.Fatalf("first enroll: %v", err)
	}
	second, err := env.svc.EnrollTwoFactor(ctx, res.ChallengeID)
	if err != nil {
		t.Fatalf("second enroll: %v", err)
	}
	if first.Secret == second.Secret {
		t.Fatal("regeneration kept the secret")
	}

	oldCode, _ := auth.ComputeTOTPCode(first.Secret, time.Now().UTC(), auth.DefaultTOTPConfig())
	vr, _ := env.svc.VerifyTwoFactor(ctx, testRC, res.ChallengeID, oldCode)
	if vr.Status == VerifyAuthenticated {
		t.Fatal("old secret still accepted after regeneration")
	}
}

func TestIsAuthenticatedFailsClosed(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	rc := testRC
	rc.SessionToken = "no-such-session"
	if _, ok := env.svc.IsAuthenticated(ctx, rc); ok {
		t.Fatal("unknown session accepted")
	}
	rc.SessionToken = ""
	if _, ok := env.svc.IsAuthenticated(ctx, rc); ok {
		t.Fatal("empty session accepted")
	}
}

func TestLogoutInvalidatesSessionAndTokens(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createUser(t, "alice", "S3cure#Passw0rd")
	ctx := context.Background()

	res, _ := env.svc.Login(ctx, testRC, "alice", "S3cure#Passw0rd")
	token, err := env.svc.CSRF().Issue(ctx, res.Session.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if err := env.svc.Logout(ctx, res.Session.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	rc := testRC
	rc.SessionToken = res.Session.ID
	if _, ok := env.svc.IsAuthenticated(ctx, rc); ok {
		t.Fatal("session survived logout")
	}
	rc.CSRFToken = token
	if env.svc.RequireCSRF(ctx, rc) {
		t.Fatal("csrf token survived logout")
	}
	// Logout of an unknown session is a no-op.
	if err := env.svc.Logout(ctx, "no-such-session"); err != nil {
		t.Fatalf("idempotent logout: %v", err)
	}
}

func TestRequireCSRF(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createUser(t, "alice", "S3cure#Passw0rd")
	ctx := context.Background()

	res, _ := env.svc.Login(ctx, testRC, "alice", "S3cure#Passw0rd")
	token, _ := env.svc.CSRF().Issue(ctx, res.Session.ID)

	rc := testRC
	rc.SessionToken = res.Session.ID
	rc.CSRFToken = token
	if !env.svc.RequireCSRF(ctx, rc) {
		t.Fatal("valid token rejected")
	}
	rc.CSRFToken = "forged-token"
	if env.svc.RequireCSRF(ctx, rc) {
		t.Fatal("forged token accepted")
	}
}

func TestRemoveUserInvalidatesEverything(t *testing.T) {
	env := newTestEnv(t, nil)
	uid := env.createUser(t, "alice", "S3cure#Passw0rd")
	ctx := context.Background()

	res, _ := env.svc.Login(ctx, testRC, "alice", "S3cure#Passw0rd")
	if err := env.svc.RemoveUser(ctx, uid); err != nil {
		t.Fatalf("remove: %v", err)
	}
	rc := testRC
	rc.SessionToken = res.Session.ID
	if _, ok := env.svc.IsAuthenticated(ctx, rc); ok {
		t.Fatal("session survived user removal")
	}
	if u, _ := env.users.Get(ctx, uid); u != nil {
		t.Fatal("user row survived removal")
	}
}

func TestInactiveUserCannotLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	uid := env.createUser(t, "alice", "S3cure#Passw0rd")
	ctx := context.Background()

	res, _ := env.svc.Login(ctx, testRC, "alice", "S3cure#Passw0rd")
	if err := env.users.SetActive(ctx, uid, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	// Existing session dies on next check.
	rc := testRC
	rc.SessionToken = res.Session.ID
	if _, ok := env.svc.IsAuthenticated(ctx, rc); ok {
		t.Fatal("deactivated user's session accepted")
	}
	// And fresh logins look like unknown users.
	again, _ := env.svc.Login(ctx, testRC, "alice", "S3cure#Passw0rd")
	if again.Status != LoginInvalidCredentials {
		t.Fatalf("status %s, want invalid_credentials", again.Status)
	}
}
