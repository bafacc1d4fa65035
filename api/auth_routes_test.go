package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"trustgate/config"
	"trustgate/core/auth"
	"trustgate/core/login"
	"trustgate/core/store"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server, *http.Client) {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver:    "sqlite",
		DBPath:      filepath.Join(t.TempDir(), "api.db"),
		Pepper:      "test-pepper",
		Issuer:      "Trustgate",
		AppEnv:      "dev",
		SessionTTL:  time.Hour,
		IdleTimeout: 30 * time.Minute,
		Security: config.SecurityConfig{
			MaxFailedAttempts: 5,
			LockoutDuration:   15 * time.Minute,
			AlertWindow:       15 * time.Minute,
			BruteForceLimit:   100,
			SuspiciousPerHour: 3,
			ChallengeTTL:      10 * time.Minute,
			TOTPSkew:          1,
		},
		CSRF:    config.CSRFConfig{AuthTTL: time.Hour, PreAuthTTL: 15 * time.Minute},
		Janitor: config.JanitorConfig{Enabled: false},
	}
	db, err := store.NewDB(cfg, nil)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, "sqlite", nil); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	srv := NewServer(cfg, db, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	jar, _ := cookiejar.New(nil)
	return srv, ts, &http.Client{Jar: jar}
}

func createAPIUser(t *testing.T, srv *Server, username, password string) int64 {
	t.Helper()
	ph := auth.MustHashPassword(password, srv.cfg.Pepper)
	id, err := srv.users.Create(context.Background(), &store.User{
		Username:     username,
		PasswordHash: ph.Hash,
		Salt:         ph.Salt,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return id
}

func fetchCSRF(t *testing.T, ts *httptest.Server, client *http.Client) string {
	t.Helper()
	resp, err := client.Get(ts.URL + "/api/auth/csrf")
	if err != nil {
		t.Fatalf("csrf fetch: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("csrf fetch status %d", resp.StatusCode)
	}
	var body struct {
		Token string `json:"csrf_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("csrf decode: %v", err)
	}
	if body.Token == "" {
		t.Fatal("empty csrf token")
	}
	return body.Token
}

func postJSON(t *testing.T, client *http.Client, url, csrfToken string, payload any) *http.Response {
	t.Helper()
	raw, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if csrfToken != "" {
		req.Header.Set("X-CSRF-Token", csrfToken)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func TestLoginLogoutFlow(t *testing.T) {
	srv, ts, client := newTestServer(t)
	createAPIUser(t, srv, "alice", "S3cure#Passw0rd")

	token := fetchCSRF(t, ts, client)
	resp := postJSON(t, client, ts.URL+"/api/auth/login", token, map[string]string{
		"username": "alice",
		"password": "S3cure#Passw0rd",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	var loginBody struct {
		Status    string `json:"status"`
		Username  string `json:"username"`
		CSRFToken string `json:"csrf_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginBody); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if loginBody.Status != "authenticated" || loginBody.Username != "alice" || loginBody.CSRFToken == "" {
		t.Fatalf("unexpected login body: %+v", loginBody)
	}

	meResp, err := client.Get(ts.URL + "/api/auth/me")
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	defer meResp.Body.Close()
	if meResp.StatusCode != http.StatusOK {
		t.Fatalf("me status %d", meResp.StatusCode)
	}

	outResp := postJSON(t, client, ts.URL+"/api/auth/logout", loginBody.CSRFToken, map[string]string{})
	defer outResp.Body.Close()
	if outResp.StatusCode != http.StatusOK {
		t.Fatalf("logout status %d", outResp.StatusCode)
	}

	afterResp, err := client.Get(ts.URL + "/api/auth/me")
	if err != nil {
		t.Fatalf("me after logout: %v", err)
	}
	defer afterResp.Body.Close()
	if afterResp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me after logout status %d, want 401", afterResp.StatusCode)
	}
}

func TestLoginWithoutCSRFTokenIsRejected(t *testing.T) {
	srv, ts, client := newTestServer(t)
	createAPIUser(t, srv, "alice", "S3cure#Passw0rd")

	resp := postJSON(t, client, ts.URL+"/api/auth/login", "", map[string]string{
		"username": "alice",
		"password": "S3cure#Passw0rd",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status %d, want 403", resp.StatusCode)
	}
}

func TestMutatingRequestWithForgedCSRFIsRejected(t *testing.T) {
	srv, ts, client := newTestServer(t)
	createAPIUser(t, srv, "alice", "S3cure#Passw0rd")

	token := fetchCSRF(t, ts, client)
	resp := postJSON(t, client, ts.URL+"/api/auth/login", token, map[string]string{
		"username": "alice",
		"password": "S3cure#Passw0rd",
	})
	resp.Body.Close()

	unblockResp := func() *http.Response {
		req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/security/blocklist/10.9.9.9", nil)
		req.Header.Set("X-CSRF-Token", "forged-token")
		r, err := client.Do(req)
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		return r
	}()
	defer unblockResp.Body.Close()
	if unblockResp.StatusCode != http.StatusForbidden {
		t.Fatalf("forged csrf status %d, want 403", unblockResp.StatusCode)
	}
}

func TestScannerRequestsAreServedUntilIPBlocked(t *testing.T) {
	_, ts, _ := newTestServer(t)

	// Each flagged request is still served; detection only writes events
	// until the per-hour threshold trips.
	client := &http.Client{}
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/auth/csrf", nil)
		req.Header.Set("User-Agent", "sqlmap/1.7")
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: status %d, want 200", i, resp.StatusCode)
		}
	}

	// The third strike put the IP on the blocklist; even a clean request is
	// now refused before inspection.
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/auth/csrf", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("clean request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("blocked ip status %d, want 403", resp.StatusCode)
	}
}

func TestLoginUsernameIsCaseSensitive(t *testing.T) {
	srv, ts, client := newTestServer(t)
	createAPIUser(t, srv, "Alice.Smith", "S3cure#Passw0rd")

	token := fetchCSRF(t, ts, client)
	resp := postJSON(t, client, ts.URL+"/api/auth/login", token, map[string]string{
		"username": "Alice.Smith",
		"password": "S3cure#Passw0rd",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "authenticated" {
		t.Fatalf("status %q, want authenticated", body.Status)
	}

	// The lowercased variant is a different key and must not match.
	res, err := srv.login.Login(context.Background(), auth.RequestContext{IP: "10.1.1.1", UserAgent: "test"}, "alice.smith", "S3cure#Passw0rd")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Status != login.LoginInvalidCredentials {
		t.Fatalf("status %v, want invalid credentials", res.Status)
	}
}

func TestHealthzAndMetricsAuth(t *testing.T) {
	_, ts, client := newTestServer(t)

	resp, err := client.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}

	// Metrics are disabled in this config; the route is absent.
	mResp, err := client.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer mResp.Body.Close()
	if mResp.StatusCode == http.StatusOK {
		t.Fatal("metrics served without being enabled")
	}
}
