package config

import "time"

type AppConfig struct {
	DBDriver    string        `yaml:"db_driver" env:"TRUSTGATE_DB_DRIVER"`
	DBURL       string        `yaml:"db_url" env:"TRUSTGATE_DB_URL"`
	DBPath      string        `yaml:"db_path" env:"TRUSTGATE_DB_PATH"`
	ListenAddr  string        `yaml:"listen_addr" env:"TRUSTGATE_LISTEN_ADDR" env-default:":8443"`
	AppEnv      string        `yaml:"app_env" env:"TRUSTGATE_APP_ENV" env-default:"dev"`
	Issuer      string        `yaml:"issuer" env:"TRUSTGATE_ISSUER" env-default:"Trustgate"`
	Pepper      string        `yaml:"pepper" env:"TRUSTGATE_PEPPER"`
	TLSEnabled  bool          `yaml:"tls_enabled" env:"TRUSTGATE_TLS_ENABLED"`
	TLSCert     string        `yaml:"tls_cert" env:"TRUSTGATE_TLS_CERT"`
	TLSKey      string        `yaml:"tls_key" env:"TRUSTGATE_TLS_KEY"`
	SessionTTL  time.Duration `yaml:"session_ttl" env:"TRUSTGATE_SESSION_TTL" env-default:"12h"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"TRUSTGATE_IDLE_TIMEOUT" env-default:"30m"`

	Security      SecurityConfig      `yaml:"security"`
	CSRF          CSRFConfig          `yaml:"csrf"`
	Janitor       JanitorConfig       `yaml:"janitor"`
	Retention     RetentionConfig     `yaml:"retention"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type SecurityConfig struct {
	MaxFailedAttempts int           `yaml:"max_failed_attempts" env:"TRUSTGATE_MAX_FAILED_ATTEMPTS" env-default:"5"`
	LockoutDuration   time.Duration `yaml:"lockout_duration" env:"TRUSTGATE_LOCKOUT_DURATION" env-default:"15m"`
	AlertWindow       time.Duration `yaml:"alert_window" env:"TRUSTGATE_ALERT_WINDOW" env-default:"15m"`
	BruteForceLimit   int           `yaml:"brute_force_limit" env:"TRUSTGATE_BRUTE_FORCE_LIMIT" env-default:"5"`
	SuspiciousPerHour int           `yaml:"suspicious_per_hour" env:"TRUSTGATE_SUSPICIOUS_PER_HOUR" env-default:"3"`
	ChallengeTTL      time.Duration `yaml:"challenge_ttl" env:"TRUSTGATE_CHALLENGE_TTL" env-default:"10m"`
	TwoFactorRequired bool          `yaml:"two_factor_required" env:"TRUSTGATE_TWO_FACTOR_REQUIRED"`
	TOTPSkew          int           `yaml:"totp_skew" env:"TRUSTGATE_TOTP_SKEW" env-default:"1"`
	TrustedProxies    []string      `yaml:"trusted_proxies" env:"TRUSTGATE_TRUSTED_PROXIES"`
}

type CSRFConfig struct {
	AuthTTL    time.Duration `yaml:"auth_ttl" env:"TRUSTGATE_CSRF_AUTH_TTL" env-default:"12h"`
	PreAuthTTL time.Duration `yaml:"pre_auth_ttl" env:"TRUSTGATE_CSRF_PRE_AUTH_TTL" env-default:"15m"`
}

type JanitorConfig struct {
	Enabled  bool   `yaml:"enabled" env:"TRUSTGATE_JANITOR_ENABLED" env-default:"true"`
	Schedule string `yaml:"schedule" env:"TRUSTGATE_JANITOR_SCHEDULE" env-default:"@every 5m"`
}

// Ledger rows are append-only; retention is the only pruning policy.
type RetentionConfig struct {
	LoginAttempts  time.Duration `yaml:"login_attempts" env:"TRUSTGATE_RETAIN_LOGIN_ATTEMPTS" env-default:"2160h"`
	SecurityEvents time.Duration `yaml:"security_events" env:"TRUSTGATE_RETAIN_SECURITY_EVENTS" env-default:"4320h"`
}

type ObservabilityConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled" env:"TRUSTGATE_METRICS_ENABLED"`
	MetricsToken   string `yaml:"metrics_token" env:"TRUSTGATE_METRICS_TOKEN"`
}

// The fallbacks kick in only for the zero value (field never set). Explicit
// durations, including non-positive ones, are honored as configured;
// Validate refuses negatives for deployments.
func (c *AppConfig) EffectiveSessionTTL() time.Duration {
	if c == nil || c.SessionTTL == 0 {
		return 12 * time.Hour
	}
	return c.SessionTTL
}

func (c *AppConfig) EffectiveIdleTimeout() time.Duration {
	if c == nil || c.IdleTimeout == 0 {
		return 30 * time.Minute
	}
	return c.IdleTimeout
}
