package store

import "time"

type User struct {
	ID             int64
	Username       string
	Role           string
	PasswordHash   string
	Salt           string
	Active         bool
	FailedAttempts int
	LockedUntil    *time.Time
	TOTPEnabled    bool
	TOTPSecretEnc  string
	LastLoginAt    *time.Time
	LastFailedAt   *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type SessionRecord struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"user_id"`
	Username   string    `json:"username"`
	IP         string    `json:"ip"`
	UserAgent  string    `json:"user_agent"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

type CSRFTokenRecord struct {
	Token     string
	Scope     string
	SingleUse bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

const (
	ChallengeKindTOTP   = "totp"
	ChallengeKindEnroll = "enroll"
)

// ChallengeRecord is the short-lived pending-login marker between a verified
// password and a completed second factor. Enrollment challenges also carry the
// candidate secret (encrypted) and the hashes of the backup codes handed to
// the user, persisted to the account only on confirmation.
type ChallengeRecord struct {
	ID         string
	UserID     int64
	Kind       string
	SecretEnc  string
	CodeHashes []BackupCodeHash
	IP         string
	UserAgent  string
	RedirectTo string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

type BackupCodeHash struct {
	Hash string `json:"hash"`
	Salt string `json:"salt"`
}

type BackupCodeRecord struct {
	ID        int64
	UserID    int64
	Hash      string
	Salt      string
	CreatedAt time.Time
	UsedAt    *time.Time
}

type LoginAttempt struct {
	ID        int64     `json:"id"`
	IP        string    `json:"ip"`
	Username  string    `json:"username"`
	Success   bool      `json:"success"`
	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventFailedLogin         EventType = "failed_login"
	EventBruteForceDetected  EventType = "brute_force_detected"
	EventCSRFInvalid         EventType = "csrf_invalid"
	EventSuspiciousRequest   EventType = "suspicious_request"
	EventSuspiciousIP        EventType = "suspicious_ip_detected"
	EventIPBlocked           EventType = "ip_blocked"
	EventAccountLocked       EventType = "account_locked"
	EventTwoFactorRequired   EventType = "twofactor_required"
	EventTwoFactorFailed     EventType = "twofactor_failed"
	EventTwoFactorVerified   EventType = "twofactor_verified"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type SecurityEvent struct {
	ID        int64     `json:"id"`
	Type      EventType `json:"event_type"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Details   string    `json:"details"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

type BlockedIP struct {
	IP        string    `json:"ip"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
