package login

import (
	"errors"
	"time"

	"trustgate/core/store"
)

var (
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrChallengeExpired  = errors.New("challenge expired")
)

type LoginStatus int

const (
	LoginAuthenticated LoginStatus = iota
	LoginInvalidCredentials
	LoginAccountLocked
	LoginIPBlocked
	LoginTwoFactorRequired
	LoginTwoFactorSetupRequired
)

func (s LoginStatus) String() string {
	switch s {
	case LoginAuthenticated:
		return "authenticated"
	case LoginInvalidCredentials:
		return "invalid_credentials"
	case LoginAccountLocked:
		return "account_locked"
	case LoginIPBlocked:
		return "ip_blocked"
	case LoginTwoFactorRequired:
		return "two_factor_required"
	case LoginTwoFactorSetupRequired:
		return "two_factor_setup_required"
	}
	return "unknown"
}

// LoginResult is the outcome of the first authentication factor. Session is
// set only for LoginAuthenticated; ChallengeID only for the two pending
// states.
type LoginResult struct {
	Status             LoginStatus
	Session            *store.SessionRecord
	ChallengeID        string
	ChallengeExpiresAt time.Time
	LockedUntil        time.Time
}

type VerifyStatus int

const (
	VerifyAuthenticated VerifyStatus = iota
	VerifyInvalidCode
	VerifyExpired
	VerifyNotFound
)

func (s VerifyStatus) String() string {
	switch s {
	case VerifyAuthenticated:
		return "authenticated"
	case VerifyInvalidCode:
		return "invalid_code"
	case VerifyExpired:
		return "expired"
	case VerifyNotFound:
		return "not_found"
	}
	return "unknown"
}

type VerifyResult struct {
	Status  VerifyStatus
	Session *store.SessionRecord
	// BackupCodesLeft is meaningful only when a backup code was consumed.
	BackupCodesLeft int
	UsedBackupCode  bool
}

// Enrollment is handed to the user exactly once; only hashes of the backup
// codes survive server-side.
type Enrollment struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}
