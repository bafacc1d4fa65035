package config

import (
	"fmt"
	"strings"
)

const defaultPepper = "dev-only-pepper-change-me"

func Validate(cfg *AppConfig) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	driver := cfg.DBDriver
	if driver == "" {
		driver = "postgres"
	}
	switch driver {
	case "postgres", "pg":
		if cfg.DBURL == "" {
			return fmt.Errorf("db_url must be set for postgres driver")
		}
	case "sqlite":
		if cfg.DBPath == "" {
			return fmt.Errorf("db_path must be set for sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported db_driver: %s", cfg.DBDriver)
	}
	if strings.TrimSpace(cfg.Pepper) == "" {
		return fmt.Errorf("pepper must be set via env")
	}
	if cfg.AppEnv != "dev" {
		if cfg.Pepper == defaultPepper {
			return fmt.Errorf("default pepper is not allowed outside APP_ENV=dev")
		}
		if !cfg.TLSEnabled {
			return fmt.Errorf("tls_enabled=false is only allowed in APP_ENV=dev")
		}
	}
	if cfg.SessionTTL < 0 {
		return fmt.Errorf("session_ttl must not be negative")
	}
	if cfg.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout must not be negative")
	}
	if cfg.Security.LockoutDuration < 0 {
		return fmt.Errorf("security.lockout_duration must not be negative")
	}
	if cfg.Security.ChallengeTTL < 0 {
		return fmt.Errorf("security.challenge_ttl must not be negative")
	}
	return nil
}
