package config

import (
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	defaultConfigPath = "config/app.yaml"
	envPrefix         = "TRUSTGATE_"
)

func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	cfgPath := resolveConfigPath()
	if st, err := os.Stat(cfgPath); err == nil && !st.IsDir() {
		if err := cleanenv.ReadConfig(cfgPath, cfg); err != nil {
			return nil, err
		}
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, err
	}
	applyEnvAliases(cfg)
	normalizeConfig(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveConfigPath() string {
	if v := strings.TrimSpace(os.Getenv(envPrefix + "CONFIG")); v != "" {
		return v
	}
	return defaultConfigPath
}

// Short aliases for operators who do not want the full prefix.
func applyEnvAliases(cfg *AppConfig) {
	if cfg == nil {
		return
	}
	if v := getEnv("PEPPER"); v != "" {
		cfg.Pepper = strings.TrimSpace(v)
	}
	if v := getEnv("ENV", "APP_ENV"); v != "" {
		cfg.AppEnv = strings.TrimSpace(v)
	}
	if v := getEnv("PORT"); v != "" {
		cfg.ListenAddr = listenAddrWithPort(cfg.ListenAddr, v)
	}
	if v := getEnv("DB_URL", "DATABASE_URL"); v != "" {
		cfg.DBURL = strings.TrimSpace(v)
	}
}

func normalizeConfig(cfg *AppConfig) {
	if cfg == nil {
		return
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.DBURL = strings.TrimSpace(cfg.DBURL)
	cfg.DBPath = strings.TrimSpace(cfg.DBPath)
	cfg.ListenAddr = strings.TrimSpace(cfg.ListenAddr)
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Pepper = strings.TrimSpace(cfg.Pepper)
	if cfg.Security.MaxFailedAttempts <= 0 {
		cfg.Security.MaxFailedAttempts = 5
	}
	if cfg.Security.TOTPSkew < 0 {
		cfg.Security.TOTPSkew = 0
	}
	if cfg.Security.TOTPSkew > 1 {
		// Wider drift windows weaken the one-time property.
		cfg.Security.TOTPSkew = 1
	}
}

func getEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); strings.TrimSpace(v) != "" {
			return v
		}
		if v := os.Getenv(envPrefix + name); strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func listenAddrWithPort(addr, port string) string {
	port = strings.TrimSpace(strings.TrimPrefix(port, ":"))
	if port == "" {
		return addr
	}
	host := ""
	if idx := strings.LastIndex(addr, ":"); idx >= 0 {
		host = addr[:idx]
	}
	return host + ":" + port
}
