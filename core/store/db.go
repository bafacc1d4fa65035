package store

import (
	"database/sql"
	"errors"
	"strings"

	"trustgate/config"
	"trustgate/core/utils"

	_ "modernc.org/sqlite"
)

func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*sql.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	if driver == "" {
		if strings.TrimSpace(cfg.DBPath) != "" && strings.TrimSpace(cfg.DBURL) == "" {
			driver = "sqlite"
		} else {
			driver = "postgres"
		}
	}
	switch driver {
	case "postgres", "pg":
		if strings.TrimSpace(cfg.DBURL) == "" {
			return nil, errors.New("TRUSTGATE_DB_URL is required for postgres")
		}
		db, err := sql.Open(postgresDriverName, cfg.DBURL)
		if err != nil {
			if logger != nil {
				logger.Errorf("db open failed: %v", err)
			}
			return nil, err
		}
		if logger != nil {
			logger.Printf("db open postgres")
		}
		return db, nil
	case "sqlite":
		if strings.TrimSpace(cfg.DBPath) == "" {
			return nil, errors.New("DBPath is required for sqlite")
		}
		db, err := sql.Open("sqlite", cfg.DBPath)
		if err != nil {
			if logger != nil {
				logger.Errorf("db open failed: %v", err)
			}
			return nil, err
		}
		// Per-key write atomicity relies on a single writer.
		db.SetMaxOpenConns(1)
		if logger != nil {
			logger.Printf("db open sqlite")
		}
		return db, nil
	default:
		return nil, errors.New("unsupported db driver: " + driver)
	}
}

func DriverName(cfg *config.AppConfig) string {
	driver := strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	if driver == "" && strings.TrimSpace(cfg.DBPath) != "" && strings.TrimSpace(cfg.DBURL) == "" {
		return "sqlite"
	}
	if driver == "" || driver == "pg" {
		return "postgres"
	}
	return driver
}
