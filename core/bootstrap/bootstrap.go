package bootstrap

import (
	"context"
	"database/sql"
	"os"

	"trustgate/config"
	"trustgate/core/auth"
	"trustgate/core/store"
	"trustgate/core/utils"
)

// EnsureDefaultAdmin ensures the admin account exists.
func EnsureDefaultAdmin(ctx context.Context, db *sql.DB, cfg *config.AppConfig, logger *utils.Logger) error {
	return EnsureDefaultAdminWithStore(ctx, store.NewUsersStore(db), cfg, logger)
}

// EnsureDefaultAdminWithStore ensures the admin account exists using the
// provided store (useful outside main bootstrap). The initial password comes
// from TRUSTGATE_ADMIN_PASSWORD when set and must be rotated on first use.
func EnsureDefaultAdminWithStore(ctx context.Context, us store.UsersStore, cfg *config.AppConfig, logger *utils.Logger) error {
	existing, err := us.FindByUsername(ctx, "admin")
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	password := os.Getenv("TRUSTGATE_ADMIN_PASSWORD")
	if password == "" {
		password = "admin"
	}
	ph := auth.MustHashPassword(password, cfg.Pepper)
	u := &store.User{
		Username:     "admin",
		Role:         "admin",
		PasswordHash: ph.Hash,
		Salt:         ph.Salt,
		Active:       true,
	}
	_, err = us.Create(ctx, u)
	if err == nil && logger != nil {
		logger.Printf("default admin created; password must be changed")
	}
	return err
}
