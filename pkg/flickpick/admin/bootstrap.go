package admin

import (
	"fmt"
	"log/slog"

	"github.com/mikepea/flickpick/pkg/flickpick/auth"
	"github.com/mikepea/flickpick/pkg/flickpick/models"
	"gorm.io/gorm"
)

const defaultAdminPassword = "changeme"

// EnsureDefaultAdmin creates an admin account when none exists. An empty
// password falls back to a well-known default, which is logged.
func EnsureDefaultAdmin(db *gorm.DB, email, password string, logger *slog.Logger) error {
	var count int64
	if err := db.Model(&models.User{}).Where("system_role = ?", models.SystemRoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	usingDefault := password == ""
	if usingDefault {
		password = defaultAdminPassword
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	user := models.User{Email: email, PasswordHash: hash, SystemRole: models.SystemRoleAdmin}
	if err := db.Create(&user).Error; err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	if usingDefault {
		logger.Warn("created default admin user with default password", "email", email, "password", defaultAdminPassword)
	} else {
		logger.Info("created default admin user", "email", email)
	}
	return nil
}
