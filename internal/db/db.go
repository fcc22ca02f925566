package db

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"careershift/internal/config"
)

// Connect opens a GORM database connection using APP_DATABASE_URL and
// migrates the schema.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	db, err := Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Open accepts postgres:// and postgresql:// URLs, or sqlite://<path> for
// local development and tests (e.g. sqlite://file:test?mode=memory&cache=shared).
func Open(url string) (*gorm.DB, error) {
	dsn := strings.TrimSpace(url)
	if dsn == "" {
		return nil, errors.New("APP_DATABASE_URL is required (PostgreSQL or sqlite:// URL)")
	}

	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		dialector = postgres.Open(dsn)
	case strings.HasPrefix(dsn, "sqlite://"):
		dialector = sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
	default:
		return nil, errors.New("APP_DATABASE_URL must be a postgres://, postgresql:// or sqlite:// URL")
	}

	// PrepareStmt: true prevents the GORM postgres migrator from forcing simple protocol
	// for "SELECT * FROM table LIMIT 1", which would otherwise trigger "insufficient arguments".
	// TranslateError maps unique violations to gorm.ErrDuplicatedKey, which the
	// revision and payment stores rely on.
	return gorm.Open(dialector, &gorm.Config{PrepareStmt: true, TranslateError: true})
}

// Migrate creates or updates the core tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &Roadmap{}, &Payment{}, &PaymentEvent{}, &RevisionRequest{}, &RateLimitEntry{})
}

// EnsureBootstrapAdmin makes sure there is at least one admin user
// corresponding to the bootstrap credentials in config. If a user with
// that email already exists, it is promoted to admin but otherwise left as-is.
func EnsureBootstrapAdmin(db *gorm.DB, cfg *config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))

	var existing User
	if err := db.Where("email = ?", email).Limit(1).Find(&existing).Error; err != nil {
		return err
	}
	if existing.ID != 0 {
		if existing.IsAdmin {
			return nil
		}
		return db.Model(&existing).Update("is_admin", true).Error
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := &User{
		Email:        email,
		PasswordHash: string(hash),
		Name:         "Administrator",
		Tier:         TierFree,
		IsAdmin:      true,
	}

	return db.Create(admin).Error
}
