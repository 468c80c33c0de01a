package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/roster/internal/auth"
	"github.com/MarcoPoloResearchLab/roster/internal/products"
	"github.com/MarcoPoloResearchLab/roster/internal/users"
)

// Options toggles optional startup migrations.
type Options struct {
	SeedProducts bool
}

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, options Options, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&users.UserRecord{}, &products.ProductRecord{}, &auth.Account{}, &migrationRecord{}); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, migrationsFor(options), logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
