package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/roster/internal/products"
)

const (
	migrationSeedProductCatalogue = "2024-06-01_seed_product_catalogue"
	migrationLowercaseAccountMail = "2024-06-15_lowercase_account_emails"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func migrationsFor(options Options) []migrationDefinition {
	migrations := []migrationDefinition{
		{name: migrationLowercaseAccountMail, apply: lowercaseAccountEmails},
	}
	if options.SeedProducts {
		migrations = append(migrations, migrationDefinition{name: migrationSeedProductCatalogue, apply: products.Seed})
	}
	return migrations
}

func applyMigrations(db *gorm.DB, migrations []migrationDefinition, logger *zap.Logger) error {
	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// lowercaseAccountEmails folds stored account emails so lookups by
// normalized email find accounts created before normalization.
func lowercaseAccountEmails(db *gorm.DB) error {
	return db.Exec("UPDATE accounts SET email = lower(email) WHERE email <> lower(email)").Error
}
