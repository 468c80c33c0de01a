package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/roster/internal/records"
)

const defaultAccountCacheTTL = 5 * time.Minute

var (
	ErrMissingAccountDatabase = errors.New("accounts: database connection required")
	ErrEmailTaken             = errors.New("accounts: user already exists with this email")
	ErrInvalidCredentials     = errors.New("accounts: invalid email or password")
	ErrAccountNotFound        = errors.New("accounts: account not found")
)

// Account is a registered login. The password hash never leaves the service.
type Account struct {
	ID           string    `gorm:"column:account_id;primaryKey;size:64"`
	Name         string    `gorm:"column:name;size:50;not null"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	PasswordHash string    `gorm:"column:password_hash;size:255;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing accounts.
func (Account) TableName() string {
	return "accounts"
}

// Registration is the sign-up payload.
type Registration struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// AccountServiceConfig describes the dependencies of AccountService.
type AccountServiceConfig struct {
	Database *gorm.DB
	Schema   *records.Schema
	CacheTTL time.Duration
	HashCost int
	Logger   *zap.Logger
}

// AccountService registers, authenticates and renames accounts. Lookups by
// id are served from a short-lived cache.
type AccountService struct {
	db       *gorm.DB
	schema   *records.Schema
	hashCost int
	cache    *ttlcache.Cache[string, Account]
	logger   *zap.Logger
}

// NewAccountService constructs the account service.
func NewAccountService(cfg AccountServiceConfig) (*AccountService, error) {
	if cfg.Database == nil {
		return nil, ErrMissingAccountDatabase
	}
	schema := cfg.Schema
	if schema == nil {
		schema = records.NewSchema(nil)
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultAccountCacheTTL
	}
	cost := cfg.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cache := ttlcache.New[string, Account](
		ttlcache.WithTTL[string, Account](ttl),
		ttlcache.WithDisableTouchOnHit[string, Account](),
	)
	return &AccountService{
		db:       cfg.Database,
		schema:   schema,
		hashCost: cost,
		cache:    cache,
		logger:   logger,
	}, nil
}

// Register validates the registration and stores a new account with a
// hashed password.
func (s *AccountService) Register(ctx context.Context, registration Registration) (Account, error) {
	if err := s.schema.ValidateAccount(registration.Name, registration.Email, registration.Password, registration.ConfirmPassword); err != nil {
		return Account{}, err
	}
	email := normalizeEmail(registration.Email)

	hash, err := bcrypt.GenerateFromPassword([]byte(registration.Password), s.hashCost)
	if err != nil {
		return Account{}, fmt.Errorf("accounts: hash password: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return Account{}, fmt.Errorf("accounts: generate id: %w", err)
	}
	account := Account{
		ID:           id.String(),
		Name:         strings.TrimSpace(registration.Name),
		Email:        email,
		PasswordHash: string(hash),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Account{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrEmailTaken
		}
		return tx.Create(&account).Error
	})
	if err != nil {
		if !errors.Is(err, ErrEmailTaken) {
			s.logger.Error("account registration failed", zap.String("email", email), zap.Error(err))
		}
		return Account{}, err
	}
	s.logger.Info("account registered", zap.String("account_id", account.ID))
	return account, nil
}

// Authenticate returns the account matching email and password.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (Account, error) {
	var account Account
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return Account{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	s.cache.Set(account.ID, account, ttlcache.DefaultTTL)
	return account, nil
}

// Lookup returns the account with id.
func (s *AccountService) Lookup(ctx context.Context, id string) (Account, error) {
	if item := s.cache.Get(id); item != nil {
		return item.Value(), nil
	}
	var account Account
	err := s.db.WithContext(ctx).Where("account_id = ?", id).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, err
	}
	s.cache.Set(account.ID, account, ttlcache.DefaultTTL)
	return account, nil
}

// Rename validates and stores a new display name.
func (s *AccountService) Rename(ctx context.Context, id, name string) (Account, error) {
	if err := s.schema.ValidateProfileName(name); err != nil {
		return Account{}, err
	}
	s.cache.Delete(id)
	result := s.db.WithContext(ctx).Model(&Account{}).
		Where("account_id = ?", id).
		Update("name", strings.TrimSpace(name))
	if result.Error != nil {
		return Account{}, result.Error
	}
	if result.RowsAffected == 0 {
		return Account{}, ErrAccountNotFound
	}
	return s.Lookup(ctx, id)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
