package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/roster/internal/records"
)

func newTestAccountService(t *testing.T) (*AccountService, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "accounts.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Account{}); err != nil {
		t.Fatalf("failed to migrate accounts: %v", err)
	}
	service, err := NewAccountService(AccountServiceConfig{Database: db, HashCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func TestAccountServiceRegisterAndAuthenticate(t *testing.T) {
	service, db := newTestAccountService(t)
	ctx := context.Background()

	account, err := service.Register(ctx, Registration{
		Name:            " Jane Doe ",
		Email:           "Jane@Example.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if account.Email != "jane@example.com" || account.Name != "Jane Doe" {
		t.Fatalf("expected normalized account, got %+v", account)
	}

	var stored Account
	if err := db.Where("account_id = ?", account.ID).Take(&stored).Error; err != nil {
		t.Fatalf("expected stored account: %v", err)
	}
	if stored.PasswordHash == "secret1" {
		t.Fatalf("password must be stored hashed")
	}

	if _, err := service.Authenticate(ctx, "JANE@example.com", "secret1"); err != nil {
		t.Fatalf("expected authentication success: %v", err)
	}
	if _, err := service.Authenticate(ctx, "jane@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := service.Authenticate(ctx, "nobody@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}
}

func TestAccountServiceRejectsDuplicateEmail(t *testing.T) {
	service, _ := newTestAccountService(t)
	ctx := context.Background()
	registration := Registration{Name: "Jane", Email: "jane@example.com", Password: "secret1"}

	if _, err := service.Register(ctx, registration); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	registration.Email = "JANE@example.com"
	if _, err := service.Register(ctx, registration); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected duplicate email error, got %v", err)
	}
}

func TestAccountServiceValidatesRegistration(t *testing.T) {
	service, _ := newTestAccountService(t)

	_, err := service.Register(context.Background(), Registration{
		Name:            "Jane",
		Email:           "jane@example.com",
		Password:        "secret1",
		ConfirmPassword: "secret2",
	})
	var validationErr *records.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if validationErr.Fields["confirmPassword"] != "Passwords do not match" {
		t.Fatalf("unexpected field errors %v", validationErr.Fields)
	}
}

func TestAccountServiceRenameRefreshesLookup(t *testing.T) {
	service, _ := newTestAccountService(t)
	ctx := context.Background()

	account, err := service.Register(ctx, Registration{Name: "Jane", Email: "jane@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := service.Lookup(ctx, account.ID); err != nil {
		t.Fatalf("lookup failed: %v", err)
	}

	renamed, err := service.Rename(ctx, account.ID, "Janet")
	if err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if renamed.Name != "Janet" {
		t.Fatalf("expected renamed account, got %+v", renamed)
	}
	cached, err := service.Lookup(ctx, account.ID)
	if err != nil || cached.Name != "Janet" {
		t.Fatalf("expected lookup to observe rename, got %+v (%v)", cached, err)
	}

	if _, err := service.Rename(ctx, account.ID, ""); err == nil {
		t.Fatalf("expected empty name to be rejected")
	}
	if _, err := service.Rename(ctx, "missing", "Name"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := service.Lookup(ctx, "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
