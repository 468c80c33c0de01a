package products

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "products.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&ProductRecord{}); err != nil {
		t.Fatalf("failed to migrate products: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func TestSeedIsIdempotent(t *testing.T) {
	service, db := newTestService(t)
	catalogue, err := Catalogue()
	if err != nil {
		t.Fatalf("catalogue failed: %v", err)
	}

	if err := Seed(db); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := Seed(db); err != nil {
		t.Fatalf("second seed failed: %v", err)
	}

	listed, err := service.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != len(catalogue) {
		t.Fatalf("expected %d products, got %d", len(catalogue), len(listed))
	}
	if listed[0].ID != 1 {
		t.Fatalf("expected products ordered by id, got first %d", listed[0].ID)
	}
}

func TestGetFillsPlaceholders(t *testing.T) {
	service, db := newTestService(t)
	if err := db.Create(&ProductRecord{ProductID: 40, Title: "Widget", Price: 2.5}).Error; err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	product, err := service.Get(context.Background(), 40)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if product.Brand != "N/A" || product.Description != "N/A" || product.Title != "Widget" {
		t.Fatalf("expected placeholders for blank fields, got %+v", product)
	}

	if _, err := service.Get(context.Background(), 41); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
