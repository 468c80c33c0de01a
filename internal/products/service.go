// Package products serves the read-only product catalogue.
package products

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarcoPoloResearchLab/roster/internal/records"
)

//go:embed catalogue.yaml
var catalogueYAML []byte

var (
	errMissingDatabase = errors.New("products: database connection required")
	// ErrProductNotFound reports that no product carries the requested id.
	ErrProductNotFound = errors.New("products: product not found")
)

// ProductRecord is the persisted form of a records.Product.
type ProductRecord struct {
	ProductID   int     `gorm:"column:product_id;primaryKey;autoIncrement:false" yaml:"id"`
	Title       string  `gorm:"column:title;size:190" yaml:"title"`
	Brand       string  `gorm:"column:brand;size:190" yaml:"brand"`
	Category    string  `gorm:"column:category;size:190" yaml:"category"`
	Price       float64 `gorm:"column:price" yaml:"price"`
	Rating      float64 `gorm:"column:rating" yaml:"rating"`
	Stock       int     `gorm:"column:stock" yaml:"stock"`
	Description string  `gorm:"column:description;size:1024" yaml:"description"`
}

// TableName exposes the table backing the catalogue.
func (ProductRecord) TableName() string {
	return "products"
}

func (p ProductRecord) toProduct() records.Product {
	return records.Product{
		ID:          p.ProductID,
		Title:       p.Title,
		Brand:       p.Brand,
		Category:    p.Category,
		Price:       p.Price,
		Rating:      p.Rating,
		Stock:       p.Stock,
		Description: p.Description,
	}.Normalize()
}

// Catalogue parses the bundled product catalogue.
func Catalogue() ([]ProductRecord, error) {
	var rows []ProductRecord
	if err := yaml.Unmarshal(catalogueYAML, &rows); err != nil {
		return nil, fmt.Errorf("products: parse catalogue: %w", err)
	}
	return rows, nil
}

// Seed inserts the bundled catalogue, leaving existing ids untouched.
func Seed(db *gorm.DB) error {
	rows, err := Catalogue()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

// ServiceConfig describes the dependencies of the catalogue service.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service reads products.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService constructs the catalogue service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

// List returns every product ordered by id, blank text fields filled in.
func (s *Service) List(ctx context.Context) ([]records.Product, error) {
	var rows []ProductRecord
	if err := s.db.WithContext(ctx).Order("product_id ASC").Find(&rows).Error; err != nil {
		s.logger.Error("product list failed", zap.Error(err))
		return nil, fmt.Errorf("products: list: %w", err)
	}
	out := make([]records.Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toProduct())
	}
	return out, nil
}

// Get returns the product with id.
func (s *Service) Get(ctx context.Context, id int) (records.Product, error) {
	var row ProductRecord
	err := s.db.WithContext(ctx).Where("product_id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return records.Product{}, ErrProductNotFound
	}
	if err != nil {
		return records.Product{}, fmt.Errorf("products: get: %w", err)
	}
	return row.toProduct(), nil
}
