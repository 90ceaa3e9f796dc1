package catalog

import (
	"context"
	"fmt"

	"github.com/autopecas/sigesync/internal/domain"
	"gorm.io/gorm"
)

// GormCatalog reads local products from the storefront's product table
type GormCatalog struct {
	db    *gorm.DB
	table string
}

// NewGormCatalog reads the sku and title columns of table
func NewGormCatalog(db *gorm.DB, table string) *GormCatalog {
	if table == "" {
		table = "products"
	}
	return &GormCatalog{db: db, table: table}
}

func (c *GormCatalog) ListLocalProducts(ctx context.Context) ([]domain.LocalProduct, error) {
	var products []domain.LocalProduct
	err := c.db.WithContext(ctx).
		Table(c.table).
		Select("sku", "title").
		Where("sku IS NOT NULL AND sku <> ''").
		Order("sku").
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("list local products: %w", err)
	}
	return dedupe(products), nil
}
