package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/autopecas/sigesync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestFileCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"sku": "FL-40", "title": "Filtro de oleo"},
		{"sku": " 000123 ", "title": "Pastilha"},
		{"sku": "", "title": "sem sku"},
		{"sku": "FL-40", "title": "duplicado"}
	]`), 0o600))

	products, err := NewFileCatalog(path).ListLocalProducts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []domain.LocalProduct{
		{SKU: "FL-40", Title: "Filtro de oleo"},
		{SKU: "000123", Title: "Pastilha"},
	}, products)
}

func TestFileCatalog_Errors(t *testing.T) {
	_, err := NewFileCatalog(filepath.Join(t.TempDir(), "missing.json")).ListLocalProducts(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sku": 1}`), 0o600))
	_, err = NewFileCatalog(path).ListLocalProducts(context.Background())
	assert.Error(t, err)
}

type productRow struct {
	ID    uint `gorm:"primaryKey"`
	SKU   string
	Title string
	Price float64
}

func TestGormCatalog(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "shop.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Table("shop_products").AutoMigrate(&productRow{}))
	require.NoError(t, db.Table("shop_products").Create([]productRow{
		{SKU: "B-2", Title: "Bieleta", Price: 10},
		{SKU: "A-1", Title: "Amortecedor", Price: 20},
		{SKU: "", Title: "rascunho"},
	}).Error)

	products, err := NewGormCatalog(db, "shop_products").ListLocalProducts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []domain.LocalProduct{
		{SKU: "A-1", Title: "Amortecedor"},
		{SKU: "B-2", Title: "Bieleta"},
	}, products)
}
