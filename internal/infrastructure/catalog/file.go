package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/autopecas/sigesync/internal/domain"
)

// FileCatalog reads the local catalog from a JSON export: an array of {"sku", "title"}
type FileCatalog struct {
	path string
}

// NewFileCatalog creates a catalog backed by the JSON file at path
func NewFileCatalog(path string) *FileCatalog {
	return &FileCatalog{path: path}
}

// ListLocalProducts reads the file on every call so a fresh export is picked up by the next sync
func (c *FileCatalog) ListLocalProducts(ctx context.Context) ([]domain.LocalProduct, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read local catalog: %w", err)
	}

	var products []domain.LocalProduct
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("parse local catalog %s: %w", c.path, err)
	}
	return dedupe(products), nil
}

// dedupe trims SKUs, drops blank ones and keeps the first row of a repeated SKU
func dedupe(products []domain.LocalProduct) []domain.LocalProduct {
	seen := make(map[string]bool, len(products))
	out := make([]domain.LocalProduct, 0, len(products))
	for _, p := range products {
		p.SKU = strings.TrimSpace(p.SKU)
		if p.SKU == "" || seen[p.SKU] {
			continue
		}
		seen[p.SKU] = true
		out = append(out, p)
	}
	return out
}
