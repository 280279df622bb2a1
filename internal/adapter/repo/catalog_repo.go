package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pipeline/internal/domain"
)

// ProductRepositoryPG implements domain.ProductRepository.
type ProductRepositoryPG struct {
	db DBTX
}

// GetByID fetches a product by its identifier.
func (r *ProductRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	query := `
SELECT id, name, sku, is_active, model_3d_key, base_asset_keys, materials, finishes, production_days, rules, created_at, updated_at
FROM products
WHERE id = $1;
`
	row := r.db.QueryRow(ctx, query, id)
	var p domain.Product
	var rules []byte
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.SKU,
		&p.IsActive,
		&p.Model3DKey,
		&p.BaseAssetKeys,
		&p.Materials,
		&p.Finishes,
		&p.ProductionDays,
		&rules,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &p.Rules); err != nil {
			return nil, fmt.Errorf("decode product rules: %w", err)
		}
	}
	return &p, nil
}

// BrandRepositoryPG implements domain.BrandRepository.
type BrandRepositoryPG struct {
	db DBTX
}

// GetByID fetches a brand by its identifier.
func (r *BrandRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Brand, error) {
	query := `
SELECT id, name, status, created_at, updated_at
FROM brands
WHERE id = $1;
`
	row := r.db.QueryRow(ctx, query, id)
	var b domain.Brand
	if err := row.Scan(&b.ID, &b.Name, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}
