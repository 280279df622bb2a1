package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"pipeline/internal/domain"
)

// AssetRepositoryPG implements domain.AssetRepository.
type AssetRepositoryPG struct {
	db DBTX
}

// SaveAll inserts asset records for a design.
func (r *AssetRepositoryPG) SaveAll(ctx context.Context, assets []domain.Asset) error {
	query := `
INSERT INTO assets (id, design_id, kind, storage_key, url, format, width, height, bytes, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
`
	for _, asset := range assets {
		metadata, err := json.Marshal(asset.Metadata)
		if err != nil {
			return fmt.Errorf("encode asset metadata: %w", err)
		}
		if _, err := r.db.Exec(ctx, query,
			asset.ID,
			asset.DesignID,
			asset.Kind,
			asset.StorageKey,
			asset.URL,
			asset.Format,
			asset.Width,
			asset.Height,
			asset.Bytes,
			metadata,
			asset.CreatedAt,
		); err != nil {
			return err
		}
	}
	return nil
}

// ListByDesignID returns all assets belonging to a design, oldest first.
func (r *AssetRepositoryPG) ListByDesignID(ctx context.Context, designID string) ([]domain.Asset, error) {
	query := `
SELECT id, design_id, kind, storage_key, url, format, width, height, bytes, metadata, created_at
FROM assets
WHERE design_id = $1
ORDER BY created_at ASC;
`
	rows, err := r.db.Query(ctx, query, designID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		var a domain.Asset
		var metadata []byte
		if err := rows.Scan(
			&a.ID,
			&a.DesignID,
			&a.Kind,
			&a.StorageKey,
			&a.URL,
			&a.Format,
			&a.Width,
			&a.Height,
			&a.Bytes,
			&metadata,
			&a.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
				return nil, fmt.Errorf("decode asset metadata: %w", err)
			}
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}
