package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pipeline/internal/domain"
)

// RenderRepositoryPG implements domain.RenderRepository.
type RenderRepositoryPG struct {
	db DBTX
}

// GetByID fetches a render by its identifier.
func (r *RenderRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Render, error) {
	query := `
SELECT id, design_id, product_id, type, status, options, error_message, created_at, updated_at
FROM renders
WHERE id = $1;
`
	row := r.db.QueryRow(ctx, query, id)
	var rend domain.Render
	var options []byte
	if err := row.Scan(
		&rend.ID,
		&rend.DesignID,
		&rend.ProductID,
		&rend.Type,
		&rend.Status,
		&options,
		&rend.Error,
		&rend.CreatedAt,
		&rend.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &rend.Options); err != nil {
			return nil, fmt.Errorf("decode render options: %w", err)
		}
	}
	return &rend, nil
}

// SetStatus moves a render between lifecycle states.
func (r *RenderRepositoryPG) SetStatus(ctx context.Context, id string, status domain.RenderStatus, errMsg string) error {
	query := `
UPDATE renders SET status = $2, error_message = $3, updated_at = NOW() WHERE id = $1;
`
	tag, err := r.db.Exec(ctx, query, id, status, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveResult appends a render result row.
func (r *RenderRepositoryPG) SaveResult(ctx context.Context, result domain.RenderResult) error {
	query := `
INSERT INTO render_results (render_id, status, storage_key, url, width, height, format, duration_ms, error_message, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`
	_, err := r.db.Exec(ctx, query,
		result.RenderID,
		result.Status,
		result.StorageKey,
		result.URL,
		result.Width,
		result.Height,
		result.Format,
		result.Duration.Milliseconds(),
		result.Error,
		result.CreatedAt,
	)
	return err
}

// SaveExport appends an export result row.
func (r *RenderRepositoryPG) SaveExport(ctx context.Context, result domain.ExportResult) error {
	query := `
INSERT INTO export_results (render_id, design_id, product_id, format, storage_key, url, bytes, asset_count, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`
	_, err := r.db.Exec(ctx, query,
		result.RenderID,
		result.DesignID,
		result.ProductID,
		result.Format,
		result.StorageKey,
		result.URL,
		result.Bytes,
		result.AssetCount,
		result.CreatedAt,
	)
	return err
}
