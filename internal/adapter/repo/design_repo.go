package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pipeline/internal/domain"
)

// DesignRepositoryPG implements domain.DesignRepository.
type DesignRepositoryPG struct {
	db DBTX
}

// GetByID fetches a design by its identifier.
func (r *DesignRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Design, error) {
	query := `
SELECT id, user_id, brand_id, product_id, prompt, status, options, metadata, error_message, failed_at, created_at, updated_at
FROM designs
WHERE id = $1;
`
	row := r.db.QueryRow(ctx, query, id)
	var d domain.Design
	var options, metadata []byte
	if err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.BrandID,
		&d.ProductID,
		&d.Prompt,
		&d.Status,
		&options,
		&metadata,
		&d.Error,
		&d.FailedAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &d.Options); err != nil {
			return nil, fmt.Errorf("decode design options: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &d.Metadata); err != nil {
			return nil, fmt.Errorf("decode design metadata: %w", err)
		}
	}
	return &d, nil
}

// SetStatus moves a design between lifecycle states.
func (r *DesignRepositoryPG) SetStatus(ctx context.Context, id string, status domain.DesignStatus) error {
	query := `
UPDATE designs SET status = $2, updated_at = NOW() WHERE id = $1;
`
	tag, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Complete marks a design COMPLETED with its generation metadata.
func (r *DesignRepositoryPG) Complete(ctx context.Context, id string, meta domain.DesignMetadata) error {
	body, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode design metadata: %w", err)
	}
	query := `
UPDATE designs
SET status = $2, metadata = $3, error_message = '', updated_at = NOW()
WHERE id = $1;
`
	tag, err := r.db.Exec(ctx, query, id, domain.DesignStatusCompleted, body)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Fail marks a design FAILED with the failure reason and timestamp.
func (r *DesignRepositoryPG) Fail(ctx context.Context, id string, reason string, failedAt time.Time) error {
	query := `
UPDATE designs
SET status = $2, error_message = $3, failed_at = $4, updated_at = NOW()
WHERE id = $1;
`
	tag, err := r.db.Exec(ctx, query, id, domain.DesignStatusFailed, reason, failedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveValidation persists an independent validation pass without touching
// the primary status.
func (r *DesignRepositoryPG) SaveValidation(ctx context.Context, id string, result domain.ValidationResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode validation result: %w", err)
	}
	query := `
UPDATE designs
SET metadata = jsonb_set(COALESCE(metadata, '{}'::jsonb), '{validationResult}', $2::jsonb), updated_at = NOW()
WHERE id = $1;
`
	tag, err := r.db.Exec(ctx, query, id, body)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveOptimization persists the optimizer output.
func (r *DesignRepositoryPG) SaveOptimization(ctx context.Context, id string, result domain.OptimizationResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode optimization result: %w", err)
	}
	query := `
UPDATE designs
SET metadata = jsonb_set(COALESCE(metadata, '{}'::jsonb), '{optimization}', $2::jsonb), updated_at = NOW()
WHERE id = $1;
`
	tag, err := r.db.Exec(ctx, query, id, body)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
