package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pipeline/internal/domain"
)

// OrderRepositoryPG implements domain.OrderRepository.
type OrderRepositoryPG struct {
	db DBTX
}

// GetByID fetches an order by its identifier.
func (r *OrderRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `
SELECT id, brand_id, design_id, product_id, quantity, status, bundle_url, instructions_url, error_message, created_at, updated_at
FROM orders
WHERE id = $1;
`
	row := r.db.QueryRow(ctx, query, id)
	var o domain.Order
	if err := row.Scan(
		&o.ID,
		&o.BrandID,
		&o.DesignID,
		&o.ProductID,
		&o.Quantity,
		&o.Status,
		&o.BundleURL,
		&o.InstructionsURL,
		&o.Error,
		&o.CreatedAt,
		&o.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// SetStatus moves an order between production lifecycle states.
func (r *OrderRepositoryPG) SetStatus(ctx context.Context, id string, status domain.OrderStatus, errMsg string) error {
	query := `
UPDATE orders SET status = $2, error_message = $3, updated_at = NOW() WHERE id = $1;
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

// AttachBundle records the uploaded bundle URL on the order.
func (r *OrderRepositoryPG) AttachBundle(ctx context.Context, id string, bundleURL string) error {
	query := `
UPDATE orders SET bundle_url = $2, updated_at = NOW() WHERE id = $1;
`
	tag, err := r.db.Exec(ctx, query, id, bundleURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AttachInstructions records the uploaded instructions document URL.
func (r *OrderRepositoryPG) AttachInstructions(ctx context.Context, id string, instructionsURL string) error {
	query := `
UPDATE orders SET instructions_url = $2, updated_at = NOW() WHERE id = $1;
`
	tag, err := r.db.Exec(ctx, query, id, instructionsURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveBundle appends a production bundle record.
func (r *OrderRepositoryPG) SaveBundle(ctx context.Context, bundle domain.ProductionBundle) error {
	files, err := json.Marshal(bundle.Files)
	if err != nil {
		return fmt.Errorf("encode bundle files: %w", err)
	}
	instructions, err := json.Marshal(bundle.Instructions)
	if err != nil {
		return fmt.Errorf("encode bundle instructions: %w", err)
	}
	metadata, err := json.Marshal(bundle.Metadata)
	if err != nil {
		return fmt.Errorf("encode bundle metadata: %w", err)
	}
	query := `
INSERT INTO production_bundles (order_id, storage_key, url, files, instructions, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	_, err = r.db.Exec(ctx, query,
		bundle.OrderID,
		bundle.StorageKey,
		bundle.URL,
		files,
		instructions,
		metadata,
		bundle.CreatedAt,
	)
	return err
}

// SaveQualityReport appends a quality-control report.
func (r *OrderRepositoryPG) SaveQualityReport(ctx context.Context, report domain.QualityReport) error {
	scores, err := json.Marshal(report.Scores)
	if err != nil {
		return fmt.Errorf("encode quality scores: %w", err)
	}
	issues, err := json.Marshal(report.Issues)
	if err != nil {
		return fmt.Errorf("encode quality issues: %w", err)
	}
	query := `
INSERT INTO quality_reports (order_id, overall_score, scores, passed, issues, created_at)
VALUES ($1, $2, $3, $4, $5, $6);
`
	_, err = r.db.Exec(ctx, query,
		report.OrderID,
		report.OverallScore,
		scores,
		report.Passed,
		issues,
		report.CreatedAt,
	)
	return err
}
