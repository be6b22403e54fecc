package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/hse-dms-api/internal/models"
)

// DistributionRepository persists publish-time fan-out rows and their
// read/acknowledge tracking.
type DistributionRepository struct {
	db *sqlx.DB
}

// NewDistributionRepository constructs the repository.
func NewDistributionRepository(db *sqlx.DB) *DistributionRepository {
	return &DistributionRepository{db: db}
}

// CreateBatch inserts one row per recipient in a single transaction.
// Recipients that already have a row for the version are skipped.
func (r *DistributionRepository) CreateBatch(ctx context.Context, distributions []models.Distribution) (created int, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin distribution batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO distributions
	(id, document_id, version_id, recipient_id, recipient_name, department, is_mandatory, is_read, read_at, acknowledged_at, ack_ip_address, ack_user_agent, deadline, created_at)
	VALUES (:id, :document_id, :version_id, :recipient_id, :recipient_name, :department, :is_mandatory, :is_read, :read_at, :acknowledged_at, :ack_ip_address, :ack_user_agent, :deadline, :created_at)
	ON CONFLICT (version_id, recipient_id) DO NOTHING`

	for i := range distributions {
		dist := &distributions[i]
		if dist.ID == "" {
			dist.ID = uuid.NewString()
		}
		if dist.CreatedAt.IsZero() {
			dist.CreatedAt = time.Now().UTC()
		}
		var result sql.Result
		if result, err = tx.NamedExecContext(ctx, query, dist); err != nil {
			return 0, fmt.Errorf("insert distribution for %s: %w", dist.RecipientID, err)
		}
		rows, rowsErr := result.RowsAffected()
		if rowsErr != nil {
			err = fmt.Errorf("check distribution rows: %w", rowsErr)
			return 0, err
		}
		created += int(rows)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit distribution batch: %w", err)
	}
	return created, nil
}

// GetByID fetches one distribution row.
func (r *DistributionRepository) GetByID(ctx context.Context, id string) (*models.Distribution, error) {
	const query = `SELECT id, document_id, version_id, recipient_id, recipient_name, department, is_mandatory, is_read, read_at, acknowledged_at, ack_ip_address, ack_user_agent, deadline, created_at
	FROM distributions WHERE id = $1`
	var dist models.Distribution
	if err := r.db.GetContext(ctx, &dist, query, id); err != nil {
		return nil, err
	}
	return &dist, nil
}

// ListByDocument returns the fan-out for a document, most recent first.
func (r *DistributionRepository) ListByDocument(ctx context.Context, documentID string) ([]models.Distribution, error) {
	const query = `SELECT id, document_id, version_id, recipient_id, recipient_name, department, is_mandatory, is_read, read_at, acknowledged_at, ack_ip_address, ack_user_agent, deadline, created_at
	FROM distributions WHERE document_id = $1 ORDER BY created_at DESC, id DESC`
	var distributions []models.Distribution
	if err := r.db.SelectContext(ctx, &distributions, query, documentID); err != nil {
		return nil, fmt.Errorf("list distributions: %w", err)
	}
	return distributions, nil
}

// MarkRead records the first read; later calls keep the original read_at.
func (r *DistributionRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE distributions SET is_read = TRUE, read_at = COALESCE(read_at, $1) WHERE id = $2`,
		at, id)
	if err != nil {
		return fmt.Errorf("mark distribution read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check read rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Acknowledge records the acknowledgment. Acknowledging implies reading, so
// read_at is set if still null; re-acknowledging refreshes acknowledged_at
// and leaves read_at untouched.
func (r *DistributionRepository) Acknowledge(ctx context.Context, id string, at time.Time, ipAddress, userAgent *string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE distributions SET is_read = TRUE, read_at = COALESCE(read_at, $1), acknowledged_at = $1, ack_ip_address = $2, ack_user_agent = $3 WHERE id = $4`,
		at, ipAddress, userAgent, id)
	if err != nil {
		return fmt.Errorf("acknowledge distribution: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check acknowledge rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListOverdue returns mandatory unacknowledged rows whose deadline passed.
// Fed to the notifier by the deadline sweep.
func (r *DistributionRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Distribution, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT id, document_id, version_id, recipient_id, recipient_name, department, is_mandatory, is_read, read_at, acknowledged_at, ack_ip_address, ack_user_agent, deadline, created_at
	FROM distributions
	WHERE is_mandatory = TRUE AND acknowledged_at IS NULL AND deadline IS NOT NULL AND deadline < $1
	ORDER BY deadline ASC LIMIT %d`, limit)
	var overdue []models.Distribution
	if err := r.db.SelectContext(ctx, &overdue, query, now); err != nil {
		return nil, fmt.Errorf("list overdue distributions: %w", err)
	}
	return overdue, nil
}
