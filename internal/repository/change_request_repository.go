package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/hse-dms-api/internal/models"
)

// ChangeRequestRepository persists post-publication revision proposals.
type ChangeRequestRepository struct {
	db *sqlx.DB
}

// NewChangeRequestRepository constructs the repository.
func NewChangeRequestRepository(db *sqlx.DB) *ChangeRequestRepository {
	return &ChangeRequestRepository{db: db}
}

// Create inserts a pending change request.
func (r *ChangeRequestRepository) Create(ctx context.Context, cr *models.ChangeRequest) error {
	if cr.ID == "" {
		cr.ID = uuid.NewString()
	}
	if cr.Status == "" {
		cr.Status = models.ChangeRequestStatusPending
	}
	if cr.CreatedAt.IsZero() {
		cr.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO change_requests
	(id, document_id, requested_by, description, status, resolved_by, resolved_at, note, created_at)
	VALUES (:id, :document_id, :requested_by, :description, :status, :resolved_by, :resolved_at, :note, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cr); err != nil {
		return fmt.Errorf("create change request: %w", err)
	}
	return nil
}

// GetByID fetches a change request.
func (r *ChangeRequestRepository) GetByID(ctx context.Context, id string) (*models.ChangeRequest, error) {
	const query = `SELECT id, document_id, requested_by, description, status, resolved_by, resolved_at, note, created_at
	FROM change_requests WHERE id = $1`
	var cr models.ChangeRequest
	if err := r.db.GetContext(ctx, &cr, query, id); err != nil {
		return nil, err
	}
	return &cr, nil
}

// List returns change requests, most recent first.
func (r *ChangeRequestRepository) List(ctx context.Context, documentID string, statuses []models.ChangeRequestStatus) ([]models.ChangeRequest, error) {
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 3)
	if documentID != "" {
		args = append(args, documentID)
		conditions = append(conditions, fmt.Sprintf("document_id = $%d", len(args)))
	}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	query := `SELECT id, document_id, requested_by, description, status, resolved_by, resolved_at, note, created_at FROM change_requests`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	var requests []models.ChangeRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, fmt.Errorf("list change requests: %w", err)
	}
	return requests, nil
}

// Resolve records the reviewer verdict on a still-pending request. Zero rows
// means the request was resolved concurrently.
func (r *ChangeRequestRepository) Resolve(ctx context.Context, id string, status models.ChangeRequestStatus, resolvedBy string, note *string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE change_requests SET status = $1, resolved_by = $2, resolved_at = $3, note = $4 WHERE id = $5 AND status = $6`,
		status, resolvedBy, time.Now().UTC(), note, id, models.ChangeRequestStatusPending)
	if err != nil {
		return fmt.Errorf("resolve change request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check resolve rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkCompleted closes an approved request once the new draft version exists.
func (r *ChangeRequestRepository) MarkCompleted(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE change_requests SET status = $1 WHERE id = $2 AND status = $3`,
		models.ChangeRequestStatusCompleted, id, models.ChangeRequestStatusApproved)
	if err != nil {
		return fmt.Errorf("complete change request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check complete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
