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

// EsignRepository persists external signature requests.
type EsignRepository struct {
	db *sqlx.DB
}

// NewEsignRepository constructs the repository.
func NewEsignRepository(db *sqlx.DB) *EsignRepository {
	return &EsignRepository{db: db}
}

// Create inserts a new signature request.
func (r *EsignRepository) Create(ctx context.Context, req *models.EsignRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now
	if req.Status == "" {
		req.Status = models.EsignStatusPending
	}
	const query = `INSERT INTO esign_requests
	(id, document_id, version_id, signer_id, signer_name, signer_email, external_id, status, retry_count, failed_reason, requested_by, created_at, updated_at)
	VALUES (:id, :document_id, :version_id, :signer_id, :signer_name, :signer_email, :external_id, :status, :retry_count, :failed_reason, :requested_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create esign request: %w", err)
	}
	return nil
}

// GetByID fetches a request by id.
func (r *EsignRepository) GetByID(ctx context.Context, id string) (*models.EsignRequest, error) {
	const query = `SELECT id, document_id, version_id, signer_id, signer_name, signer_email, external_id, status, retry_count, failed_reason, requested_by, created_at, updated_at
	FROM esign_requests WHERE id = $1`
	var req models.EsignRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// GetByExternalID resolves a provider callback to its request row.
func (r *EsignRepository) GetByExternalID(ctx context.Context, externalID string) (*models.EsignRequest, error) {
	const query = `SELECT id, document_id, version_id, signer_id, signer_name, signer_email, external_id, status, retry_count, failed_reason, requested_by, created_at, updated_at
	FROM esign_requests WHERE external_id = $1`
	var req models.EsignRequest
	if err := r.db.GetContext(ctx, &req, query, externalID); err != nil {
		return nil, err
	}
	return &req, nil
}

// ListByDocument returns signature requests for a document, most recent first.
func (r *EsignRepository) ListByDocument(ctx context.Context, documentID string) ([]models.EsignRequest, error) {
	const query = `SELECT id, document_id, version_id, signer_id, signer_name, signer_email, external_id, status, retry_count, failed_reason, requested_by, created_at, updated_at
	FROM esign_requests WHERE document_id = $1 ORDER BY created_at DESC, id DESC`
	var requests []models.EsignRequest
	if err := r.db.SelectContext(ctx, &requests, query, documentID); err != nil {
		return nil, fmt.Errorf("list esign requests: %w", err)
	}
	return requests, nil
}

// SetExternalID stores the provider correlation id after a successful
// outbound call.
func (r *EsignRepository) SetExternalID(ctx context.Context, id, externalID string) error {
	return r.guardedUpdate(ctx,
		`UPDATE esign_requests SET external_id = $1, updated_at = $2 WHERE id = $3`,
		externalID, time.Now().UTC(), id)
}

// MarkSigned closes a pending request as SIGNED. Guarded so a stale callback
// cannot overwrite a terminal state.
func (r *EsignRepository) MarkSigned(ctx context.Context, id string) error {
	return r.guardedUpdate(ctx,
		`UPDATE esign_requests SET status = $1, failed_reason = NULL, updated_at = $2 WHERE id = $3 AND status = $4`,
		models.EsignStatusSigned, time.Now().UTC(), id, models.EsignStatusPending)
}

// MarkFailed records a provider failure on a pending request.
func (r *EsignRepository) MarkFailed(ctx context.Context, id, reason string) error {
	return r.guardedUpdate(ctx,
		`UPDATE esign_requests SET status = $1, failed_reason = $2, updated_at = $3 WHERE id = $4 AND status = $5`,
		models.EsignStatusFailed, reason, time.Now().UTC(), id, models.EsignStatusPending)
}

// ResetForRetry moves a FAILED request back to PENDING and bumps the retry
// counter. Zero rows means the request was not in a retryable state.
func (r *EsignRepository) ResetForRetry(ctx context.Context, id string) error {
	return r.guardedUpdate(ctx,
		`UPDATE esign_requests SET status = $1, failed_reason = NULL, retry_count = retry_count + 1, updated_at = $2 WHERE id = $3 AND status = $4`,
		models.EsignStatusPending, time.Now().UTC(), id, models.EsignStatusFailed)
}

// MarkFailedPermanent closes a request after retry exhaustion.
func (r *EsignRepository) MarkFailedPermanent(ctx context.Context, id, reason string) error {
	return r.guardedUpdate(ctx,
		`UPDATE esign_requests SET status = $1, failed_reason = $2, updated_at = $3 WHERE id = $4 AND status IN ($5, $6)`,
		models.EsignStatusFailedPermanent, reason, time.Now().UTC(), id, models.EsignStatusFailed, models.EsignStatusPending)
}

func (r *EsignRepository) guardedUpdate(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update esign request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check esign update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
