package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/hse-dms-api/internal/models"
)

// ErrDuplicateOrdinal signals a version/revision collision during draft
// creation. Callers retry with freshly read numbers.
var ErrDuplicateOrdinal = errors.New("duplicate version ordinal")

// DocumentRepository persists masterlist entries and their versions.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a document together with its first draft version.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document, version *models.DocumentVersion) (err error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	version.DocumentID = doc.ID
	version.CreatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin document create: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const docQuery = `INSERT INTO documents
	(id, code, title, category, department, owner_id, current_version, current_revision, status, sign_required, created_at, updated_at)
	VALUES (:id, :code, :title, :category, :department, :owner_id, :current_version, :current_revision, :status, :sign_required, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, docQuery, doc); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	const versionQuery = `INSERT INTO document_versions
	(id, document_id, version, revision, file_path, signed_file_path, status, uploaded_by, change_note, created_at)
	VALUES (:id, :document_id, :version, :revision, :file_path, :signed_file_path, :status, :uploaded_by, :change_note, :created_at)`
	if _, err = tx.NamedExecContext(ctx, versionQuery, version); err != nil {
		return fmt.Errorf("insert document version: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit document create: %w", err)
	}
	return nil
}

// GetByID fetches a masterlist entry.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	const query = `SELECT id, code, title, category, department, owner_id, current_version, current_revision, status, sign_required, created_at, updated_at
	FROM documents WHERE id = $1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetByCode fetches a masterlist entry by its document code.
func (r *DocumentRepository) GetByCode(ctx context.Context, code string) (*models.Document, error) {
	const query = `SELECT id, code, title, category, department, owner_id, current_version, current_revision, status, sign_required, created_at, updated_at
	FROM documents WHERE code = $1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, code); err != nil {
		return nil, err
	}
	return &doc, nil
}

// List returns masterlist entries matching the filter, most recent first.
func (r *DocumentRepository) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, int, error) {
	conditions := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Department != "" {
		args = append(args, filter.Department)
		conditions = append(conditions, fmt.Sprintf("department = $%d", len(args)))
	}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(code ILIKE $%d OR title ILIKE $%d)", len(args), len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM documents"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}

	query := `SELECT id, code, title, category, department, owner_id, current_version, current_revision, status, sign_required, created_at, updated_at
	FROM documents` + where + fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)

	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	return docs, total, nil
}

// UpdateStatus moves the lifecycle status, guarded by the expected source
// states. Zero rows means the document moved concurrently.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, to models.DocumentStatus, from ...models.DocumentStatus) error {
	args := []interface{}{to, time.Now().UTC(), id}
	query := `UPDATE documents SET status = $1, updated_at = $2 WHERE id = $3`
	if len(from) > 0 {
		placeholders := make([]string, len(from))
		for i, status := range from {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		query += fmt.Sprintf(" AND status IN (%s)", strings.Join(placeholders, ","))
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check document status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetVersion fetches a version row by id.
func (r *DocumentRepository) GetVersion(ctx context.Context, id string) (*models.DocumentVersion, error) {
	const query = `SELECT id, document_id, version, revision, file_path, signed_file_path, status, uploaded_by, change_note, created_at
	FROM document_versions WHERE id = $1`
	var version models.DocumentVersion
	if err := r.db.GetContext(ctx, &version, query, id); err != nil {
		return nil, err
	}
	return &version, nil
}

// GetCurrentVersion fetches the version row the masterlist entry points at.
func (r *DocumentRepository) GetCurrentVersion(ctx context.Context, documentID string) (*models.DocumentVersion, error) {
	const query = `SELECT v.id, v.document_id, v.version, v.revision, v.file_path, v.signed_file_path, v.status, v.uploaded_by, v.change_note, v.created_at
	FROM document_versions v
	JOIN documents d ON d.id = v.document_id AND d.current_version = v.version AND d.current_revision = v.revision
	WHERE v.document_id = $1`
	var version models.DocumentVersion
	if err := r.db.GetContext(ctx, &version, query, documentID); err != nil {
		return nil, err
	}
	return &version, nil
}

// ListVersions returns every revision of a document, most recent first.
func (r *DocumentRepository) ListVersions(ctx context.Context, documentID string) ([]models.DocumentVersion, error) {
	const query = `SELECT id, document_id, version, revision, file_path, signed_file_path, status, uploaded_by, change_note, created_at
	FROM document_versions WHERE document_id = $1 ORDER BY created_at DESC, id DESC`
	var versions []models.DocumentVersion
	if err := r.db.SelectContext(ctx, &versions, query, documentID); err != nil {
		return nil, fmt.Errorf("list document versions: %w", err)
	}
	return versions, nil
}

// MaxOrdinals reads the highest (version, revision) pair recorded for a
// document. Used by the bounded-retry draft allocation.
func (r *DocumentRepository) MaxOrdinals(ctx context.Context, documentID string) (version, revision int, err error) {
	const query = `SELECT COALESCE(MAX(version), 0) AS version,
	COALESCE(MAX(revision) FILTER (WHERE version = (SELECT COALESCE(MAX(version), 0) FROM document_versions WHERE document_id = $1)), 0) AS revision
	FROM document_versions WHERE document_id = $1`
	row := struct {
		Version  int `db:"version"`
		Revision int `db:"revision"`
	}{}
	if err := r.db.GetContext(ctx, &row, query, documentID); err != nil {
		return 0, 0, fmt.Errorf("read version ordinals: %w", err)
	}
	return row.Version, row.Revision, nil
}

// CreateVersion inserts a draft version and repoints the masterlist entry at
// it. A unique violation on (document_id, version, revision) is surfaced as
// ErrDuplicateOrdinal so the caller can re-read and retry.
func (r *DocumentRepository) CreateVersion(ctx context.Context, version *models.DocumentVersion) (err error) {
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin version create: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertQuery = `INSERT INTO document_versions
	(id, document_id, version, revision, file_path, signed_file_path, status, uploaded_by, change_note, created_at)
	VALUES (:id, :document_id, :version, :revision, :file_path, :signed_file_path, :status, :uploaded_by, :change_note, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, version); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			err = ErrDuplicateOrdinal
			return err
		}
		return fmt.Errorf("insert document version: %w", err)
	}

	const pointerQuery = `UPDATE documents SET current_version = $1, current_revision = $2, status = $3, updated_at = $4 WHERE id = $5`
	if _, err = tx.ExecContext(ctx, pointerQuery, version.Version, version.Revision, models.DocStatusDraft, time.Now().UTC(), version.DocumentID); err != nil {
		return fmt.Errorf("repoint current version: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit version create: %w", err)
	}
	return nil
}

// UpdateVersionStatus moves the per-version review status.
func (r *DocumentRepository) UpdateVersionStatus(ctx context.Context, id string, status models.VersionStatus) error {
	result, err := r.db.ExecContext(ctx, `UPDATE document_versions SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update version status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check version status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AttachSignedFile records the signed file reference on a version.
func (r *DocumentRepository) AttachSignedFile(ctx context.Context, versionID, signedFilePath string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE document_versions SET signed_file_path = $1, status = $2 WHERE id = $3`,
		signedFilePath, models.VersionStatusSigned, versionID)
	if err != nil {
		return fmt.Errorf("attach signed file: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check signed file rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CreateDisposalRecord appends a disposal audit entry.
func (r *DocumentRepository) CreateDisposalRecord(ctx context.Context, record *models.DisposalRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.DisposedAt.IsZero() {
		record.DisposedAt = time.Now().UTC()
	}
	const query = `INSERT INTO disposal_records (id, document_id, disposed_by, reason, method, disposed_at)
	VALUES (:id, :document_id, :disposed_by, :reason, :method, :disposed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("insert disposal record: %w", err)
	}
	return nil
}

// ListDisposalRecords returns disposal entries for a document, most recent first.
func (r *DocumentRepository) ListDisposalRecords(ctx context.Context, documentID string) ([]models.DisposalRecord, error) {
	const query = `SELECT id, document_id, disposed_by, reason, method, disposed_at
	FROM disposal_records WHERE document_id = $1 ORDER BY disposed_at DESC, id DESC`
	var records []models.DisposalRecord
	if err := r.db.SelectContext(ctx, &records, query, documentID); err != nil {
		return nil, fmt.Errorf("list disposal records: %w", err)
	}
	return records, nil
}
