package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hse-dms-api/internal/dto"
	"github.com/noah-isme/hse-dms-api/internal/models"
	"github.com/noah-isme/hse-dms-api/internal/repository"
	appErrors "github.com/noah-isme/hse-dms-api/pkg/errors"
)

// maxOrdinalAttempts bounds the version-allocation retry loop.
const maxOrdinalAttempts = 3

type documentStore interface {
	Create(ctx context.Context, doc *models.Document, version *models.DocumentVersion) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	GetByCode(ctx context.Context, code string) (*models.Document, error)
	List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, int, error)
	UpdateStatus(ctx context.Context, id string, to models.DocumentStatus, from ...models.DocumentStatus) error
	GetVersion(ctx context.Context, id string) (*models.DocumentVersion, error)
	GetCurrentVersion(ctx context.Context, documentID string) (*models.DocumentVersion, error)
	ListVersions(ctx context.Context, documentID string) ([]models.DocumentVersion, error)
	MaxOrdinals(ctx context.Context, documentID string) (version, revision int, err error)
	CreateVersion(ctx context.Context, version *models.DocumentVersion) error
	CreateDisposalRecord(ctx context.Context, record *models.DisposalRecord) error
	ListDisposalRecords(ctx context.Context, documentID string) ([]models.DisposalRecord, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// RegistryService owns the document masterlist and the lifecycle state
// machine. Other services drive transitions through it.
type RegistryService struct {
	repo      documentStore
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRegistryService constructs the service.
func NewRegistryService(repo documentStore, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *RegistryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistryService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// publishSources lists the states an explicit publish action accepts.
var publishSources = map[models.DocumentStatus]struct{}{
	models.DocStatusSigned:   {},
	models.DocStatusApproved: {},
}

// CreateDocument registers a masterlist entry with its first draft version
// (v1r0).
func (s *RegistryService) CreateDocument(ctx context.Context, req dto.CreateDocumentRequest, actorID string) (*dto.DocumentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid document payload")
	}
	code := strings.TrimSpace(req.Code)
	if existing, err := s.repo.GetByCode(ctx, code); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("document code %s already registered", code))
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check document code")
	}

	doc := &models.Document{
		Code:            code,
		Title:           strings.TrimSpace(req.Title),
		Category:        req.Category,
		Department:      req.Department,
		OwnerID:         actorID,
		CurrentVersion:  1,
		CurrentRevision: 0,
		Status:          models.DocStatusDraft,
		SignRequired:    req.SignRequired,
	}
	version := &models.DocumentVersion{
		Version:    1,
		Revision:   0,
		FilePath:   req.FilePath,
		Status:     models.VersionStatusDraft,
		UploadedBy: actorID,
		ChangeNote: req.ChangeNote,
	}
	if err := s.repo.Create(ctx, doc, version); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create document")
	}
	s.emitAudit(ctx, actorID, models.AuditActionDocumentCreate, doc.ID, doc)
	return &dto.DocumentDetail{Document: *doc, Version: *version}, nil
}

// Get returns a masterlist entry with its current version.
func (s *RegistryService) Get(ctx context.Context, documentID string) (*dto.DocumentDetail, error) {
	doc, err := s.getDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	version, err := s.repo.GetCurrentVersion(ctx, documentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current version")
	}
	return &dto.DocumentDetail{Document: *doc, Version: *version}, nil
}

// List returns masterlist entries matching the query, most recent first.
func (s *RegistryService) List(ctx context.Context, query dto.DocumentQuery) ([]models.Document, *models.Pagination, error) {
	filter := models.DocumentFilter{
		Status:     query.Status,
		Category:   query.Category,
		Department: query.Department,
		Search:     query.Search,
		Page:       query.Page,
		PageSize:   query.PageSize,
	}
	docs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	return docs, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// ListVersions returns the revision history, most recent first.
func (s *RegistryService) ListVersions(ctx context.Context, documentID string) ([]models.DocumentVersion, error) {
	if _, err := s.getDocument(ctx, documentID); err != nil {
		return nil, err
	}
	versions, err := s.repo.ListVersions(ctx, documentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list versions")
	}
	return versions, nil
}

// GetVersion returns one version, scoped to its document.
func (s *RegistryService) GetVersion(ctx context.Context, documentID, versionID string) (*models.DocumentVersion, error) {
	version, err := s.repo.GetVersion(ctx, versionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "version not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load version")
	}
	if version.DocumentID != documentID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "version not found")
	}
	return version, nil
}

// CreateDraftVersion allocates the next (version, revision) pair and opens a
// new draft. Allowed from DRAFT (replacing the working file) or PUBLISHED
// (change-request acceptance); the document returns to DRAFT either way.
// Ordinal allocation is a bounded read-insert-retry loop: the unique index on
// (document_id, version, revision) catches concurrent allocations.
func (s *RegistryService) CreateDraftVersion(ctx context.Context, documentID string, req dto.CreateVersionRequest, actorID string) (*models.DocumentVersion, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid version payload")
	}
	doc, err := s.getDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.DocStatusDraft && doc.Status != models.DocStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("new draft requires DRAFT or PUBLISHED document, current status is %s", doc.Status))
	}

	var lastErr error
	for attempt := 0; attempt < maxOrdinalAttempts; attempt++ {
		maxVersion, maxRevision, err := s.repo.MaxOrdinals(ctx, documentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read version ordinals")
		}
		version := &models.DocumentVersion{
			DocumentID: documentID,
			Version:    maxVersion,
			Revision:   maxRevision + 1,
			FilePath:   req.FilePath,
			Status:     models.VersionStatusDraft,
			UploadedBy: actorID,
			ChangeNote: req.ChangeNote,
		}
		if req.MajorVersion || maxVersion == 0 {
			version.Version = maxVersion + 1
			version.Revision = 0
		}
		err = s.repo.CreateVersion(ctx, version)
		if err == nil {
			s.emitAudit(ctx, actorID, models.AuditActionVersionCreate, version.ID, version)
			return version, nil
		}
		if !errors.Is(err, repository.ErrDuplicateOrdinal) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create draft version")
		}
		lastErr = err
	}
	return nil, appErrors.Wrap(lastErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "version allocation kept colliding, try again")
}

// Publish moves a SIGNED document (or an APPROVED one that does not require
// signing) to PUBLISHED.
func (s *RegistryService) Publish(ctx context.Context, documentID, actorID string) (*models.Document, error) {
	doc, err := s.getDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if _, ok := publishSources[doc.Status]; !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("publish requires SIGNED or APPROVED document, current status is %s", doc.Status))
	}
	if doc.Status == models.DocStatusApproved && doc.SignRequired {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "document requires electronic signature before publishing")
	}
	if err := s.repo.UpdateStatus(ctx, documentID, models.DocStatusPublished, doc.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "document status changed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish document")
	}
	doc.Status = models.DocStatusPublished
	s.emitAudit(ctx, actorID, models.AuditActionDocumentPublish, doc.ID, doc)
	return doc, nil
}

// Archive retires a document from circulation without disposal.
func (s *RegistryService) Archive(ctx context.Context, documentID, actorID string) (*models.Document, error) {
	doc, err := s.getDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status == models.DocStatusDisposed || doc.Status == models.DocStatusArchived {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("document is already %s", doc.Status))
	}
	if err := s.repo.UpdateStatus(ctx, documentID, models.DocStatusArchived, doc.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "document status changed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive document")
	}
	doc.Status = models.DocStatusArchived
	s.emitAudit(ctx, actorID, models.AuditActionDocumentArchive, doc.ID, doc)
	return doc, nil
}

// Dispose terminally retires a document and appends the disposal record.
func (s *RegistryService) Dispose(ctx context.Context, documentID string, req dto.DisposeDocumentRequest, actorID string) (*models.DisposalRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid disposal payload")
	}
	doc, err := s.getDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status == models.DocStatusDisposed {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "document is already disposed")
	}
	if err := s.repo.UpdateStatus(ctx, documentID, models.DocStatusDisposed, doc.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "document status changed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to dispose document")
	}
	record := &models.DisposalRecord{
		DocumentID: documentID,
		DisposedBy: actorID,
		Reason:     req.Reason,
		Method:     req.Method,
	}
	if err := s.repo.CreateDisposalRecord(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record disposal")
	}
	s.emitAudit(ctx, actorID, models.AuditActionDocumentDispose, doc.ID, record)
	return record, nil
}

// ListDisposalRecords returns the disposal trail for a document.
func (s *RegistryService) ListDisposalRecords(ctx context.Context, documentID string) ([]models.DisposalRecord, error) {
	records, err := s.repo.ListDisposalRecords(ctx, documentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list disposal records")
	}
	return records, nil
}

func (s *RegistryService) getDocument(ctx context.Context, documentID string) (*models.Document, error) {
	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	return doc, nil
}

func (s *RegistryService) emitAudit(ctx context.Context, actorID, action, resourceID string, payload interface{}) {
	if s.audit == nil {
		return
	}
	values, _ := json.Marshal(payload)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "document",
		ResourceID: &resourceID,
		NewValues:  values,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to write audit log", "action", action, "error", err)
	}
}
