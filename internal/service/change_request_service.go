package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hse-dms-api/internal/dto"
	"github.com/noah-isme/hse-dms-api/internal/models"
	appErrors "github.com/noah-isme/hse-dms-api/pkg/errors"
)

type changeRequestStore interface {
	Create(ctx context.Context, cr *models.ChangeRequest) error
	GetByID(ctx context.Context, id string) (*models.ChangeRequest, error)
	List(ctx context.Context, documentID string, statuses []models.ChangeRequestStatus) ([]models.ChangeRequest, error)
	Resolve(ctx context.Context, id string, status models.ChangeRequestStatus, resolvedBy string, note *string) error
	MarkCompleted(ctx context.Context, id string) error
}

type versionOpener interface {
	CreateDraftVersion(ctx context.Context, documentID string, req dto.CreateVersionRequest, actorID string) (*models.DocumentVersion, error)
}

type changeRequestDocumentReader interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
}

// ChangeRequestService manages post-publication revision proposals. An
// approved request opens the next draft version through the registry,
// restarting the lifecycle for the document.
type ChangeRequestService struct {
	repo      changeRequestStore
	documents changeRequestDocumentReader
	registry  versionOpener
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewChangeRequestService constructs the service.
func NewChangeRequestService(repo changeRequestStore, documents changeRequestDocumentReader, registry versionOpener, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *ChangeRequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeRequestService{
		repo:      repo,
		documents: documents,
		registry:  registry,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// Create proposes an edit to a published document.
func (s *ChangeRequestService) Create(ctx context.Context, documentID string, req dto.CreateChangeRequestRequest, actorID string) (*models.ChangeRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change request payload")
	}
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if doc.Status != models.DocStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("change requests target PUBLISHED documents, current status is %s", doc.Status))
	}

	cr := &models.ChangeRequest{
		DocumentID:  documentID,
		RequestedBy: actorID,
		Description: req.Description,
		Status:      models.ChangeRequestStatusPending,
	}
	if err := s.repo.Create(ctx, cr); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create change request")
	}
	s.emitAudit(ctx, actorID, models.AuditActionChangeRequest, cr.ID, cr)
	return cr, nil
}

// List returns change requests, optionally scoped to a document and statuses.
func (s *ChangeRequestService) List(ctx context.Context, documentID string, statuses []models.ChangeRequestStatus) ([]models.ChangeRequest, error) {
	requests, err := s.repo.List(ctx, documentID, statuses)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list change requests")
	}
	return requests, nil
}

// Get fetches one change request.
func (s *ChangeRequestService) Get(ctx context.Context, id string) (*models.ChangeRequest, error) {
	cr, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "change request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change request")
	}
	return cr, nil
}

// Resolve records the reviewer verdict on a pending request. Rejection is
// terminal; approval opens the next draft version and closes the request as
// COMPLETED.
func (s *ChangeRequestService) Resolve(ctx context.Context, id string, req dto.ResolveChangeRequestRequest, actorID string) (*models.ChangeRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolution payload")
	}
	cr, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cr.Status != models.ChangeRequestStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("change request is already %s", cr.Status))
	}
	if req.Decision == models.ChangeRequestStatusApproved && req.FilePath == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "approval requires the new draft file path")
	}

	var note *string
	if req.Note != "" {
		note = &req.Note
	}
	if err := s.repo.Resolve(ctx, id, req.Decision, actorID, note); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "change request was resolved concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve change request")
	}
	cr.Status = req.Decision
	cr.ResolvedBy = &actorID
	cr.Note = note

	if req.Decision == models.ChangeRequestStatusApproved {
		versionReq := dto.CreateVersionRequest{
			FilePath:   req.FilePath,
			ChangeNote: &cr.Description,
		}
		if _, err := s.registry.CreateDraftVersion(ctx, cr.DocumentID, versionReq, actorID); err != nil {
			// The resolution stands; the draft can be opened manually.
			s.logger.Sugar().Errorw("failed to open draft for approved change request", "change_request_id", cr.ID, "error", err)
			return nil, err
		}
		if err := s.repo.MarkCompleted(ctx, id); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete change request")
		}
		cr.Status = models.ChangeRequestStatusCompleted
	}

	s.emitAudit(ctx, actorID, models.AuditActionChangeResolve, cr.ID, cr)
	return cr, nil
}

func (s *ChangeRequestService) emitAudit(ctx context.Context, actorID, action, resourceID string, payload interface{}) {
	if s.audit == nil {
		return
	}
	values, _ := json.Marshal(payload)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "change_request",
		ResourceID: &resourceID,
		NewValues:  values,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to write audit log", "action", action, "error", err)
	}
}
