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
	"github.com/noah-isme/hse-dms-api/internal/esign"
	"github.com/noah-isme/hse-dms-api/internal/models"
	appErrors "github.com/noah-isme/hse-dms-api/pkg/errors"
)

type esignStore interface {
	Create(ctx context.Context, req *models.EsignRequest) error
	GetByID(ctx context.Context, id string) (*models.EsignRequest, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.EsignRequest, error)
	ListByDocument(ctx context.Context, documentID string) ([]models.EsignRequest, error)
	SetExternalID(ctx context.Context, id, externalID string) error
	MarkSigned(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, reason string) error
	ResetForRetry(ctx context.Context, id string) error
	MarkFailedPermanent(ctx context.Context, id, reason string) error
}

type esignDocumentStore interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
	GetCurrentVersion(ctx context.Context, documentID string) (*models.DocumentVersion, error)
	UpdateStatus(ctx context.Context, id string, to models.DocumentStatus, from ...models.DocumentStatus) error
	AttachSignedFile(ctx context.Context, versionID, signedFilePath string) error
}

// EsignService bridges approved documents to the external signing provider.
// Provider failures are recorded on the request, never surfaced as request
// errors: the caller sees a FAILED request it can retry.
type EsignService struct {
	repo       esignStore
	documents  esignDocumentStore
	provider   esign.Provider
	audit      auditLogger
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	maxRetries int
}

// NewEsignService constructs the service. maxRetries caps ResetForRetry calls
// per request before the request is closed as FAILED_PERMANENT.
func NewEsignService(repo esignStore, documents esignDocumentStore, provider esign.Provider, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, maxRetries int) *EsignService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &EsignService{
		repo:       repo,
		documents:  documents,
		provider:   provider,
		audit:      audit,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// RequestSignature creates a signature request for the document's approved
// current version and moves the document to ESIGN_PENDING. The outbound
// provider call happens after commit; its failure leaves the request FAILED
// for a later retry.
func (s *EsignService) RequestSignature(ctx context.Context, documentID string, req dto.RequestSignatureRequest, actorID string) (*models.EsignRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid signature payload")
	}
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if doc.Status != models.DocStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("signature requires an APPROVED document, current status is %s", doc.Status))
	}
	version, err := s.documents.GetCurrentVersion(ctx, documentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current version")
	}

	request := &models.EsignRequest{
		DocumentID:  documentID,
		VersionID:   version.ID,
		SignerID:    req.SignerID,
		SignerName:  req.SignerName,
		SignerEmail: req.SignerEmail,
		Status:      models.EsignStatusPending,
		RequestedBy: actorID,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create signature request")
	}
	if err := s.documents.UpdateStatus(ctx, documentID, models.DocStatusEsignPending, models.DocStatusApproved); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "document status changed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move document to signing")
	}

	s.dispatch(ctx, request, version)
	s.emitAudit(ctx, actorID, models.AuditActionEsignRequest, request.ID, request)
	return request, nil
}

// dispatch performs the outbound provider call and records the result on the
// request row.
func (s *EsignService) dispatch(ctx context.Context, request *models.EsignRequest, version *models.DocumentVersion) {
	externalID, err := s.provider.CreateSigningRequest(ctx, esign.SigningRequest{
		RequestID:   request.ID,
		SignerName:  request.SignerName,
		SignerEmail: request.SignerEmail,
		FileRef:     version.FilePath,
	})
	if err != nil {
		s.logger.Sugar().Warnw("signing provider call failed", "request_id", request.ID, "error", err)
		reason := err.Error()
		if markErr := s.repo.MarkFailed(ctx, request.ID, reason); markErr != nil {
			s.logger.Sugar().Errorw("failed to record provider failure", "request_id", request.ID, "error", markErr)
		}
		request.Status = models.EsignStatusFailed
		request.FailedReason = &reason
		return
	}
	if err := s.repo.SetExternalID(ctx, request.ID, externalID); err != nil {
		s.logger.Sugar().Errorw("failed to store external id", "request_id", request.ID, "error", err)
		return
	}
	request.ExternalID = &externalID
}

// HandleProviderCallback processes the provider webhook. A SIGNED callback
// attaches the signed file and moves the document to SIGNED; a FAILED callback
// records the reason. Stale callbacks against closed requests are dropped.
func (s *EsignService) HandleProviderCallback(ctx context.Context, req dto.ProviderCallbackRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid callback payload")
	}
	request, err := s.repo.GetByExternalID(ctx, req.ExternalRequestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "unknown signature request")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load signature request")
	}

	if s.metrics != nil {
		s.metrics.RecordEsignCallback(req.Status)
	}

	switch req.Status {
	case "SIGNED":
		if err := s.repo.MarkSigned(ctx, request.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				// Duplicate or stale callback, already terminal.
				s.logger.Sugar().Infow("dropping callback for closed request", "request_id", request.ID, "status", request.Status)
				return nil
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark request signed")
		}
		if req.SignedFileRef != nil && *req.SignedFileRef != "" {
			if err := s.documents.AttachSignedFile(ctx, request.VersionID, *req.SignedFileRef); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach signed file")
			}
		}
		if err := s.documents.UpdateStatus(ctx, request.DocumentID, models.DocStatusSigned, models.DocStatusEsignPending); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark document signed")
		}
		s.emitAudit(ctx, request.RequestedBy, models.AuditActionEsignCallback, request.ID, req)
		return nil

	case "FAILED":
		reason := "provider reported failure"
		if req.Reason != nil && *req.Reason != "" {
			reason = *req.Reason
		}
		if err := s.repo.MarkFailed(ctx, request.ID, reason); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				s.logger.Sugar().Infow("dropping failure callback for closed request", "request_id", request.ID, "status", request.Status)
				return nil
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark request failed")
		}
		s.emitAudit(ctx, request.RequestedBy, models.AuditActionEsignCallback, request.ID, req)
		return nil

	default:
		return appErrors.Clone(appErrors.ErrValidation, "unsupported callback status "+req.Status)
	}
}

// Retry re-dispatches a FAILED request. Once the retry cap is exhausted the
// request closes as FAILED_PERMANENT and stays closed.
func (s *EsignService) Retry(ctx context.Context, requestID, actorID string) (*models.EsignRequest, error) {
	request, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "signature request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load signature request")
	}
	if request.Status != models.EsignStatusFailed {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("retry requires a FAILED request, current status is %s", request.Status))
	}
	if request.RetryCount >= s.maxRetries {
		reason := fmt.Sprintf("retry cap of %d exhausted", s.maxRetries)
		if err := s.repo.MarkFailedPermanent(ctx, request.ID, reason); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close exhausted request")
		}
		return nil, appErrors.Clone(appErrors.ErrInvalidState, reason)
	}

	if err := s.repo.ResetForRetry(ctx, request.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "request status changed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset request")
	}
	request.Status = models.EsignStatusPending
	request.RetryCount++
	request.FailedReason = nil

	version, err := s.documents.GetCurrentVersion(ctx, request.DocumentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current version")
	}
	s.dispatch(ctx, request, version)
	s.emitAudit(ctx, actorID, models.AuditActionEsignRetry, request.ID, request)
	return request, nil
}

// ListByDocument returns a document's signature requests, most recent first.
func (s *EsignService) ListByDocument(ctx context.Context, documentID string) ([]models.EsignRequest, error) {
	requests, err := s.repo.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list signature requests")
	}
	return requests, nil
}

func (s *EsignService) emitAudit(ctx context.Context, actorID, action, resourceID string, payload interface{}) {
	if s.audit == nil {
		return
	}
	values, _ := json.Marshal(payload)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "esign_request",
		ResourceID: &resourceID,
		NewValues:  values,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to write audit log", "action", action, "error", err)
	}
}
