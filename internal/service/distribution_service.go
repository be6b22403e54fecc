package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hse-dms-api/internal/dto"
	"github.com/noah-isme/hse-dms-api/internal/models"
	appErrors "github.com/noah-isme/hse-dms-api/pkg/errors"
	"github.com/noah-isme/hse-dms-api/pkg/export"
)

type distributionStore interface {
	CreateBatch(ctx context.Context, distributions []models.Distribution) (int, error)
	GetByID(ctx context.Context, id string) (*models.Distribution, error)
	ListByDocument(ctx context.Context, documentID string) ([]models.Distribution, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	Acknowledge(ctx context.Context, id string, at time.Time, ipAddress, userAgent *string) error
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Distribution, error)
}

type distributionDocumentReader interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
	GetCurrentVersion(ctx context.Context, documentID string) (*models.DocumentVersion, error)
}

// DistributionService fans published documents out to recipients and tracks
// read/acknowledge compliance.
type DistributionService struct {
	repo      distributionStore
	documents distributionDocumentReader
	notify    notificationSink
	audit     auditLogger
	metrics   *MetricsService
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDistributionService constructs the service.
func NewDistributionService(repo distributionStore, documents distributionDocumentReader, notify notificationSink, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *DistributionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DistributionService{
		repo:      repo,
		documents: documents,
		notify:    notify,
		audit:     audit,
		metrics:   metrics,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		validator: validate,
		logger:    logger,
	}
}

// Distribute fans the document's published version out to the listed
// recipients. Recipients already holding a row for this version are skipped,
// so re-running a distribution is safe.
func (s *DistributionService) Distribute(ctx context.Context, documentID string, req dto.DistributeRequest, actorID string) (*models.DistributionBatchResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid distribution payload")
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
			fmt.Sprintf("distribution requires a PUBLISHED document, current status is %s", doc.Status))
	}
	version, err := s.documents.GetCurrentVersion(ctx, documentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current version")
	}

	now := time.Now().UTC()
	batch := make([]models.Distribution, 0, len(req.Recipients))
	for _, recipient := range req.Recipients {
		batch = append(batch, models.Distribution{
			DocumentID:    documentID,
			VersionID:     version.ID,
			RecipientID:   recipient.ID,
			RecipientName: recipient.Name,
			Department:    recipient.Department,
			IsMandatory:   req.IsMandatory,
			Deadline:      req.Deadline,
			CreatedAt:     now,
		})
	}
	created, err := s.repo.CreateBatch(ctx, batch)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create distributions")
	}

	for _, dist := range batch {
		s.enqueueNotification(Notification{
			RecipientID: dist.RecipientID,
			Kind:        NotifyKindDistribution,
			Title:       "New document distributed to you",
			Body:        fmt.Sprintf("Document %s (%s) has been distributed to you.", doc.Code, doc.Title),
		})
	}

	result := &models.DistributionBatchResult{
		DocumentID: documentID,
		VersionID:  version.ID,
		Created:    created,
		Skipped:    len(batch) - created,
		CreatedAt:  now,
	}
	s.emitAudit(ctx, actorID, models.AuditActionDistribute, documentID, result)
	return result, nil
}

// ListByDocument returns the fan-out rows for a document.
func (s *DistributionService) ListByDocument(ctx context.Context, documentID string) ([]models.Distribution, error) {
	distributions, err := s.repo.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list distributions")
	}
	return distributions, nil
}

// MarkRead records the recipient opening the document. Only the recipient may
// mark their own row; repeat calls keep the original read timestamp.
func (s *DistributionService) MarkRead(ctx context.Context, distributionID, actorID string) (*models.Distribution, error) {
	dist, err := s.getOwned(ctx, distributionID, actorID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.MarkRead(ctx, distributionID, time.Now().UTC()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark distribution read")
	}
	return s.reload(ctx, dist.ID)
}

// Acknowledge records the recipient's formal acknowledgment with client
// metadata. Acknowledging implies reading; repeat calls are accepted.
func (s *DistributionService) Acknowledge(ctx context.Context, distributionID, actorID string, ackCtx dto.AcknowledgeContext) (*models.Distribution, error) {
	dist, err := s.getOwned(ctx, distributionID, actorID)
	if err != nil {
		return nil, err
	}
	var ip, ua *string
	if ackCtx.IPAddress != "" {
		ip = &ackCtx.IPAddress
	}
	if ackCtx.UserAgent != "" {
		ua = &ackCtx.UserAgent
	}
	if err := s.repo.Acknowledge(ctx, distributionID, time.Now().UTC(), ip, ua); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acknowledge distribution")
	}
	if s.metrics != nil {
		s.metrics.RecordAcknowledgment()
	}
	s.emitAudit(ctx, actorID, models.AuditActionAcknowledge, distributionID, nil)
	return s.reload(ctx, dist.ID)
}

func (s *DistributionService) getOwned(ctx context.Context, distributionID, actorID string) (*models.Distribution, error) {
	dist, err := s.repo.GetByID(ctx, distributionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "distribution not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load distribution")
	}
	if dist.RecipientID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "distribution belongs to another recipient")
	}
	return dist, nil
}

func (s *DistributionService) reload(ctx context.Context, id string) (*models.Distribution, error) {
	dist, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload distribution")
	}
	return dist, nil
}

// Compliance derives the per-recipient report from the tracking columns.
func (s *DistributionService) Compliance(ctx context.Context, documentID string) ([]models.ComplianceEntry, error) {
	distributions, err := s.repo.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load distributions")
	}
	entries := make([]models.ComplianceEntry, 0, len(distributions))
	for _, dist := range distributions {
		entries = append(entries, models.ComplianceEntry{
			DistributionID: dist.ID,
			RecipientID:    dist.RecipientID,
			RecipientName:  dist.RecipientName,
			Department:     dist.Department,
			IsMandatory:    dist.IsMandatory,
			Status:         dist.State(),
			ReadAt:         dist.ReadAt,
			AcknowledgedAt: dist.AcknowledgedAt,
			Deadline:       dist.Deadline,
		})
	}
	return entries, nil
}

var complianceHeaders = []string{"Recipient", "Department", "Mandatory", "Status", "Read At", "Acknowledged At", "Deadline"}

// ExportCompliance renders the compliance report as CSV or PDF.
func (s *DistributionService) ExportCompliance(ctx context.Context, documentID, format string) ([]byte, string, error) {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	entries, err := s.Compliance(ctx, documentID)
	if err != nil {
		return nil, "", err
	}

	dataset := export.Dataset{Headers: complianceHeaders, Rows: make([]map[string]string, 0, len(entries))}
	for _, entry := range entries {
		row := map[string]string{
			"Recipient":  entry.RecipientName,
			"Department": entry.Department,
			"Mandatory":  fmt.Sprintf("%t", entry.IsMandatory),
			"Status":     string(entry.Status),
		}
		if entry.ReadAt != nil {
			row["Read At"] = entry.ReadAt.Format(time.RFC3339)
		}
		if entry.AcknowledgedAt != nil {
			row["Acknowledged At"] = entry.AcknowledgedAt.Format(time.RFC3339)
		}
		if entry.Deadline != nil {
			row["Deadline"] = entry.Deadline.Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, row)
	}

	switch format {
	case "csv", "":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	case "pdf":
		payload, err := s.pdf.Render(dataset, fmt.Sprintf("Compliance Report %s", doc.Code))
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format "+format)
	}
}

// SweepOverdue notifies recipients of mandatory distributions whose deadline
// passed without acknowledgment. Returns the number of rows swept.
func (s *DistributionService) SweepOverdue(ctx context.Context, limit int) (int, error) {
	overdue, err := s.repo.ListOverdue(ctx, time.Now().UTC(), limit)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list overdue distributions")
	}
	for _, dist := range overdue {
		s.enqueueNotification(Notification{
			RecipientID: dist.RecipientID,
			Kind:        NotifyKindDeadlineOverdue,
			Title:       "Acknowledgment overdue",
			Body:        fmt.Sprintf("Your acknowledgment deadline for document %s has passed.", dist.DocumentID),
		})
	}
	if s.metrics != nil {
		s.metrics.RecordOverdueSweep()
	}
	return len(overdue), nil
}

func (s *DistributionService) enqueueNotification(n Notification) {
	if s.notify != nil {
		s.notify.Enqueue(n)
	}
}

func (s *DistributionService) emitAudit(ctx context.Context, actorID, action, resourceID string, payload interface{}) {
	if s.audit == nil {
		return
	}
	values, _ := json.Marshal(payload)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "distribution",
		ResourceID: &resourceID,
		NewValues:  values,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to write audit log", "action", action, "error", err)
	}
}

// DeadlineSweeper periodically runs the overdue sweep in the background.
type DeadlineSweeper struct {
	service  *DistributionService
	interval time.Duration
	limit    int
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewDeadlineSweeper constructs the sweeper.
func NewDeadlineSweeper(service *DistributionService, interval time.Duration, limit int, logger *zap.Logger) *DeadlineSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeadlineSweeper{service: service, interval: interval, limit: limit, logger: logger}
}

// Start launches the sweep loop.
func (w *DeadlineSweeper) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				swept, err := w.service.SweepOverdue(ctx, w.limit)
				if err != nil {
					w.logger.Sugar().Warnw("deadline sweep failed", "error", err)
					continue
				}
				if swept > 0 {
					w.logger.Sugar().Infow("deadline sweep completed", "overdue", swept)
				}
			}
		}
	}()
}

// Stop halts the loop and waits for it to exit.
func (w *DeadlineSweeper) Stop() {
	if w.cancel != nil {
		w.cancel()
		<-w.done
	}
}
