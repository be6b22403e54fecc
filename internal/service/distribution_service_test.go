package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/hse-dms-api/internal/dto"
	"github.com/noah-isme/hse-dms-api/internal/models"
	appErrors "github.com/noah-isme/hse-dms-api/pkg/errors"
)

type mockDistributionStore struct {
	batch       []models.Distribution
	createCount int
	dist        *models.Distribution
	list        []models.Distribution
	overdue     []models.Distribution
	readAt      *time.Time
	ackAt       *time.Time
	ackIP       *string
	ackUA       *string
}

func (m *mockDistributionStore) CreateBatch(ctx context.Context, distributions []models.Distribution) (int, error) {
	m.batch = distributions
	if m.createCount > 0 {
		return m.createCount, nil
	}
	return len(distributions), nil
}

func (m *mockDistributionStore) GetByID(ctx context.Context, id string) (*models.Distribution, error) {
	if m.dist == nil {
		return nil, sql.ErrNoRows
	}
	return m.dist, nil
}

func (m *mockDistributionStore) ListByDocument(ctx context.Context, documentID string) ([]models.Distribution, error) {
	return m.list, nil
}

func (m *mockDistributionStore) MarkRead(ctx context.Context, id string, at time.Time) error {
	m.readAt = &at
	m.dist.IsRead = true
	m.dist.ReadAt = &at
	return nil
}

func (m *mockDistributionStore) Acknowledge(ctx context.Context, id string, at time.Time, ipAddress, userAgent *string) error {
	m.ackAt = &at
	m.ackIP = ipAddress
	m.ackUA = userAgent
	m.dist.AcknowledgedAt = &at
	return nil
}

func (m *mockDistributionStore) ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Distribution, error) {
	return m.overdue, nil
}

func publishedDocReader() *mockDocReader {
	return &mockDocReader{
		doc:     &models.Document{ID: "doc-1", Code: "HSE-SOP-001", Title: "Working at Height", Status: models.DocStatusPublished},
		version: &models.DocumentVersion{ID: "v1", DocumentID: "doc-1"},
	}
}

func TestDistribute(t *testing.T) {
	store := &mockDistributionStore{}
	sink := &captureSink{}
	audit := &stubAudit{}
	svc := NewDistributionService(store, publishedDocReader(), sink, audit, nil, validator.New(), zap.NewNop())

	deadline := time.Now().Add(72 * time.Hour)
	result, err := svc.Distribute(context.Background(), "doc-1", dto.DistributeRequest{
		Recipients: []dto.RecipientInput{
			{ID: "emp-1", Name: "Alice", Department: "HSE"},
			{ID: "emp-2", Name: "Bob", Department: "Operations"},
		},
		IsMandatory: true,
		Deadline:    &deadline,
	}, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 0, result.Skipped)
	require.Len(t, store.batch, 2)
	assert.Equal(t, "v1", store.batch[0].VersionID)
	assert.True(t, store.batch[0].IsMandatory)
	require.Len(t, sink.sent, 2)
	assert.Equal(t, NotifyKindDistribution, sink.sent[0].Kind)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionDistribute, audit.logs[0].Action)
}

func TestDistributeSkipsExistingRecipients(t *testing.T) {
	store := &mockDistributionStore{createCount: 1}
	svc := NewDistributionService(store, publishedDocReader(), nil, nil, nil, validator.New(), zap.NewNop())

	result, err := svc.Distribute(context.Background(), "doc-1", dto.DistributeRequest{
		Recipients: []dto.RecipientInput{{ID: "emp-1", Name: "Alice"}, {ID: "emp-2", Name: "Bob"}},
	}, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Skipped)
}

func TestDistributeRequiresPublished(t *testing.T) {
	docs := publishedDocReader()
	docs.doc.Status = models.DocStatusApproved
	svc := NewDistributionService(&mockDistributionStore{}, docs, nil, nil, nil, validator.New(), zap.NewNop())

	_, err := svc.Distribute(context.Background(), "doc-1", dto.DistributeRequest{
		Recipients: []dto.RecipientInput{{ID: "emp-1", Name: "Alice"}},
	}, "u1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestMarkReadOwnership(t *testing.T) {
	store := &mockDistributionStore{dist: &models.Distribution{ID: "dist-1", RecipientID: "emp-1"}}
	svc := NewDistributionService(store, publishedDocReader(), nil, nil, nil, validator.New(), zap.NewNop())

	_, err := svc.MarkRead(context.Background(), "dist-1", "emp-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	dist, err := svc.MarkRead(context.Background(), "dist-1", "emp-1")
	require.NoError(t, err)
	assert.True(t, dist.IsRead)
	require.NotNil(t, store.readAt)
}

func TestAcknowledgeCapturesClientContext(t *testing.T) {
	store := &mockDistributionStore{dist: &models.Distribution{ID: "dist-1", RecipientID: "emp-1"}}
	audit := &stubAudit{}
	svc := NewDistributionService(store, publishedDocReader(), nil, audit, nil, validator.New(), zap.NewNop())

	dist, err := svc.Acknowledge(context.Background(), "dist-1", "emp-1", dto.AcknowledgeContext{
		IPAddress: "10.0.0.5",
		UserAgent: "Mozilla/5.0",
	})
	require.NoError(t, err)
	require.NotNil(t, dist.AcknowledgedAt)
	require.NotNil(t, store.ackIP)
	assert.Equal(t, "10.0.0.5", *store.ackIP)
	require.NotNil(t, store.ackUA)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionAcknowledge, audit.logs[0].Action)
}

func TestComplianceDerivesState(t *testing.T) {
	now := time.Now()
	store := &mockDistributionStore{list: []models.Distribution{
		{ID: "d1", RecipientID: "emp-1", RecipientName: "Alice"},
		{ID: "d2", RecipientID: "emp-2", RecipientName: "Bob", IsRead: true, ReadAt: &now},
		{ID: "d3", RecipientID: "emp-3", RecipientName: "Carol", IsRead: true, ReadAt: &now, AcknowledgedAt: &now},
	}}
	svc := NewDistributionService(store, publishedDocReader(), nil, nil, nil, validator.New(), zap.NewNop())

	entries, err := svc.Compliance(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, models.CompliancePending, entries[0].Status)
	assert.Equal(t, models.ComplianceRead, entries[1].Status)
	assert.Equal(t, models.ComplianceAcknowledged, entries[2].Status)
}

func TestExportComplianceCSV(t *testing.T) {
	now := time.Now()
	store := &mockDistributionStore{list: []models.Distribution{
		{ID: "d1", RecipientID: "emp-1", RecipientName: "Alice", Department: "HSE", IsMandatory: true, IsRead: true, ReadAt: &now},
	}}
	svc := NewDistributionService(store, publishedDocReader(), nil, nil, nil, validator.New(), zap.NewNop())

	payload, contentType, err := svc.ExportCompliance(context.Background(), "doc-1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	body := string(payload)
	assert.True(t, strings.Contains(body, "Recipient"))
	assert.True(t, strings.Contains(body, "Alice"))
	assert.True(t, strings.Contains(body, "read"))
}

func TestExportComplianceUnsupportedFormat(t *testing.T) {
	svc := NewDistributionService(&mockDistributionStore{}, publishedDocReader(), nil, nil, nil, validator.New(), zap.NewNop())

	_, _, err := svc.ExportCompliance(context.Background(), "doc-1", "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSweepOverdue(t *testing.T) {
	store := &mockDistributionStore{overdue: []models.Distribution{
		{ID: "d1", RecipientID: "emp-1", DocumentID: "doc-1"},
		{ID: "d2", RecipientID: "emp-2", DocumentID: "doc-1"},
	}}
	sink := &captureSink{}
	svc := NewDistributionService(store, publishedDocReader(), sink, nil, nil, validator.New(), zap.NewNop())

	swept, err := svc.SweepOverdue(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, swept)
	require.Len(t, sink.sent, 2)
	assert.Equal(t, NotifyKindDeadlineOverdue, sink.sent[0].Kind)
}
