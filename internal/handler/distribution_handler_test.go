package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hse-dms-api/internal/dto"
	"github.com/noah-isme/hse-dms-api/internal/models"
	appErrors "github.com/noah-isme/hse-dms-api/pkg/errors"
)

type distributionServiceMock struct {
	distributeResp *models.DistributionBatchResult
	distributeErr  error
	markReadResp   *models.Distribution
	markReadErr    error
	ackResp        *models.Distribution
	ackCtx         dto.AcknowledgeContext
	ackActorID     string
	exportPayload  []byte
	exportType     string
	exportFormat   string
	exportErr      error
}

func (m *distributionServiceMock) Distribute(ctx context.Context, documentID string, req dto.DistributeRequest, actorID string) (*models.DistributionBatchResult, error) {
	return m.distributeResp, m.distributeErr
}

func (m *distributionServiceMock) ListByDocument(ctx context.Context, documentID string) ([]models.Distribution, error) {
	return nil, nil
}

func (m *distributionServiceMock) MarkRead(ctx context.Context, distributionID, actorID string) (*models.Distribution, error) {
	if m.markReadErr != nil {
		return nil, m.markReadErr
	}
	return m.markReadResp, nil
}

func (m *distributionServiceMock) Acknowledge(ctx context.Context, distributionID, actorID string, ackCtx dto.AcknowledgeContext) (*models.Distribution, error) {
	m.ackActorID = actorID
	m.ackCtx = ackCtx
	return m.ackResp, nil
}

func (m *distributionServiceMock) Compliance(ctx context.Context, documentID string) ([]models.ComplianceEntry, error) {
	return []models.ComplianceEntry{{DistributionID: "d1", Status: models.CompliancePending}}, nil
}

func (m *distributionServiceMock) ExportCompliance(ctx context.Context, documentID, format string) ([]byte, string, error) {
	m.exportFormat = format
	if m.exportErr != nil {
		return nil, "", m.exportErr
	}
	return m.exportPayload, m.exportType, nil
}

func TestDistributionHandlerDistribute(t *testing.T) {
	mockSvc := &distributionServiceMock{distributeResp: &models.DistributionBatchResult{DocumentID: "doc-1", Created: 2}}
	handler := NewDistributionHandler(mockSvc)

	payload, _ := json.Marshal(dto.DistributeRequest{Recipients: []dto.RecipientInput{{ID: "emp-1", Name: "Alice"}}})
	c, w := testContext(t, http.MethodPost, "/documents/doc-1/distribute", payload)
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}

	handler.Distribute(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestDistributionHandlerMarkReadForbidden(t *testing.T) {
	mockSvc := &distributionServiceMock{markReadErr: appErrors.Clone(appErrors.ErrForbidden, "distribution belongs to another recipient")}
	handler := NewDistributionHandler(mockSvc)

	c, w := testContext(t, http.MethodPost, "/distributions/dist-1/read", nil)
	c.Params = gin.Params{{Key: "distributionId", Value: "dist-1"}}

	handler.MarkRead(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestDistributionHandlerAcknowledgeCapturesClient(t *testing.T) {
	mockSvc := &distributionServiceMock{ackResp: &models.Distribution{ID: "dist-1", RecipientID: "u1"}}
	handler := NewDistributionHandler(mockSvc)

	c, w := testContext(t, http.MethodPost, "/distributions/dist-1/acknowledge", nil)
	c.Params = gin.Params{{Key: "distributionId", Value: "dist-1"}}
	c.Request.Header.Set("User-Agent", "hse-mobile/2.1")

	handler.Acknowledge(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", mockSvc.ackActorID)
	assert.Equal(t, "hse-mobile/2.1", mockSvc.ackCtx.UserAgent)
}

func TestDistributionHandlerExportDefaultsToCSV(t *testing.T) {
	mockSvc := &distributionServiceMock{exportPayload: []byte("Recipient\n"), exportType: "text/csv"}
	handler := NewDistributionHandler(mockSvc)

	c, w := testContext(t, http.MethodGet, "/documents/doc-1/compliance/export", nil)
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}

	handler.ExportCompliance(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", mockSvc.exportFormat)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "compliance-doc-1.csv")
}

func TestDistributionHandlerExportUnsupportedFormat(t *testing.T) {
	mockSvc := &distributionServiceMock{exportErr: appErrors.Clone(appErrors.ErrValidation, "unsupported export format xlsx")}
	handler := NewDistributionHandler(mockSvc)

	c, w := testContext(t, http.MethodGet, "/documents/doc-1/compliance/export?format=xlsx", nil)
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}

	handler.ExportCompliance(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
