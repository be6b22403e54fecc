package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hse-dms-api/internal/dto"
	"github.com/noah-isme/hse-dms-api/internal/models"
	appErrors "github.com/noah-isme/hse-dms-api/pkg/errors"
	"github.com/noah-isme/hse-dms-api/pkg/response"
)

type distributionService interface {
	Distribute(ctx context.Context, documentID string, req dto.DistributeRequest, actorID string) (*models.DistributionBatchResult, error)
	ListByDocument(ctx context.Context, documentID string) ([]models.Distribution, error)
	MarkRead(ctx context.Context, distributionID, actorID string) (*models.Distribution, error)
	Acknowledge(ctx context.Context, distributionID, actorID string, ackCtx dto.AcknowledgeContext) (*models.Distribution, error)
	Compliance(ctx context.Context, documentID string) ([]models.ComplianceEntry, error)
	ExportCompliance(ctx context.Context, documentID, format string) ([]byte, string, error)
}

// DistributionHandler exposes distribution and compliance endpoints.
type DistributionHandler struct {
	service distributionService
}

// NewDistributionHandler constructs the handler.
func NewDistributionHandler(service distributionService) *DistributionHandler {
	return &DistributionHandler{service: service}
}

// Distribute godoc
// @Summary Fan a published document out to recipients
// @Tags Distributions
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.DistributeRequest true "Recipients"
// @Success 201 {object} response.Envelope
// @Router /documents/{id}/distribute [post]
func (h *DistributionHandler) Distribute(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.DistributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid distribution payload"))
		return
	}
	result, err := h.service.Distribute(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, result, nil)
}

// ListByDocument godoc
// @Summary List a document's distributions
// @Tags Distributions
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/distributions [get]
func (h *DistributionHandler) ListByDocument(c *gin.Context) {
	distributions, err := h.service.ListByDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, distributions, nil)
}

// MarkRead godoc
// @Summary Mark a distribution as read by its recipient
// @Tags Distributions
// @Produce json
// @Param distributionId path string true "Distribution ID"
// @Success 200 {object} response.Envelope
// @Router /distributions/{distributionId}/read [post]
func (h *DistributionHandler) MarkRead(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	dist, err := h.service.MarkRead(c.Request.Context(), c.Param("distributionId"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dist, nil)
}

// Acknowledge godoc
// @Summary Acknowledge a distribution
// @Tags Distributions
// @Produce json
// @Param distributionId path string true "Distribution ID"
// @Success 200 {object} response.Envelope
// @Router /distributions/{distributionId}/acknowledge [post]
func (h *DistributionHandler) Acknowledge(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	ackCtx := dto.AcknowledgeContext{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	dist, err := h.service.Acknowledge(c.Request.Context(), c.Param("distributionId"), claims.UserID, ackCtx)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dist, nil)
}

// Compliance godoc
// @Summary Per-recipient compliance report for a document
// @Tags Distributions
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/compliance [get]
func (h *DistributionHandler) Compliance(c *gin.Context) {
	entries, err := h.service.Compliance(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// ExportCompliance godoc
// @Summary Export the compliance report as CSV or PDF
// @Tags Distributions
// @Produce octet-stream
// @Param id path string true "Document ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Router /documents/{id}/compliance/export [get]
func (h *DistributionHandler) ExportCompliance(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", "csv"))
	payload, contentType, err := h.service.ExportCompliance(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("compliance-%s.%s", c.Param("id"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}
