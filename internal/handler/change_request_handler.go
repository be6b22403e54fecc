package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hse-dms-api/internal/dto"
	"github.com/noah-isme/hse-dms-api/internal/models"
	appErrors "github.com/noah-isme/hse-dms-api/pkg/errors"
	"github.com/noah-isme/hse-dms-api/pkg/response"
)

type changeRequestService interface {
	Create(ctx context.Context, documentID string, req dto.CreateChangeRequestRequest, actorID string) (*models.ChangeRequest, error)
	List(ctx context.Context, documentID string, statuses []models.ChangeRequestStatus) ([]models.ChangeRequest, error)
	Get(ctx context.Context, id string) (*models.ChangeRequest, error)
	Resolve(ctx context.Context, id string, req dto.ResolveChangeRequestRequest, actorID string) (*models.ChangeRequest, error)
}

// ChangeRequestHandler exposes post-publication change request endpoints.
type ChangeRequestHandler struct {
	service changeRequestService
}

// NewChangeRequestHandler constructs the handler.
func NewChangeRequestHandler(service changeRequestService) *ChangeRequestHandler {
	return &ChangeRequestHandler{service: service}
}

// Create godoc
// @Summary Propose an edit to a published document
// @Tags ChangeRequests
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.CreateChangeRequestRequest true "Proposal"
// @Success 201 {object} response.Envelope
// @Router /documents/{id}/change-requests [post]
func (h *ChangeRequestHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateChangeRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid change request payload"))
		return
	}
	cr, err := h.service.Create(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, cr, nil)
}

// List godoc
// @Summary List change requests
// @Tags ChangeRequests
// @Produce json
// @Param document_id query string false "Document ID"
// @Param status query string false "Comma separated statuses"
// @Success 200 {object} response.Envelope
// @Router /change-requests [get]
func (h *ChangeRequestHandler) List(c *gin.Context) {
	var statuses []models.ChangeRequestStatus
	if rawStatus := c.Query("status"); rawStatus != "" {
		for _, part := range strings.Split(rawStatus, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.ChangeRequestStatus(part))
		}
	}
	requests, err := h.service.List(c.Request.Context(), strings.TrimSpace(c.Query("document_id")), statuses)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Get godoc
// @Summary Get a change request
// @Tags ChangeRequests
// @Produce json
// @Param requestId path string true "Change request ID"
// @Success 200 {object} response.Envelope
// @Router /change-requests/{requestId} [get]
func (h *ChangeRequestHandler) Get(c *gin.Context) {
	cr, err := h.service.Get(c.Request.Context(), c.Param("requestId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cr, nil)
}

// Resolve godoc
// @Summary Approve or reject a change request
// @Tags ChangeRequests
// @Accept json
// @Produce json
// @Param requestId path string true "Change request ID"
// @Param payload body dto.ResolveChangeRequestRequest true "Resolution"
// @Success 200 {object} response.Envelope
// @Router /change-requests/{requestId}/resolve [post]
func (h *ChangeRequestHandler) Resolve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ResolveChangeRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid resolution payload"))
		return
	}
	cr, err := h.service.Resolve(c.Request.Context(), c.Param("requestId"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cr, nil)
}
