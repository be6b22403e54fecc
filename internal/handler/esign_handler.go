package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hse-dms-api/internal/dto"
	"github.com/noah-isme/hse-dms-api/internal/models"
	appErrors "github.com/noah-isme/hse-dms-api/pkg/errors"
	"github.com/noah-isme/hse-dms-api/pkg/response"
)

type esignService interface {
	RequestSignature(ctx context.Context, documentID string, req dto.RequestSignatureRequest, actorID string) (*models.EsignRequest, error)
	HandleProviderCallback(ctx context.Context, req dto.ProviderCallbackRequest) error
	Retry(ctx context.Context, requestID, actorID string) (*models.EsignRequest, error)
	ListByDocument(ctx context.Context, documentID string) ([]models.EsignRequest, error)
}

// EsignHandler exposes the electronic signature endpoints. The provider
// callback is authenticated by a shared secret header, not a user token.
type EsignHandler struct {
	service        esignService
	callbackSecret string
}

// NewEsignHandler constructs the handler.
func NewEsignHandler(service esignService, callbackSecret string) *EsignHandler {
	return &EsignHandler{service: service, callbackSecret: callbackSecret}
}

// RequestSignature godoc
// @Summary Request an electronic signature for an approved document
// @Tags Esign
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.RequestSignatureRequest true "Signer"
// @Success 201 {object} response.Envelope
// @Router /documents/{id}/esign [post]
func (h *EsignHandler) RequestSignature(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RequestSignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid signature payload"))
		return
	}
	request, err := h.service.RequestSignature(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, request, nil)
}

// Callback godoc
// @Summary Provider webhook for signature completion
// @Tags Esign
// @Accept json
// @Produce json
// @Param payload body dto.ProviderCallbackRequest true "Callback payload"
// @Success 204 "No Content"
// @Router /esign/callback [post]
func (h *EsignHandler) Callback(c *gin.Context) {
	if h.callbackSecret != "" && c.GetHeader("X-Callback-Secret") != h.callbackSecret {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ProviderCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid callback payload"))
		return
	}
	if err := h.service.HandleProviderCallback(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Retry godoc
// @Summary Retry a failed signature request
// @Tags Esign
// @Produce json
// @Param requestId path string true "Signature request ID"
// @Success 200 {object} response.Envelope
// @Router /esign/{requestId}/retry [post]
func (h *EsignHandler) Retry(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Retry(c.Request.Context(), c.Param("requestId"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// ListByDocument godoc
// @Summary List a document's signature requests
// @Tags Esign
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/esign [get]
func (h *EsignHandler) ListByDocument(c *gin.Context) {
	requests, err := h.service.ListByDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}
