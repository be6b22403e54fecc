package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hse-dms-api/internal/dto"
	"github.com/noah-isme/hse-dms-api/internal/models"
	appErrors "github.com/noah-isme/hse-dms-api/pkg/errors"
	"github.com/noah-isme/hse-dms-api/pkg/response"
	"github.com/noah-isme/hse-dms-api/pkg/storage"
)

type registryService interface {
	CreateDocument(ctx context.Context, req dto.CreateDocumentRequest, actorID string) (*dto.DocumentDetail, error)
	Get(ctx context.Context, documentID string) (*dto.DocumentDetail, error)
	List(ctx context.Context, query dto.DocumentQuery) ([]models.Document, *models.Pagination, error)
	ListVersions(ctx context.Context, documentID string) ([]models.DocumentVersion, error)
	CreateDraftVersion(ctx context.Context, documentID string, req dto.CreateVersionRequest, actorID string) (*models.DocumentVersion, error)
	Publish(ctx context.Context, documentID, actorID string) (*models.Document, error)
	Archive(ctx context.Context, documentID, actorID string) (*models.Document, error)
	Dispose(ctx context.Context, documentID string, req dto.DisposeDocumentRequest, actorID string) (*models.DisposalRecord, error)
	ListDisposalRecords(ctx context.Context, documentID string) ([]models.DisposalRecord, error)
	GetVersion(ctx context.Context, documentID, versionID string) (*models.DocumentVersion, error)
}

// DocumentHandler exposes the masterlist and lifecycle endpoints.
type DocumentHandler struct {
	service registryService
	signer  *storage.SignedURLSigner
	files   *storage.LocalStorage
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(service registryService, signer *storage.SignedURLSigner, files *storage.LocalStorage) *DocumentHandler {
	return &DocumentHandler{service: service, signer: signer, files: files}
}

// Create godoc
// @Summary Register a document with its first draft version
// @Tags Documents
// @Accept json
// @Produce json
// @Param payload body dto.CreateDocumentRequest true "Document payload"
// @Success 201 {object} response.Envelope
// @Router /documents [post]
func (h *DocumentHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid document payload"))
		return
	}
	detail, err := h.service.CreateDocument(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, detail, nil)
}

// List godoc
// @Summary List masterlist documents
// @Tags Documents
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param category query string false "Category"
// @Param department query string false "Department"
// @Param search query string false "Search in code and title"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	query := dto.DocumentQuery{
		Category:   strings.TrimSpace(c.Query("category")),
		Department: strings.TrimSpace(c.Query("department")),
		Search:     strings.TrimSpace(c.Query("search")),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.DocumentStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.DocumentStatus(part))
		}
		query.Status = statuses
	}
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "50"))

	documents, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, documents, pagination)
}

// Get godoc
// @Summary Get a document with its current version
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// ListVersions godoc
// @Summary List a document's version history
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/versions [get]
func (h *DocumentHandler) ListVersions(c *gin.Context) {
	versions, err := h.service.ListVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, versions, nil)
}

// CreateVersion godoc
// @Summary Upload the next draft revision
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.CreateVersionRequest true "Version payload"
// @Success 201 {object} response.Envelope
// @Router /documents/{id}/versions [post]
func (h *DocumentHandler) CreateVersion(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid version payload"))
		return
	}
	version, err := h.service.CreateDraftVersion(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, version, nil)
}

// Publish godoc
// @Summary Publish a signed or approved document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/publish [post]
func (h *DocumentHandler) Publish(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	doc, err := h.service.Publish(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Archive godoc
// @Summary Archive a document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/archive [post]
func (h *DocumentHandler) Archive(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	doc, err := h.service.Archive(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Dispose godoc
// @Summary Dispose a document with an auditable reason
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.DisposeDocumentRequest true "Disposal payload"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/dispose [post]
func (h *DocumentHandler) Dispose(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.DisposeDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid disposal payload"))
		return
	}
	record, err := h.service.Dispose(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// ListDisposalRecords godoc
// @Summary List a document's disposal trail
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/disposals [get]
func (h *DocumentHandler) ListDisposalRecords(c *gin.Context) {
	records, err := h.service.ListDisposalRecords(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// DownloadLink godoc
// @Summary Issue a time-limited download token for a version file
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Param versionId path string true "Version ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/versions/{versionId}/download-link [get]
func (h *DocumentHandler) DownloadLink(c *gin.Context) {
	if h.signer == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "download signing not configured"))
		return
	}
	version, err := h.service.GetVersion(c.Request.Context(), c.Param("id"), c.Param("versionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	filePath := version.FilePath
	if version.SignedFilePath != nil && *version.SignedFilePath != "" {
		filePath = *version.SignedFilePath
	}
	token, expiresAt, err := h.signer.Generate(version.ID, filePath)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download"))
		return
	}
	response.JSON(c, http.StatusOK, dto.SignedDownload{Token: token, ExpiresAt: expiresAt}, nil)
}

// Download godoc
// @Summary Stream a file referenced by a signed token
// @Tags Documents
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /files/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	if h.signer == nil || h.files == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "downloads not configured"))
		return
	}
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "missing download token"))
		return
	}
	_, relPath, _, err := h.signer.Parse(token, false)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token"))
		return
	}
	c.FileAttachment(h.files.Path(relPath), relPath[strings.LastIndex(relPath, "/")+1:])
}
