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

type workflowService interface {
	Submit(ctx context.Context, documentID string, req dto.SubmitApprovalRequest, actor *models.JWTClaims) (*models.ApprovalWorkflow, error)
	Decide(ctx context.Context, assigneeRowID string, req dto.DecideRequest, actor *models.JWTClaims) (*models.DecisionOutcome, error)
	Inbox(ctx context.Context, userID string) ([]models.PendingDecision, error)
	History(ctx context.Context, documentID string) ([]models.ApprovalWorkflow, error)
	AddAssignee(ctx context.Context, stepID string, req dto.AddAssigneeRequest, actor *models.JWTClaims) error
}

// WorkflowHandler exposes the approval workflow endpoints.
type WorkflowHandler struct {
	service workflowService
}

// NewWorkflowHandler constructs the handler.
func NewWorkflowHandler(service workflowService) *WorkflowHandler {
	return &WorkflowHandler{service: service}
}

// Submit godoc
// @Summary Submit a document for approval
// @Tags Workflows
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.SubmitApprovalRequest true "Workflow steps"
// @Success 201 {object} response.Envelope
// @Router /documents/{id}/submit [post]
func (h *WorkflowHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SubmitApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid submission payload"))
		return
	}
	wf, err := h.service.Submit(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, wf, nil)
}

// Decide godoc
// @Summary Record an approval decision
// @Tags Workflows
// @Accept json
// @Produce json
// @Param assigneeId path string true "Assignee row ID"
// @Param payload body dto.DecideRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /approvals/{assigneeId}/decide [post]
func (h *WorkflowHandler) Decide(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	outcome, err := h.service.Decide(c.Request.Context(), c.Param("assigneeId"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcome, nil)
}

// Inbox godoc
// @Summary List the caller's pending decisions
// @Tags Workflows
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /approvals/inbox [get]
func (h *WorkflowHandler) Inbox(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	inbox, err := h.service.Inbox(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, inbox, nil)
}

// History godoc
// @Summary List a document's approval workflows
// @Tags Workflows
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/workflows [get]
func (h *WorkflowHandler) History(c *gin.Context) {
	workflows, err := h.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, workflows, nil)
}

// AddAssignee godoc
// @Summary Add an assignee to an open step
// @Tags Workflows
// @Accept json
// @Produce json
// @Param stepId path string true "Step ID"
// @Param payload body dto.AddAssigneeRequest true "Assignee"
// @Success 204 "No Content"
// @Router /approvals/steps/{stepId}/assignees [post]
func (h *WorkflowHandler) AddAssignee(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.AddAssigneeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid assignee payload"))
		return
	}
	if err := h.service.AddAssignee(c.Request.Context(), c.Param("stepId"), req, claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
