package dto

import "github.com/noah-isme/hse-dms-api/internal/models"

// ApprovalStepInput describes one step of a submission. Either Assignees or
// ResolveByRole must be provided; with ResolveByRole the engine looks up
// matching employees in the document's department.
type ApprovalStepInput struct {
	Name           string            `json:"name" validate:"required"`
	Mode           models.StepMode   `json:"mode" validate:"required,oneof=SERIAL PARALLEL"`
	QuorumRequired int               `json:"quorumRequired" validate:"required,min=1"`
	Assignees      []AssigneeInput   `json:"assignees" validate:"dive"`
	ResolveByRole  *RolePatternInput `json:"resolveByRole"`
}

// AssigneeInput names one explicit assignee.
type AssigneeInput struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
}

// RolePatternInput matches employees by position pattern within a department.
// Department defaults to the document's department when empty.
type RolePatternInput struct {
	PositionPattern string `json:"positionPattern" validate:"required"`
	Department      string `json:"department"`
	// MaxMatches caps how many resolved employees are invited (0 = all).
	MaxMatches int `json:"maxMatches"`
}

// SubmitApprovalRequest starts a workflow for a document's current version.
type SubmitApprovalRequest struct {
	Steps []ApprovalStepInput `json:"steps" validate:"required,min=1,dive"`
}

// DecideRequest records an assignee's verdict on a step.
type DecideRequest struct {
	Decision models.Decision `json:"decision" validate:"required,oneof=APPROVED REJECTED"`
	Comments string          `json:"comments"`
}

// AddAssigneeRequest attaches an assignee to a step that resolved to zero
// matches at submission time.
type AddAssigneeRequest struct {
	AssigneeID   string `json:"assigneeId" validate:"required"`
	AssigneeName string `json:"assigneeName"`
}
