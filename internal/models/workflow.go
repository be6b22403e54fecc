package models

import "time"

// WorkflowStatus captures the overall state of an approval workflow.
type WorkflowStatus string

const (
	WorkflowStatusPending  WorkflowStatus = "PENDING"
	WorkflowStatusApproved WorkflowStatus = "APPROVED"
	WorkflowStatusRejected WorkflowStatus = "REJECTED"
)

// StepStatus captures the state of a single approval step.
type StepStatus string

const (
	StepStatusPending    StepStatus = "PENDING"
	StepStatusInProgress StepStatus = "IN_PROGRESS"
	StepStatusCompleted  StepStatus = "COMPLETED"
	StepStatusRejected   StepStatus = "REJECTED"
)

// StepMode governs whether assignees must decide in their listed order.
type StepMode string

const (
	StepModeSerial   StepMode = "SERIAL"
	StepModeParallel StepMode = "PARALLEL"
)

// Decision is the write-once verdict recorded per assignee.
type Decision string

const (
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

// ApprovalWorkflow belongs to exactly one (document, version) pair. It is
// created on submission, closed exactly once and immutable thereafter.
type ApprovalWorkflow struct {
	ID            string         `db:"id" json:"id"`
	DocumentID    string         `db:"document_id" json:"documentId"`
	VersionID     string         `db:"version_id" json:"versionId"`
	TotalSteps    int            `db:"total_steps" json:"totalSteps"`
	CurrentStep   int            `db:"current_step" json:"currentStep"`
	Status        WorkflowStatus `db:"status" json:"status"`
	FinalDecision *Decision      `db:"final_decision" json:"finalDecision,omitempty"`
	InitiatedBy   string         `db:"initiated_by" json:"initiatedBy"`
	CreatedAt     time.Time      `db:"created_at" json:"createdAt"`
	ClosedAt      *time.Time     `db:"closed_at" json:"closedAt,omitempty"`

	Steps []ApprovalStep `db:"-" json:"steps,omitempty"`
}

// ApprovalStep is an ordered child of a workflow. Only one step per workflow
// may be IN_PROGRESS at a time.
type ApprovalStep struct {
	ID             string     `db:"id" json:"id"`
	WorkflowID     string     `db:"workflow_id" json:"workflowId"`
	StepNumber     int        `db:"step_number" json:"stepNumber"`
	Name           string     `db:"name" json:"name"`
	Mode           StepMode   `db:"mode" json:"mode"`
	QuorumRequired int        `db:"quorum_required" json:"quorumRequired"`
	Status         StepStatus `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`

	Assignees []StepAssignee `db:"-" json:"assignees,omitempty"`
}

// StepAssignee is one person invited to decide on a step. Decision is
// write-once: null until set, never changed afterwards.
type StepAssignee struct {
	ID            string     `db:"id" json:"id"`
	StepID        string     `db:"step_id" json:"stepId"`
	AssigneeID    string     `db:"assignee_id" json:"assigneeId"`
	AssigneeName  string     `db:"assignee_name" json:"assigneeName"`
	AssigneeOrder int        `db:"assignee_order" json:"assigneeOrder"`
	Decision      *Decision  `db:"decision" json:"decision,omitempty"`
	Comments      *string    `db:"comments" json:"comments,omitempty"`
	DecidedAt     *time.Time `db:"decided_at" json:"decidedAt,omitempty"`
}

// PendingDecision is an inbox entry: an undecided assignee row on an
// in-progress step joined with document metadata.
type PendingDecision struct {
	AssigneeRowID string    `db:"assignee_row_id" json:"assigneeRowId"`
	StepID        string    `db:"step_id" json:"stepId"`
	StepNumber    int       `db:"step_number" json:"stepNumber"`
	StepName      string    `db:"step_name" json:"stepName"`
	WorkflowID    string    `db:"workflow_id" json:"workflowId"`
	DocumentID    string    `db:"document_id" json:"documentId"`
	DocumentCode  string    `db:"document_code" json:"documentCode"`
	DocumentTitle string    `db:"document_title" json:"documentTitle"`
	Department    string    `db:"department" json:"department"`
	SubmittedAt   time.Time `db:"submitted_at" json:"submittedAt"`
}

// DecisionOutcome summarises what a decide() call changed.
type DecisionOutcome struct {
	WorkflowID      string         `json:"workflowId"`
	WorkflowStatus  WorkflowStatus `json:"workflowStatus"`
	StepID          string         `json:"stepId"`
	StepStatus      StepStatus     `json:"stepStatus"`
	CurrentStep     int            `json:"currentStep"`
	DocumentStatus  DocumentStatus `json:"documentStatus"`
	StepCompleted   bool           `json:"stepCompleted"`
	WorkflowClosed  bool           `json:"workflowClosed"`
	AdvancedToStep  int            `json:"advancedToStep,omitempty"`
	RecordedComment *string        `json:"recordedComment,omitempty"`
}
