package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/hse-dms-api/internal/models"
)

// DecisionStateError reports why a decision could not be applied, with enough
// context for the UI to explain the refusal.
type DecisionStateError struct {
	Kind       string
	StepName   string
	StepStatus models.StepStatus
}

const (
	decisionErrAlreadyDecided = "already_decided"
	decisionErrStepNotOpen    = "step_not_open"
	decisionErrOutOfTurn      = "out_of_turn"
	decisionErrNotAssignee    = "not_assignee"
	decisionErrWorkflowClosed = "workflow_closed"
)

func (e *DecisionStateError) Error() string {
	return fmt.Sprintf("decision rejected (%s): step %q is %s", e.Kind, e.StepName, e.StepStatus)
}

// AlreadyDecided reports whether the assignee's decision was set previously.
func (e *DecisionStateError) AlreadyDecided() bool { return e.Kind == decisionErrAlreadyDecided }

// WorkflowRepository persists approval workflows, steps and assignee
// decisions. Decision application runs in a single transaction with a row
// lock on the step so concurrent decides on the same step serialize.
type WorkflowRepository struct {
	db *sqlx.DB
}

// NewWorkflowRepository constructs the repository.
func NewWorkflowRepository(db *sqlx.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// CreateWorkflow inserts the workflow aggregate and flips the document and
// version into review in the same transaction.
func (r *WorkflowRepository) CreateWorkflow(ctx context.Context, wf *models.ApprovalWorkflow) (err error) {
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	wf.CreatedAt = now
	wf.Status = models.WorkflowStatusPending
	wf.CurrentStep = 1
	wf.TotalSteps = len(wf.Steps)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin workflow create: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const wfQuery = `INSERT INTO approval_workflows
	(id, document_id, version_id, total_steps, current_step, status, final_decision, initiated_by, created_at, closed_at)
	VALUES (:id, :document_id, :version_id, :total_steps, :current_step, :status, :final_decision, :initiated_by, :created_at, :closed_at)`
	if _, err = tx.NamedExecContext(ctx, wfQuery, wf); err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}

	const stepQuery = `INSERT INTO approval_steps
	(id, workflow_id, step_number, name, mode, quorum_required, status, created_at)
	VALUES (:id, :workflow_id, :step_number, :name, :mode, :quorum_required, :status, :created_at)`
	const assigneeQuery = `INSERT INTO step_assignees
	(id, step_id, assignee_id, assignee_name, assignee_order, decision, comments, decided_at)
	VALUES (:id, :step_id, :assignee_id, :assignee_name, :assignee_order, :decision, :comments, :decided_at)`

	for i := range wf.Steps {
		step := &wf.Steps[i]
		if step.ID == "" {
			step.ID = uuid.NewString()
		}
		step.WorkflowID = wf.ID
		step.StepNumber = i + 1
		step.CreatedAt = now
		if step.StepNumber == 1 {
			step.Status = models.StepStatusInProgress
		} else {
			step.Status = models.StepStatusPending
		}
		if _, err = tx.NamedExecContext(ctx, stepQuery, step); err != nil {
			return fmt.Errorf("insert step %d: %w", step.StepNumber, err)
		}
		for j := range step.Assignees {
			assignee := &step.Assignees[j]
			if assignee.ID == "" {
				assignee.ID = uuid.NewString()
			}
			assignee.StepID = step.ID
			assignee.AssigneeOrder = j + 1
			if _, err = tx.NamedExecContext(ctx, assigneeQuery, assignee); err != nil {
				return fmt.Errorf("insert assignee for step %d: %w", step.StepNumber, err)
			}
		}
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE documents SET status = $1, updated_at = $2 WHERE id = $3`,
		models.DocStatusInReview, now, wf.DocumentID); err != nil {
		return fmt.Errorf("move document into review: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE document_versions SET status = $1 WHERE id = $2`,
		models.VersionStatusPendingApproval, wf.VersionID); err != nil {
		return fmt.Errorf("move version into review: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit workflow create: %w", err)
	}
	return nil
}

// GetOpenByDocument returns the document's open workflow, or sql.ErrNoRows.
func (r *WorkflowRepository) GetOpenByDocument(ctx context.Context, documentID string) (*models.ApprovalWorkflow, error) {
	const query = `SELECT id, document_id, version_id, total_steps, current_step, status, final_decision, initiated_by, created_at, closed_at
	FROM approval_workflows WHERE document_id = $1 AND status = $2`
	var wf models.ApprovalWorkflow
	if err := r.db.GetContext(ctx, &wf, query, documentID, models.WorkflowStatusPending); err != nil {
		return nil, err
	}
	return &wf, nil
}

// GetByID fetches a workflow with nested steps and assignees.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.ApprovalWorkflow, error) {
	const query = `SELECT id, document_id, version_id, total_steps, current_step, status, final_decision, initiated_by, created_at, closed_at
	FROM approval_workflows WHERE id = $1`
	var wf models.ApprovalWorkflow
	if err := r.db.GetContext(ctx, &wf, query, id); err != nil {
		return nil, err
	}
	if err := r.attachChildren(ctx, []*models.ApprovalWorkflow{&wf}); err != nil {
		return nil, err
	}
	return &wf, nil
}

// ListByDocument returns the document's workflows most recent first, each
// with nested steps and assignee decisions.
func (r *WorkflowRepository) ListByDocument(ctx context.Context, documentID string) ([]models.ApprovalWorkflow, error) {
	const query = `SELECT id, document_id, version_id, total_steps, current_step, status, final_decision, initiated_by, created_at, closed_at
	FROM approval_workflows WHERE document_id = $1 ORDER BY created_at DESC, id DESC`
	var workflows []models.ApprovalWorkflow
	if err := r.db.SelectContext(ctx, &workflows, query, documentID); err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	refs := make([]*models.ApprovalWorkflow, len(workflows))
	for i := range workflows {
		refs[i] = &workflows[i]
	}
	if err := r.attachChildren(ctx, refs); err != nil {
		return nil, err
	}
	return workflows, nil
}

func (r *WorkflowRepository) attachChildren(ctx context.Context, workflows []*models.ApprovalWorkflow) error {
	for _, wf := range workflows {
		const stepQuery = `SELECT id, workflow_id, step_number, name, mode, quorum_required, status, created_at
		FROM approval_steps WHERE workflow_id = $1 ORDER BY step_number ASC`
		if err := r.db.SelectContext(ctx, &wf.Steps, stepQuery, wf.ID); err != nil {
			return fmt.Errorf("load workflow steps: %w", err)
		}
		for i := range wf.Steps {
			const assigneeQuery = `SELECT id, step_id, assignee_id, assignee_name, assignee_order, decision, comments, decided_at
			FROM step_assignees WHERE step_id = $1 ORDER BY assignee_order ASC`
			if err := r.db.SelectContext(ctx, &wf.Steps[i].Assignees, assigneeQuery, wf.Steps[i].ID); err != nil {
				return fmt.Errorf("load step assignees: %w", err)
			}
		}
	}
	return nil
}

// ListInbox returns the user's undecided assignee rows on in-progress steps,
// joined with document metadata, most recent submission first.
func (r *WorkflowRepository) ListInbox(ctx context.Context, userID string) ([]models.PendingDecision, error) {
	const query = `SELECT a.id AS assignee_row_id, s.id AS step_id, s.step_number, s.name AS step_name,
	w.id AS workflow_id, d.id AS document_id, d.code AS document_code, d.title AS document_title,
	d.department, w.created_at AS submitted_at
	FROM step_assignees a
	JOIN approval_steps s ON s.id = a.step_id
	JOIN approval_workflows w ON w.id = s.workflow_id
	JOIN documents d ON d.id = w.document_id
	WHERE a.assignee_id = $1 AND a.decision IS NULL AND s.status = $2 AND w.status = $3
	ORDER BY w.created_at DESC, a.id DESC`
	var inbox []models.PendingDecision
	if err := r.db.SelectContext(ctx, &inbox, query, userID, models.StepStatusInProgress, models.WorkflowStatusPending); err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	return inbox, nil
}

// AddAssignee appends an assignee to an open step. Used when role resolution
// matched nobody at submission time.
func (r *WorkflowRepository) AddAssignee(ctx context.Context, stepID string, assignee *models.StepAssignee) (err error) {
	if assignee.ID == "" {
		assignee.ID = uuid.NewString()
	}
	assignee.StepID = stepID

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add assignee: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var step models.ApprovalStep
	const stepQuery = `SELECT id, workflow_id, step_number, name, mode, quorum_required, status, created_at
	FROM approval_steps WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &step, stepQuery, stepID); err != nil {
		return err
	}
	if step.Status == models.StepStatusCompleted || step.Status == models.StepStatusRejected {
		err = &DecisionStateError{Kind: decisionErrStepNotOpen, StepName: step.Name, StepStatus: step.Status}
		return err
	}

	var maxOrder int
	if err = tx.GetContext(ctx, &maxOrder,
		`SELECT COALESCE(MAX(assignee_order), 0) FROM step_assignees WHERE step_id = $1`, stepID); err != nil {
		return fmt.Errorf("read assignee order: %w", err)
	}
	assignee.AssigneeOrder = maxOrder + 1

	const insertQuery = `INSERT INTO step_assignees
	(id, step_id, assignee_id, assignee_name, assignee_order, decision, comments, decided_at)
	VALUES (:id, :step_id, :assignee_id, :assignee_name, :assignee_order, :decision, :comments, :decided_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, assignee); err != nil {
		return fmt.Errorf("insert assignee: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit add assignee: %w", err)
	}
	return nil
}

// DecisionParams carries one decide() call.
type DecisionParams struct {
	AssigneeRowID string
	Decision      models.Decision
	Comments      *string
	// ActorID, when set, must match the assignee row's assignee id.
	ActorID string
}

type decisionRow struct {
	AssigneeID     string          `db:"a_id"`
	AssigneeUserID string          `db:"a_user_id"`
	AssigneeOrder  int             `db:"a_order"`
	Decision       *string         `db:"a_decision"`
	StepID         string          `db:"s_id"`
	StepNumber     int             `db:"s_number"`
	StepName       string          `db:"s_name"`
	StepMode       models.StepMode `db:"s_mode"`
	Quorum         int             `db:"s_quorum"`
	StepStatus     string          `db:"s_status"`
	WorkflowID     string          `db:"w_id"`
	DocumentID     string          `db:"w_document_id"`
	VersionID      string          `db:"w_version_id"`
	TotalSteps     int             `db:"w_total_steps"`
	CurrentStep    int             `db:"w_current_step"`
	WorkflowStatus string          `db:"w_status"`
}

// ApplyDecision records a write-once decision and advances the workflow in a
// single transaction. The step row is locked FOR UPDATE so two concurrent
// decisions against the same step cannot both conclude "step complete", and a
// decision can never land on a step a concurrent rejection just closed.
func (r *WorkflowRepository) ApplyDecision(ctx context.Context, params DecisionParams) (outcome *models.DecisionOutcome, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin decision: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const lockQuery = `SELECT a.id AS a_id, a.assignee_id AS a_user_id, a.assignee_order AS a_order, a.decision AS a_decision,
	s.id AS s_id, s.step_number AS s_number, s.name AS s_name, s.mode AS s_mode, s.quorum_required AS s_quorum, s.status AS s_status,
	w.id AS w_id, w.document_id AS w_document_id, w.version_id AS w_version_id, w.total_steps AS w_total_steps, w.current_step AS w_current_step, w.status AS w_status
	FROM step_assignees a
	JOIN approval_steps s ON s.id = a.step_id
	JOIN approval_workflows w ON w.id = s.workflow_id
	WHERE a.id = $1
	FOR UPDATE OF s`
	var row decisionRow
	if err = tx.GetContext(ctx, &row, lockQuery, params.AssigneeRowID); err != nil {
		return nil, err
	}

	stepStatus := models.StepStatus(row.StepStatus)
	switch {
	case params.ActorID != "" && params.ActorID != row.AssigneeUserID:
		err = &DecisionStateError{Kind: decisionErrNotAssignee, StepName: row.StepName, StepStatus: stepStatus}
		return nil, err
	case models.WorkflowStatus(row.WorkflowStatus) != models.WorkflowStatusPending:
		err = &DecisionStateError{Kind: decisionErrWorkflowClosed, StepName: row.StepName, StepStatus: stepStatus}
		return nil, err
	case stepStatus != models.StepStatusInProgress:
		err = &DecisionStateError{Kind: decisionErrStepNotOpen, StepName: row.StepName, StepStatus: stepStatus}
		return nil, err
	case row.Decision != nil:
		err = &DecisionStateError{Kind: decisionErrAlreadyDecided, StepName: row.StepName, StepStatus: stepStatus}
		return nil, err
	}

	if row.StepMode == models.StepModeSerial {
		var undecidedBefore int
		if err = tx.GetContext(ctx, &undecidedBefore,
			`SELECT COUNT(*) FROM step_assignees WHERE step_id = $1 AND assignee_order < $2 AND decision IS NULL`,
			row.StepID, row.AssigneeOrder); err != nil {
			return nil, fmt.Errorf("check serial order: %w", err)
		}
		if undecidedBefore > 0 {
			err = &DecisionStateError{Kind: decisionErrOutOfTurn, StepName: row.StepName, StepStatus: stepStatus}
			return nil, err
		}
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE step_assignees SET decision = $1, comments = $2, decided_at = $3 WHERE id = $4 AND decision IS NULL`,
		params.Decision, params.Comments, now, params.AssigneeRowID)
	if err != nil {
		return nil, fmt.Errorf("write decision: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check decision rows: %w", err)
	}
	if affected == 0 {
		err = &DecisionStateError{Kind: decisionErrAlreadyDecided, StepName: row.StepName, StepStatus: stepStatus}
		return nil, err
	}

	outcome = &models.DecisionOutcome{
		WorkflowID:      row.WorkflowID,
		WorkflowStatus:  models.WorkflowStatusPending,
		StepID:          row.StepID,
		StepStatus:      models.StepStatusInProgress,
		CurrentStep:     row.CurrentStep,
		DocumentStatus:  models.DocStatusInReview,
		RecordedComment: params.Comments,
	}

	if params.Decision == models.DecisionRejected {
		// Single rejection vetoes the whole workflow regardless of quorum.
		if err = r.closeRejected(ctx, tx, row, now); err != nil {
			return nil, err
		}
		outcome.StepStatus = models.StepStatusRejected
		outcome.WorkflowStatus = models.WorkflowStatusRejected
		outcome.DocumentStatus = models.DocStatusDraft
		outcome.WorkflowClosed = true
		if err = tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit rejection: %w", err)
		}
		return outcome, nil
	}

	// Completion is computed from a fresh count inside the transaction, not
	// from a cached counter.
	var approvedCount int
	if err = tx.GetContext(ctx, &approvedCount,
		`SELECT COUNT(*) FROM step_assignees WHERE step_id = $1 AND decision = $2`,
		row.StepID, models.DecisionApproved); err != nil {
		return nil, fmt.Errorf("count approvals: %w", err)
	}

	if approvedCount < row.Quorum {
		if err = tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit decision: %w", err)
		}
		return outcome, nil
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE approval_steps SET status = $1 WHERE id = $2`,
		models.StepStatusCompleted, row.StepID); err != nil {
		return nil, fmt.Errorf("complete step: %w", err)
	}
	outcome.StepStatus = models.StepStatusCompleted
	outcome.StepCompleted = true

	if row.StepNumber < row.TotalSteps {
		next := row.StepNumber + 1
		if _, err = tx.ExecContext(ctx,
			`UPDATE approval_steps SET status = $1 WHERE workflow_id = $2 AND step_number = $3`,
			models.StepStatusInProgress, row.WorkflowID, next); err != nil {
			return nil, fmt.Errorf("open next step: %w", err)
		}
		if _, err = tx.ExecContext(ctx,
			`UPDATE approval_workflows SET current_step = $1 WHERE id = $2`,
			next, row.WorkflowID); err != nil {
			return nil, fmt.Errorf("advance workflow: %w", err)
		}
		outcome.CurrentStep = next
		outcome.AdvancedToStep = next
	} else {
		if _, err = tx.ExecContext(ctx,
			`UPDATE approval_workflows SET status = $1, final_decision = $2, closed_at = $3 WHERE id = $4`,
			models.WorkflowStatusApproved, models.DecisionApproved, now, row.WorkflowID); err != nil {
			return nil, fmt.Errorf("close workflow: %w", err)
		}
		if _, err = tx.ExecContext(ctx,
			`UPDATE documents SET status = $1, updated_at = $2 WHERE id = $3`,
			models.DocStatusApproved, now, row.DocumentID); err != nil {
			return nil, fmt.Errorf("approve document: %w", err)
		}
		if _, err = tx.ExecContext(ctx,
			`UPDATE document_versions SET status = $1 WHERE id = $2`,
			models.VersionStatusApproved, row.VersionID); err != nil {
			return nil, fmt.Errorf("approve version: %w", err)
		}
		outcome.WorkflowStatus = models.WorkflowStatusApproved
		outcome.DocumentStatus = models.DocStatusApproved
		outcome.WorkflowClosed = true
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit decision: %w", err)
	}
	return outcome, nil
}

func (r *WorkflowRepository) closeRejected(ctx context.Context, tx *sqlx.Tx, row decisionRow, now time.Time) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE approval_steps SET status = $1 WHERE id = $2`,
		models.StepStatusRejected, row.StepID); err != nil {
		return fmt.Errorf("reject step: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE approval_workflows SET status = $1, final_decision = $2, closed_at = $3 WHERE id = $4`,
		models.WorkflowStatusRejected, models.DecisionRejected, now, row.WorkflowID); err != nil {
		return fmt.Errorf("reject workflow: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET status = $1, updated_at = $2 WHERE id = $3`,
		models.DocStatusDraft, now, row.DocumentID); err != nil {
		return fmt.Errorf("return document to draft: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE document_versions SET status = $1 WHERE id = $2`,
		models.VersionStatusDraft, row.VersionID); err != nil {
		return fmt.Errorf("return version to draft: %w", err)
	}
	return nil
}
