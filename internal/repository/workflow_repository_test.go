package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hse-dms-api/internal/models"
)

var decisionColumns = []string{
	"a_id", "a_user_id", "a_order", "a_decision",
	"s_id", "s_number", "s_name", "s_mode", "s_quorum", "s_status",
	"w_id", "w_document_id", "w_version_id", "w_total_steps", "w_current_step", "w_status",
}

func lockedRow(mode models.StepMode, quorum, stepNumber, totalSteps int, decision driver.Value) *sqlmock.Rows {
	return sqlmock.NewRows(decisionColumns).AddRow(
		"row-1", "emp-1", 1, decision,
		"step-1", stepNumber, "Review", string(mode), quorum, string(models.StepStatusInProgress),
		"wf-1", "doc-1", "v1", totalSteps, stepNumber, string(models.WorkflowStatusPending),
	)
}

func expectDecisionLock(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectQuery("FOR UPDATE OF s").WithArgs("row-1").WillReturnRows(rows)
}

func TestApplyDecisionApproveBelowQuorum(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	mock.ExpectBegin()
	expectDecisionLock(mock, lockedRow(models.StepModeParallel, 2, 1, 2, nil))
	mock.ExpectExec("UPDATE step_assignees SET decision").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM step_assignees WHERE step_id = \$1 AND decision = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectCommit()

	outcome, err := repo.ApplyDecision(context.Background(), DecisionParams{AssigneeRowID: "row-1", Decision: models.DecisionApproved})
	require.NoError(t, err)
	assert.False(t, outcome.StepCompleted)
	assert.False(t, outcome.WorkflowClosed)
	assert.Equal(t, models.StepStatusInProgress, outcome.StepStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDecisionQuorumAdvancesStep(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	mock.ExpectBegin()
	expectDecisionLock(mock, lockedRow(models.StepModeParallel, 1, 1, 2, nil))
	mock.ExpectExec("UPDATE step_assignees SET decision").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM step_assignees WHERE step_id = \$1 AND decision = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec("UPDATE approval_steps SET status").
		WithArgs(string(models.StepStatusCompleted), "step-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE approval_steps SET status").
		WithArgs(string(models.StepStatusInProgress), "wf-1", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE approval_workflows SET current_step").
		WithArgs(2, "wf-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome, err := repo.ApplyDecision(context.Background(), DecisionParams{AssigneeRowID: "row-1", Decision: models.DecisionApproved})
	require.NoError(t, err)
	assert.True(t, outcome.StepCompleted)
	assert.Equal(t, 2, outcome.AdvancedToStep)
	assert.Equal(t, 2, outcome.CurrentStep)
	assert.False(t, outcome.WorkflowClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDecisionFinalStepClosesWorkflow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	mock.ExpectBegin()
	expectDecisionLock(mock, lockedRow(models.StepModeParallel, 1, 2, 2, nil))
	mock.ExpectExec("UPDATE step_assignees SET decision").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM step_assignees WHERE step_id = \$1 AND decision = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec("UPDATE approval_steps SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE approval_workflows SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE document_versions SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome, err := repo.ApplyDecision(context.Background(), DecisionParams{AssigneeRowID: "row-1", Decision: models.DecisionApproved})
	require.NoError(t, err)
	assert.True(t, outcome.WorkflowClosed)
	assert.Equal(t, models.WorkflowStatusApproved, outcome.WorkflowStatus)
	assert.Equal(t, models.DocStatusApproved, outcome.DocumentStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDecisionRejectionVetoes(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	mock.ExpectBegin()
	expectDecisionLock(mock, lockedRow(models.StepModeParallel, 2, 1, 3, nil))
	mock.ExpectExec("UPDATE step_assignees SET decision").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE approval_steps SET status").
		WithArgs(string(models.StepStatusRejected), "step-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE approval_workflows SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents SET status").
		WithArgs(string(models.DocStatusDraft), sqlmock.AnyArg(), "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE document_versions SET status").
		WithArgs(string(models.VersionStatusDraft), "v1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome, err := repo.ApplyDecision(context.Background(), DecisionParams{AssigneeRowID: "row-1", Decision: models.DecisionRejected})
	require.NoError(t, err)
	assert.True(t, outcome.WorkflowClosed)
	assert.Equal(t, models.WorkflowStatusRejected, outcome.WorkflowStatus)
	assert.Equal(t, models.DocStatusDraft, outcome.DocumentStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDecisionAlreadyDecided(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	mock.ExpectBegin()
	expectDecisionLock(mock, lockedRow(models.StepModeParallel, 1, 1, 1, string(models.DecisionApproved)))
	mock.ExpectRollback()

	_, err := repo.ApplyDecision(context.Background(), DecisionParams{AssigneeRowID: "row-1", Decision: models.DecisionApproved})
	require.Error(t, err)
	var stateErr *DecisionStateError
	require.True(t, errors.As(err, &stateErr))
	assert.True(t, stateErr.AlreadyDecided())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDecisionSerialOutOfTurn(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	rows := sqlmock.NewRows(decisionColumns).AddRow(
		"row-1", "emp-2", 2, nil,
		"step-1", 1, "Review", string(models.StepModeSerial), 2, string(models.StepStatusInProgress),
		"wf-1", "doc-1", "v1", 1, 1, string(models.WorkflowStatusPending),
	)
	mock.ExpectBegin()
	expectDecisionLock(mock, rows)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM step_assignees WHERE step_id = \$1 AND assignee_order < \$2 AND decision IS NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.ApplyDecision(context.Background(), DecisionParams{AssigneeRowID: "row-1", Decision: models.DecisionApproved})
	require.Error(t, err)
	var stateErr *DecisionStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, "out_of_turn", stateErr.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDecisionNotAssignee(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	mock.ExpectBegin()
	expectDecisionLock(mock, lockedRow(models.StepModeParallel, 1, 1, 1, nil))
	mock.ExpectRollback()

	_, err := repo.ApplyDecision(context.Background(), DecisionParams{AssigneeRowID: "row-1", Decision: models.DecisionApproved, ActorID: "intruder"})
	require.Error(t, err)
	var stateErr *DecisionStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, "not_assignee", stateErr.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDecisionClosedWorkflow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	rows := sqlmock.NewRows(decisionColumns).AddRow(
		"row-1", "emp-1", 1, nil,
		"step-1", 1, "Review", string(models.StepModeParallel), 1, string(models.StepStatusRejected),
		"wf-1", "doc-1", "v1", 1, 1, string(models.WorkflowStatusRejected),
	)
	mock.ExpectBegin()
	expectDecisionLock(mock, rows)
	mock.ExpectRollback()

	_, err := repo.ApplyDecision(context.Background(), DecisionParams{AssigneeRowID: "row-1", Decision: models.DecisionApproved})
	require.Error(t, err)
	var stateErr *DecisionStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, "workflow_closed", stateErr.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDecisionWriteRace(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	// The guarded update finding zero rows means another transaction wrote the
	// decision between the lock and the update.
	mock.ExpectBegin()
	expectDecisionLock(mock, lockedRow(models.StepModeParallel, 1, 1, 1, nil))
	mock.ExpectExec("UPDATE step_assignees SET decision").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.ApplyDecision(context.Background(), DecisionParams{AssigneeRowID: "row-1", Decision: models.DecisionApproved})
	require.Error(t, err)
	var stateErr *DecisionStateError
	require.True(t, errors.As(err, &stateErr))
	assert.True(t, stateErr.AlreadyDecided())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListInbox(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"assignee_row_id", "step_id", "step_number", "step_name", "workflow_id", "document_id", "document_code", "document_title", "department", "submitted_at"}).
		AddRow("row-1", "step-1", 1, "Review", "wf-1", "doc-1", "HSE-SOP-001", "Working at Height", "HSE", now)
	mock.ExpectQuery("FROM step_assignees a").
		WithArgs("emp-1", string(models.StepStatusInProgress), string(models.WorkflowStatusPending)).
		WillReturnRows(rows)

	inbox, err := repo.ListInbox(context.Background(), "emp-1")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "HSE-SOP-001", inbox[0].DocumentCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddAssigneeRejectsClosedStep(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	stepRows := sqlmock.NewRows([]string{"id", "workflow_id", "step_number", "name", "mode", "quorum_required", "status", "created_at"}).
		AddRow("step-1", "wf-1", 1, "Review", string(models.StepModeParallel), 1, string(models.StepStatusCompleted), time.Now())
	mock.ExpectBegin()
	mock.ExpectQuery("FROM approval_steps WHERE id").WithArgs("step-1").WillReturnRows(stepRows)
	mock.ExpectRollback()

	err := repo.AddAssignee(context.Background(), "step-1", &models.StepAssignee{AssigneeID: "emp-9"})
	require.Error(t, err)
	var stateErr *DecisionStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, "step_not_open", stateErr.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}
