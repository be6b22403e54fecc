package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hse-dms-api/internal/dto"
	"github.com/noah-isme/hse-dms-api/internal/models"
	"github.com/noah-isme/hse-dms-api/internal/repository"
	appErrors "github.com/noah-isme/hse-dms-api/pkg/errors"
)

const inboxCachePrefix = "inbox:"

type workflowStore interface {
	CreateWorkflow(ctx context.Context, wf *models.ApprovalWorkflow) error
	GetOpenByDocument(ctx context.Context, documentID string) (*models.ApprovalWorkflow, error)
	GetByID(ctx context.Context, id string) (*models.ApprovalWorkflow, error)
	ListByDocument(ctx context.Context, documentID string) ([]models.ApprovalWorkflow, error)
	ListInbox(ctx context.Context, userID string) ([]models.PendingDecision, error)
	AddAssignee(ctx context.Context, stepID string, assignee *models.StepAssignee) error
	ApplyDecision(ctx context.Context, params repository.DecisionParams) (*models.DecisionOutcome, error)
}

type workflowDocumentReader interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
	GetCurrentVersion(ctx context.Context, documentID string) (*models.DocumentVersion, error)
}

type employeeDirectory interface {
	FindByPosition(ctx context.Context, department, positionPattern string) ([]models.Employee, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Employee, error)
}

type inboxCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type notificationSink interface {
	Enqueue(n Notification)
}

// WorkflowService orchestrates approval workflows: serial steps with
// quorum-gated completion, write-once assignee decisions and the rejection
// veto.
type WorkflowService struct {
	repo      workflowStore
	documents workflowDocumentReader
	directory employeeDirectory
	cache     inboxCache
	notify    notificationSink
	audit     auditLogger
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// WorkflowServiceOption configures the service.
type WorkflowServiceOption func(*WorkflowService)

// WithInboxCache enables inbox caching.
func WithInboxCache(cache inboxCache, ttl time.Duration) WorkflowServiceOption {
	return func(s *WorkflowService) {
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithWorkflowMetrics wires decision counters.
func WithWorkflowMetrics(metrics *MetricsService) WorkflowServiceOption {
	return func(s *WorkflowService) { s.metrics = metrics }
}

// WithNotificationSink routes inbox notifications through the jobs queue.
func WithNotificationSink(sink notificationSink) WorkflowServiceOption {
	return func(s *WorkflowService) { s.notify = sink }
}

// NewWorkflowService constructs the service.
func NewWorkflowService(repo workflowStore, documents workflowDocumentReader, directory employeeDirectory, audit auditLogger, validate *validator.Validate, logger *zap.Logger, opts ...WorkflowServiceOption) *WorkflowService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &WorkflowService{
		repo:      repo,
		documents: documents,
		directory: directory,
		audit:     audit,
		validator: validate,
		logger:    logger,
		cacheTTL:  5 * time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Submit starts an approval workflow for the document's current version:
// steps are created in order, step 1 opens immediately, the document moves to
// IN_REVIEW and the version to PENDING_APPROVAL.
func (s *WorkflowService) Submit(ctx context.Context, documentID string, req dto.SubmitApprovalRequest, actor *models.JWTClaims) (*models.ApprovalWorkflow, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if doc.Status != models.DocStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("submission requires a DRAFT document, current status is %s", doc.Status))
	}

	if _, err := s.repo.GetOpenByDocument(ctx, documentID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "document already has an open approval workflow")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open workflows")
	}

	version, err := s.documents.GetCurrentVersion(ctx, documentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current version")
	}

	steps := make([]models.ApprovalStep, 0, len(req.Steps))
	emptySteps := make([]string, 0)
	for i, input := range req.Steps {
		assignees, err := s.resolveAssignees(ctx, doc, input)
		if err != nil {
			return nil, err
		}
		if len(assignees) == 0 && input.ResolveByRole == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("step %d (%s) needs at least one assignee", i+1, input.Name))
		}
		if len(assignees) > 0 && input.QuorumRequired > len(assignees) {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("step %d (%s): quorum %d exceeds %d assignees", i+1, input.Name, input.QuorumRequired, len(assignees)))
		}
		if len(assignees) == 0 {
			emptySteps = append(emptySteps, input.Name)
		}
		steps = append(steps, models.ApprovalStep{
			Name:           strings.TrimSpace(input.Name),
			Mode:           input.Mode,
			QuorumRequired: input.QuorumRequired,
			Assignees:      assignees,
		})
	}

	wf := &models.ApprovalWorkflow{
		DocumentID:  documentID,
		VersionID:   version.ID,
		InitiatedBy: actor.UserID,
		Steps:       steps,
	}
	if err := s.repo.CreateWorkflow(ctx, wf); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create workflow")
	}

	s.invalidateInbox(ctx)
	s.notifyStepAssignees(wf, 1, doc.Code)
	for _, name := range emptySteps {
		s.logger.Sugar().Warnw("step created without assignees", "workflow_id", wf.ID, "step", name)
		s.enqueueNotification(Notification{
			RecipientID: actor.UserID,
			Kind:        NotifyKindAssigneesMissing,
			Title:       "Approval step has no assignees",
			Body:        fmt.Sprintf("Step %q of %s matched no employees; add assignees before it can progress.", name, doc.Code),
		})
	}
	s.emitAudit(ctx, actor.UserID, models.AuditActionWorkflowSubmit, wf.ID, wf)
	return wf, nil
}

func (s *WorkflowService) resolveAssignees(ctx context.Context, doc *models.Document, input dto.ApprovalStepInput) ([]models.StepAssignee, error) {
	if input.ResolveByRole != nil {
		department := input.ResolveByRole.Department
		if department == "" {
			department = doc.Department
		}
		matches, err := s.directory.FindByPosition(ctx, department, input.ResolveByRole.PositionPattern)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve assignees by role")
		}
		if max := input.ResolveByRole.MaxMatches; max > 0 && len(matches) > max {
			matches = matches[:max]
		}
		assignees := make([]models.StepAssignee, 0, len(matches))
		for _, emp := range matches {
			assignees = append(assignees, models.StepAssignee{AssigneeID: emp.ID, AssigneeName: emp.FullName})
		}
		return assignees, nil
	}

	assignees := make([]models.StepAssignee, 0, len(input.Assignees))
	seen := make(map[string]struct{}, len(input.Assignees))
	for _, a := range input.Assignees {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		assignees = append(assignees, models.StepAssignee{AssigneeID: a.ID, AssigneeName: a.Name})
	}
	return assignees, nil
}

// Decide records an assignee verdict. Rejection vetoes the whole workflow;
// approval completes the step once quorum is met and advances or closes the
// workflow.
func (s *WorkflowService) Decide(ctx context.Context, assigneeRowID string, req dto.DecideRequest, actor *models.JWTClaims) (*models.DecisionOutcome, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}

	params := repository.DecisionParams{
		AssigneeRowID: assigneeRowID,
		Decision:      req.Decision,
	}
	if comments := strings.TrimSpace(req.Comments); comments != "" {
		params.Comments = &comments
	}
	// Admins may decide on behalf of an assignee; everyone else only on
	// their own row.
	if actor.Role != models.RoleSuperAdmin && actor.Role != models.RoleAdmin && actor.Role != models.RoleDocControl {
		params.ActorID = actor.UserID
	}

	outcome, err := s.repo.ApplyDecision(ctx, params)
	if err != nil {
		return nil, s.mapDecisionError(err)
	}

	if s.metrics != nil {
		s.metrics.RecordDecision(string(req.Decision))
	}
	s.invalidateInbox(ctx)
	s.emitAudit(ctx, actor.UserID, models.AuditActionDecision, assigneeRowID, outcome)
	s.notifyOutcome(ctx, outcome)
	return outcome, nil
}

func (s *WorkflowService) mapDecisionError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "assignee record not found")
	}
	var stateErr *repository.DecisionStateError
	if errors.As(err, &stateErr) {
		msg := fmt.Sprintf("step %q is %s", stateErr.StepName, stateErr.StepStatus)
		switch {
		case stateErr.AlreadyDecided():
			return appErrors.Clone(appErrors.ErrConflict, "decision already recorded on "+msg)
		case stateErr.Kind == "not_assignee":
			return appErrors.Clone(appErrors.ErrForbidden, "decision belongs to another assignee")
		case stateErr.Kind == "out_of_turn":
			return appErrors.Clone(appErrors.ErrInvalidState, "serial step: earlier assignees must decide first on "+msg)
		default:
			return appErrors.Clone(appErrors.ErrInvalidState, "decision not accepted: "+msg)
		}
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply decision")
}

func (s *WorkflowService) notifyOutcome(ctx context.Context, outcome *models.DecisionOutcome) {
	if s.notify == nil {
		return
	}
	wf, err := s.repo.GetByID(ctx, outcome.WorkflowID)
	if err != nil {
		s.logger.Sugar().Warnw("failed to load workflow for notifications", "workflow_id", outcome.WorkflowID, "error", err)
		return
	}
	switch {
	case outcome.WorkflowClosed:
		s.enqueueNotification(Notification{
			RecipientID: wf.InitiatedBy,
			Kind:        NotifyKindWorkflowClosed,
			Title:       "Approval workflow closed",
			Body:        fmt.Sprintf("Workflow for document %s closed as %s.", wf.DocumentID, outcome.WorkflowStatus),
		})
	case outcome.AdvancedToStep > 0:
		s.notifyStepAssignees(wf, outcome.AdvancedToStep, wf.DocumentID)
	}
}

func (s *WorkflowService) notifyStepAssignees(wf *models.ApprovalWorkflow, stepNumber int, documentRef string) {
	if s.notify == nil {
		return
	}
	for _, step := range wf.Steps {
		if step.StepNumber != stepNumber {
			continue
		}
		for _, assignee := range step.Assignees {
			s.enqueueNotification(Notification{
				RecipientID: assignee.AssigneeID,
				Kind:        NotifyKindPendingDecision,
				Title:       "Approval waiting for your decision",
				Body:        fmt.Sprintf("Document %s is waiting on step %q.", documentRef, step.Name),
			})
		}
	}
}

func (s *WorkflowService) enqueueNotification(n Notification) {
	if s.notify != nil {
		s.notify.Enqueue(n)
	}
}

// Inbox returns the user's pending decisions, cached briefly.
func (s *WorkflowService) Inbox(ctx context.Context, userID string) ([]models.PendingDecision, error) {
	cacheKey := inboxCachePrefix + userID
	if s.cache != nil {
		var cached []models.PendingDecision
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}
	inbox, err := s.repo.ListInbox(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load inbox")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, inbox, s.cacheTTL); err != nil {
			s.logger.Sugar().Warnw("failed to cache inbox", "user_id", userID, "error", err)
		}
	}
	return inbox, nil
}

// History returns a document's workflows with nested steps and decisions,
// most recent first.
func (s *WorkflowService) History(ctx context.Context, documentID string) ([]models.ApprovalWorkflow, error) {
	if _, err := s.documents.GetByID(ctx, documentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	workflows, err := s.repo.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow history")
	}
	return workflows, nil
}

// AddAssignee attaches an assignee to an open step. This is the out-of-band
// path for steps whose role resolution matched nobody at submission time.
func (s *WorkflowService) AddAssignee(ctx context.Context, stepID string, req dto.AddAssigneeRequest, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignee payload")
	}
	name := req.AssigneeName
	if name == "" {
		if employees, err := s.directory.FindByIDs(ctx, []string{req.AssigneeID}); err == nil && len(employees) == 1 {
			name = employees[0].FullName
		}
	}
	assignee := &models.StepAssignee{AssigneeID: req.AssigneeID, AssigneeName: name}
	if err := s.repo.AddAssignee(ctx, stepID, assignee); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "approval step not found")
		}
		var stateErr *repository.DecisionStateError
		if errors.As(err, &stateErr) {
			return appErrors.Clone(appErrors.ErrInvalidState,
				fmt.Sprintf("cannot add assignee: step %q is %s", stateErr.StepName, stateErr.StepStatus))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add assignee")
	}
	s.invalidateInbox(ctx)
	s.emitAudit(ctx, actor.UserID, models.AuditActionAssigneeAdd, stepID, assignee)
	return nil
}

func (s *WorkflowService) invalidateInbox(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, inboxCachePrefix+"*"); err != nil {
		s.logger.Sugar().Warnw("failed to invalidate inbox cache", "error", err)
	}
}

func (s *WorkflowService) emitAudit(ctx context.Context, actorID, action, resourceID string, payload interface{}) {
	if s.audit == nil {
		return
	}
	values, _ := json.Marshal(payload)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "workflow",
		ResourceID: &resourceID,
		NewValues:  values,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to write audit log", "action", action, "error", err)
	}
}
