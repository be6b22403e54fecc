package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/hse-dms-api/internal/dto"
	"github.com/noah-isme/hse-dms-api/internal/models"
	appErrors "github.com/noah-isme/hse-dms-api/pkg/errors"
)

type mockChangeRequestStore struct {
	cr            *models.ChangeRequest
	created       *models.ChangeRequest
	resolveErr    error
	resolvedTo    models.ChangeRequestStatus
	completedIDs  []string
	completionErr error
}

func (m *mockChangeRequestStore) Create(ctx context.Context, cr *models.ChangeRequest) error {
	cr.ID = "cr-1"
	m.created = cr
	return nil
}

func (m *mockChangeRequestStore) GetByID(ctx context.Context, id string) (*models.ChangeRequest, error) {
	if m.cr == nil {
		return nil, sql.ErrNoRows
	}
	return m.cr, nil
}

func (m *mockChangeRequestStore) List(ctx context.Context, documentID string, statuses []models.ChangeRequestStatus) ([]models.ChangeRequest, error) {
	if m.cr == nil {
		return nil, nil
	}
	return []models.ChangeRequest{*m.cr}, nil
}

func (m *mockChangeRequestStore) Resolve(ctx context.Context, id string, status models.ChangeRequestStatus, resolvedBy string, note *string) error {
	if m.resolveErr != nil {
		return m.resolveErr
	}
	m.resolvedTo = status
	return nil
}

func (m *mockChangeRequestStore) MarkCompleted(ctx context.Context, id string) error {
	if m.completionErr != nil {
		return m.completionErr
	}
	m.completedIDs = append(m.completedIDs, id)
	return nil
}

type mockVersionOpener struct {
	opened *dto.CreateVersionRequest
	err    error
}

func (m *mockVersionOpener) CreateDraftVersion(ctx context.Context, documentID string, req dto.CreateVersionRequest, actorID string) (*models.DocumentVersion, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.opened = &req
	return &models.DocumentVersion{ID: "v-next", DocumentID: documentID, Status: models.VersionStatusDraft}, nil
}

func TestChangeRequestCreate(t *testing.T) {
	store := &mockChangeRequestStore{}
	docs := &mockDocReader{doc: &models.Document{ID: "doc-1", Status: models.DocStatusPublished}}
	audit := &stubAudit{}
	svc := NewChangeRequestService(store, docs, &mockVersionOpener{}, audit, validator.New(), zap.NewNop())

	cr, err := svc.Create(context.Background(), "doc-1", dto.CreateChangeRequestRequest{Description: "update the PPE matrix"}, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestStatusPending, cr.Status)
	assert.Equal(t, "emp-1", cr.RequestedBy)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionChangeRequest, audit.logs[0].Action)
}

func TestChangeRequestCreateRequiresPublished(t *testing.T) {
	docs := &mockDocReader{doc: &models.Document{ID: "doc-1", Status: models.DocStatusDraft}}
	svc := NewChangeRequestService(&mockChangeRequestStore{}, docs, &mockVersionOpener{}, nil, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), "doc-1", dto.CreateChangeRequestRequest{Description: "d"}, "emp-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestChangeRequestResolveApproveOpensDraft(t *testing.T) {
	store := &mockChangeRequestStore{cr: &models.ChangeRequest{
		ID: "cr-1", DocumentID: "doc-1", Description: "update the PPE matrix", Status: models.ChangeRequestStatusPending,
	}}
	opener := &mockVersionOpener{}
	svc := NewChangeRequestService(store, &mockDocReader{}, opener, nil, validator.New(), zap.NewNop())

	cr, err := svc.Resolve(context.Background(), "cr-1", dto.ResolveChangeRequestRequest{
		Decision: models.ChangeRequestStatusApproved,
		FilePath: "docs/wah-v2.pdf",
	}, "mgr-1")
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestStatusCompleted, cr.Status)
	require.NotNil(t, opener.opened)
	assert.Equal(t, "docs/wah-v2.pdf", opener.opened.FilePath)
	require.NotNil(t, opener.opened.ChangeNote)
	assert.Equal(t, "update the PPE matrix", *opener.opened.ChangeNote)
	assert.Equal(t, []string{"cr-1"}, store.completedIDs)
}

func TestChangeRequestResolveReject(t *testing.T) {
	store := &mockChangeRequestStore{cr: &models.ChangeRequest{ID: "cr-1", DocumentID: "doc-1", Status: models.ChangeRequestStatusPending}}
	opener := &mockVersionOpener{}
	svc := NewChangeRequestService(store, &mockDocReader{}, opener, nil, validator.New(), zap.NewNop())

	cr, err := svc.Resolve(context.Background(), "cr-1", dto.ResolveChangeRequestRequest{
		Decision: models.ChangeRequestStatusRejected,
		Note:     "not needed",
	}, "mgr-1")
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestStatusRejected, cr.Status)
	assert.Nil(t, opener.opened)
	assert.Empty(t, store.completedIDs)
}

func TestChangeRequestResolveApprovalNeedsFilePath(t *testing.T) {
	store := &mockChangeRequestStore{cr: &models.ChangeRequest{ID: "cr-1", Status: models.ChangeRequestStatusPending}}
	svc := NewChangeRequestService(store, &mockDocReader{}, &mockVersionOpener{}, nil, validator.New(), zap.NewNop())

	_, err := svc.Resolve(context.Background(), "cr-1", dto.ResolveChangeRequestRequest{
		Decision: models.ChangeRequestStatusApproved,
	}, "mgr-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestChangeRequestResolveAlreadyResolved(t *testing.T) {
	store := &mockChangeRequestStore{cr: &models.ChangeRequest{ID: "cr-1", Status: models.ChangeRequestStatusRejected}}
	svc := NewChangeRequestService(store, &mockDocReader{}, &mockVersionOpener{}, nil, validator.New(), zap.NewNop())

	_, err := svc.Resolve(context.Background(), "cr-1", dto.ResolveChangeRequestRequest{
		Decision: models.ChangeRequestStatusRejected,
	}, "mgr-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestChangeRequestResolveConcurrentResolution(t *testing.T) {
	store := &mockChangeRequestStore{
		cr:         &models.ChangeRequest{ID: "cr-1", Status: models.ChangeRequestStatusPending},
		resolveErr: sql.ErrNoRows,
	}
	svc := NewChangeRequestService(store, &mockDocReader{}, &mockVersionOpener{}, nil, validator.New(), zap.NewNop())

	_, err := svc.Resolve(context.Background(), "cr-1", dto.ResolveChangeRequestRequest{
		Decision: models.ChangeRequestStatusRejected,
	}, "mgr-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
