package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/hse-dms-api/internal/dto"
	"github.com/noah-isme/hse-dms-api/internal/esign"
	"github.com/noah-isme/hse-dms-api/internal/models"
	appErrors "github.com/noah-isme/hse-dms-api/pkg/errors"
)

type mockEsignStore struct {
	request           *models.EsignRequest
	created           *models.EsignRequest
	markedSigned      bool
	markSignedErr     error
	failedReason      string
	markFailedErr     error
	resetCalled       bool
	resetErr          error
	permanentReason   string
	setExternalCalled bool
}

func (m *mockEsignStore) Create(ctx context.Context, req *models.EsignRequest) error {
	req.ID = "esr-1"
	m.created = req
	return nil
}

func (m *mockEsignStore) GetByID(ctx context.Context, id string) (*models.EsignRequest, error) {
	if m.request == nil {
		return nil, sql.ErrNoRows
	}
	return m.request, nil
}

func (m *mockEsignStore) GetByExternalID(ctx context.Context, externalID string) (*models.EsignRequest, error) {
	if m.request == nil {
		return nil, sql.ErrNoRows
	}
	return m.request, nil
}

func (m *mockEsignStore) ListByDocument(ctx context.Context, documentID string) ([]models.EsignRequest, error) {
	if m.request == nil {
		return nil, nil
	}
	return []models.EsignRequest{*m.request}, nil
}

func (m *mockEsignStore) SetExternalID(ctx context.Context, id, externalID string) error {
	m.setExternalCalled = true
	return nil
}

func (m *mockEsignStore) MarkSigned(ctx context.Context, id string) error {
	if m.markSignedErr != nil {
		return m.markSignedErr
	}
	m.markedSigned = true
	return nil
}

func (m *mockEsignStore) MarkFailed(ctx context.Context, id, reason string) error {
	if m.markFailedErr != nil {
		return m.markFailedErr
	}
	m.failedReason = reason
	return nil
}

func (m *mockEsignStore) ResetForRetry(ctx context.Context, id string) error {
	if m.resetErr != nil {
		return m.resetErr
	}
	m.resetCalled = true
	return nil
}

func (m *mockEsignStore) MarkFailedPermanent(ctx context.Context, id, reason string) error {
	m.permanentReason = reason
	return nil
}

type mockEsignDocStore struct {
	doc            *models.Document
	version        *models.DocumentVersion
	updatedTo      models.DocumentStatus
	updateErr      error
	attachedPath   string
	attachedCalled bool
}

func (m *mockEsignDocStore) GetByID(ctx context.Context, id string) (*models.Document, error) {
	if m.doc == nil {
		return nil, sql.ErrNoRows
	}
	return m.doc, nil
}

func (m *mockEsignDocStore) GetCurrentVersion(ctx context.Context, documentID string) (*models.DocumentVersion, error) {
	return m.version, nil
}

func (m *mockEsignDocStore) UpdateStatus(ctx context.Context, id string, to models.DocumentStatus, from ...models.DocumentStatus) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updatedTo = to
	return nil
}

func (m *mockEsignDocStore) AttachSignedFile(ctx context.Context, versionID, signedFilePath string) error {
	m.attachedCalled = true
	m.attachedPath = signedFilePath
	return nil
}

type stubProvider struct {
	externalID string
	err        error
	calls      int
}

func (p *stubProvider) CreateSigningRequest(ctx context.Context, req esign.SigningRequest) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	return p.externalID, nil
}

func signatureRequest() dto.RequestSignatureRequest {
	return dto.RequestSignatureRequest{SignerID: "mgr-1", SignerName: "Hadi", SignerEmail: "hadi@example.com"}
}

func TestEsignRequestSignature(t *testing.T) {
	store := &mockEsignStore{}
	docs := &mockEsignDocStore{
		doc:     &models.Document{ID: "doc-1", Status: models.DocStatusApproved},
		version: &models.DocumentVersion{ID: "v1", FilePath: "docs/wah.pdf"},
	}
	provider := &stubProvider{externalID: "ext-1"}
	svc := NewEsignService(store, docs, provider, nil, nil, validator.New(), zap.NewNop(), 3)

	request, err := svc.RequestSignature(context.Background(), "doc-1", signatureRequest(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.EsignStatusPending, request.Status)
	assert.Equal(t, models.DocStatusEsignPending, docs.updatedTo)
	assert.Equal(t, 1, provider.calls)
	assert.True(t, store.setExternalCalled)
}

func TestEsignRequestSignatureRejectsUnapproved(t *testing.T) {
	docs := &mockEsignDocStore{doc: &models.Document{ID: "doc-1", Status: models.DocStatusDraft}}
	svc := NewEsignService(&mockEsignStore{}, docs, &stubProvider{}, nil, nil, validator.New(), zap.NewNop(), 3)

	_, err := svc.RequestSignature(context.Background(), "doc-1", signatureRequest(), "u1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestEsignProviderFailureRecordedNotSurfaced(t *testing.T) {
	store := &mockEsignStore{}
	docs := &mockEsignDocStore{
		doc:     &models.Document{ID: "doc-1", Status: models.DocStatusApproved},
		version: &models.DocumentVersion{ID: "v1", FilePath: "docs/wah.pdf"},
	}
	provider := &stubProvider{err: errors.New("provider timeout")}
	svc := NewEsignService(store, docs, provider, nil, nil, validator.New(), zap.NewNop(), 3)

	// The request call itself succeeds; the provider failure lands on the
	// request row as FAILED for a later retry.
	request, err := svc.RequestSignature(context.Background(), "doc-1", signatureRequest(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.EsignStatusFailed, request.Status)
	require.NotNil(t, request.FailedReason)
	assert.Equal(t, "provider timeout", store.failedReason)
}

func TestEsignCallbackSigned(t *testing.T) {
	signedRef := "docs/wah.signed.pdf"
	store := &mockEsignStore{request: &models.EsignRequest{ID: "esr-1", DocumentID: "doc-1", VersionID: "v1", Status: models.EsignStatusPending}}
	docs := &mockEsignDocStore{}
	svc := NewEsignService(store, docs, &stubProvider{}, nil, nil, validator.New(), zap.NewNop(), 3)

	err := svc.HandleProviderCallback(context.Background(), dto.ProviderCallbackRequest{
		ExternalRequestID: "ext-1",
		Status:            "SIGNED",
		SignedFileRef:     &signedRef,
	})
	require.NoError(t, err)
	assert.True(t, store.markedSigned)
	assert.True(t, docs.attachedCalled)
	assert.Equal(t, signedRef, docs.attachedPath)
	assert.Equal(t, models.DocStatusSigned, docs.updatedTo)
}

func TestEsignCallbackStaleDropped(t *testing.T) {
	store := &mockEsignStore{
		request:       &models.EsignRequest{ID: "esr-1", Status: models.EsignStatusSigned},
		markSignedErr: sql.ErrNoRows,
	}
	docs := &mockEsignDocStore{}
	svc := NewEsignService(store, docs, &stubProvider{}, nil, nil, validator.New(), zap.NewNop(), 3)

	// Duplicate callback against an already-terminal request is a no-op.
	err := svc.HandleProviderCallback(context.Background(), dto.ProviderCallbackRequest{
		ExternalRequestID: "ext-1",
		Status:            "SIGNED",
	})
	require.NoError(t, err)
	assert.False(t, docs.attachedCalled)
	assert.Empty(t, docs.updatedTo)
}

func TestEsignCallbackUnknownRequest(t *testing.T) {
	svc := NewEsignService(&mockEsignStore{}, &mockEsignDocStore{}, &stubProvider{}, nil, nil, validator.New(), zap.NewNop(), 3)

	err := svc.HandleProviderCallback(context.Background(), dto.ProviderCallbackRequest{
		ExternalRequestID: "ext-unknown",
		Status:            "SIGNED",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEsignCallbackFailure(t *testing.T) {
	reason := "signer declined"
	store := &mockEsignStore{request: &models.EsignRequest{ID: "esr-1", Status: models.EsignStatusPending}}
	svc := NewEsignService(store, &mockEsignDocStore{}, &stubProvider{}, nil, nil, validator.New(), zap.NewNop(), 3)

	err := svc.HandleProviderCallback(context.Background(), dto.ProviderCallbackRequest{
		ExternalRequestID: "ext-1",
		Status:            "FAILED",
		Reason:            &reason,
	})
	require.NoError(t, err)
	assert.Equal(t, reason, store.failedReason)
}

func TestEsignRetry(t *testing.T) {
	store := &mockEsignStore{request: &models.EsignRequest{ID: "esr-1", DocumentID: "doc-1", Status: models.EsignStatusFailed, RetryCount: 1}}
	docs := &mockEsignDocStore{version: &models.DocumentVersion{ID: "v1", FilePath: "docs/wah.pdf"}}
	provider := &stubProvider{externalID: "ext-2"}
	svc := NewEsignService(store, docs, provider, nil, nil, validator.New(), zap.NewNop(), 3)

	request, err := svc.Retry(context.Background(), "esr-1", "u1")
	require.NoError(t, err)
	assert.True(t, store.resetCalled)
	assert.Equal(t, 2, request.RetryCount)
	assert.Equal(t, 1, provider.calls)
}

func TestEsignRetryCapExhausted(t *testing.T) {
	store := &mockEsignStore{request: &models.EsignRequest{ID: "esr-1", Status: models.EsignStatusFailed, RetryCount: 3}}
	svc := NewEsignService(store, &mockEsignDocStore{}, &stubProvider{}, nil, nil, validator.New(), zap.NewNop(), 3)

	_, err := svc.Retry(context.Background(), "esr-1", "u1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	assert.NotEmpty(t, store.permanentReason)
	assert.False(t, store.resetCalled)
}

func TestEsignRetryRequiresFailed(t *testing.T) {
	store := &mockEsignStore{request: &models.EsignRequest{ID: "esr-1", Status: models.EsignStatusSigned}}
	svc := NewEsignService(store, &mockEsignDocStore{}, &stubProvider{}, nil, nil, validator.New(), zap.NewNop(), 3)

	_, err := svc.Retry(context.Background(), "esr-1", "u1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}
