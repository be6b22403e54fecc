package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hse-dms-api/internal/models"
)

func TestEsignCreateDefaultsStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEsignRepository(db)

	mock.ExpectExec("INSERT INTO esign_requests").WillReturnResult(sqlmock.NewResult(0, 1))

	req := &models.EsignRequest{DocumentID: "doc-1", VersionID: "v1", SignerID: "mgr-1", SignerName: "Hadi", SignerEmail: "hadi@example.com", RequestedBy: "u1"}
	err := repo.Create(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, models.EsignStatusPending, req.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEsignGetByExternalID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEsignRepository(db)

	now := time.Now()
	external := "ext-1"
	rows := sqlmock.NewRows([]string{"id", "document_id", "version_id", "signer_id", "signer_name", "signer_email", "external_id", "status", "retry_count", "failed_reason", "requested_by", "created_at", "updated_at"}).
		AddRow("esr-1", "doc-1", "v1", "mgr-1", "Hadi", "hadi@example.com", external, string(models.EsignStatusPending), 0, nil, "u1", now, now)
	mock.ExpectQuery("FROM esign_requests WHERE external_id").WithArgs("ext-1").WillReturnRows(rows)

	req, err := repo.GetByExternalID(context.Background(), "ext-1")
	require.NoError(t, err)
	assert.Equal(t, "esr-1", req.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEsignMarkSignedGuardsTerminalStates(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEsignRepository(db)

	mock.ExpectExec("UPDATE esign_requests SET status").
		WithArgs(models.EsignStatusSigned, sqlmock.AnyArg(), "esr-1", models.EsignStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkSigned(context.Background(), "esr-1"))

	// A stale callback against an already-closed request affects no rows.
	mock.ExpectExec("UPDATE esign_requests SET status").WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.MarkSigned(context.Background(), "esr-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEsignResetForRetryBumpsCounter(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEsignRepository(db)

	mock.ExpectExec("retry_count = retry_count \\+ 1").
		WithArgs(models.EsignStatusPending, sqlmock.AnyArg(), "esr-1", models.EsignStatusFailed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ResetForRetry(context.Background(), "esr-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEsignMarkFailedPermanent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEsignRepository(db)

	mock.ExpectExec("UPDATE esign_requests SET status").
		WithArgs(models.EsignStatusFailedPermanent, "retry cap of 3 exhausted", sqlmock.AnyArg(), "esr-1", models.EsignStatusFailed, models.EsignStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkFailedPermanent(context.Background(), "esr-1", "retry cap of 3 exhausted"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
