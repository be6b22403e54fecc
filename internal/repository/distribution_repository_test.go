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

func TestDistributionCreateBatchCountsInserted(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDistributionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO distributions").WillReturnResult(sqlmock.NewResult(0, 1))
	// ON CONFLICT DO NOTHING reports zero rows for the duplicate recipient.
	mock.ExpectExec("INSERT INTO distributions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	created, err := repo.CreateBatch(context.Background(), []models.Distribution{
		{DocumentID: "doc-1", VersionID: "v1", RecipientID: "emp-1", RecipientName: "Alice"},
		{DocumentID: "doc-1", VersionID: "v1", RecipientID: "emp-2", RecipientName: "Bob"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDistributionMarkReadKeepsOriginalTimestamp(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDistributionRepository(db)

	mock.ExpectExec(`UPDATE distributions SET is_read = TRUE, read_at = COALESCE\(read_at, \$1\) WHERE id = \$2`).
		WithArgs(sqlmock.AnyArg(), "dist-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkRead(context.Background(), "dist-1", time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDistributionMarkReadMissingRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDistributionRepository(db)

	mock.ExpectExec("UPDATE distributions SET is_read").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkRead(context.Background(), "dist-missing", time.Now())
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDistributionAcknowledgeRecordsClientMetadata(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDistributionRepository(db)

	ip := "10.0.0.5"
	ua := "Mozilla/5.0"
	mock.ExpectExec("UPDATE distributions SET is_read = TRUE").
		WithArgs(sqlmock.AnyArg(), ip, ua, "dist-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Acknowledge(context.Background(), "dist-1", time.Now(), &ip, &ua)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDistributionListOverdue(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDistributionRepository(db)

	now := time.Now()
	deadline := now.Add(-time.Hour)
	rows := sqlmock.NewRows([]string{"id", "document_id", "version_id", "recipient_id", "recipient_name", "department", "is_mandatory", "is_read", "read_at", "acknowledged_at", "ack_ip_address", "ack_user_agent", "deadline", "created_at"}).
		AddRow("dist-1", "doc-1", "v1", "emp-1", "Alice", "HSE", true, false, nil, nil, nil, nil, deadline, now)
	mock.ExpectQuery("WHERE is_mandatory = TRUE AND acknowledged_at IS NULL").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	overdue, err := repo.ListOverdue(context.Background(), now, 100)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "emp-1", overdue[0].RecipientID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
