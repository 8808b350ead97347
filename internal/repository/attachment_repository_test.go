package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/procuradev/procura-api/internal/models"
)

func TestAttachmentRepositoryCreateReturnsID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttachmentRepository(db)

	ownerType := models.OwnerTypeRequisition
	ownerID := int64(42)
	att := &models.Attachment{
		FileName:    "quote.pdf",
		FileKey:     "1712000000000-abc-quote.pdf",
		SizeBytes:   1024,
		MimeType:    "application/pdf",
		UploadedBy:  3,
		RelatedType: &ownerType,
		RelatedID:   &ownerID,
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attachments")).
		WithArgs(att.FileName, att.FileKey, att.SizeBytes, att.MimeType, att.UploadedBy, att.RelatedType, att.RelatedID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))

	require.NoError(t, repo.Create(context.Background(), att))
	require.Equal(t, int64(5), att.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachmentRepositoryListByOwner(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttachmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "file_name", "file_key", "size_bytes", "mime_type", "uploaded_by", "related_type", "related_id", "created_at"}).
		AddRow(int64(2), "b.pdf", "key-b", int64(10), "application/pdf", int64(3), "purchase_requisition", int64(42), time.Now()).
		AddRow(int64(1), "a.pdf", "key-a", int64(20), "application/pdf", int64(3), "purchase_requisition", int64(42), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("WHERE related_type = $1 AND related_id = $2 ORDER BY created_at DESC")).
		WithArgs("purchase_requisition", int64(42)).
		WillReturnRows(rows)

	attachments, err := repo.ListByOwner(context.Background(), models.OwnerTypeRequisition, 42)
	require.NoError(t, err)
	require.Len(t, attachments, 2)
	require.Equal(t, "b.pdf", attachments[0].FileName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachmentRepositoryFindByKey(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttachmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "file_name", "file_key", "size_bytes", "mime_type", "uploaded_by", "related_type", "related_id", "created_at"}).
		AddRow(int64(1), "a.pdf", "key-a", int64(20), "application/pdf", int64(3), nil, nil, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("WHERE file_key = $1")).
		WithArgs("key-a").
		WillReturnRows(rows)

	att, err := repo.FindByKey(context.Background(), "key-a")
	require.NoError(t, err)
	require.Equal(t, int64(1), att.ID)
	require.Nil(t, att.RelatedType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachmentRepositoryDeleteNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttachmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM attachments WHERE id = $1")).
		WithArgs(int64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), 404)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
