package service

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/procuradev/procura-api/internal/models"
	appErrors "github.com/procuradev/procura-api/pkg/errors"
	"github.com/procuradev/procura-api/pkg/storage"
)

type attachmentRepoStub struct {
	attachments map[int64]*models.Attachment
	nextID      int64
	createErr   error
}

func newAttachmentRepoStub() *attachmentRepoStub {
	return &attachmentRepoStub{attachments: make(map[int64]*models.Attachment)}
}

func (r *attachmentRepoStub) Create(ctx context.Context, att *models.Attachment) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.nextID++
	att.ID = r.nextID
	att.CreatedAt = time.Now().UTC()
	copyAtt := *att
	r.attachments[att.ID] = &copyAtt
	return nil
}

func (r *attachmentRepoStub) GetByID(ctx context.Context, id int64) (*models.Attachment, error) {
	att, ok := r.attachments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copyAtt := *att
	return &copyAtt, nil
}

func (r *attachmentRepoStub) FindByKey(ctx context.Context, key string) (*models.Attachment, error) {
	for _, att := range r.attachments {
		if att.FileKey == key {
			copyAtt := *att
			return &copyAtt, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *attachmentRepoStub) ListByOwner(ctx context.Context, ownerType string, ownerID int64) ([]models.Attachment, error) {
	result := make([]models.Attachment, 0)
	for _, att := range r.attachments {
		if att.RelatedType != nil && *att.RelatedType == ownerType && att.RelatedID != nil && *att.RelatedID == ownerID {
			result = append(result, *att)
		}
	}
	return result, nil
}

func (r *attachmentRepoStub) Delete(ctx context.Context, id int64) error {
	if _, ok := r.attachments[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.attachments, id)
	return nil
}

func newAttachmentServiceForTest(t *testing.T, repo *attachmentRepoStub) (*AttachmentService, *storage.LocalBlobStore) {
	t.Helper()
	blobs, err := storage.NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	svc := NewAttachmentService(repo, blobs, signer, &auditStub{}, nil, nil,
		1024, []string{"application/pdf", "image/png"})
	return svc, blobs
}

func uploadPayload() UploadAttachmentRequest {
	ownerType := models.OwnerTypeRequisition
	ownerID := int64(42)
	return UploadAttachmentRequest{
		FileName:    "quote.pdf",
		MimeType:    "application/pdf",
		Content:     base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 test")),
		RelatedType: &ownerType,
		RelatedID:   &ownerID,
	}
}

func TestAttachmentUploadStoresBlobAndMetadata(t *testing.T) {
	repo := newAttachmentRepoStub()
	svc, blobs := newAttachmentServiceForTest(t, repo)

	att, err := svc.Upload(context.Background(), uploadPayload(), userClaims())
	require.NoError(t, err)
	require.Equal(t, "quote.pdf", att.FileName)
	require.Equal(t, int64(13), att.SizeBytes)
	require.Equal(t, int64(3), att.UploadedBy)
	require.True(t, blobs.Exists(att.FileKey))
}

func TestAttachmentUploadRejectsDisallowedMIME(t *testing.T) {
	repo := newAttachmentRepoStub()
	svc, _ := newAttachmentServiceForTest(t, repo)

	payload := uploadPayload()
	payload.MimeType = "application/x-msdownload"
	_, err := svc.Upload(context.Background(), payload, userClaims())
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	require.Empty(t, repo.attachments)
}

func TestAttachmentUploadRejectsOversizedFile(t *testing.T) {
	repo := newAttachmentRepoStub()
	svc, _ := newAttachmentServiceForTest(t, repo)

	payload := uploadPayload()
	payload.Content = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("a", 2048)))
	_, err := svc.Upload(context.Background(), payload, userClaims())
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAttachmentUploadRejectsInvalidBase64(t *testing.T) {
	repo := newAttachmentRepoStub()
	svc, _ := newAttachmentServiceForTest(t, repo)

	payload := uploadPayload()
	payload.Content = "not-base64!!!"
	_, err := svc.Upload(context.Background(), payload, userClaims())
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAttachmentUploadRejectsHalfOwnerPair(t *testing.T) {
	repo := newAttachmentRepoStub()
	svc, _ := newAttachmentServiceForTest(t, repo)

	payload := uploadPayload()
	payload.RelatedID = nil
	_, err := svc.Upload(context.Background(), payload, userClaims())
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAttachmentUploadCompensatesBlobOnMetadataFailure(t *testing.T) {
	repo := newAttachmentRepoStub()
	repo.createErr = fmt.Errorf("insert failed")
	svc, blobs := newAttachmentServiceForTest(t, repo)

	_, err := svc.Upload(context.Background(), uploadPayload(), userClaims())
	require.Error(t, err)

	// Nothing may be left behind in the store.
	entries, err := blobs.List()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestAttachmentDownloadURLRoundTrip(t *testing.T) {
	repo := newAttachmentRepoStub()
	svc, _ := newAttachmentServiceForTest(t, repo)

	att, err := svc.Upload(context.Background(), uploadPayload(), userClaims())
	require.NoError(t, err)

	res, err := svc.GetDownloadURL(context.Background(), att.ID)
	require.NoError(t, err)
	require.True(t, res.ExpiresAt.After(time.Now()))
	require.Equal(t, att.FileKey, res.FileKey)
	require.Equal(t, int64(len("%PDF-1.4 test")), res.SizeBytes)

	parsed, err := url.Parse(res.URL)
	require.NoError(t, err)
	token := parsed.Query().Get("token")
	require.NotEmpty(t, token)

	download, err := svc.Download(context.Background(), att.FileKey, token)
	require.NoError(t, err)
	defer download.File.Close() //nolint:errcheck

	data, err := io.ReadAll(download.File)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4 test", string(data))
	require.Equal(t, "application/pdf", download.MimeType)
	require.NotEmpty(t, download.ETag)
}

func TestAttachmentDownloadRejectsMismatchedKey(t *testing.T) {
	repo := newAttachmentRepoStub()
	svc, _ := newAttachmentServiceForTest(t, repo)

	att, err := svc.Upload(context.Background(), uploadPayload(), userClaims())
	require.NoError(t, err)

	res, err := svc.GetDownloadURL(context.Background(), att.ID)
	require.NoError(t, err)
	parsed, _ := url.Parse(res.URL)
	token := parsed.Query().Get("token")

	_, err = svc.Download(context.Background(), "some-other-key", token)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestAttachmentDownloadServesRowlessSignedKey(t *testing.T) {
	repo := newAttachmentRepoStub()
	svc, blobs := newAttachmentServiceForTest(t, repo)

	key := "export-1234.csv"
	_, err := blobs.Save(key, []byte("PR Number,Title\n"))
	require.NoError(t, err)

	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	token, _, err := signer.Generate(key)
	require.NoError(t, err)

	download, err := svc.Download(context.Background(), key, token)
	require.NoError(t, err)
	defer download.File.Close() //nolint:errcheck

	data, err := io.ReadAll(download.File)
	require.NoError(t, err)
	require.Equal(t, "PR Number,Title\n", string(data))
	require.Equal(t, "text/csv", download.MimeType)
	require.Equal(t, key, download.FileName)
}

func TestAttachmentDownloadURLNotFoundForDanglingRow(t *testing.T) {
	repo := newAttachmentRepoStub()
	svc, blobs := newAttachmentServiceForTest(t, repo)

	att, err := svc.Upload(context.Background(), uploadPayload(), userClaims())
	require.NoError(t, err)
	require.NoError(t, blobs.Delete(att.FileKey))

	_, err = svc.GetDownloadURL(context.Background(), att.ID)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestAttachmentListByRelated(t *testing.T) {
	repo := newAttachmentRepoStub()
	svc, _ := newAttachmentServiceForTest(t, repo)

	_, err := svc.Upload(context.Background(), uploadPayload(), userClaims())
	require.NoError(t, err)

	attachments, err := svc.ListByRelated(context.Background(), models.OwnerTypeRequisition, 42)
	require.NoError(t, err)
	require.Len(t, attachments, 1)

	_, err = svc.ListByRelated(context.Background(), "invoice", 42)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAttachmentDeleteRemovesRowAndBlob(t *testing.T) {
	repo := newAttachmentRepoStub()
	svc, blobs := newAttachmentServiceForTest(t, repo)

	att, err := svc.Upload(context.Background(), uploadPayload(), userClaims())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), att.ID, userClaims()))
	require.Empty(t, repo.attachments)
	require.False(t, blobs.Exists(att.FileKey))

	err = svc.Delete(context.Background(), att.ID, userClaims())
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
