package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/procuradev/procura-api/internal/middleware"
	"github.com/procuradev/procura-api/internal/models"
	"github.com/procuradev/procura-api/internal/service"
	appErrors "github.com/procuradev/procura-api/pkg/errors"
)

type attachmentServiceMock struct {
	uploadResp  *models.Attachment
	uploadErr   error
	urlResp     *service.DownloadURLResponse
	urlErr      error
	listResp    []models.Attachment
	listErr     error
	deleteErr   error
	download    *service.AttachmentDownload
	downloadErr error
}

func (m *attachmentServiceMock) Upload(ctx context.Context, req service.UploadAttachmentRequest, actor *models.JWTClaims) (*models.Attachment, error) {
	return m.uploadResp, m.uploadErr
}

func (m *attachmentServiceMock) GetDownloadURL(ctx context.Context, id int64) (*service.DownloadURLResponse, error) {
	return m.urlResp, m.urlErr
}

func (m *attachmentServiceMock) ListByRelated(ctx context.Context, ownerType string, ownerID int64) ([]models.Attachment, error) {
	return m.listResp, m.listErr
}

func (m *attachmentServiceMock) Delete(ctx context.Context, id int64, actor *models.JWTClaims) error {
	return m.deleteErr
}

func (m *attachmentServiceMock) Download(ctx context.Context, key, token string) (*service.AttachmentDownload, error) {
	return m.download, m.downloadErr
}

func TestAttachmentHandlerUpload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &attachmentServiceMock{
		uploadResp: &models.Attachment{ID: 1, FileName: "quote.pdf", FileKey: "key-1"},
	}
	h := NewAttachmentHandler(mockSvc)

	payload, _ := json.Marshal(service.UploadAttachmentRequest{
		FileName: "quote.pdf",
		MimeType: "application/pdf",
		Content:  base64.StdEncoding.EncodeToString([]byte("data")),
	})
	c, w := newGinContext(http.MethodPost, "/attachments", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: 3, Role: models.RoleUser})

	h.Upload(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestAttachmentHandlerDownloadURLNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &attachmentServiceMock{
		urlErr: appErrors.Clone(appErrors.ErrNotFound, "file not found"),
	}
	h := NewAttachmentHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/attachments/5/download-url", nil)
	c.Params = gin.Params{{Key: "id", Value: "5"}}

	h.DownloadURL(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAttachmentHandlerListRequiresNumericOwnerID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAttachmentHandler(&attachmentServiceMock{})

	c, w := newGinContext(http.MethodGet, "/attachments?related_type=purchase_requisition&related_id=abc", nil)

	h.ListByRelated(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttachmentHandlerDelete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAttachmentHandler(&attachmentServiceMock{})

	c, w := newGinContext(http.MethodDelete, "/attachments/5", nil)
	c.Params = gin.Params{{Key: "id", Value: "5"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: 3, Role: models.RoleUser})

	h.Delete(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestAttachmentHandlerDownloadStreamsFile(t *testing.T) {
	gin.SetMode(gin.TestMode)

	file, err := os.CreateTemp(t.TempDir(), "blob-*.pdf")
	require.NoError(t, err)
	_, err = file.WriteString("%PDF-1.4 test")
	require.NoError(t, err)
	_, err = file.Seek(0, 0)
	require.NoError(t, err)

	mockSvc := &attachmentServiceMock{
		download: &service.AttachmentDownload{
			File:      file,
			FileName:  "quote.pdf",
			MimeType:  "application/pdf",
			SizeBytes: 13,
			ETag:      `"key-1-13"`,
		},
	}
	h := NewAttachmentHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/files/key-1?token=tok", nil)
	c.Params = gin.Params{{Key: "key", Value: "key-1"}}

	h.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "%PDF-1.4 test", w.Body.String())
	require.Equal(t, `"key-1-13"`, w.Header().Get("ETag"))
	require.Contains(t, w.Header().Get("Content-Disposition"), "quote.pdf")
}

func TestAttachmentHandlerDownloadMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAttachmentHandler(&attachmentServiceMock{})

	c, w := newGinContext(http.MethodGet, "/files/key-1", nil)
	c.Params = gin.Params{{Key: "key", Value: "key-1"}}

	h.Download(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttachmentHandlerDownloadExpiredToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &attachmentServiceMock{
		downloadErr: appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token"),
	}
	h := NewAttachmentHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/files/key-1?token=expired", nil)
	c.Params = gin.Params{{Key: "key", Value: "key-1"}}

	h.Download(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
