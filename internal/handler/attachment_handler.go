package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/procuradev/procura-api/internal/models"
	"github.com/procuradev/procura-api/internal/service"
	appErrors "github.com/procuradev/procura-api/pkg/errors"
	"github.com/procuradev/procura-api/pkg/response"
)

type attachmentService interface {
	Upload(ctx context.Context, req service.UploadAttachmentRequest, actor *models.JWTClaims) (*models.Attachment, error)
	GetDownloadURL(ctx context.Context, id int64) (*service.DownloadURLResponse, error)
	ListByRelated(ctx context.Context, ownerType string, ownerID int64) ([]models.Attachment, error)
	Delete(ctx context.Context, id int64, actor *models.JWTClaims) error
	Download(ctx context.Context, key, token string) (*service.AttachmentDownload, error)
}

// AttachmentHandler manages file attachment HTTP endpoints.
type AttachmentHandler struct {
	service attachmentService
}

// NewAttachmentHandler constructs the handler.
func NewAttachmentHandler(svc attachmentService) *AttachmentHandler {
	return &AttachmentHandler{service: svc}
}

// Upload godoc
// @Summary Upload a file attachment
// @Tags Attachments
// @Accept json
// @Produce json
// @Param payload body service.UploadAttachmentRequest true "Base64 upload payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attachments [post]
func (h *AttachmentHandler) Upload(c *gin.Context) {
	var req service.UploadAttachmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid attachment payload"))
		return
	}
	attachment, err := h.service.Upload(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, attachment, nil)
}

// DownloadURL godoc
// @Summary Get a signed, expiring download link
// @Tags Attachments
// @Produce json
// @Param id path int true "Attachment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attachments/{id}/download-url [get]
func (h *AttachmentHandler) DownloadURL(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	res, err := h.service.GetDownloadURL(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// ListByRelated godoc
// @Summary List attachments for an owner record
// @Tags Attachments
// @Produce json
// @Param related_type query string true "Owner type"
// @Param related_id query int true "Owner ID"
// @Success 200 {object} response.Envelope
// @Router /attachments [get]
func (h *AttachmentHandler) ListByRelated(c *gin.Context) {
	ownerType := strings.TrimSpace(c.Query("related_type"))
	ownerID, err := strconv.ParseInt(c.Query("related_id"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "related_id must be a positive integer"))
		return
	}
	attachments, err := h.service.ListByRelated(c.Request.Context(), ownerType, ownerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attachments, nil)
}

// Delete godoc
// @Summary Delete an attachment and its stored file
// @Tags Attachments
// @Produce json
// @Param id path int true "Attachment ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /attachments/{id} [delete]
func (h *AttachmentHandler) Delete(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.Delete(c.Request.Context(), id, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Download godoc
// @Summary Stream a stored file via signed token
// @Tags Attachments
// @Produce octet-stream
// @Param key path string true "File key"
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /files/{key} [get]
func (h *AttachmentHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.service.Download(c.Request.Context(), c.Param("key"), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck

	if match := c.GetHeader("If-None-Match"); match != "" && match == result.ETag {
		c.Status(http.StatusNotModified)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	c.Header("ETag", result.ETag)
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, result.SizeBytes, result.MimeType, result.File, nil)
}
