package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/procuradev/procura-api/internal/models"
	appErrors "github.com/procuradev/procura-api/pkg/errors"
	"github.com/procuradev/procura-api/pkg/storage"
)

type attachmentRepository interface {
	Create(ctx context.Context, att *models.Attachment) error
	GetByID(ctx context.Context, id int64) (*models.Attachment, error)
	FindByKey(ctx context.Context, key string) (*models.Attachment, error)
	ListByOwner(ctx context.Context, ownerType string, ownerID int64) ([]models.Attachment, error)
	Delete(ctx context.Context, id int64) error
}

// UploadAttachmentRequest carries a base64-encoded file plus metadata. The
// related owner pair is optional; when present it must name a known owner
// type.
type UploadAttachmentRequest struct {
	FileName    string  `json:"file_name" validate:"required"`
	MimeType    string  `json:"mime_type" validate:"required"`
	Content     string  `json:"content" validate:"required"`
	RelatedType *string `json:"related_type,omitempty"`
	RelatedID   *int64  `json:"related_id,omitempty"`
}

// DownloadURLResponse is the signed, expiring link for one attachment.
type DownloadURLResponse struct {
	FileKey    string    `json:"file_key"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `json:"uploaded_at"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// AttachmentDownload is an open blob ready to stream to a client.
type AttachmentDownload struct {
	File      *os.File
	FileName  string
	MimeType  string
	SizeBytes int64
	ETag      string
}

// AttachmentService manages file metadata and the underlying blob store.
type AttachmentService struct {
	repo      attachmentRepository
	blobs     *storage.LocalBlobStore
	signer    *storage.SignedURLSigner
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger

	maxSizeBytes int64
	allowedMIMEs map[string]struct{}
}

// NewAttachmentService creates a new attachment service instance.
func NewAttachmentService(repo attachmentRepository, blobs *storage.LocalBlobStore, signer *storage.SignedURLSigner, audit auditLogger, validate *validator.Validate, logger *zap.Logger, maxSizeBytes int64, allowedMIMEs []string) *AttachmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(allowedMIMEs))
	for _, m := range allowedMIMEs {
		allowed[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	return &AttachmentService{
		repo:         repo,
		blobs:        blobs,
		signer:       signer,
		audit:        audit,
		validator:    validate,
		logger:       logger,
		maxSizeBytes: maxSizeBytes,
		allowedMIMEs: allowed,
	}
}

// Upload decodes, stores and registers a new attachment. If the metadata
// insert fails after the blob was written, the blob is removed again so the
// store never accumulates rows-less files.
func (s *AttachmentService) Upload(ctx context.Context, req UploadAttachmentRequest, actor *models.JWTClaims) (*models.Attachment, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attachment payload")
	}
	if err := s.validateOwnerPair(req.RelatedType, req.RelatedID); err != nil {
		return nil, err
	}

	mime := strings.ToLower(strings.TrimSpace(req.MimeType))
	if len(s.allowedMIMEs) > 0 {
		if _, ok := s.allowedMIMEs[mime]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file type %s is not allowed", mime))
		}
	}

	data, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "content must be valid base64")
	}
	if len(data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "content must not be empty")
	}
	if s.maxSizeBytes > 0 && int64(len(data)) > s.maxSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("file exceeds the maximum size of %d bytes", s.maxSizeBytes))
	}

	key := generateFileKey(req.FileName)
	if _, err := s.blobs.SaveStream(key, bytes.NewReader(data)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}

	attachment := &models.Attachment{
		FileName:    req.FileName,
		FileKey:     key,
		SizeBytes:   int64(len(data)),
		MimeType:    mime,
		UploadedBy:  actor.UserID,
		RelatedType: req.RelatedType,
		RelatedID:   req.RelatedID,
	}
	if err := s.repo.Create(ctx, attachment); err != nil {
		if delErr := s.blobs.Delete(key); delErr != nil {
			s.logger.Error("failed to remove orphaned blob after metadata insert failure",
				zap.String("key", key), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register attachment")
	}

	s.emitFileAudit(ctx, actor, models.AuditActionFileUpload, attachment)

	return attachment, nil
}

// GetDownloadURL returns a signed, expiring link for an attachment. The blob
// must still exist on disk; a dangling metadata row yields not found.
func (s *AttachmentService) GetDownloadURL(ctx context.Context, id int64) (*DownloadURLResponse, error) {
	attachment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachment")
	}

	info, err := s.blobs.Stat(attachment.FileKey)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat file")
	}

	token, expiresAt, err := s.signer.Generate(attachment.FileKey)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}

	return &DownloadURLResponse{
		FileKey:    attachment.FileKey,
		SizeBytes:  info.SizeBytes,
		UploadedAt: attachment.CreatedAt,
		URL:        fmt.Sprintf("/files/%s?token=%s", url.PathEscape(attachment.FileKey), url.QueryEscape(token)),
		ExpiresAt:  expiresAt,
	}, nil
}

// ListByRelated returns attachments for an owner pair, newest first.
func (s *AttachmentService) ListByRelated(ctx context.Context, ownerType string, ownerID int64) ([]models.Attachment, error) {
	if !models.KnownOwnerType(ownerType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown owner type %q", ownerType))
	}
	if ownerID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "owner id must be positive")
	}
	attachments, err := s.repo.ListByOwner(ctx, ownerType, ownerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attachments")
	}
	return attachments, nil
}

// Delete removes the metadata row first, then the blob. A blob that cannot
// be removed is logged and left for a cleanup sweep; the delete still
// succeeds because the row is gone.
func (s *AttachmentService) Delete(ctx context.Context, id int64, actor *models.JWTClaims) error {
	attachment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachment")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete attachment")
	}

	if err := s.blobs.Delete(attachment.FileKey); err != nil {
		s.logger.Error("failed to remove blob for deleted attachment",
			zap.String("key", attachment.FileKey), zap.Error(err))
	}

	s.emitFileAudit(ctx, actor, models.AuditActionFileDelete, attachment)

	return nil
}

// Download resolves a signed token into an open blob for streaming. The
// caller is responsible for closing the returned file.
func (s *AttachmentService) Download(ctx context.Context, key, token string) (*AttachmentDownload, error) {
	signedKey, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	if signedKey != key {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token does not match the requested file")
	}

	fileName := key
	mimeType := artifactMIME(key)
	attachment, err := s.repo.FindByKey(ctx, key)
	switch {
	case err == nil:
		fileName = attachment.FileName
		mimeType = attachment.MimeType
	case errors.Is(err, sql.ErrNoRows):
		// Generated artifacts such as export results have no metadata
		// row; the signed token alone authorizes the key.
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachment")
	}

	info, err := s.blobs.Stat(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat file")
	}

	file, err := s.blobs.Open(key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
	}

	return &AttachmentDownload{
		File:      file,
		FileName:  fileName,
		MimeType:  mimeType,
		SizeBytes: info.SizeBytes,
		ETag:      fmt.Sprintf("%q", fmt.Sprintf("%s-%d", key, info.SizeBytes)),
	}, nil
}

func artifactMIME(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".csv":
		return "text/csv"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

func (s *AttachmentService) validateOwnerPair(relatedType *string, relatedID *int64) error {
	if relatedType == nil && relatedID == nil {
		return nil
	}
	if relatedType == nil || relatedID == nil {
		return appErrors.Clone(appErrors.ErrValidation, "related_type and related_id must be supplied together")
	}
	if !models.KnownOwnerType(*relatedType) {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown owner type %q", *relatedType))
	}
	if *relatedID <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "related_id must be positive")
	}
	return nil
}

func (s *AttachmentService) emitFileAudit(ctx context.Context, actor *models.JWTClaims, action string, att *models.Attachment) {
	if s.audit == nil {
		return
	}
	var userID *int64
	if actor != nil {
		userID = &actor.UserID
	}
	resourceID := fmt.Sprintf("%d", att.ID)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   "attachment",
		ResourceID: &resourceID,
		NewValues:  []byte(fmt.Sprintf(`{"file_key":%q,"file_name":%q}`, att.FileKey, att.FileName)),
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

// generateFileKey builds a collision-safe storage key from the upload name.
func generateFileKey(fileName string) string {
	base := filepath.Base(fileName)
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		}
		return '_'
	}, base)
	if sanitized == "" || sanitized == "." {
		sanitized = "file"
	}
	return fmt.Sprintf("%d-%s-%s", time.Now().UnixMilli(), uuid.NewString(), sanitized)
}
