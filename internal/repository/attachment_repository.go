package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/procuradev/procura-api/internal/models"
)

// AttachmentRepository handles attachment metadata persistence.
type AttachmentRepository struct {
	db *sqlx.DB
}

// NewAttachmentRepository constructs the repository.
func NewAttachmentRepository(db *sqlx.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

const attachmentColumns = `id, file_name, file_key, size_bytes, mime_type, uploaded_by, related_type, related_id, created_at`

// Create stores metadata for an uploaded blob.
func (r *AttachmentRepository) Create(ctx context.Context, att *models.Attachment) error {
	if att.CreatedAt.IsZero() {
		att.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attachments
	(file_name, file_key, size_bytes, mime_type, uploaded_by, related_type, related_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		att.FileName, att.FileKey, att.SizeBytes, att.MimeType,
		att.UploadedBy, att.RelatedType, att.RelatedID, att.CreatedAt,
	).Scan(&att.ID); err != nil {
		return fmt.Errorf("create attachment: %w", err)
	}
	return nil
}

// GetByID retrieves one metadata row.
func (r *AttachmentRepository) GetByID(ctx context.Context, id int64) (*models.Attachment, error) {
	query := fmt.Sprintf("SELECT %s FROM attachments WHERE id = $1", attachmentColumns)
	var att models.Attachment
	if err := r.db.GetContext(ctx, &att, query, id); err != nil {
		return nil, err
	}
	return &att, nil
}

// FindByKey retrieves a metadata row by storage key.
func (r *AttachmentRepository) FindByKey(ctx context.Context, key string) (*models.Attachment, error) {
	query := fmt.Sprintf("SELECT %s FROM attachments WHERE file_key = $1", attachmentColumns)
	var att models.Attachment
	if err := r.db.GetContext(ctx, &att, query, key); err != nil {
		return nil, err
	}
	return &att, nil
}

// ListByOwner returns all metadata rows whose owner pair matches.
func (r *AttachmentRepository) ListByOwner(ctx context.Context, ownerType string, ownerID int64) ([]models.Attachment, error) {
	query := fmt.Sprintf("SELECT %s FROM attachments WHERE related_type = $1 AND related_id = $2 ORDER BY created_at DESC", attachmentColumns)
	var attachments []models.Attachment
	if err := r.db.SelectContext(ctx, &attachments, query, ownerType, ownerID); err != nil {
		return nil, fmt.Errorf("list attachments by owner: %w", err)
	}
	return attachments, nil
}

// Delete removes a metadata row. Returns sql.ErrNoRows when nothing matched.
func (r *AttachmentRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check attachment delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
