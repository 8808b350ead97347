package models

import "time"

// Owner types an attachment may reference. The owner pair is a loose
// reference validated at the service boundary, not a foreign key.
const (
	OwnerTypeRequisition = "purchase_requisition"
	OwnerTypeStockItem   = "stock_item"
	OwnerTypeUser        = "user"
)

// KnownOwnerType reports whether the owner type belongs to the closed set.
func KnownOwnerType(ownerType string) bool {
	switch ownerType {
	case OwnerTypeRequisition, OwnerTypeStockItem, OwnerTypeUser:
		return true
	}
	return false
}

// Attachment is the metadata row for an uploaded blob.
type Attachment struct {
	ID          int64     `db:"id" json:"id"`
	FileName    string    `db:"file_name" json:"file_name"`
	FileKey     string    `db:"file_key" json:"file_key"`
	SizeBytes   int64     `db:"size_bytes" json:"size_bytes"`
	MimeType    string    `db:"mime_type" json:"mime_type"`
	UploadedBy  int64     `db:"uploaded_by" json:"uploaded_by"`
	RelatedType *string   `db:"related_type" json:"related_type,omitempty"`
	RelatedID   *int64    `db:"related_id" json:"related_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
