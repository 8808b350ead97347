package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/procuradev/procura-api/internal/models"
)

// ApprovalRepository persists approval chain stage decisions.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs the repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// Create records one stage decision.
func (r *ApprovalRepository) Create(ctx context.Context, approval *models.RequisitionApproval) error {
	if approval.DecidedAt.IsZero() {
		approval.DecidedAt = time.Now().UTC()
	}
	const query = `INSERT INTO requisition_approvals
	(requisition_id, stage, decision, decided_by, note, decided_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		approval.RequisitionID, approval.Stage, approval.Decision,
		approval.DecidedBy, approval.Note, approval.DecidedAt,
	).Scan(&approval.ID); err != nil {
		return fmt.Errorf("create approval: %w", err)
	}
	return nil
}

// ListByRequisition returns recorded decisions ordered by stage.
func (r *ApprovalRepository) ListByRequisition(ctx context.Context, requisitionID int64) ([]models.RequisitionApproval, error) {
	const query = `SELECT id, requisition_id, stage, decision, decided_by, note, decided_at
	FROM requisition_approvals WHERE requisition_id = $1 ORDER BY stage`
	var approvals []models.RequisitionApproval
	if err := r.db.SelectContext(ctx, &approvals, query, requisitionID); err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	return approvals, nil
}
