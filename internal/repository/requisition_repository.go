package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/procuradev/procura-api/internal/models"
)

// RequisitionRepository handles persistence for purchase requisitions and
// their line items.
type RequisitionRepository struct {
	db *sqlx.DB
}

// NewRequisitionRepository instantiates a requisition repository.
func NewRequisitionRepository(db *sqlx.DB) *RequisitionRepository {
	return &RequisitionRepository{db: db}
}

const requisitionColumns = `id, pr_number, title, status, requested_by, department, company, urgency, total_amount, currency, notes, created_at, updated_at`

// Create inserts the header and all line items in a single transaction so a
// failure on any item insert rolls back the header.
func (r *RequisitionRepository) Create(ctx context.Context, req *models.Requisition, items []models.RequisitionItem) error {
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create requisition tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const headerQuery = `INSERT INTO purchase_requisitions
	(pr_number, title, status, requested_by, department, company, urgency, total_amount, currency, notes, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	RETURNING id`
	if err = tx.QueryRowxContext(ctx, headerQuery,
		req.PRNumber, req.Title, req.Status, req.RequestedBy, req.Department, req.Company,
		req.Urgency, req.TotalAmount, req.Currency, req.Notes, req.CreatedAt, req.UpdatedAt,
	).Scan(&req.ID); err != nil {
		return fmt.Errorf("insert requisition header: %w", err)
	}

	const itemQuery = `INSERT INTO pr_items
	(requisition_id, stock_code, description, quantity, uom, unit_price, total_price)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id`
	for i := range items {
		items[i].RequisitionID = req.ID
		if err = tx.QueryRowxContext(ctx, itemQuery,
			items[i].RequisitionID, items[i].StockCode, items[i].Description,
			items[i].Quantity, items[i].UOM, items[i].UnitPrice, items[i].TotalPrice,
		).Scan(&items[i].ID); err != nil {
			return fmt.Errorf("insert requisition item %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create requisition tx: %w", err)
	}
	req.Items = items
	return nil
}

// List returns requisitions newest-first with the true total row count under
// the same filter.
func (r *RequisitionRepository) List(ctx context.Context, filter models.RequisitionFilter) ([]models.Requisition, int, error) {
	base := "FROM purchase_requisitions WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("department = $%d", len(args)+1))
		args = append(args, filter.Department)
	}
	if filter.Urgency != "" {
		conditions = append(conditions, fmt.Sprintf("urgency = $%d", len(args)+1))
		args = append(args, filter.Urgency)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d", requisitionColumns, base, limit, offset)

	var requisitions []models.Requisition
	if err := r.db.SelectContext(ctx, &requisitions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list requisitions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count requisitions: %w", err)
	}

	return requisitions, total, nil
}

// FindByID loads a requisition header by identifier.
func (r *RequisitionRepository) FindByID(ctx context.Context, id int64) (*models.Requisition, error) {
	query := fmt.Sprintf("SELECT %s FROM purchase_requisitions WHERE id = $1", requisitionColumns)
	var req models.Requisition
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// ListItems returns all line items for a requisition in insertion order.
func (r *RequisitionRepository) ListItems(ctx context.Context, requisitionID int64) ([]models.RequisitionItem, error) {
	const query = `SELECT id, requisition_id, stock_code, description, quantity, uom, unit_price, total_price
	FROM pr_items WHERE requisition_id = $1 ORDER BY id`
	var items []models.RequisitionItem
	if err := r.db.SelectContext(ctx, &items, query, requisitionID); err != nil {
		return nil, fmt.Errorf("list requisition items: %w", err)
	}
	return items, nil
}

// UpdateStatus sets the status and bumps updated_at. Returns sql.ErrNoRows
// when no header matches.
func (r *RequisitionRepository) UpdateStatus(ctx context.Context, id int64, status models.RequisitionStatus, updatedAt time.Time) error {
	const query = `UPDATE purchase_requisitions SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, updatedAt)
	if err != nil {
		return fmt.Errorf("update requisition status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check requisition update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a requisition; pr_items cascade at the schema level.
func (r *RequisitionRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM purchase_requisitions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete requisition: %w", err)
	}
	return nil
}
