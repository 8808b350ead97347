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

// StockRepository handles stock item master data persistence.
type StockRepository struct {
	db *sqlx.DB
}

// NewStockRepository instantiates a stock repository.
func NewStockRepository(db *sqlx.DB) *StockRepository {
	return &StockRepository{db: db}
}

const stockColumns = `id, stock_code, description, category, uom, current_stock, unit_price, created_at, updated_at`

// List returns stock items matching the provided filters.
func (r *StockRepository) List(ctx context.Context, filter models.StockItemFilter) ([]models.StockItem, int, error) {
	base := "FROM stock_items WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(stock_code ILIKE $%d OR description ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY stock_code LIMIT %d OFFSET %d", stockColumns, base, limit, offset)

	var items []models.StockItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list stock items: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count stock items: %w", err)
	}

	return items, total, nil
}

// FindByID loads a stock item by identifier.
func (r *StockRepository) FindByID(ctx context.Context, id int64) (*models.StockItem, error) {
	query := fmt.Sprintf("SELECT %s FROM stock_items WHERE id = $1", stockColumns)
	var item models.StockItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// ExistsByCode checks whether a stock item with the same code exists.
func (r *StockRepository) ExistsByCode(ctx context.Context, code string, excludeID int64) (bool, error) {
	base := "SELECT 1 FROM stock_items WHERE stock_code = $1"
	args := []interface{}{code}
	if excludeID > 0 {
		base += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, base+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check stock code uniqueness: %w", err)
	}
	return true, nil
}

// Create inserts a new stock item.
func (r *StockRepository) Create(ctx context.Context, item *models.StockItem) error {
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	const query = `INSERT INTO stock_items
	(stock_code, description, category, uom, current_stock, unit_price, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		item.StockCode, item.Description, item.Category, item.UOM,
		item.CurrentStock, item.UnitPrice, item.CreatedAt, item.UpdatedAt,
	).Scan(&item.ID); err != nil {
		return fmt.Errorf("create stock item: %w", err)
	}
	return nil
}

// Update modifies an existing stock item.
func (r *StockRepository) Update(ctx context.Context, item *models.StockItem) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE stock_items SET stock_code = :stock_code, description = :description,
	category = :category, uom = :uom, current_stock = :current_stock, unit_price = :unit_price,
	updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("update stock item: %w", err)
	}
	return nil
}
