package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/procuradev/procura-api/internal/models"
	appErrors "github.com/procuradev/procura-api/pkg/errors"
)

type stockRepository interface {
	List(ctx context.Context, filter models.StockItemFilter) ([]models.StockItem, int, error)
	FindByID(ctx context.Context, id int64) (*models.StockItem, error)
	ExistsByCode(ctx context.Context, code string, excludeID int64) (bool, error)
	Create(ctx context.Context, item *models.StockItem) error
	Update(ctx context.Context, item *models.StockItem) error
}

// CreateStockItemRequest describes payload for creating stock master data.
type CreateStockItemRequest struct {
	StockCode    string  `json:"stock_code" validate:"required"`
	Description  string  `json:"description" validate:"required"`
	Category     string  `json:"category" validate:"required"`
	UOM          string  `json:"uom" validate:"required"`
	CurrentStock float64 `json:"current_stock" validate:"gte=0"`
	UnitPrice    float64 `json:"unit_price" validate:"gte=0"`
}

// UpdateStockItemRequest describes payload for updating stock master data.
// Nil fields keep their current value.
type UpdateStockItemRequest struct {
	Description  *string  `json:"description,omitempty"`
	Category     *string  `json:"category,omitempty"`
	UOM          *string  `json:"uom,omitempty"`
	CurrentStock *float64 `json:"current_stock,omitempty" validate:"omitempty,gte=0"`
	UnitPrice    *float64 `json:"unit_price,omitempty" validate:"omitempty,gte=0"`
}

// StockService manages the stock item master data catalogue.
type StockService struct {
	repo      stockRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStockService creates a new stock service instance.
func NewStockService(repo stockRepository, validate *validator.Validate, logger *zap.Logger) *StockService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockService{repo: repo, validator: validate, logger: logger}
}

// List returns paginated stock items with the true total count.
func (s *StockService) List(ctx context.Context, filter models.StockItemFilter) ([]models.StockItem, *models.Pagination, error) {
	if filter.Limit <= 0 {
		filter.Limit = 10
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list stock items")
	}
	return items, &models.Pagination{Limit: filter.Limit, Offset: filter.Offset, TotalCount: total}, nil
}

// Get returns a single stock item by id.
func (s *StockService) Get(ctx context.Context, id int64) (*models.StockItem, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "stock item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stock item")
	}
	return item, nil
}

// Create registers a new stock item. Stock codes are unique.
func (s *StockService) Create(ctx context.Context, req CreateStockItemRequest) (*models.StockItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid stock item payload")
	}

	exists, err := s.repo.ExistsByCode(ctx, req.StockCode, 0)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check stock code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("stock code %s already exists", req.StockCode))
	}

	item := &models.StockItem{
		StockCode:    req.StockCode,
		Description:  req.Description,
		Category:     req.Category,
		UOM:          req.UOM,
		CurrentStock: req.CurrentStock,
		UnitPrice:    req.UnitPrice,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create stock item")
	}
	return item, nil
}

// Update applies a partial update to a stock item. The stock code itself is
// immutable once assigned.
func (s *StockService) Update(ctx context.Context, id int64, req UpdateStockItemRequest) (*models.StockItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid stock item payload")
	}

	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "stock item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stock item")
	}

	if req.Description != nil {
		item.Description = *req.Description
	}
	if req.Category != nil {
		item.Category = *req.Category
	}
	if req.UOM != nil {
		item.UOM = *req.UOM
	}
	if req.CurrentStock != nil {
		item.CurrentStock = *req.CurrentStock
	}
	if req.UnitPrice != nil {
		item.UnitPrice = *req.UnitPrice
	}
	item.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update stock item")
	}
	return item, nil
}
