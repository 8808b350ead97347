package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/procuradev/procura-api/internal/models"
	appErrors "github.com/procuradev/procura-api/pkg/errors"
)

type stockRepoStub struct {
	items  map[int64]*models.StockItem
	nextID int64
}

func newStockRepoStub() *stockRepoStub {
	return &stockRepoStub{items: make(map[int64]*models.StockItem)}
}

func (r *stockRepoStub) List(ctx context.Context, filter models.StockItemFilter) ([]models.StockItem, int, error) {
	result := make([]models.StockItem, 0, len(r.items))
	for _, item := range r.items {
		result = append(result, *item)
	}
	return result, len(result), nil
}

func (r *stockRepoStub) FindByID(ctx context.Context, id int64) (*models.StockItem, error) {
	item, ok := r.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *stockRepoStub) ExistsByCode(ctx context.Context, code string, excludeID int64) (bool, error) {
	for _, item := range r.items {
		if item.StockCode == code && item.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (r *stockRepoStub) Create(ctx context.Context, item *models.StockItem) error {
	r.nextID++
	item.ID = r.nextID
	item.CreatedAt = time.Now().UTC()
	item.UpdatedAt = item.CreatedAt
	copyItem := *item
	r.items[item.ID] = &copyItem
	return nil
}

func (r *stockRepoStub) Update(ctx context.Context, item *models.StockItem) error {
	if _, ok := r.items[item.ID]; !ok {
		return sql.ErrNoRows
	}
	copyItem := *item
	r.items[item.ID] = &copyItem
	return nil
}

func validStockRequest() CreateStockItemRequest {
	return CreateStockItemRequest{
		StockCode:    "STK-100",
		Description:  "Copper wire 2mm",
		Category:     "Electrical",
		UOM:          "m",
		CurrentStock: 500,
		UnitPrice:    1.25,
	}
}

func TestStockCreateAndGet(t *testing.T) {
	svc := NewStockService(newStockRepoStub(), nil, nil)

	item, err := svc.Create(context.Background(), validStockRequest())
	require.NoError(t, err)
	require.NotZero(t, item.ID)

	got, err := svc.Get(context.Background(), item.ID)
	require.NoError(t, err)
	require.Equal(t, "STK-100", got.StockCode)
}

func TestStockCreateRejectsDuplicateCode(t *testing.T) {
	svc := NewStockService(newStockRepoStub(), nil, nil)

	_, err := svc.Create(context.Background(), validStockRequest())
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), validStockRequest())
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestStockUpdateAppliesPartialFields(t *testing.T) {
	repo := newStockRepoStub()
	svc := NewStockService(repo, nil, nil)

	item, err := svc.Create(context.Background(), validStockRequest())
	require.NoError(t, err)

	newPrice := 1.75
	updated, err := svc.Update(context.Background(), item.ID, UpdateStockItemRequest{UnitPrice: &newPrice})
	require.NoError(t, err)
	require.InDelta(t, 1.75, updated.UnitPrice, 1e-9)
	require.Equal(t, "Copper wire 2mm", updated.Description)
	// Requisition flow never touches stock levels; only explicit updates do.
	require.InDelta(t, 500.0, updated.CurrentStock, 1e-9)
}

func TestStockUpdateNotFound(t *testing.T) {
	svc := NewStockService(newStockRepoStub(), nil, nil)

	desc := "anything"
	_, err := svc.Update(context.Background(), 404, UpdateStockItemRequest{Description: &desc})
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
