package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/procuradev/procura-api/internal/models"
	"github.com/procuradev/procura-api/internal/service"
	appErrors "github.com/procuradev/procura-api/pkg/errors"
	"github.com/procuradev/procura-api/pkg/response"
)

// StockHandler manages stock item master data endpoints.
type StockHandler struct {
	service *service.StockService
}

// NewStockHandler constructs the handler.
func NewStockHandler(svc *service.StockService) *StockHandler {
	return &StockHandler{service: svc}
}

// List godoc
// @Summary List stock items
// @Tags Stock
// @Produce json
// @Param category query string false "Category filter"
// @Param search query string false "Code/description search"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} response.Envelope
// @Router /stock-items [get]
func (h *StockHandler) List(c *gin.Context) {
	filter := models.StockItemFilter{
		Category: strings.TrimSpace(c.Query("category")),
		Search:   strings.TrimSpace(c.Query("search")),
		Limit:    queryInt(c, "limit", 10),
		Offset:   queryInt(c, "offset", 0),
	}
	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a stock item
// @Tags Stock
// @Produce json
// @Param id path int true "Stock item ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /stock-items/{id} [get]
func (h *StockHandler) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	item, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Create a stock item
// @Tags Stock
// @Accept json
// @Produce json
// @Param payload body service.CreateStockItemRequest true "Stock item payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /stock-items [post]
func (h *StockHandler) Create(c *gin.Context) {
	var req service.CreateStockItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid stock item payload"))
		return
	}
	item, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, item, nil)
}

// Update godoc
// @Summary Update a stock item
// @Tags Stock
// @Accept json
// @Produce json
// @Param id path int true "Stock item ID"
// @Param payload body service.UpdateStockItemRequest true "Partial stock item payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /stock-items/{id} [put]
func (h *StockHandler) Update(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.UpdateStockItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid stock item payload"))
		return
	}
	item, err := h.service.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}
