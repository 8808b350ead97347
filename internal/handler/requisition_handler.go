package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/procuradev/procura-api/internal/models"
	"github.com/procuradev/procura-api/internal/service"
	appErrors "github.com/procuradev/procura-api/pkg/errors"
	"github.com/procuradev/procura-api/pkg/response"
)

type requisitionService interface {
	Create(ctx context.Context, req service.CreateRequisitionRequest, actor *models.JWTClaims) (*models.Requisition, error)
	List(ctx context.Context, filter models.RequisitionFilter) ([]models.Requisition, *models.Pagination, error)
	Get(ctx context.Context, id int64) (*models.Requisition, error)
	UpdateStatus(ctx context.Context, id int64, req service.UpdateStatusRequest, actor *models.JWTClaims) (*models.Requisition, error)
	DecideApproval(ctx context.Context, id int64, req service.ApprovalDecisionRequest, actor *models.JWTClaims) (*models.RequisitionApproval, error)
	ListApprovals(ctx context.Context, id int64) ([]models.RequisitionApproval, error)
}

// RequisitionHandler manages purchase requisition HTTP endpoints.
type RequisitionHandler struct {
	service requisitionService
}

// NewRequisitionHandler constructs the handler.
func NewRequisitionHandler(svc requisitionService) *RequisitionHandler {
	return &RequisitionHandler{service: svc}
}

// Create godoc
// @Summary Create purchase requisition
// @Tags Requisitions
// @Accept json
// @Produce json
// @Param payload body service.CreateRequisitionRequest true "Requisition payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /requisitions [post]
func (h *RequisitionHandler) Create(c *gin.Context) {
	var req service.CreateRequisitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid requisition payload"))
		return
	}
	requisition, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, requisition, nil)
}

// List godoc
// @Summary List purchase requisitions
// @Tags Requisitions
// @Produce json
// @Param status query string false "Status filter"
// @Param department query string false "Department filter"
// @Param urgency query string false "Urgency filter"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} response.Envelope
// @Router /requisitions [get]
func (h *RequisitionHandler) List(c *gin.Context) {
	filter := models.RequisitionFilter{
		Status:     models.RequisitionStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		Department: strings.TrimSpace(c.Query("department")),
		Urgency:    models.Urgency(strings.TrimSpace(c.Query("urgency"))),
		Limit:      queryInt(c, "limit", 10),
		Offset:     queryInt(c, "offset", 0),
	}
	requisitions, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requisitions, pagination)
}

// Get godoc
// @Summary Get purchase requisition with line items
// @Tags Requisitions
// @Produce json
// @Param id path int true "Requisition ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requisitions/{id} [get]
func (h *RequisitionHandler) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	requisition, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requisition, nil)
}

// UpdateStatus godoc
// @Summary Move a requisition through its lifecycle
// @Tags Requisitions
// @Accept json
// @Produce json
// @Param id path int true "Requisition ID"
// @Param payload body service.UpdateStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requisitions/{id}/status [patch]
func (h *RequisitionHandler) UpdateStatus(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid status payload"))
		return
	}
	requisition, err := h.service.UpdateStatus(c.Request.Context(), id, req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requisition, nil)
}

// DecideApproval godoc
// @Summary Record an approval chain decision
// @Tags Requisitions
// @Accept json
// @Produce json
// @Param id path int true "Requisition ID"
// @Param payload body service.ApprovalDecisionRequest true "Decision payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requisitions/{id}/approvals [post]
func (h *RequisitionHandler) DecideApproval(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.ApprovalDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid approval payload"))
		return
	}
	approval, err := h.service.DecideApproval(c.Request.Context(), id, req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, approval, nil)
}

// ListApprovals godoc
// @Summary List recorded approval decisions
// @Tags Requisitions
// @Produce json
// @Param id path int true "Requisition ID"
// @Success 200 {object} response.Envelope
// @Router /requisitions/{id}/approvals [get]
func (h *RequisitionHandler) ListApprovals(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	approvals, err := h.service.ListApprovals(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approvals, nil)
}
