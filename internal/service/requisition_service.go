package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/procuradev/procura-api/internal/models"
	appErrors "github.com/procuradev/procura-api/pkg/errors"
)

type requisitionRepository interface {
	Create(ctx context.Context, req *models.Requisition, items []models.RequisitionItem) error
	List(ctx context.Context, filter models.RequisitionFilter) ([]models.Requisition, int, error)
	FindByID(ctx context.Context, id int64) (*models.Requisition, error)
	ListItems(ctx context.Context, requisitionID int64) ([]models.RequisitionItem, error)
	UpdateStatus(ctx context.Context, id int64, status models.RequisitionStatus, updatedAt time.Time) error
}

type approvalRepository interface {
	Create(ctx context.Context, approval *models.RequisitionApproval) error
	ListByRequisition(ctx context.Context, requisitionID int64) ([]models.RequisitionApproval, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateRequisitionItemRequest describes one line of a creation payload.
// TotalPrice is accepted as supplied; it is never recomputed from quantity
// and unit price.
type CreateRequisitionItemRequest struct {
	StockCode   string  `json:"stock_code" validate:"required"`
	Description string  `json:"description" validate:"required"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	UOM         string  `json:"uom" validate:"required"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
	TotalPrice  float64 `json:"total_price" validate:"gte=0"`
}

// CreateRequisitionRequest describes payload for creating requisitions.
type CreateRequisitionRequest struct {
	Title         string                         `json:"title" validate:"required"`
	Department    string                         `json:"department" validate:"required"`
	Company       string                         `json:"company" validate:"required"`
	Urgency       models.Urgency                 `json:"urgency" validate:"required"`
	RequestedByID int64                          `json:"requested_by_id"`
	Currency      string                         `json:"currency"`
	Notes         *string                        `json:"notes,omitempty"`
	Items         []CreateRequisitionItemRequest `json:"items" validate:"required,min=1,dive"`
}

// UpdateStatusRequest moves a requisition through its lifecycle.
type UpdateStatusRequest struct {
	Status models.RequisitionStatus `json:"status" validate:"required"`
}

// ApprovalDecisionRequest records one stage decision of the approval chain.
type ApprovalDecisionRequest struct {
	Stage    int                     `json:"stage" validate:"required,min=1"`
	Decision models.ApprovalDecision `json:"decision" validate:"required,oneof=APPROVED REJECTED"`
	Note     *string                 `json:"note,omitempty"`
}

// RequisitionService orchestrates the purchase requisition lifecycle.
type RequisitionService struct {
	repo      requisitionRepository
	approvals approvalRepository
	audit     auditLogger
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger

	prSeq uint64
}

// NewRequisitionService creates a new requisition service instance.
func NewRequisitionService(repo requisitionRepository, approvals approvalRepository, audit auditLogger, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *RequisitionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequisitionService{repo: repo, approvals: approvals, audit: audit, cache: cache, validator: validate, logger: logger}
}

// Create persists a new requisition with its line items. The header total is
// the sum of the supplied item totals and the status is forced to DRAFT.
func (s *RequisitionService) Create(ctx context.Context, req CreateRequisitionRequest, actor *models.JWTClaims) (*models.Requisition, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid requisition payload")
	}
	if !req.Urgency.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "urgency must be Low, Medium or High")
	}

	requestedBy := req.RequestedByID
	if requestedBy == 0 && actor != nil {
		requestedBy = actor.UserID
	}
	if requestedBy == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "requester is required")
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	var total float64
	items := make([]models.RequisitionItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = models.RequisitionItem{
			StockCode:   it.StockCode,
			Description: it.Description,
			Quantity:    it.Quantity,
			UOM:         it.UOM,
			UnitPrice:   it.UnitPrice,
			TotalPrice:  it.TotalPrice,
		}
		total += it.TotalPrice
	}

	requisition := &models.Requisition{
		PRNumber:    s.generatePRNumber(),
		Title:       req.Title,
		Status:      models.StatusDraft,
		RequestedBy: requestedBy,
		Department:  req.Department,
		Company:     req.Company,
		Urgency:     req.Urgency,
		TotalAmount: total,
		Currency:    currency,
		Notes:       req.Notes,
	}

	if err := s.repo.Create(ctx, requisition, items); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create requisition")
	}

	s.invalidateCache(ctx)
	s.emitAudit(ctx, actor, models.AuditActionRequisitionCreate, requisition.ID,
		[]byte(fmt.Sprintf(`{"pr_number":%q,"total_amount":%g}`, requisition.PRNumber, requisition.TotalAmount)))

	return requisition, nil
}

// List returns paginated requisitions newest-first with the true total count.
func (s *RequisitionService) List(ctx context.Context, filter models.RequisitionFilter) ([]models.Requisition, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown status filter")
	}
	if filter.Urgency != "" && !filter.Urgency.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown urgency filter")
	}
	if filter.Limit <= 0 {
		filter.Limit = 10
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	type cachedList struct {
		Requisitions []models.Requisition `json:"requisitions"`
		Total        int                  `json:"total"`
	}

	cacheKey := fmt.Sprintf("requisitions:list:%s:%s:%s:%d:%d", filter.Status, filter.Department, filter.Urgency, filter.Limit, filter.Offset)
	var cached cachedList
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return cached.Requisitions, &models.Pagination{Limit: filter.Limit, Offset: filter.Offset, TotalCount: cached.Total}, nil
	}

	requisitions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requisitions")
	}

	_ = s.cache.Set(ctx, cacheKey, cachedList{Requisitions: requisitions, Total: total}, 0)

	return requisitions, &models.Pagination{Limit: filter.Limit, Offset: filter.Offset, TotalCount: total}, nil
}

// Get returns a requisition header merged with its full item list.
func (s *RequisitionService) Get(ctx context.Context, id int64) (*models.Requisition, error) {
	cacheKey := fmt.Sprintf("requisitions:get:%d", id)
	var cached models.Requisition
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	requisition, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "purchase requisition not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requisition")
	}

	items, err := s.repo.ListItems(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requisition items")
	}
	requisition.Items = items

	_ = s.cache.Set(ctx, cacheKey, requisition, 0)

	return requisition, nil
}

// UpdateStatus moves a requisition to a new status, enforcing the transition
// table. Illegal transitions are rejected, never silently accepted.
func (s *RequisitionService) UpdateStatus(ctx context.Context, id int64, req UpdateStatusRequest, actor *models.JWTClaims) (*models.Requisition, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", req.Status))
	}

	requisition, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "purchase requisition not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requisition")
	}

	if !requisition.Status.CanTransitionTo(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot move requisition from %s to %s", requisition.Status, req.Status))
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, req.Status, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "purchase requisition not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update requisition status")
	}

	s.invalidateCache(ctx)
	s.emitAudit(ctx, actor, models.AuditActionRequisitionStatus, id,
		[]byte(fmt.Sprintf(`{"from":%q,"to":%q}`, requisition.Status, req.Status)))

	requisition.Status = req.Status
	requisition.UpdatedAt = now
	return requisition, nil
}

// DecideApproval records one stage decision of the approval chain. Stages are
// decided in order; the final approval flips the header to APPROVED and any
// rejection flips it to REJECTED.
func (s *RequisitionService) DecideApproval(ctx context.Context, id int64, req ApprovalDecisionRequest, actor *models.JWTClaims) (*models.RequisitionApproval, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleManager && actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only managers may decide approvals")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid approval payload")
	}
	if req.Stage > models.ApprovalChainStages {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("stage must be between 1 and %d", models.ApprovalChainStages))
	}

	requisition, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "purchase requisition not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requisition")
	}
	if requisition.Status != models.StatusPendingApproval {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "requisition is not pending approval")
	}

	recorded, err := s.approvals.ListByRequisition(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approvals")
	}
	expectedStage := len(recorded) + 1
	if req.Stage != expectedStage {
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("expected decision for stage %d, got stage %d", expectedStage, req.Stage))
	}

	approval := &models.RequisitionApproval{
		RequisitionID: id,
		Stage:         req.Stage,
		Decision:      req.Decision,
		DecidedBy:     actor.UserID,
		Note:          req.Note,
	}
	if err := s.approvals.Create(ctx, approval); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record approval")
	}

	var next models.RequisitionStatus
	switch {
	case req.Decision == models.DecisionRejected:
		next = models.StatusRejected
	case req.Stage == models.ApprovalChainStages:
		next = models.StatusApproved
	}
	if next != "" {
		if err := s.repo.UpdateStatus(ctx, id, next, time.Now().UTC()); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize requisition status")
		}
	}

	s.invalidateCache(ctx)
	s.emitAudit(ctx, actor, models.AuditActionApprovalDecision, id,
		[]byte(fmt.Sprintf(`{"stage":%d,"decision":%q}`, req.Stage, req.Decision)))

	return approval, nil
}

// ListApprovals returns the recorded stage decisions for a requisition.
func (s *RequisitionService) ListApprovals(ctx context.Context, id int64) ([]models.RequisitionApproval, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "purchase requisition not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requisition")
	}
	approvals, err := s.approvals.ListByRequisition(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approvals")
	}
	return approvals, nil
}

// generatePRNumber builds a display number unique across concurrent creates
// within the same millisecond.
func (s *RequisitionService) generatePRNumber() string {
	seq := atomic.AddUint64(&s.prSeq, 1) % 1000
	return fmt.Sprintf("PR%d%03d", time.Now().UnixMilli(), seq)
}

func (s *RequisitionService) invalidateCache(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, "requisitions:*"); err != nil {
		s.logger.Warn("failed to invalidate requisition cache", zap.Error(err))
	}
}

func (s *RequisitionService) emitAudit(ctx context.Context, actor *models.JWTClaims, action string, requisitionID int64, payload []byte) {
	if s.audit == nil {
		return
	}
	var userID *int64
	if actor != nil {
		userID = &actor.UserID
	}
	resourceID := fmt.Sprintf("%d", requisitionID)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   "requisition",
		ResourceID: &resourceID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
