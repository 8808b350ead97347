package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/procuradev/procura-api/internal/middleware"
	"github.com/procuradev/procura-api/internal/models"
	"github.com/procuradev/procura-api/internal/service"
	appErrors "github.com/procuradev/procura-api/pkg/errors"
)

type requisitionServiceMock struct {
	createResp   *models.Requisition
	createErr    error
	listResp     []models.Requisition
	listPage     *models.Pagination
	getResp      *models.Requisition
	getErr       error
	updateResp   *models.Requisition
	updateErr    error
	approvalResp *models.RequisitionApproval
	approvalErr  error
	approvals    []models.RequisitionApproval
}

func (m *requisitionServiceMock) Create(ctx context.Context, req service.CreateRequisitionRequest, actor *models.JWTClaims) (*models.Requisition, error) {
	return m.createResp, m.createErr
}

func (m *requisitionServiceMock) List(ctx context.Context, filter models.RequisitionFilter) ([]models.Requisition, *models.Pagination, error) {
	return m.listResp, m.listPage, nil
}

func (m *requisitionServiceMock) Get(ctx context.Context, id int64) (*models.Requisition, error) {
	return m.getResp, m.getErr
}

func (m *requisitionServiceMock) UpdateStatus(ctx context.Context, id int64, req service.UpdateStatusRequest, actor *models.JWTClaims) (*models.Requisition, error) {
	return m.updateResp, m.updateErr
}

func (m *requisitionServiceMock) DecideApproval(ctx context.Context, id int64, req service.ApprovalDecisionRequest, actor *models.JWTClaims) (*models.RequisitionApproval, error) {
	return m.approvalResp, m.approvalErr
}

func (m *requisitionServiceMock) ListApprovals(ctx context.Context, id int64) ([]models.RequisitionApproval, error) {
	return m.approvals, nil
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func actorContext(c *gin.Context) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: 3, Role: models.RoleUser})
}

func TestRequisitionHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &requisitionServiceMock{
		createResp: &models.Requisition{ID: 1, PRNumber: "PR1", Status: models.StatusDraft},
	}
	h := NewRequisitionHandler(mockSvc)

	payload, _ := json.Marshal(service.CreateRequisitionRequest{
		Title:      "Office restock",
		Department: "Operations",
		Company:    "Acme Corp",
		Urgency:    models.UrgencyLow,
		Items:      []service.CreateRequisitionItemRequest{{StockCode: "S1", Description: "d", Quantity: 1, UOM: "pcs"}},
	})
	c, w := newGinContext(http.MethodPost, "/requisitions", payload)
	actorContext(c)

	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestRequisitionHandlerCreateBadJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewRequisitionHandler(&requisitionServiceMock{})

	c, w := newGinContext(http.MethodPost, "/requisitions", []byte("{not json"))
	actorContext(c)

	h.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequisitionHandlerGetInvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewRequisitionHandler(&requisitionServiceMock{})

	c, w := newGinContext(http.MethodGet, "/requisitions/abc", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}

	h.Get(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequisitionHandlerUpdateStatusConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &requisitionServiceMock{
		updateErr: appErrors.Clone(appErrors.ErrInvalidTransition, "cannot move requisition from APPROVED to DRAFT"),
	}
	h := NewRequisitionHandler(mockSvc)

	payload, _ := json.Marshal(service.UpdateStatusRequest{Status: models.StatusDraft})
	c, w := newGinContext(http.MethodPatch, "/requisitions/1/status", payload)
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	actorContext(c)

	h.UpdateStatus(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestRequisitionHandlerListReturnsPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &requisitionServiceMock{
		listResp: []models.Requisition{{ID: 1, PRNumber: "PR1"}},
		listPage: &models.Pagination{Limit: 10, Offset: 0, TotalCount: 1},
	}
	h := NewRequisitionHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/requisitions?status=draft", nil)

	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Pagination *models.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Pagination)
	require.Equal(t, 1, envelope.Pagination.TotalCount)
}

func TestRequisitionHandlerDecideApproval(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &requisitionServiceMock{
		approvalResp: &models.RequisitionApproval{ID: 1, RequisitionID: 1, Stage: 1, Decision: models.DecisionApproved},
	}
	h := NewRequisitionHandler(mockSvc)

	payload, _ := json.Marshal(service.ApprovalDecisionRequest{Stage: 1, Decision: models.DecisionApproved})
	c, w := newGinContext(http.MethodPost, "/requisitions/1/approvals", payload)
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: 7, Role: models.RoleManager})

	h.DecideApproval(c)
	require.Equal(t, http.StatusCreated, w.Code)
}
