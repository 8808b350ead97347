package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/procuradev/procura-api/internal/models"
)

type auditRecorderStub struct {
	logs []*models.AuditLog
}

func (s *auditRecorderStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func newAuditTestRouter(recorder *auditRecorderStub, status int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/stock-items",
		func(c *gin.Context) {
			c.Set(ContextUserKey, &models.JWTClaims{UserID: 7, Role: models.RoleAdmin})
		},
		Audit(recorder, models.AuditActionStockCreate, "stock_item"),
		func(c *gin.Context) { c.Status(status) })
	return r
}

func TestAuditRecordsSuccessfulRequest(t *testing.T) {
	recorder := &auditRecorderStub{}
	r := newAuditTestRouter(recorder, http.StatusCreated)

	req := httptest.NewRequest(http.MethodPost, "/stock-items", nil)
	req.Header.Set("User-Agent", "procura-test/1.0")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Len(t, recorder.logs, 1)
	entry := recorder.logs[0]
	require.Equal(t, models.AuditActionStockCreate, entry.Action)
	require.Equal(t, "stock_item", entry.Resource)
	require.NotNil(t, entry.UserID)
	require.Equal(t, int64(7), *entry.UserID)
	require.Equal(t, "procura-test/1.0", entry.UserAgent)
	require.Contains(t, string(entry.NewValues), `"/stock-items"`)
}

func TestAuditSkipsFailedRequest(t *testing.T) {
	recorder := &auditRecorderStub{}
	r := newAuditTestRouter(recorder, http.StatusBadRequest)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/stock-items", nil))

	require.Empty(t, recorder.logs)
}
