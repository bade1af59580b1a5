package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netwatch-io/console-api/internal/dto"
	"github.com/netwatch-io/console-api/internal/middleware"
	"github.com/netwatch-io/console-api/internal/models"
	appErrors "github.com/netwatch-io/console-api/pkg/errors"
)

type auditLogServiceMock struct {
	createResp    *models.AuditLog
	createErr     error
	lockErr       error
	reportEntries []models.HistoryEntry
	reportErr     error
	lastFilter    models.HistoryFilter
	lastItemReq   dto.UpdateItemLogRequest
	itemErr       error
	createCalled  bool
	reportCalled  bool
}

func (m *auditLogServiceMock) CreateInstance(ctx context.Context, userID string) (*models.AuditLog, error) {
	m.createCalled = true
	return m.createResp, m.createErr
}

func (m *auditLogServiceMock) GetActiveInstance(ctx context.Context, userID string) (*models.AuditLog, error) {
	return m.createResp, m.createErr
}

func (m *auditLogServiceMock) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.AuditLog, error) {
	return m.createResp, m.createErr
}

func (m *auditLogServiceMock) UpdateDescription(ctx context.Context, id, userID string, req dto.UpdateLogDescriptionRequest) error {
	return nil
}

func (m *auditLogServiceMock) UpdateGroupDescription(ctx context.Context, groupLogID, userID string, req dto.UpdateGroupLogRequest) error {
	return nil
}

func (m *auditLogServiceMock) UpdateItemChecked(ctx context.Context, itemLogID, userID string, req dto.UpdateItemLogRequest) error {
	m.lastItemReq = req
	return m.itemErr
}

func (m *auditLogServiceMock) Lock(ctx context.Context, id, userID string) error {
	return m.lockErr
}

func (m *auditLogServiceMock) Delete(ctx context.Context, id string, claims *models.JWTClaims) error {
	return nil
}

func (m *auditLogServiceMock) GetUserHistory(ctx context.Context, userID string, page int) ([]models.HistoryEntry, *models.Pagination, error) {
	return nil, nil, nil
}

func (m *auditLogServiceMock) GetAllHistory(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, *models.Pagination, error) {
	m.reportCalled = true
	m.lastFilter = filter
	return m.reportEntries, &models.Pagination{Page: filter.Page}, m.reportErr
}

func testContext(t *testing.T, method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(method, target, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestAuditLogHandlerCreate(t *testing.T) {
	mockSvc := &auditLogServiceMock{createResp: &models.AuditLog{ID: "log-1", UserID: "user-1"}}
	handler := NewAuditLogHandler(mockSvc)

	c, w := testContext(t, http.MethodPost, "/audit-logs", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleUser})

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, mockSvc.createCalled)
}

func TestAuditLogHandlerCreateRequiresClaims(t *testing.T) {
	mockSvc := &auditLogServiceMock{}
	handler := NewAuditLogHandler(mockSvc)

	c, w := testContext(t, http.MethodPost, "/audit-logs", nil)

	handler.Create(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, mockSvc.createCalled)
}

func TestAuditLogHandlerCreateDuplicate(t *testing.T) {
	mockSvc := &auditLogServiceMock{createErr: appErrors.ErrPreconditionFailed}
	handler := NewAuditLogHandler(mockSvc)

	c, w := testContext(t, http.MethodPost, "/audit-logs", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleUser})

	handler.Create(c)
	require.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestAuditLogHandlerUpdateItemInvalidBody(t *testing.T) {
	handler := NewAuditLogHandler(&auditLogServiceMock{})

	c, w := testContext(t, http.MethodPut, "/audit-logs/items/item-1", []byte(`{"is_checked":`))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleUser})

	handler.UpdateItem(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuditLogHandlerLockConflict(t *testing.T) {
	mockSvc := &auditLogServiceMock{lockErr: appErrors.Clone(appErrors.ErrConflict, "audit log already locked")}
	handler := NewAuditLogHandler(mockSvc)

	c, w := testContext(t, http.MethodPost, "/audit-logs/log-1/lock", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleUser})

	handler.Lock(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestAuditLogHandlerReportFilterParsing(t *testing.T) {
	mockSvc := &auditLogServiceMock{}
	handler := NewAuditLogHandler(mockSvc)

	c, w := testContext(t, http.MethodGet, "/reports/audit-logs?account=analyst&role=USER&is_locked=true&modified_from=2026-08-01T00:00:00Z&page=2", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Report(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, mockSvc.reportCalled)
	assert.Equal(t, "analyst", mockSvc.lastFilter.Account)
	require.NotNil(t, mockSvc.lastFilter.Role)
	assert.Equal(t, models.RoleUser, *mockSvc.lastFilter.Role)
	require.NotNil(t, mockSvc.lastFilter.IsLocked)
	assert.True(t, *mockSvc.lastFilter.IsLocked)
	require.NotNil(t, mockSvc.lastFilter.ModifiedFrom)
	assert.Equal(t, 2, mockSvc.lastFilter.Page)
}

func TestAuditLogHandlerReportRejectsBadTime(t *testing.T) {
	mockSvc := &auditLogServiceMock{}
	handler := NewAuditLogHandler(mockSvc)

	c, w := testContext(t, http.MethodGet, "/reports/audit-logs?created_from=yesterday", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Report(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, mockSvc.reportCalled)
}
