package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/mmdatafocus/payroll_bridge/models"
	"github.com/mmdatafocus/payroll_bridge/models/reports"
	"github.com/mmdatafocus/payroll_bridge/utils"
	"github.com/mmdatafocus/payroll_bridge/workflow"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const tenant = "tenant-a"

type apiClient struct {
	t      *testing.T
	router *gin.Engine
	token  string
}

func setupServer(t *testing.T) *apiClient {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("NOTIFICATIONS_ENABLED", "false")
	t.Setenv("API_SECRET", "handler-test-secret")
	t.Setenv("RECONCILIATION_EXPORT_BUCKET", "")

	name := strings.ReplaceAll(t.Name(), "/", "_")
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), config.GormConfig())
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	config.InstallPlugins(conn)
	require.NoError(t, conn.AutoMigrate(models.AllModels()...))
	prev := config.GetDB()
	config.SetDB(conn)
	t.Cleanup(func() {
		config.SetDB(prev)
		_ = sqlDB.Close()
	})

	token, err := utils.JwtGenerate(11, "analyst@tenant-a", tenant, "U")
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetOutput(bytes.NewBuffer(nil))
	return &apiClient{t: t, router: newRouter(logger), token: token}
}

func (a *apiClient) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func seedLedger(t *testing.T, date time.Time) {
	t.Helper()
	ctx := utils.SetSystemActor(context.Background(), tenant)
	entries := []models.SystemLedgerEntry{
		{SystemName: "payroll", MatchingKey: "E1", Amount: 10000},
		{SystemName: "recordkeeper", MatchingKey: "E1", Amount: 10000},
		{SystemName: "payroll", MatchingKey: "E2", Amount: 5000},
		{SystemName: "recordkeeper", MatchingKey: "E3", Amount: 700},
	}
	for _, e := range entries {
		e.TenantId = tenant
		e.Category = "contribution"
		e.EntryDate = date
		e.ExternalRecordId = e.SystemName + ":" + e.MatchingKey
		e.Payload = `{"plan_id":"401k"}`
		require.NoError(t, config.GetDB().WithContext(ctx).Create(&e).Error)
	}
}

func runBody(date time.Time) gin.H {
	return gin.H{
		"reconciliation_date": date.Format("2006-01-02"),
		"source_system":       "payroll",
		"destination_system":  "recordkeeper",
		"reconciliation_type": "contribution",
	}
}

func TestHealthzIsAlwaysOpen(t *testing.T) {
	api := setupServer(t)
	api.token = ""
	w := api.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestApiRequiresTenant(t *testing.T) {
	api := setupServer(t)
	api.token = ""
	w := api.do(http.MethodGet, "/api/v1/reconciliations", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	api := setupServer(t)
	w := api.do(http.MethodGet, "/api/v2/nothing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReconciliationLifecycleOverHttp(t *testing.T) {
	api := setupServer(t)
	date := utils.DateOnly(time.Now()).AddDate(0, 0, -1)
	seedLedger(t, date)

	w := api.do(http.MethodPost, "/api/v1/reconciliations", runBody(date))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	report := decode[models.ReconciliationReport](t, w)
	assert.Equal(t, models.ReportStatusDiscrepanciesFound, report.Status)
	assert.Equal(t, 3, report.TotalRecords)
	assert.Equal(t, 1, report.MatchedRecords)

	w = api.do(http.MethodPost, "/api/v1/reconciliations", runBody(date))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(utils.CodeConflict), decode[map[string]any](t, w)["code"])

	w = api.do(http.MethodGet, "/api/v1/reconciliations?status=DISCREPANCIES_FOUND", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[models.Connection[models.ReconciliationReport]](t, w).Edges, 1)

	w = api.do(http.MethodGet, fmt.Sprintf("/api/v1/reconciliations/%d", report.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"match_rate"`)

	w = api.do(http.MethodGet, fmt.Sprintf("/api/v1/reconciliations/%d/items?only_open=true", report.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	open := decode[models.Connection[models.ReconciliationItem]](t, w)
	require.Len(t, open.Edges, 2)

	for _, edge := range open.Edges {
		w = api.do(http.MethodPost, fmt.Sprintf("/api/v1/reconciliation-items/%d/resolve", edge.Node.ID),
			gin.H{"action": models.ResolutionActionAdjusted, "notes": "fixed in recordkeeper"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	w = api.do(http.MethodGet, fmt.Sprintf("/api/v1/reconciliations/%d", report.ID), nil)
	assert.Contains(t, w.Body.String(), string(models.ReportStatusReconciled))

	w = api.do(http.MethodGet, fmt.Sprintf("/api/v1/reconciliations/%d/export", report.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, reports.XlsxMimeType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "reconciliation_")
	assert.NotZero(t, w.Body.Len())

	w = api.do(http.MethodGet, "/api/v1/reconciliation-dashboard?days=7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	dashboard := decode[models.ReconciliationDashboard](t, w)
	assert.EqualValues(t, 1, dashboard.TotalReports)
}

func TestReconciliationRejectsBadInput(t *testing.T) {
	api := setupServer(t)

	body := runBody(time.Now())
	body["reconciliation_date"] = "30/09/2026"
	w := api.do(http.MethodPost, "/api/v1/reconciliations", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body = runBody(time.Now())
	body["destination_system"] = "payroll"
	w = api.do(http.MethodPost, "/api/v1/reconciliations", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodGet, "/api/v1/reconciliations/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodGet, "/api/v1/reconciliations/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(http.MethodGet, "/api/v1/reconciliation-dashboard?days=365", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDuplicateEndpoints(t *testing.T) {
	api := setupServer(t)
	ctx := utils.SetSystemActor(context.Background(), tenant)
	emp := models.Employee{TenantId: tenant, FullName: "Jane Doe", Ssn: "123-45-6789"}
	require.NoError(t, config.GetDB().WithContext(ctx).Create(&emp).Error)
	payday := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		c := models.Contribution{TenantId: tenant, EmployeeId: emp.ID, PayrollDate: payday, PreTaxAmount: 50000, EmployerMatchAmount: 2500}
		require.NoError(t, config.GetDB().WithContext(ctx).Create(&c).Error)
	}

	w := api.do(http.MethodPost, "/api/v1/duplicates/scan", gin.H{"record_type": "contribution", "dry_run": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[models.ScanResult](t, w).DryRun)

	w = api.do(http.MethodPost, "/api/v1/duplicates/scan", gin.H{"record_type": "contribution"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.do(http.MethodGet, "/api/v1/duplicates?status=POTENTIAL_DUPLICATE", nil)
	require.Equal(t, http.StatusOK, w.Code)
	findings := decode[models.Connection[models.DuplicateFinding]](t, w)
	require.Len(t, findings.Edges, 1)
	finding := findings.Edges[0].Node

	w = api.do(http.MethodPost, fmt.Sprintf("/api/v1/duplicates/%d/resolve", finding.ID), gin.H{"status": "MERGED"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodPost, fmt.Sprintf("/api/v1/duplicates/%d/resolve", finding.ID), gin.H{"status": "NOT_DUPLICATE"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.do(http.MethodGet, fmt.Sprintf("/api/v1/duplicates/%d", finding.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.FindingStatusNotDuplicate, decode[models.DuplicateFinding](t, w).Status)

	w = api.do(http.MethodPost, "/api/v1/duplicates/merge",
		gin.H{"finding_id": finding.ID, "keep_record_id": finding.OriginalRecordId, "merge_record_id": finding.DuplicateRecordId})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, decode[models.MergeResult](t, w).Success)

	w = api.do(http.MethodGet, "/api/v1/duplicates?min_score=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func pushMessage(t *testing.T, router *gin.Engine, id string, payload any) int {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	var envelope pushEnvelope
	envelope.Message.ID = id
	envelope.Message.Data = data
	raw, err := json.Marshal(envelope)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/pubsub/scheduled-runs", bytes.NewReader(raw))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code
}

func TestScheduledRunPush(t *testing.T) {
	api := setupServer(t)
	date := utils.DateOnly(time.Now()).AddDate(0, 0, -1)
	seedLedger(t, date)
	msg := workflow.ScheduledRunMessage{
		TenantId: tenant,
		RunType:  models.RunTypeReconciliation,
		Reconciliation: &workflow.ReconciliationRequest{
			ReconciliationDate: date.Format("2006-01-02"),
			SourceSystem:       "payroll",
			DestinationSystem:  "recordkeeper",
			ReconciliationType: "contribution",
		},
	}

	assert.Equal(t, http.StatusNoContent, pushMessage(t, api.router, "push-1", msg))
	assert.Equal(t, http.StatusNoContent, pushMessage(t, api.router, "push-1", msg))

	var runs int64
	require.NoError(t, config.GetDB().Model(&models.ReconciliationReport{}).Where("tenant_id = ?", tenant).Count(&runs).Error)
	assert.EqualValues(t, 1, runs)

	// a run type the scheduler does not know is acked, never retried
	assert.Equal(t, http.StatusNoContent, pushMessage(t, api.router, "push-2", gin.H{"tenant_id": tenant, "run_type": "payroll_sync"}))

	req := httptest.NewRequest(http.MethodPost, "/pubsub/scheduled-runs", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDecodeScheduledRunFallsBackToMessageId(t *testing.T) {
	data, err := json.Marshal(gin.H{"tenant_id": tenant, "run_type": models.RunTypeDuplicateScan})
	require.NoError(t, err)
	body, err := json.Marshal(gin.H{"message": gin.H{"id": "m-7", "data": data}, "subscription": "s"})
	require.NoError(t, err)

	id, m, err := decodeScheduledRun(body)
	require.NoError(t, err)
	assert.Equal(t, "m-7", id)
	assert.Equal(t, "m-7", m.CorrelationId)
	assert.Equal(t, tenant, m.TenantId)

	_, _, err = decodeScheduledRun([]byte(`{"message":{"id":"m-8","data":"bm90IGpzb24="}}`))
	assert.Error(t, err)
}
