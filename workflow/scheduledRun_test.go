package workflow_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/mmdatafocus/payroll_bridge/models"
	"github.com/mmdatafocus/payroll_bridge/utils"
	"github.com/mmdatafocus/payroll_bridge/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const tenant = "tenant-a"

func setupDB(t *testing.T) {
	t.Helper()
	t.Setenv("NOTIFICATIONS_ENABLED", "false")
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
}

func reconciliationMessage(date time.Time) workflow.ScheduledRunMessage {
	return workflow.ScheduledRunMessage{
		TenantId:      tenant,
		RunType:       models.RunTypeReconciliation,
		CorrelationId: "corr-1",
		Reconciliation: &workflow.ReconciliationRequest{
			ReconciliationDate: date.Format("2006-01-02"),
			SourceSystem:       "payroll",
			DestinationSystem:  "recordkeeper",
			ReconciliationType: "contribution",
		},
	}
}

func idempotencyStatus(t *testing.T, messageId string) models.IdempotencyStatus {
	t.Helper()
	var key models.IdempotencyKey
	require.NoError(t, config.GetDB().Where("message_id = ?", messageId).First(&key).Error)
	return key.Status
}

func TestProcessScheduledRunRunsOncePerMessage(t *testing.T) {
	setupDB(t)
	date := utils.DateOnly(time.Now()).AddDate(0, 0, -1)
	ctx := context.Background()

	require.NoError(t, workflow.ProcessScheduledRun(ctx, "msg-1", reconciliationMessage(date)))
	assert.Equal(t, models.IdempotencyStatusSucceeded, idempotencyStatus(t, "msg-1"))

	var report models.ReconciliationReport
	require.NoError(t, config.GetDB().First(&report).Error)
	assert.Equal(t, tenant, report.TenantId)
	assert.Equal(t, "System", report.CreatedBy)
	assert.Equal(t, "corr-1", report.CorrelationId)
	assert.Equal(t, models.ReportStatusReconciled, report.Status)

	// redelivery is skipped
	require.NoError(t, workflow.ProcessScheduledRun(ctx, "msg-1", reconciliationMessage(date)))

	// a second message for the same report key finds it done
	require.NoError(t, workflow.ProcessScheduledRun(ctx, "msg-2", reconciliationMessage(date)))
	assert.Equal(t, models.IdempotencyStatusSucceeded, idempotencyStatus(t, "msg-2"))

	var reports int64
	require.NoError(t, config.GetDB().Model(&models.ReconciliationReport{}).Count(&reports).Error)
	assert.EqualValues(t, 1, reports)
}

func TestProcessScheduledRunRejectsPoisonMessages(t *testing.T) {
	setupDB(t)
	ctx := context.Background()

	err := workflow.ProcessScheduledRun(ctx, "msg-1", workflow.ScheduledRunMessage{TenantId: tenant, RunType: "defragment"})
	assert.ErrorIs(t, err, workflow.ErrPoisonMessage)

	bad := reconciliationMessage(time.Now())
	bad.Reconciliation.ReconciliationDate = "30/09/2026"
	err = workflow.ProcessScheduledRun(ctx, "msg-2", bad)
	assert.ErrorIs(t, err, workflow.ErrPoisonMessage)
	assert.Equal(t, models.IdempotencyStatusFailed, idempotencyStatus(t, "msg-2"))

	err = workflow.ProcessScheduledRun(ctx, "", reconciliationMessage(time.Now()))
	assert.ErrorIs(t, err, workflow.ErrPoisonMessage)
}

func TestProcessScheduledRunRetriesWhileReportInProgress(t *testing.T) {
	setupDB(t)
	date := utils.DateOnly(time.Now()).AddDate(0, 0, -1)
	ctx := context.Background()

	started := time.Now().UTC()
	report := &models.ReconciliationReport{
		TenantId:           tenant,
		ReconciliationDate: date,
		SourceSystem:       "payroll",
		DestinationSystem:  "recordkeeper",
		ReconciliationType: "contribution",
		Status:             models.ReportStatusInProgress,
		StartedAt:          &started,
	}
	db := config.GetDB().WithContext(utils.SetSystemActor(ctx, tenant))
	require.NoError(t, db.Create(report).Error)

	err := workflow.ProcessScheduledRun(ctx, "msg-1", reconciliationMessage(date))
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrConflict)
	assert.NotErrorIs(t, err, workflow.ErrPoisonMessage)
	assert.Equal(t, models.IdempotencyStatusFailed, idempotencyStatus(t, "msg-1"))

	// once the other run completes the redelivery settles
	require.NoError(t, db.Model(report).Update("status", models.ReportStatusReconciled).Error)
	require.NoError(t, workflow.ProcessScheduledRun(ctx, "msg-1", reconciliationMessage(date)))
	assert.Equal(t, models.IdempotencyStatusSucceeded, idempotencyStatus(t, "msg-1"))
}

func TestClaimRunStates(t *testing.T) {
	setupDB(t)
	db := config.GetDB()

	claim, done, err := workflow.ClaimRun(db, tenant, "h", "m")
	require.NoError(t, err)
	assert.False(t, done)

	_, _, err = workflow.ClaimRun(db, tenant, "h", "m")
	assert.ErrorIs(t, err, workflow.ErrRunInProgress)

	require.NoError(t, claim.Fail(assert.AnError))
	claim, done, err = workflow.ClaimRun(db, tenant, "h", "m")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, claim.Succeed())
	claim, done, err = workflow.ClaimRun(db, tenant, "h", "m")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Nil(t, claim)

	// the same message id is independent per tenant
	_, done, err = workflow.ClaimRun(db, "tenant-b", "h", "m")
	require.NoError(t, err)
	assert.False(t, done)
}
