package models_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/mmdatafocus/payroll_bridge/models"
	"github.com/mmdatafocus/payroll_bridge/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testTenant = "tenant-a"

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.RunEvent
}

func (n *recordingNotifier) Notify(ctx context.Context, event models.RunEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) Events() []models.RunEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.RunEvent(nil), n.events...)
}

// setupDB installs a private in-memory SQLite database with the full schema and returns a
// context acting for testTenant.
func setupDB(t *testing.T) (context.Context, *recordingNotifier) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), config.GormConfig())
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	config.InstallPlugins(conn)
	require.NoError(t, conn.AutoMigrate(models.AllModels()...))

	prev := config.GetDB()
	config.SetDB(conn)
	notifier := &recordingNotifier{}
	restore := models.UseCollaborators(models.Collaborators{Notifier: notifier})
	t.Cleanup(func() {
		restore()
		config.SetDB(prev)
		_ = sqlDB.Close()
	})

	ctx := utils.SetSystemActor(context.Background(), testTenant)
	ctx = utils.SetUsernameInContext(ctx, "reviewer@test.local")
	return ctx, notifier
}

func mustCreate(t *testing.T, ctx context.Context, value interface{}) {
	t.Helper()
	require.NoError(t, config.GetDB().WithContext(ctx).Create(value).Error)
}

func createEmployee(t *testing.T, ctx context.Context, e models.Employee) *models.Employee {
	t.Helper()
	if e.TenantId == "" {
		e.TenantId = testTenant
	}
	mustCreate(t, ctx, &e)
	return &e
}

func createContribution(t *testing.T, ctx context.Context, c models.Contribution) *models.Contribution {
	t.Helper()
	if c.TenantId == "" {
		c.TenantId = testTenant
	}
	mustCreate(t, ctx, &c)
	return &c
}

func createLedgerEntry(t *testing.T, ctx context.Context, system string, date time.Time, key string, amount int64) {
	t.Helper()
	mustCreate(t, ctx, &models.SystemLedgerEntry{
		TenantId:         testTenant,
		SystemName:       system,
		Category:         "contribution",
		EntryDate:        date,
		MatchingKey:      key,
		Amount:           amount,
		ExternalRecordId: system + ":" + key,
		Payload:          fmt.Sprintf(`{"plan_id":"401k","key":%q}`, key),
	})
}

func countRows(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, config.GetDB().Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func payrollDate() time.Time {
	return time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
}

func contextWithoutTenant() context.Context {
	return utils.SetUsernameInContext(context.Background(), "anonymous")
}

func mustUpdateEmployee(t *testing.T, ctx context.Context, id int, updates map[string]interface{}) {
	t.Helper()
	require.NoError(t, config.GetDB().WithContext(ctx).Model(&models.Employee{}).Where("id = ?", id).Updates(updates).Error)
}
