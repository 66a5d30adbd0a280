package models_test

import (
	"testing"

	"github.com/mmdatafocus/payroll_bridge/matching"
	"github.com/mmdatafocus/payroll_bridge/models"
	"github.com/mmdatafocus/payroll_bridge/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconciliationDashboardSummarizesRuns(t *testing.T) {
	ctx, _ := setupDB(t)

	// day one: 1 of 4 matched
	seedMixedLedgers(t, ctx, reconDate())
	_, err := models.RunReconciliation(ctx, reconInput(reconDate()))
	require.NoError(t, err)

	// day two: 2 of 2 matched
	older := reconDate().AddDate(0, 0, -5)
	createLedgerEntry(t, ctx, "payroll", older, "E1", 100)
	createLedgerEntry(t, ctx, "recordkeeper", older, "E1", 100)
	createLedgerEntry(t, ctx, "payroll", older, "E2", 200)
	createLedgerEntry(t, ctx, "recordkeeper", older, "E2", 200)
	_, err = models.RunReconciliation(ctx, reconInput(older))
	require.NoError(t, err)

	// outside a 7 day window but still in the all-time counts
	ancient := reconDate().AddDate(0, 0, -40)
	_, err = models.RunReconciliation(ctx, reconInput(ancient))
	require.NoError(t, err)

	seedDuplicateContributions(t, ctx)
	_, err = models.ScanDuplicates(ctx, models.ScanOptions{RecordType: matching.RecordTypeContribution})
	require.NoError(t, err)

	dashboard, err := models.GetReconciliationDashboard(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, testTenant, dashboard.TenantId)
	assert.Equal(t, 7, dashboard.WindowDays)
	assert.EqualValues(t, 3, dashboard.TotalReports)

	counts := map[string]models.StatusCount{}
	for _, c := range dashboard.ReportStatusCounts {
		counts[c.Status] = c
	}
	assert.EqualValues(t, 1, counts[string(models.ReportStatusDiscrepanciesFound)].Count)
	assert.EqualValues(t, 2, counts[string(models.ReportStatusReconciled)].Count)
	assert.Equal(t, "33.33", counts[string(models.ReportStatusDiscrepanciesFound)].Percentage.StringFixed(2))
	assert.Equal(t, "66.67", counts[string(models.ReportStatusReconciled)].Percentage.StringFixed(2))

	assert.EqualValues(t, 1, dashboard.TotalFindings)
	require.Len(t, dashboard.FindingStatusCounts, 1)
	assert.Equal(t, string(models.FindingStatusPotentialDuplicate), dashboard.FindingStatusCounts[0].Status)

	require.Len(t, dashboard.DailyTrend, 2)
	assert.Equal(t, older.Format("2006-01-02"), dashboard.DailyTrend[0].Date)
	assert.Equal(t, 2, dashboard.DailyTrend[0].MatchedRecords)
	assert.Equal(t, 0, dashboard.DailyTrend[0].DiscrepancyRecords)
	assert.Equal(t, 4, dashboard.DailyTrend[1].TotalRecords)
	assert.Equal(t, 3, dashboard.DailyTrend[1].DiscrepancyRecords)
	assert.EqualValues(t, -10250, dashboard.DailyTrend[1].VarianceAmount)

	// the empty ancient run has no rate and does not drag the average down
	require.Len(t, dashboard.SystemPairs, 1)
	pair := dashboard.SystemPairs[0]
	assert.Equal(t, "payroll", pair.SourceSystem)
	assert.Equal(t, "recordkeeper", pair.DestinationSystem)
	assert.Equal(t, 3, pair.Reports)
	assert.Equal(t, "62.50", pair.AverageMatchRate.StringFixed(2))
}

func TestReconciliationDashboardWindowBounds(t *testing.T) {
	ctx, _ := setupDB(t)

	dashboard, err := models.GetReconciliationDashboard(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultDashboardDays, dashboard.WindowDays)
	assert.Empty(t, dashboard.DailyTrend)
	assert.Empty(t, dashboard.SystemPairs)
	assert.EqualValues(t, 0, dashboard.TotalReports)

	_, err = models.GetReconciliationDashboard(ctx, models.MaxDashboardDays+1)
	assert.ErrorIs(t, err, utils.ErrValidation)
	_, err = models.GetReconciliationDashboard(ctx, -1)
	assert.ErrorIs(t, err, utils.ErrValidation)
}
