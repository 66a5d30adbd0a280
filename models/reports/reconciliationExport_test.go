package reports

import (
	"bytes"
	"testing"
	"time"

	"github.com/mmdatafocus/payroll_bridge/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestRenderReconciliationWorkbook(t *testing.T) {
	notes := "rerun after API outage"
	report := &models.ReconciliationReport{
		ID:                  7,
		TenantId:            "tenant-a",
		ReconciliationDate:  time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC),
		SourceSystem:        "payroll",
		DestinationSystem:   "recordkeeper",
		ReconciliationType:  "contribution",
		TotalRecords:        2,
		MatchedRecords:      1,
		AmountDiscrepancies: 1,
		TotalSourceAmount:   20000,
		VarianceAmount:      -10000,
		Status:              models.ReportStatusDiscrepanciesFound,
		Notes:               &notes,
		ToleranceAbsolute:   100,
		TolerancePercentage: decimal.NewFromInt(1),
	}
	srcId, dstId := "payroll:E2", "recordkeeper:E2"
	src, dst := int64(10000), int64(20000)
	action := models.ResolutionActionAdjusted
	resolvedAt := time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)
	items := []*models.ReconciliationItem{
		{ID: 1, MatchingKey: "E1", MatchStatus: models.MatchStatusSourceOnly, SourceRecordId: &srcId, SourceAmount: &src, VarianceAmount: 10000},
		{ID: 2, MatchingKey: "E2", MatchStatus: models.MatchStatusAmountMismatch, SourceRecordId: &srcId, DestinationRecordId: &dstId,
			SourceAmount: &src, DestinationAmount: &dst, VarianceAmount: -10000, ResolutionAction: &action, ResolvedAt: &resolvedAt},
	}

	content, err := renderReconciliationWorkbook(report, items)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{summarySheet, itemsSheet}, f.GetSheetList())

	status, err := f.GetCellValue(summarySheet, "B6")
	require.NoError(t, err)
	assert.Equal(t, "DISCREPANCIES_FOUND", status)
	rate, err := f.GetCellValue(summarySheet, "B15")
	require.NoError(t, err)
	assert.Equal(t, "50", rate)

	rows, err := f.GetRows(itemsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Matching Key", rows[0][1])
	assert.Equal(t, "SOURCE_ONLY", rows[1][2])
	assert.Equal(t, "", rows[1][6])
	assert.Equal(t, "-10000", rows[2][7])
	assert.Equal(t, "ADJUSTED", rows[2][8])
	assert.Equal(t, "2026-10-01 09:30:00", rows[2][10])
}
