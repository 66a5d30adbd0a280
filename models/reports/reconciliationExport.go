package reports

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/mmdatafocus/payroll_bridge/models"
	"github.com/mmdatafocus/payroll_bridge/utils"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	itemsSheet   = "Items"
	XlsxMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type ExportResult struct {
	Filename string `json:"filename"`
	// Location is the gs:// URI when RECONCILIATION_EXPORT_BUCKET is set.
	Location string `json:"location,omitempty"`
	Content  []byte `json:"-"`
}

var itemHeaders = []interface{}{
	"Item ID", "Matching Key", "Match Status", "Source Record", "Destination Record",
	"Source Amount", "Destination Amount", "Variance", "Resolution", "Resolved By", "Resolved At", "Notes",
}

// ExportReconciliationReport renders a report and its items as an xlsx workbook and uploads it
// when an export bucket is configured.
func ExportReconciliationReport(ctx context.Context, reportId int) (*ExportResult, error) {
	report, err := models.GetReconciliationReport(ctx, reportId)
	if err != nil {
		return nil, err
	}
	items, err := models.GetAllReconciliationItems(ctx, reportId)
	if err != nil {
		return nil, err
	}

	content, err := renderReconciliationWorkbook(report, items)
	if err != nil {
		config.LogError(config.GetLogger(), "reconciliationExport.go", "ExportReconciliationReport", "Rendering workbook", reportId, err)
		return nil, err
	}

	result := &ExportResult{
		Filename: fmt.Sprintf("reconciliation_%d_%s.xlsx", report.ID, report.ReconciliationDate.Format("20060102")),
		Content:  content,
	}
	if bucket := config.ReconciliationExportBucket(); bucket != "" {
		object := fmt.Sprintf("%s/reconciliation/%s_%s", report.TenantId, utils.GenerateUniqueFilename(), result.Filename)
		location, err := utils.PutObject(ctx, bucket, object, content, XlsxMimeType, map[string]string{
			"tenant_id": report.TenantId,
			"report_id": strconv.Itoa(report.ID),
		})
		if err != nil {
			config.LogError(config.GetLogger(), "reconciliationExport.go", "ExportReconciliationReport", "Uploading workbook", object, err)
			return nil, utils.DependencyFailure(err, "upload reconciliation export")
		}
		result.Location = location
	}

	config.GetLogger().WithFields(config.OperationFields(ctx, "ExportReconciliationReport", logrus.Fields{
		"report_id": report.ID,
		"items":     len(items),
		"location":  result.Location,
	})).Info("reconciliation export written")
	return result, nil
}

func renderReconciliationWorkbook(report *models.ReconciliationReport, items []*models.ReconciliationItem) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	summary := [][]interface{}{
		{"Report ID", report.ID},
		{"Reconciliation Date", report.ReconciliationDate.Format("2006-01-02")},
		{"Source System", report.SourceSystem},
		{"Destination System", report.DestinationSystem},
		{"Type", report.ReconciliationType},
		{"Status", string(report.Status)},
		{"Total Records", report.TotalRecords},
		{"Matched Records", report.MatchedRecords},
		{"Unmatched Source Records", report.UnmatchedSourceRecords},
		{"Unmatched Destination Records", report.UnmatchedDestinationRecords},
		{"Amount Discrepancies", report.AmountDiscrepancies},
		{"Total Source Amount", report.TotalSourceAmount},
		{"Total Destination Amount", report.TotalDestinationAmount},
		{"Variance Amount", report.VarianceAmount},
		{"Match Rate %", report.MatchRate().Round(2).String()},
		{"Tolerance Absolute", report.ToleranceAbsolute},
		{"Tolerance %", report.TolerancePercentage.String()},
		{"Notes", utils.DereferencePtr(report.Notes, "")},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return nil, err
		}
	}

	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(itemsSheet, "A1", &itemHeaders); err != nil {
		return nil, err
	}
	for i, item := range items {
		resolvedAt := ""
		if item.ResolvedAt != nil {
			resolvedAt = item.ResolvedAt.Format("2006-01-02 15:04:05")
		}
		resolution := ""
		if item.ResolutionAction != nil {
			resolution = string(*item.ResolutionAction)
		}
		row := []interface{}{
			item.ID,
			item.MatchingKey,
			string(item.MatchStatus),
			utils.DereferencePtr(item.SourceRecordId, ""),
			utils.DereferencePtr(item.DestinationRecordId, ""),
			amountCell(item.SourceAmount),
			amountCell(item.DestinationAmount),
			item.VarianceAmount,
			resolution,
			utils.DereferencePtr(item.ResolvedBy, ""),
			resolvedAt,
			utils.DereferencePtr(item.ResolutionNotes, ""),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(itemsSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func amountCell(v *int64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
