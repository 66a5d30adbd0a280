package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/mmdatafocus/payroll_bridge/matching"
	"github.com/mmdatafocus/payroll_bridge/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	claimAttempts     = 3
	itemBatchSize     = 500
	runLockTTL        = 10 * time.Minute
	runLockType       = "ReconciliationRun"
	maxFailureNoteLen = 2000
)

type ToleranceInput struct {
	Absolute   *int64           `json:"absolute" validate:"omitempty,gte=0"`
	Percentage *decimal.Decimal `json:"percentage"`
}

type RunReconciliationInput struct {
	ReconciliationDate time.Time       `json:"reconciliation_date"`
	SourceSystem       string          `json:"source_system" validate:"required,max=50"`
	DestinationSystem  string          `json:"destination_system" validate:"required,max=50,nefield=SourceSystem"`
	ReconciliationType string          `json:"reconciliation_type" validate:"required,max=50"`
	Tolerance          *ToleranceInput `json:"tolerance"`
}

func (in RunReconciliationInput) lockKey(tenantId string) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", tenantId, in.ReconciliationDate.Format(dateLayout),
		in.SourceSystem, in.DestinationSystem, in.ReconciliationType)
}

// RunReconciliation compares what the source and destination systems report for one date and
// category. A report that already exists for the same key is a CONFLICT unless it FAILED or its
// run went stale, in which case it is recomputed in place. Any failure after the report row
// exists, a panic included, leaves it FAILED.
func RunReconciliation(ctx context.Context, input RunReconciliationInput) (result *ReconciliationReport, err error) {
	tenantId, err := utils.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	if input.ReconciliationDate.IsZero() {
		return nil, utils.ValidationError("reconciliation_date is required")
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	tol, err := ResolveTolerance(input.Tolerance)
	if err != nil {
		return nil, err
	}
	input.ReconciliationDate = utils.DateOnly(input.ReconciliationDate)
	logger := config.GetLogger()

	ctx, span := tracer.Start(ctx, "RunReconciliation")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", tenantId),
		attribute.String("source_system", input.SourceSystem),
		attribute.String("destination_system", input.DestinationSystem),
		attribute.String("reconciliation_type", input.ReconciliationType),
	)

	_, release := utils.TenantLock(ctx, runLockType, input.lockKey(tenantId), runLockTTL, "reconciliationRun.go", "RunReconciliation")
	defer release()

	report, err := claimReport(ctx, tenantId, input, tol)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	fail := func(cause error) {
		span.RecordError(cause)
		span.SetStatus(codes.Error, "reconciliation failed")
		config.LogError(logger, "reconciliationRun.go", "RunReconciliation", "Running reconciliation", input, cause)
		markFailed(ctx, report, cause)
		publishRunEvent(ctx, report)
		invalidateDashboard(tenantId)
	}
	defer func() {
		if r := recover(); r != nil {
			err = utils.DependencyFailure(fmt.Errorf("panic: %v", r), "reconcile report %d", report.ID)
			fail(err)
			result = nil
		}
	}()

	partition, err := fetchAndReconcile(ctx, tenantId, input, tol)
	if err == nil {
		err = saveOutcome(ctx, report, partition)
	}
	if err != nil {
		fail(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("total_records", report.TotalRecords),
		attribute.String("status", string(report.Status)),
	)
	logger.WithFields(config.OperationFields(ctx, "RunReconciliation", logrus.Fields{
		"report_id":   report.ID,
		"status":      report.Status,
		"total":       report.TotalRecords,
		"matched":     report.MatchedRecords,
		"variance":    report.VarianceAmount,
		"source":      input.SourceSystem,
		"destination": input.DestinationSystem,
	})).Info("reconciliation finished")

	publishRunEvent(ctx, report)
	invalidateDashboard(tenantId)
	return report, nil
}

// claimReport takes the run slot for the report key: insert a fresh IN_PROGRESS row, or flip a
// FAILED or stale IN_PROGRESS row back to a fresh IN_PROGRESS. Both are conditional so two
// runners never share a report.
// FindReconciliationReport returns the report stored for the input's date, systems and type.
func FindReconciliationReport(ctx context.Context, input RunReconciliationInput) (*ReconciliationReport, error) {
	tenantId, err := utils.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	input.ReconciliationDate = utils.DateOnly(input.ReconciliationDate)
	report, err := findReport(config.GetDB().WithContext(ctx), tenantId, input)
	if err != nil {
		return nil, utils.DBError(err, "reconciliation report")
	}
	return &report, nil
}

func findReport(db *gorm.DB, tenantId string, input RunReconciliationInput) (ReconciliationReport, error) {
	var report ReconciliationReport
	err := db.Where("tenant_id = ? AND reconciliation_date = ? AND source_system = ? AND destination_system = ? AND reconciliation_type = ?",
		tenantId, input.ReconciliationDate, input.SourceSystem, input.DestinationSystem, input.ReconciliationType).
		First(&report).Error
	return report, err
}

func claimReport(ctx context.Context, tenantId string, input RunReconciliationInput, tol matching.Tolerance) (*ReconciliationReport, error) {
	db := config.GetDB().WithContext(ctx)
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	actor := utils.ActorFromContext(ctx)

	for attempt := 0; attempt < claimAttempts; attempt++ {
		now := time.Now().UTC()
		report := &ReconciliationReport{
			TenantId:            tenantId,
			ReconciliationDate:  input.ReconciliationDate,
			SourceSystem:        input.SourceSystem,
			DestinationSystem:   input.DestinationSystem,
			ReconciliationType:  input.ReconciliationType,
			Status:              ReportStatusInProgress,
			ToleranceAbsolute:   tol.Absolute,
			TolerancePercentage: tol.Percentage,
			CorrelationId:       correlationId,
			StartedAt:           &now,
			CreatedBy:           actor,
		}
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(report)
		if res.Error != nil {
			return nil, utils.DBError(res.Error, "create reconciliation report")
		}
		if res.RowsAffected == 1 {
			return report, nil
		}

		existing, err := findReport(db, tenantId, input)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, utils.DBError(err, "reconciliation report")
		}
		staleBefore := now.Add(-runLockTTL)
		if !canTakeOver(existing, staleBefore) {
			return nil, utils.Conflict("reconciliation report %d already exists with status %s", existing.ID, existing.Status)
		}

		claimed := false
		err = db.Transaction(func(tx *gorm.DB) error {
			takeover := tx.Model(&ReconciliationReport{}).
				Where("id = ? AND tenant_id = ? AND status = ?", existing.ID, tenantId, existing.Status)
			if existing.Status == ReportStatusInProgress {
				takeover = takeover.Where("(started_at IS NULL OR started_at < ?)", staleBefore)
			}
			res := takeover.Updates(map[string]interface{}{
				"status":               ReportStatusInProgress,
				"notes":                nil,
				"tolerance_absolute":   tol.Absolute,
				"tolerance_percentage": tol.Percentage,
				"correlation_id":       correlationId,
				"started_at":           now,
				"completed_at":         nil,
			})
			if res.Error != nil {
				return utils.DBError(res.Error, "reset report")
			}
			if res.RowsAffected == 0 {
				return nil
			}
			claimed = true
			if err := tx.Where("tenant_id = ? AND report_id = ?", tenantId, existing.ID).Delete(&ReconciliationItem{}).Error; err != nil {
				return utils.DBError(err, "clear report items")
			}
			return tx.Where("tenant_id = ?", tenantId).First(&existing, existing.ID).Error
		})
		if err != nil {
			return nil, utils.DBError(err, "reconciliation report")
		}
		if claimed {
			return &existing, nil
		}
	}
	return nil, utils.Conflict("reconciliation report for %s is being run by another process", input.lockKey(tenantId))
}

// canTakeOver reports whether a rerun may recompute an existing report: it FAILED, or its run
// started before staleBefore and never finished, so its runner is gone.
func canTakeOver(existing ReconciliationReport, staleBefore time.Time) bool {
	switch existing.Status {
	case ReportStatusFailed:
		return true
	case ReportStatusInProgress:
		return existing.StartedAt == nil || existing.StartedAt.Before(staleBefore)
	}
	return false
}

func fetchAndReconcile(ctx context.Context, tenantId string, input RunReconciliationInput, tol matching.Tolerance) (matching.Partition, error) {
	source, err := collaborators.Ledger.FetchEntries(ctx, tenantId, input.SourceSystem, input.ReconciliationType, input.ReconciliationDate)
	if err != nil {
		return matching.Partition{}, utils.DependencyFailure(err, "fetch %s entries", input.SourceSystem)
	}
	destination, err := collaborators.Ledger.FetchEntries(ctx, tenantId, input.DestinationSystem, input.ReconciliationType, input.ReconciliationDate)
	if err != nil {
		return matching.Partition{}, utils.DependencyFailure(err, "fetch %s entries", input.DestinationSystem)
	}
	return matching.Reconcile(source, destination, tol), nil
}

// saveOutcome writes the items, totals and final status of a claimed report in one transaction.
func saveOutcome(ctx context.Context, report *ReconciliationReport, p matching.Partition) error {
	pairs := p.Items()
	items := make([]*ReconciliationItem, 0, len(pairs))
	for _, pair := range pairs {
		item, err := newReconciliationItem(report.TenantId, report.ID, pair)
		if err != nil {
			return fmt.Errorf("snapshot item %q: %w", pair.Key, err)
		}
		items = append(items, item)
	}

	before := *report
	completed := time.Now().UTC()
	report.TotalRecords = p.Total()
	report.MatchedRecords = len(p.Matched)
	report.UnmatchedSourceRecords = len(p.SourceOnly)
	report.UnmatchedDestinationRecords = len(p.DestinationOnly)
	report.AmountDiscrepancies = len(p.AmountMismatch)
	report.TotalSourceAmount = p.TotalSourceAmount
	report.TotalDestinationAmount = p.TotalDestinationAmount
	report.VarianceAmount = p.TotalSourceAmount - p.TotalDestinationAmount
	report.CompletedAt = &completed
	report.Status = ReportStatusReconciled
	if p.HasDiscrepancies() {
		report.Status = ReportStatusDiscrepanciesFound
	}

	return config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(items) > 0 {
			if err := tx.CreateInBatches(items, itemBatchSize).Error; err != nil {
				return utils.DBError(err, "insert reconciliation items")
			}
		}
		res := tx.Model(&ReconciliationReport{}).
			Where("id = ? AND tenant_id = ? AND status = ?", report.ID, report.TenantId, ReportStatusInProgress).
			Updates(map[string]interface{}{
				"total_records":                 report.TotalRecords,
				"matched_records":               report.MatchedRecords,
				"unmatched_source_records":      report.UnmatchedSourceRecords,
				"unmatched_destination_records": report.UnmatchedDestinationRecords,
				"amount_discrepancies":          report.AmountDiscrepancies,
				"total_source_amount":           report.TotalSourceAmount,
				"total_destination_amount":      report.TotalDestinationAmount,
				"variance_amount":               report.VarianceAmount,
				"status":                        report.Status,
				"completed_at":                  completed,
			})
		if res.Error != nil {
			return utils.DBError(res.Error, "update reconciliation report")
		}
		if res.RowsAffected == 0 {
			return utils.Conflict("reconciliation report %d is no longer in progress", report.ID)
		}
		return appendAudit(tx, AuditEntry{
			ActionType:    HistoryActionRun,
			ReferenceType: HistoryReferenceReport,
			ReferenceId:   report.ID,
			Before:        before,
			After:         report,
			Description: fmt.Sprintf("Reconciled %s against %s for %s: %d records, %d matched.",
				report.SourceSystem, report.DestinationSystem, report.ReconciliationDate.Format(dateLayout),
				report.TotalRecords, report.MatchedRecords),
		})
	})
}

// markFailed records the cause on the report. It runs detached from ctx so a cancelled request
// still leaves the report FAILED instead of IN_PROGRESS.
func markFailed(ctx context.Context, report *ReconciliationReport, cause error) {
	notes := cause.Error()
	if len(notes) > maxFailureNoteLen {
		notes = notes[:maxFailureNoteLen]
	}
	completed := time.Now().UTC()
	err := config.GetDB().WithContext(context.WithoutCancel(ctx)).Model(&ReconciliationReport{}).
		Where("id = ? AND tenant_id = ?", report.ID, report.TenantId).
		Updates(map[string]interface{}{
			"status":       ReportStatusFailed,
			"notes":        notes,
			"completed_at": completed,
		}).Error
	if err != nil {
		config.LogError(config.GetLogger(), "reconciliationRun.go", "markFailed", "Marking report failed", report.ID, err)
		return
	}
	report.Status = ReportStatusFailed
	report.Notes = &notes
	report.CompletedAt = &completed
}

func publishRunEvent(ctx context.Context, report *ReconciliationReport) {
	notify(ctx, RunEvent{
		EventType:     "reconciliation.completed",
		TenantId:      report.TenantId,
		RunType:       RunTypeReconciliation,
		RecordType:    report.ReconciliationType,
		ReportId:      report.ID,
		Status:        string(report.Status),
		CorrelationId: report.CorrelationId,
		Summary: map[string]any{
			"total_records":   report.TotalRecords,
			"matched_records": report.MatchedRecords,
			"variance_amount": report.VarianceAmount,
		},
	})
}
