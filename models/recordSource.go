package models

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/mmdatafocus/payroll_bridge/matching"
	"github.com/mmdatafocus/payroll_bridge/utils"
	"gorm.io/gorm"
)

// gormRecordSource reads live employees and contributions straight from the record tables.
type gormRecordSource struct{}

func (gormRecordSource) FetchRecords(ctx context.Context, tenantId string, recordType matching.RecordType, scope RecordScope) ([]matching.Record, error) {
	db := config.GetDB().WithContext(ctx)
	switch recordType {
	case matching.RecordTypeEmployee:
		var employees []Employee
		q := db.Where("tenant_id = ? AND is_active = ? AND merged_into_id IS NULL", tenantId, true)
		q = applyScope(q, "created_at", scope)
		if err := q.Order("id").Find(&employees).Error; err != nil {
			return nil, err
		}
		records := make([]matching.Record, 0, len(employees))
		for _, e := range employees {
			records = append(records, e.ToRecord())
		}
		return records, nil

	case matching.RecordTypeContribution:
		var contributions []Contribution
		q := db.Where("tenant_id = ?", tenantId)
		q = applyScope(q, "payroll_date", scope)
		if err := q.Order("id").Find(&contributions).Error; err != nil {
			return nil, err
		}
		records := make([]matching.Record, 0, len(contributions))
		for _, c := range contributions {
			records = append(records, c.ToRecord())
		}
		return records, nil
	}
	return nil, utils.ValidationError("unsupported record type %q", recordType)
}

func applyScope(q *gorm.DB, column string, scope RecordScope) *gorm.DB {
	if scope.FromDate != nil {
		q = q.Where(column+" >= ?", utils.DateOnly(*scope.FromDate))
	}
	if scope.ToDate != nil {
		q = q.Where(column+" < ?", utils.DateOnly(*scope.ToDate).AddDate(0, 0, 1))
	}
	return q
}

// gormLedgerSource reads system_ledger_entries written by the ingestion jobs.
type gormLedgerSource struct{}

func (gormLedgerSource) FetchEntries(ctx context.Context, tenantId string, system string, category string, date time.Time) ([]matching.LedgerEntry, error) {
	day := utils.DateOnly(date)
	var rows []SystemLedgerEntry
	err := config.GetDB().WithContext(ctx).
		Where("tenant_id = ? AND system_name = ? AND category = ?", tenantId, system, category).
		Where("entry_date >= ? AND entry_date < ?", day, day.AddDate(0, 0, 1)).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]matching.LedgerEntry, 0, len(rows))
	for _, r := range rows {
		snapshot := map[string]any{}
		if err := utils.ParseJSONText(r.Payload, &snapshot); err != nil {
			return nil, fmt.Errorf("ledger entry %d: invalid payload: %w", r.ID, err)
		}
		snapshot["matching_key"] = r.MatchingKey
		snapshot["amount"] = r.Amount
		recordId := r.ExternalRecordId
		if recordId == "" {
			recordId = strconv.Itoa(r.ID)
		}
		entries = append(entries, matching.LedgerEntry{
			RecordId: recordId,
			Key:      r.MatchingKey,
			Amount:   r.Amount,
			Snapshot: snapshot,
		})
	}
	return entries, nil
}
