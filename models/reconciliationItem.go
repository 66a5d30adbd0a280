package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/mmdatafocus/payroll_bridge/matching"
	"github.com/mmdatafocus/payroll_bridge/utils"
	"gorm.io/gorm"
)

// ReconciliationItem is one classified source/destination pairing of a report.
type ReconciliationItem struct {
	ID                  int               `gorm:"primary_key" json:"id"`
	TenantId            string            `gorm:"size:64;not null;index" json:"tenant_id"`
	ReportId            int               `gorm:"not null;index" json:"report_id"`
	MatchingKey         string            `gorm:"size:200" json:"matching_key"`
	MatchStatus         MatchStatus       `gorm:"size:30;not null;index" json:"match_status"`
	SourceRecordId      *string           `gorm:"size:100" json:"source_record_id"`
	DestinationRecordId *string           `gorm:"size:100" json:"destination_record_id"`
	SourceSnapshot      *string           `gorm:"type:text" json:"source_snapshot"`
	DestinationSnapshot *string           `gorm:"type:text" json:"destination_snapshot"`
	SourceAmount        *int64            `json:"source_amount"`
	DestinationAmount   *int64            `json:"destination_amount"`
	VarianceAmount      int64             `gorm:"not null;default:0" json:"variance_amount"`
	ResolutionAction    *ResolutionAction `gorm:"size:30" json:"resolution_action"`
	ResolvedBy          *string           `gorm:"size:100" json:"resolved_by"`
	ResolvedAt          *time.Time        `json:"resolved_at"`
	ResolutionNotes     *string           `gorm:"type:text" json:"resolution_notes"`
	CreatedAt           time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func snapshotJSON(e *matching.LedgerEntry) (*string, error) {
	if e == nil || e.Snapshot == nil {
		return nil, nil
	}
	s, err := utils.JSONText(e.Snapshot)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// newReconciliationItem flattens a classified pair into its row.
func newReconciliationItem(tenantId string, reportId int, p matching.ReconciledPair) (*ReconciliationItem, error) {
	item := &ReconciliationItem{
		TenantId:       tenantId,
		ReportId:       reportId,
		MatchingKey:    p.Key,
		MatchStatus:    p.Status,
		VarianceAmount: p.Variance,
	}
	if p.Source != nil {
		id, amount := p.Source.RecordId, p.Source.Amount
		item.SourceRecordId = &id
		item.SourceAmount = &amount
		snap, err := snapshotJSON(p.Source)
		if err != nil {
			return nil, err
		}
		item.SourceSnapshot = snap
	}
	if p.Destination != nil {
		id, amount := p.Destination.RecordId, p.Destination.Amount
		item.DestinationRecordId = &id
		item.DestinationAmount = &amount
		snap, err := snapshotJSON(p.Destination)
		if err != nil {
			return nil, err
		}
		item.DestinationSnapshot = snap
	}
	return item, nil
}

type ItemFilter struct {
	MatchStatus *MatchStatus `json:"match_status"`
	OnlyOpen    bool         `json:"only_open"`
	Limit       int          `json:"limit"`
	After       *string      `json:"after"`
}

func ListReconciliationItems(ctx context.Context, reportId int, filter ItemFilter) (*Connection[ReconciliationItem], error) {
	tenantId, err := utils.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[ReconciliationReport](ctx, tenantId, reportId); err != nil {
		return nil, err
	}
	dbCtx := config.GetDB().WithContext(ctx).Model(&ReconciliationItem{}).
		Where("tenant_id = ? AND report_id = ?", tenantId, reportId)
	if filter.MatchStatus != nil {
		dbCtx = dbCtx.Where("match_status = ?", *filter.MatchStatus)
	}
	if filter.OnlyOpen {
		dbCtx = dbCtx.Where("match_status <> ? AND resolved_at IS NULL", MatchStatusMatched)
	}
	return fetchPageByIdDesc(dbCtx, filter.Limit, filter.After, func(i *ReconciliationItem) int { return i.ID })
}

type ResolveItemInput struct {
	Action ResolutionAction `json:"action" validate:"required"`
	Notes  *string          `json:"notes"`
}

// ResolveReconciliationItem records how a discrepancy was handled. Resolving the last open
// discrepancy of a report marks the report RECONCILED in the same transaction.
func ResolveReconciliationItem(ctx context.Context, id int, input ResolveItemInput) (*ReconciliationItem, error) {
	tenantId, err := utils.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	if !input.Action.IsValid() {
		return nil, utils.ValidationError("invalid resolution action %q", input.Action)
	}
	actor := utils.ActorFromContext(ctx)

	var result ReconciliationItem
	var reportReconciled bool
	err = config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before, err := utils.FetchTenantRow[ReconciliationItem](tx, tenantId, id, "reconciliation item")
		if err != nil {
			return err
		}
		if before.MatchStatus == MatchStatusMatched {
			return utils.ValidationError("item %d is MATCHED and needs no resolution", id)
		}
		if before.ResolvedAt != nil {
			return utils.ValidationError("item %d is already resolved", id)
		}

		now := time.Now().UTC()
		res := tx.Model(&ReconciliationItem{}).
			Where("id = ? AND tenant_id = ? AND resolved_at IS NULL", id, tenantId).
			Updates(map[string]interface{}{
				"resolution_action": input.Action,
				"resolved_by":       actor,
				"resolved_at":       now,
				"resolution_notes":  input.Notes,
			})
		if res.Error != nil {
			return utils.DBError(res.Error, "resolve item")
		}
		if res.RowsAffected == 0 {
			return utils.Conflict("item %d was resolved concurrently", id)
		}

		var open int64
		if err := tx.Model(&ReconciliationItem{}).
			Where("tenant_id = ? AND report_id = ? AND match_status <> ? AND resolved_at IS NULL", tenantId, before.ReportId, MatchStatusMatched).
			Count(&open).Error; err != nil {
			return utils.DBError(err, "count open items")
		}
		if open == 0 {
			res := tx.Model(&ReconciliationReport{}).
				Where("id = ? AND tenant_id = ? AND status = ?", before.ReportId, tenantId, ReportStatusDiscrepanciesFound).
				Update("status", ReportStatusReconciled)
			if res.Error != nil {
				return utils.DBError(res.Error, "reconcile report")
			}
			reportReconciled = res.RowsAffected > 0
		}

		if err := tx.Where("tenant_id = ?", tenantId).First(&result, id).Error; err != nil {
			return utils.DBError(err, "reconciliation item")
		}
		return appendAudit(tx, AuditEntry{
			ActionType:    HistoryActionResolve,
			ReferenceType: HistoryReferenceItem,
			ReferenceId:   id,
			Before:        before,
			After:         result,
			Description:   fmt.Sprintf("Item %s resolved as %s by %s.", before.MatchStatus, input.Action, actor),
		})
	})
	if err != nil {
		return nil, err
	}
	if reportReconciled {
		invalidateDashboard(tenantId)
	}
	return &result, nil
}

// GetAllReconciliationItems returns every item of a report in insertion order.
func GetAllReconciliationItems(ctx context.Context, reportId int) ([]*ReconciliationItem, error) {
	tenantId, err := utils.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[ReconciliationReport](ctx, tenantId, reportId); err != nil {
		return nil, err
	}
	var items []*ReconciliationItem
	if err := config.GetDB().WithContext(ctx).
		Where("tenant_id = ? AND report_id = ?", tenantId, reportId).
		Order("id").Find(&items).Error; err != nil {
		return nil, utils.DBError(err, "reconciliation items")
	}
	return items, nil
}
