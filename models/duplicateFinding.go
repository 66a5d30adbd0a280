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

// DuplicateFinding is a scored candidate duplicate pair and its human resolution.
// OpenPairKey is set while the finding is open and cleared once it is closed, so the unique
// index allows one open finding per pair while keeping the closed history.
type DuplicateFinding struct {
	ID                int                         `gorm:"primary_key" json:"id"`
	TenantId          string                      `gorm:"size:64;not null;index:uniq_open_finding,unique;index:idx_finding_status" json:"tenant_id"`
	RecordType        matching.RecordType         `gorm:"size:30;not null;index:uniq_open_finding,unique;index:idx_finding_status" json:"record_type"`
	OriginalRecordId  int                         `gorm:"not null" json:"original_record_id"`
	DuplicateRecordId int                         `gorm:"not null" json:"duplicate_record_id"`
	PairLowId         int                         `gorm:"not null;index:idx_finding_pair" json:"-"`
	PairHighId        int                         `gorm:"not null;index:idx_finding_pair" json:"-"`
	OpenPairKey       *string                     `gorm:"size:50;index:uniq_open_finding,unique" json:"-"`
	MatchScore        float64                     `gorm:"not null" json:"match_score"`
	MatchFields       string                      `gorm:"type:text" json:"-"`
	FieldResults      []matching.MatchFieldResult `gorm:"-" json:"match_fields"`
	Status            FindingStatus               `gorm:"size:30;not null;index:idx_finding_status" json:"status"`
	ResolvedBy        *string                     `gorm:"size:100" json:"resolved_by"`
	ResolvedAt        *time.Time                  `json:"resolved_at"`
	ResolutionNotes   *string                     `gorm:"type:text" json:"resolution_notes"`
	CreatedAt         time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

func openPairKey(low, high int) *string {
	key := fmt.Sprintf("%d|%d", low, high)
	return &key
}

func (f *DuplicateFinding) AfterFind(tx *gorm.DB) error {
	f.FieldResults = []matching.MatchFieldResult{}
	return utils.ParseJSONText(f.MatchFields, &f.FieldResults)
}

// newFinding builds the POTENTIAL_DUPLICATE row for a scored pair.
func newFinding(tenantId string, recordType matching.RecordType, pair matching.DuplicatePair) (*DuplicateFinding, error) {
	if pair.OriginalID == pair.DuplicateID {
		return nil, utils.ValidationError("a record cannot duplicate itself")
	}
	fields := pair.MatchFields
	if fields == nil {
		fields = []matching.MatchFieldResult{}
	}
	data, err := utils.JSONText(fields)
	if err != nil {
		return nil, err
	}
	low, high := pair.OriginalID, pair.DuplicateID
	if high < low {
		low, high = high, low
	}
	return &DuplicateFinding{
		TenantId:          tenantId,
		RecordType:        recordType,
		OriginalRecordId:  pair.OriginalID,
		DuplicateRecordId: pair.DuplicateID,
		PairLowId:         low,
		PairHighId:        high,
		OpenPairKey:       openPairKey(low, high),
		MatchScore:        pair.Score,
		MatchFields:       data,
		FieldResults:      fields,
		Status:            FindingStatusPotentialDuplicate,
	}, nil
}

// involves reports whether {a, b} is the finding's pair, in either order.
func (f *DuplicateFinding) involves(a, b int) bool {
	return (a == f.OriginalRecordId && b == f.DuplicateRecordId) || (a == f.DuplicateRecordId && b == f.OriginalRecordId)
}

type FindingFilter struct {
	Status     *FindingStatus       `json:"status"`
	RecordType *matching.RecordType `json:"record_type"`
	MinScore   *float64             `json:"min_score"`
	Limit      int                  `json:"limit"`
	After      *string              `json:"after"`
}

func GetDuplicateFinding(ctx context.Context, id int) (*DuplicateFinding, error) {
	tenantId, err := utils.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	return utils.FetchTenantRow[DuplicateFinding](config.GetDB().WithContext(ctx), tenantId, id, "duplicate finding")
}

// ListDuplicateFindings pages the tenant's findings newest first.
func ListDuplicateFindings(ctx context.Context, filter FindingFilter) (*Connection[DuplicateFinding], error) {
	tenantId, err := utils.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	dbCtx := config.GetDB().WithContext(ctx).Model(&DuplicateFinding{}).Where("tenant_id = ?", tenantId)
	if filter.Status != nil {
		if !filter.Status.IsValid() {
			return nil, utils.ValidationError("invalid status %q", *filter.Status)
		}
		dbCtx = dbCtx.Where("status = ?", *filter.Status)
	}
	if filter.RecordType != nil {
		dbCtx = dbCtx.Where("record_type = ?", *filter.RecordType)
	}
	if filter.MinScore != nil {
		dbCtx = dbCtx.Where("match_score >= ?", *filter.MinScore)
	}
	return fetchPageByIdDesc(dbCtx, filter.Limit, filter.After, func(f *DuplicateFinding) int { return f.ID })
}

type ResolveFindingInput struct {
	Status FindingStatus `json:"status" validate:"required"`
	Notes  *string       `json:"notes"`
}

// ResolveDuplicateFinding moves a POTENTIAL_DUPLICATE finding to CONFIRMED_DUPLICATE or
// NOT_DUPLICATE. The update is conditional on the current status so two reviewers cannot both win.
func ResolveDuplicateFinding(ctx context.Context, id int, input ResolveFindingInput) (*DuplicateFinding, error) {
	tenantId, err := utils.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	if input.Status != FindingStatusConfirmedDuplicate && input.Status != FindingStatusNotDuplicate {
		return nil, utils.ValidationError("a finding can only be resolved as %s or %s", FindingStatusConfirmedDuplicate, FindingStatusNotDuplicate)
	}
	actor := utils.ActorFromContext(ctx)

	var result DuplicateFinding
	err = config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before, err := utils.FetchTenantRow[DuplicateFinding](tx, tenantId, id, "duplicate finding")
		if err != nil {
			return err
		}
		if before.Status != FindingStatusPotentialDuplicate {
			return utils.ValidationError("finding %d is %s and cannot move to %s", id, before.Status, input.Status)
		}

		now := time.Now().UTC()
		updates := map[string]interface{}{
			"status":           input.Status,
			"resolved_by":      actor,
			"resolved_at":      now,
			"resolution_notes": input.Notes,
		}
		if input.Status == FindingStatusNotDuplicate {
			updates["open_pair_key"] = nil
		}
		res := tx.Model(&DuplicateFinding{}).
			Where("id = ? AND tenant_id = ? AND status = ?", id, tenantId, FindingStatusPotentialDuplicate).
			Updates(updates)
		if res.Error != nil {
			return utils.DBError(res.Error, "resolve finding")
		}
		if res.RowsAffected == 0 {
			return utils.Conflict("finding %d was resolved concurrently", id)
		}

		if err := tx.Where("tenant_id = ?", tenantId).First(&result, id).Error; err != nil {
			return utils.DBError(err, "duplicate finding")
		}
		return appendAudit(tx, AuditEntry{
			ActionType:    HistoryActionResolve,
			ReferenceType: HistoryReferenceFinding,
			ReferenceId:   id,
			Before:        before,
			After:         result,
			Description:   fmt.Sprintf("Finding resolved as %s by %s.", input.Status, actor),
		})
	})
	if err != nil {
		return nil, err
	}
	invalidateDashboard(tenantId)
	return &result, nil
}
