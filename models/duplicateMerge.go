package models

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/mmdatafocus/payroll_bridge/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type MergeInput struct {
	FindingId     int     `json:"finding_id" validate:"required,gt=0"`
	KeepRecordId  int     `json:"keep_record_id" validate:"required,gt=0"`
	MergeRecordId int     `json:"merge_record_id" validate:"required,gt=0"`
	Notes         *string `json:"notes"`
}

type MergeResult struct {
	Success          bool             `json:"success"`
	MergedRecordId   int              `json:"merged_record_id"`
	DeletedRecordId  int              `json:"deleted_record_id"`
	RelationsUpdated map[string]int64 `json:"relations_updated"`
	FieldsUpdated    []string         `json:"fields_updated"`
	Errors           []string         `json:"errors"`
}

func failedMerge(input MergeInput, err error) (*MergeResult, error) {
	return &MergeResult{
		MergedRecordId:   input.KeepRecordId,
		DeletedRecordId:  input.MergeRecordId,
		RelationsUpdated: map[string]int64{},
		FieldsUpdated:    []string{},
		Errors:           []string{err.Error()},
	}, err
}

// MergeDuplicateRecords folds the finding's merge record into its keep record using the
// strategy registered for the record type, then marks the finding MERGED. Every step runs in one
// transaction: on failure nothing changes and the result carries the errors.
func MergeDuplicateRecords(ctx context.Context, input MergeInput) (*MergeResult, error) {
	tenantId, err := utils.RequireTenant(ctx)
	if err != nil {
		return failedMerge(input, err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return failedMerge(input, err)
	}
	if input.KeepRecordId == input.MergeRecordId {
		return failedMerge(input, utils.ValidationError("keep and merge record must differ"))
	}
	logger := config.GetLogger()
	actor := utils.ActorFromContext(ctx)

	var outcome MergeOutcome
	err = config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var finding DuplicateFinding
		if err := tx.Where("tenant_id = ?", tenantId).First(&finding, input.FindingId).Error; err != nil {
			return utils.DBError(err, "duplicate finding")
		}
		if !finding.involves(input.KeepRecordId, input.MergeRecordId) {
			return utils.ValidationError("records %d and %d are not the pair of finding %d", input.KeepRecordId, input.MergeRecordId, finding.ID)
		}
		if finding.Status != FindingStatusConfirmedDuplicate {
			return utils.ValidationError("finding %d is %s; only %s findings can be merged", finding.ID, finding.Status, FindingStatusConfirmedDuplicate)
		}
		strategy, ok := mergeStrategies[finding.RecordType]
		if !ok {
			return utils.ValidationError("record type %q cannot be merged", finding.RecordType)
		}

		var err error
		outcome, err = strategy.Merge(tx, tenantId, input.KeepRecordId, input.MergeRecordId)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		res := tx.Model(&DuplicateFinding{}).
			Where("id = ? AND tenant_id = ? AND status = ?", finding.ID, tenantId, FindingStatusConfirmedDuplicate).
			Updates(map[string]interface{}{
				"status":           FindingStatusMerged,
				"open_pair_key":    nil,
				"resolved_by":      actor,
				"resolved_at":      now,
				"resolution_notes": input.Notes,
			})
		if res.Error != nil {
			return utils.DBError(res.Error, "mark finding merged")
		}
		if res.RowsAffected == 0 {
			return utils.Conflict("finding %d changed while merging", finding.ID)
		}

		return appendAudit(tx, AuditEntry{
			ActionType:    HistoryActionMerge,
			ReferenceType: HistoryReferenceFinding,
			ReferenceId:   finding.ID,
			Before:        map[string]any{"status": finding.Status, "keep_record_id": input.KeepRecordId, "merge_record_id": input.MergeRecordId},
			After:         map[string]any{"status": FindingStatusMerged, "relations_updated": outcome.RelationsUpdated, "fields_updated": outcome.FieldsUpdated},
			Description:   fmt.Sprintf("%s %d merged into %d by %s.", finding.RecordType, input.MergeRecordId, input.KeepRecordId, actor),
		})
	})
	if err != nil {
		config.LogError(logger, "duplicateMerge.go", "MergeDuplicateRecords", "Merging records", input, err)
		return failedMerge(input, err)
	}

	fields := outcome.FieldsUpdated
	if fields == nil {
		fields = []string{}
	}
	sort.Strings(fields)
	logger.WithFields(config.OperationFields(ctx, "MergeDuplicateRecords", logrus.Fields{
		"finding_id":      input.FindingId,
		"keep_record_id":  input.KeepRecordId,
		"merge_record_id": input.MergeRecordId,
	})).Info("records merged")
	invalidateDashboard(tenantId)

	return &MergeResult{
		Success:          true,
		MergedRecordId:   input.KeepRecordId,
		DeletedRecordId:  input.MergeRecordId,
		RelationsUpdated: outcome.RelationsUpdated,
		FieldsUpdated:    fields,
		Errors:           []string{},
	}, nil
}
