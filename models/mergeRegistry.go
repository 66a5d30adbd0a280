package models

import (
	"github.com/mmdatafocus/payroll_bridge/matching"
	"github.com/mmdatafocus/payroll_bridge/utils"
	"gorm.io/gorm"
)

// MergeOutcome is what a strategy changed besides retiring the merged record.
type MergeOutcome struct {
	RelationsUpdated map[string]int64
	FieldsUpdated    []string
}

// MergeStrategy folds mergeId into keepId inside tx.
type MergeStrategy interface {
	Merge(tx *gorm.DB, tenantId string, keepId, mergeId int) (MergeOutcome, error)
}

// RelationRepointer moves the rows of one dependent relation from mergeId to keepId and returns
// how many rows moved.
type RelationRepointer struct {
	Name    string
	Repoint func(tx *gorm.DB, tenantId string, keepId, mergeId int) (int64, error)
}

// repointColumn re-points model.column, including soft-deleted rows.
func repointColumn(name string, model any, column string) RelationRepointer {
	return RelationRepointer{
		Name: name,
		Repoint: func(tx *gorm.DB, tenantId string, keepId, mergeId int) (int64, error) {
			res := tx.Unscoped().Model(model).
				Where("tenant_id = ? AND "+column+" = ?", tenantId, mergeId).
				Update(column, keepId)
			return res.RowsAffected, res.Error
		},
	}
}

// softDeleteMerge retires a transactional record by soft-deleting it. Nothing references it.
type softDeleteMerge struct{}

func (softDeleteMerge) Merge(tx *gorm.DB, tenantId string, keepId, mergeId int) (MergeOutcome, error) {
	var keep Contribution
	if err := tx.Where("tenant_id = ?", tenantId).First(&keep, keepId).Error; err != nil {
		return MergeOutcome{}, utils.DBError(err, "kept contribution")
	}
	res := tx.Where("tenant_id = ?", tenantId).Delete(&Contribution{}, mergeId)
	if res.Error != nil {
		return MergeOutcome{}, utils.DBError(res.Error, "delete contribution")
	}
	if res.RowsAffected == 0 {
		return MergeOutcome{}, utils.NotFound("contribution %d not found", mergeId)
	}
	return MergeOutcome{RelationsUpdated: map[string]int64{}}, nil
}

// entityMerge re-points every dependent relation to the kept employee, copies fields the kept
// record lacks, and retires the merged employee.
type entityMerge struct {
	Repointers []RelationRepointer
}

func (m entityMerge) Merge(tx *gorm.DB, tenantId string, keepId, mergeId int) (MergeOutcome, error) {
	out := MergeOutcome{RelationsUpdated: make(map[string]int64, len(m.Repointers))}

	var keep, merged Employee
	if err := tx.Where("tenant_id = ? AND merged_into_id IS NULL", tenantId).First(&keep, keepId).Error; err != nil {
		return out, utils.DBError(err, "kept employee")
	}
	if err := tx.Where("tenant_id = ? AND merged_into_id IS NULL", tenantId).First(&merged, mergeId).Error; err != nil {
		return out, utils.DBError(err, "merged employee")
	}

	for _, r := range m.Repointers {
		n, err := r.Repoint(tx, tenantId, keepId, mergeId)
		if err != nil {
			return out, utils.DBError(err, "re-point "+r.Name)
		}
		out.RelationsUpdated[r.Name] = n
	}

	backfill := employeeBackfill(keep, merged)
	if len(backfill) > 0 {
		if err := tx.Model(&Employee{}).Where("id = ? AND tenant_id = ?", keepId, tenantId).Updates(backfill).Error; err != nil {
			return out, utils.DBError(err, "backfill employee")
		}
		for column := range backfill {
			out.FieldsUpdated = append(out.FieldsUpdated, column)
		}
	}

	res := tx.Model(&Employee{}).
		Where("id = ? AND tenant_id = ? AND merged_into_id IS NULL", mergeId, tenantId).
		Updates(map[string]interface{}{"is_active": false, "merged_into_id": keepId})
	if res.Error != nil {
		return out, utils.DBError(res.Error, "retire employee")
	}
	if res.RowsAffected == 0 {
		return out, utils.Conflict("employee %d was merged concurrently", mergeId)
	}
	return out, nil
}

// employeeBackfill lists the columns the kept employee is missing and the merged one has.
func employeeBackfill(keep, merged Employee) map[string]interface{} {
	updates := map[string]interface{}{}
	copyIfEmpty := func(column, kept, other string) {
		if kept == "" && other != "" {
			updates[column] = other
		}
	}
	copyIfEmpty("ssn", keep.Ssn, merged.Ssn)
	copyIfEmpty("first_name", keep.FirstName, merged.FirstName)
	copyIfEmpty("last_name", keep.LastName, merged.LastName)
	copyIfEmpty("full_name", keep.FullName, merged.FullName)
	copyIfEmpty("email", keep.Email, merged.Email)
	copyIfEmpty("phone", keep.Phone, merged.Phone)
	copyIfEmpty("external_id", keep.ExternalId, merged.ExternalId)
	if keep.DateOfBirth == nil && merged.DateOfBirth != nil {
		updates["date_of_birth"] = *merged.DateOfBirth
	}
	return updates
}

var employeeRepointers = []RelationRepointer{
	repointColumn("contributions", &Contribution{}, "employee_id"),
	repointColumn("elections", &Election{}, "employee_id"),
	repointColumn("loans", &Loan{}, "employee_id"),
}

var mergeStrategies = map[matching.RecordType]MergeStrategy{
	matching.RecordTypeContribution: softDeleteMerge{},
	matching.RecordTypeEmployee:     entityMerge{Repointers: employeeRepointers},
}

// RegisterMergeStrategy installs the strategy used for recordType.
func RegisterMergeStrategy(recordType matching.RecordType, s MergeStrategy) {
	mergeStrategies[recordType] = s
}

// ContributionMergeStrategy is the default strategy for contributions.
func ContributionMergeStrategy() MergeStrategy { return softDeleteMerge{} }
