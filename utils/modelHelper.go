package utils

import (
	"gorm.io/gorm"
)

// FetchTenantRow loads the row id of the tenant through db, which may be a transaction.
// A missing row, or one owned by another tenant, is a NOT_FOUND naming what.
func FetchTenantRow[T any](db *gorm.DB, tenantId string, id int, what string) (*T, error) {
	if tenantId == "" {
		return nil, ValidationError("tenant is required")
	}
	var row T
	if err := db.Where("tenant_id = ?", tenantId).First(&row, id).Error; err != nil {
		return nil, DBError(err, what)
	}
	return &row, nil
}
