package utils

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/payroll_bridge/config"
)

var validate = validator.New()

// ValidateStruct runs the `validate` tags of v and reports the first failing fields as a
// VALIDATION_ERROR.
func ValidateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		if fields := ProcessValidationErrors(err); len(fields) > 0 {
			return &AppError{Code: CodeValidation, Message: "invalid input", Err: err}
		}
		return ValidationError("%v", err)
	}
	return nil
}

// check if id exists, using tenantId in WHERE, return NOT_FOUND Error
func ValidateResourceId[T any](ctx context.Context, tenantId string, id interface{}) error {
	count, err := ResourceCountWhere[T](ctx, tenantId, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}
	return nil
}

// count records, using WHERE tenant_id = ? AND $condition
// tenant_id can be blank for admin user
func ResourceCountWhere[T any](ctx context.Context, tenantId string, condition string, value ...interface{}) (int64, error) {
	var model T

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&model)
	var count int64
	if tenantId != "" {
		dbCtx = dbCtx.Where("tenant_id = ?", tenantId)
	}
	dbCtx = dbCtx.Where(condition, value...)
	if err := dbCtx.Count(&count).Error; err != nil {
		return 0, DBError(err, "count")
	}
	return count, nil
}
