package config

import (
	"errors"
	"reflect"
	"strings"

	"github.com/mmdatafocus/payroll_bridge/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

const tenantColumn = "tenant_id"

// TenantGuardPlugin keeps every tenant's findings, reports, items and ledgers apart: reads,
// updates and deletes on models with a tenant_id column are limited to the tenant in the
// statement context, and creates get that tenant stamped when left empty.
//
// Raw SQL is not rewritten. Admins and SkipTenantScope contexts bypass the filter.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	return errors.Join(
		cb.Query().Before("gorm:query").Register("tenant_guard:query", scopeToTenant),
		cb.Row().Before("gorm:row").Register("tenant_guard:row", scopeToTenant),
		cb.Update().Before("gorm:update").Register("tenant_guard:update", scopeToTenant),
		cb.Delete().Before("gorm:delete").Register("tenant_guard:delete", scopeToTenant),
		cb.Create().Before("gorm:create").Register("tenant_guard:create", stampTenant),
	)
}

// tenantFieldOf returns the statement's tenant_id field and the tenant in its context, or nil
// when the model is not tenant owned or no tenant applies.
func tenantFieldOf(db *gorm.DB) (*schema.Field, string, bool) {
	if db == nil || db.Statement == nil || db.Statement.Schema == nil || db.Statement.Context == nil {
		return nil, "", false
	}
	tenantId, bypass := appctx.TenantScope(db.Statement.Context)
	if tenantId == "" {
		return nil, "", false
	}
	return db.Statement.Schema.LookUpField(tenantColumn), tenantId, bypass
}

func stampTenant(db *gorm.DB) {
	field, tenantId, _ := tenantFieldOf(db)
	if field == nil {
		return
	}
	ctx := db.Statement.Context
	stamp := func(rv reflect.Value) {
		if rv.Kind() != reflect.Struct {
			return
		}
		if _, zero := field.ValueOf(ctx, rv); zero {
			_ = field.Set(ctx, rv, tenantId)
		}
	}
	rv := db.Statement.ReflectValue
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			stamp(reflect.Indirect(rv.Index(i)))
		}
		return
	}
	stamp(rv)
}

func scopeToTenant(db *gorm.DB) {
	field, tenantId, bypass := tenantFieldOf(db)
	if field == nil || bypass {
		return
	}
	if where, ok := db.Statement.Clauses["WHERE"].Expression.(clause.Where); ok && anyMentionsTenant(where.Exprs) {
		return
	}
	db.Statement.AddClause(clause.Where{Exprs: []clause.Expression{
		clause.Eq{Column: clause.Column{Table: db.Statement.Table, Name: tenantColumn}, Value: tenantId},
	}})
}

func anyMentionsTenant(exprs []clause.Expression) bool {
	for _, e := range exprs {
		if mentionsTenant(e) {
			return true
		}
	}
	return false
}

// mentionsTenant reports whether a WHERE expression already filters on tenant_id. Raw
// expressions are matched textually.
func mentionsTenant(e clause.Expression) bool {
	var col any
	switch v := e.(type) {
	case clause.Eq:
		col = v.Column
	case clause.Neq:
		col = v.Column
	case clause.IN:
		col = v.Column
	case clause.Gt:
		col = v.Column
	case clause.Gte:
		col = v.Column
	case clause.Lt:
		col = v.Column
	case clause.Lte:
		col = v.Column
	case clause.AndConditions:
		return anyMentionsTenant(v.Exprs)
	case clause.OrConditions:
		return anyMentionsTenant(v.Exprs)
	case clause.Expr:
		return strings.Contains(strings.ToLower(v.SQL), tenantColumn)
	default:
		return false
	}
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, tenantColumn)
	case clause.Column:
		return strings.EqualFold(c.Name, tenantColumn)
	}
	return false
}
