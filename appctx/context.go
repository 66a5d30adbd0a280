// Package appctx holds the request-scoped values shared by config (tenant scoping) and utils
// (actor and correlation helpers). It has no dependencies so neither side imports the other.
package appctx

import "context"

type Key string

const (
	Token         Key = "token"
	TenantId      Key = "tenant_id"
	Username      Key = "username"
	UserId        Key = "user_id"
	UserName      Key = "user_name"
	CorrelationId Key = "correlation_id"
	// IsAdmin is set for platform operators; their queries are not tenant scoped.
	IsAdmin Key = "is_admin"
	// SkipTenantScope disables tenant scoping for maintenance jobs.
	SkipTenantScope Key = "skip_tenant_scope"
)

func With(ctx context.Context, key Key, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

func String(ctx context.Context, key Key) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok
}

func Bool(ctx context.Context, key Key) bool {
	v, _ := ctx.Value(key).(bool)
	return v
}

func Int(ctx context.Context, key Key) (int, bool) {
	v, ok := ctx.Value(key).(int)
	return v, ok
}

// TenantScope reports the tenant queries in ctx are limited to, and whether scoping is bypassed.
func TenantScope(ctx context.Context) (tenantId string, bypass bool) {
	tenantId, _ = String(ctx, TenantId)
	return tenantId, Bool(ctx, SkipTenantScope) || Bool(ctx, IsAdmin)
}
