package utils

import (
	"context"

	"github.com/mmdatafocus/payroll_bridge/appctx"
)

func GetTenantIdFromContext(ctx context.Context) (string, bool) {
	return appctx.String(ctx, appctx.TenantId)
}

func GetUsernameFromContext(ctx context.Context) (string, bool) {
	return appctx.String(ctx, appctx.Username)
}

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	return appctx.Int(ctx, appctx.UserId)
}

func GetUserNameFromContext(ctx context.Context) (string, bool) {
	return appctx.String(ctx, appctx.UserName)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.String(ctx, appctx.CorrelationId)
}

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return appctx.With(ctx, appctx.Token, token)
}

func SetTenantIdInContext(ctx context.Context, tenantId string) context.Context {
	return appctx.With(ctx, appctx.TenantId, tenantId)
}

func SetUsernameInContext(ctx context.Context, username string) context.Context {
	return appctx.With(ctx, appctx.Username, username)
}

func SetUserIdInContext(ctx context.Context, userId int) context.Context {
	return appctx.With(ctx, appctx.UserId, userId)
}

func SetUserNameInContext(ctx context.Context, userName string) context.Context {
	return appctx.With(ctx, appctx.UserName, userName)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.With(ctx, appctx.CorrelationId, correlationId)
}

func IsAdmin(ctx context.Context) bool {
	return appctx.Bool(ctx, appctx.IsAdmin)
}

func SetIsAdminInContext(ctx context.Context, isAdmin bool) context.Context {
	return appctx.With(ctx, appctx.IsAdmin, isAdmin)
}

// SetSystemActor marks ctx as acting for tenantId on behalf of the scheduler or an operator tool.
func SetSystemActor(ctx context.Context, tenantId string) context.Context {
	ctx = SetTenantIdInContext(ctx, tenantId)
	ctx = SetUserIdInContext(ctx, 0)
	return SetUserNameInContext(ctx, "System")
}

// RequireTenant returns the tenant of the request or a validation error.
func RequireTenant(ctx context.Context) (string, error) {
	tenantId, ok := GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return "", ValidationError("tenant is required")
	}
	return tenantId, nil
}

// ActorFromContext names the user acting in ctx, for audit and resolution columns.
func ActorFromContext(ctx context.Context) string {
	if name, ok := GetUsernameFromContext(ctx); ok && name != "" {
		return name
	}
	if name, ok := GetUserNameFromContext(ctx); ok && name != "" {
		return name
	}
	return "System"
}
