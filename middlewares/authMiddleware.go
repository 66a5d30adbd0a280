package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/payroll_bridge/utils"
)

const TenantHeader = "X-Tenant-Id"

// AuthMiddleware accepts a bearer JWT and puts its user and tenant into the request context.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")

		if auth == "" {
			c.Next()
			return
		}

		bearer := "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			abortUnauthorized(c)
			return
		}
		auth = auth[len(bearer):]

		validate, err := utils.JwtValidate(auth)
		if err != nil || !validate.Valid {
			abortUnauthorized(c)
			return
		}

		customClaim, _ := validate.Claims.(*utils.JwtCustomClaim)
		if customClaim == nil {
			abortUnauthorized(c)
			return
		}

		ctx := withUser(c.Request.Context(), utils.SessionUser{
			ID:       customClaim.ID,
			Username: customClaim.Username,
			TenantId: customClaim.TenantId,
			Role:     customClaim.Role,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func withUser(ctx context.Context, user utils.SessionUser) context.Context {
	ctx = utils.SetUserIdInContext(ctx, user.ID)
	ctx = utils.SetUsernameInContext(ctx, user.Username)
	if user.Name != "" {
		ctx = utils.SetUserNameInContext(ctx, user.Name)
	}
	if user.TenantId != "" {
		ctx = utils.SetTenantIdInContext(ctx, user.TenantId)
	}
	return utils.SetIsAdminInContext(ctx, user.Role == utils.RoleAdmin)
}

// RequireTenant rejects requests without an authenticated tenant. Admins may act for another
// tenant through the X-Tenant-Id header.
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if override := strings.TrimSpace(c.GetHeader(TenantHeader)); override != "" {
			if !utils.IsAdmin(ctx) {
				c.JSON(http.StatusForbidden, gin.H{"error": "tenant override requires an admin"})
				c.Abort()
				return
			}
			ctx = utils.SetTenantIdInContext(ctx, override)
			// the explicit tenant applies, not the admin bypass
			ctx = utils.SetIsAdminInContext(ctx, false)
			c.Request = c.Request.WithContext(ctx)
		}
		if _, err := utils.RequireTenant(ctx); err != nil {
			abortUnauthorized(c)
			return
		}
		c.Next()
	}
}
