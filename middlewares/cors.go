package middlewares

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/payroll_bridge/config"
)

// CORS exposes the export headers so browsers can read the filename and upload location.
func CORS() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	origins, allowAll := config.CORSAllowedOrigins()
	if allowAll {
		cfg.AllowAllOrigins = true
	} else if len(origins) > 0 {
		cfg.AllowOrigins = origins
	} else {
		cfg.AllowOriginFunc = func(string) bool { return false }
	}
	cfg.AllowCredentials = true
	cfg.AddAllowMethods("GET", "POST", "OPTIONS")
	cfg.AddAllowHeaders("token", "Authorization", TenantHeader, CorrelationHeader)
	cfg.AddExposeHeaders("Content-Length", "Content-Disposition", "X-Export-Location",
		"X-RateLimit-Limit", "X-RateLimit-Remaining", CorrelationHeader)
	return cors.New(cfg)
}
