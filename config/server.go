package config

import (
	"os"
	"strings"
	"time"
)

// ListenPort is API_PORT, then the PORT Cloud Run injects, then 8080.
func ListenPort() string {
	return envOr("API_PORT", envOr("PORT", "8080"))
}

// SkipMigrations moves AutoMigrate out of startup into a separate job.
func SkipMigrations() bool {
	return boolFromEnv("SKIP_MIGRATIONS", false)
}

func IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production")
}

// CORSAllowedOrigins is the CORS_ALLOWED_ORIGINS list. Outside production every origin is
// allowed; in production an empty list allows none.
func CORSAllowedOrigins() (origins []string, allowAll bool) {
	if !IsProduction() {
		return nil, true
	}
	for _, o := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins, false
}

type RateLimitSettings struct {
	Enabled     bool
	MaxRequests int64
	Window      time.Duration
}

// RateLimit reads RATE_LIMIT_ENABLED, RATE_LIMIT_MAX_REQUESTS (600) and
// RATE_LIMIT_WINDOW_SECONDS (60).
func RateLimit() RateLimitSettings {
	s := RateLimitSettings{
		Enabled:     boolFromEnv("RATE_LIMIT_ENABLED", false),
		MaxRequests: int64(intFromEnv("RATE_LIMIT_MAX_REQUESTS", 600)),
		Window:      time.Duration(intFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
	}
	if s.MaxRequests <= 0 {
		s.MaxRequests = 600
	}
	if s.Window <= 0 {
		s.Window = time.Minute
	}
	return s
}
