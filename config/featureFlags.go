package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// NotificationsEnabled gates run-completion events on MATCHING_EVENTS_TOPIC.
//
// Set via env:
// - NOTIFICATIONS_ENABLED=true (default true)
func NotificationsEnabled() bool {
	return boolFromEnv("NOTIFICATIONS_ENABLED", true)
}

// MatchingRulesFile points at an optional YAML file overriding the built-in matching rules.
func MatchingRulesFile() string {
	return strings.TrimSpace(os.Getenv("MATCHING_RULES_FILE"))
}

// MatchReportThreshold overrides the field similarity kept on findings. ok is false when unset
// or out of range.
func MatchReportThreshold() (threshold float64, ok bool) {
	v := strings.TrimSpace(os.Getenv("MATCH_REPORT_THRESHOLD"))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 1 {
		return 0, false
	}
	return f, true
}

// ReconciliationToleranceAbsolute is in minor currency units (default 100).
func ReconciliationToleranceAbsolute() int64 {
	return int64(intFromEnv("RECONCILIATION_TOLERANCE_ABSOLUTE", 100))
}

// ReconciliationTolerancePercent is in percent (default 1).
func ReconciliationTolerancePercent() decimal.Decimal {
	v := strings.TrimSpace(os.Getenv("RECONCILIATION_TOLERANCE_PERCENT"))
	if v == "" {
		return decimal.NewFromInt(1)
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		return decimal.NewFromInt(1)
	}
	return d
}

func ReconciliationExportBucket() string {
	return strings.TrimSpace(os.Getenv("RECONCILIATION_EXPORT_BUCKET"))
}

func MatchingEventsTopic() string {
	return envOr("MATCHING_EVENTS_TOPIC", "matching-events")
}
