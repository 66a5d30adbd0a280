package models

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/mmdatafocus/payroll_bridge/utils"
	"github.com/shopspring/decimal"
)

const (
	DefaultDashboardDays = 30
	MaxDashboardDays     = 90
	dashboardCacheTTL    = 60 * time.Second
)

type StatusCount struct {
	Status     string          `json:"status"`
	Count      int64           `json:"count"`
	Percentage decimal.Decimal `json:"percentage"`
}

type DailyTrend struct {
	Date               string `json:"date"`
	Reports            int    `json:"reports"`
	TotalRecords       int    `json:"total_records"`
	MatchedRecords     int    `json:"matched_records"`
	DiscrepancyRecords int    `json:"discrepancy_records"`
	VarianceAmount     int64  `json:"variance_amount"`
}

type SystemPairSummary struct {
	SourceSystem      string          `json:"source_system"`
	DestinationSystem string          `json:"destination_system"`
	Reports           int             `json:"reports"`
	AverageMatchRate  decimal.Decimal `json:"average_match_rate"`
}

type ReconciliationDashboard struct {
	TenantId            string              `json:"tenant_id"`
	WindowDays          int                 `json:"window_days"`
	TotalReports        int64               `json:"total_reports"`
	ReportStatusCounts  []StatusCount       `json:"report_status_counts"`
	TotalFindings       int64               `json:"total_findings"`
	FindingStatusCounts []StatusCount       `json:"finding_status_counts"`
	DailyTrend          []DailyTrend        `json:"daily_trend"`
	SystemPairs         []SystemPairSummary `json:"system_pairs"`
	GeneratedAt         time.Time           `json:"generated_at"`
}

func dashboardCacheKey(tenantId string) string {
	return "ReconciliationDashboard:" + tenantId
}

// invalidateDashboard drops the cached dashboard after anything it summarizes changed.
func invalidateDashboard(tenantId string) {
	if err := config.RemoveRedisKey(dashboardCacheKey(tenantId)); err != nil {
		config.LogError(config.GetLogger(), "reconciliationDashboard.go", "invalidateDashboard", "Removing dashboard cache", tenantId, err)
	}
}

// GetReconciliationDashboard summarizes report and finding status counts, the daily trend over
// the last days (0 means the default window) and the average match rate per system pair.
func GetReconciliationDashboard(ctx context.Context, days int) (*ReconciliationDashboard, error) {
	tenantId, err := utils.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	if days == 0 {
		days = DefaultDashboardDays
	}
	if days < 0 || days > MaxDashboardDays {
		return nil, utils.ValidationError("days must be between 1 and %d", MaxDashboardDays)
	}

	var cached ReconciliationDashboard
	if found, err := config.GetRedisObject(dashboardCacheKey(tenantId), &cached); err == nil && found && cached.WindowDays == days {
		return &cached, nil
	}

	dashboard, err := buildDashboard(ctx, tenantId, days)
	if err != nil {
		return nil, err
	}
	if err := config.SetRedisObject(dashboardCacheKey(tenantId), dashboard, dashboardCacheTTL); err != nil {
		config.LogError(config.GetLogger(), "reconciliationDashboard.go", "GetReconciliationDashboard", "Caching dashboard", tenantId, err)
	}
	return dashboard, nil
}

type statusRow struct {
	Status string
	Count  int64
}

func statusCounts(rows []statusRow) ([]StatusCount, int64) {
	var total int64
	for _, r := range rows {
		total += r.Count
	}
	counts := make([]StatusCount, 0, len(rows))
	for _, r := range rows {
		pct := decimal.Zero
		if total > 0 {
			pct = decimal.NewFromInt(r.Count).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(total)).Round(2)
		}
		counts = append(counts, StatusCount{Status: r.Status, Count: r.Count, Percentage: pct})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Status < counts[j].Status })
	return counts, total
}

func buildDashboard(ctx context.Context, tenantId string, days int) (*ReconciliationDashboard, error) {
	db := config.GetDB().WithContext(ctx)
	dashboard := &ReconciliationDashboard{TenantId: tenantId, WindowDays: days, GeneratedAt: time.Now().UTC()}

	var reportRows []statusRow
	if err := db.Model(&ReconciliationReport{}).Select("status, COUNT(*) AS count").
		Where("tenant_id = ?", tenantId).Group("status").Scan(&reportRows).Error; err != nil {
		return nil, utils.DBError(err, "report status counts")
	}
	dashboard.ReportStatusCounts, dashboard.TotalReports = statusCounts(reportRows)

	var findingRows []statusRow
	if err := db.Model(&DuplicateFinding{}).Select("status, COUNT(*) AS count").
		Where("tenant_id = ?", tenantId).Group("status").Scan(&findingRows).Error; err != nil {
		return nil, utils.DBError(err, "finding status counts")
	}
	dashboard.FindingStatusCounts, dashboard.TotalFindings = statusCounts(findingRows)

	type reportRow struct {
		ReconciliationDate          time.Time
		SourceSystem                string
		DestinationSystem           string
		TotalRecords                int
		MatchedRecords              int
		UnmatchedSourceRecords      int
		UnmatchedDestinationRecords int
		AmountDiscrepancies         int
		VarianceAmount              int64
	}
	var reports []reportRow
	if err := db.Model(&ReconciliationReport{}).
		Select("reconciliation_date, source_system, destination_system, total_records, matched_records, unmatched_source_records, unmatched_destination_records, amount_discrepancies, variance_amount").
		Where("tenant_id = ? AND status <> ?", tenantId, ReportStatusFailed).
		Scan(&reports).Error; err != nil {
		return nil, utils.DBError(err, "report summaries")
	}

	since := utils.DateOnly(time.Now()).AddDate(0, 0, -(days - 1))
	trend := map[string]*DailyTrend{}
	type pairAcc struct {
		reports int
		rated   int
		rateSum decimal.Decimal
	}
	pairs := map[[2]string]*pairAcc{}
	for _, r := range reports {
		key := [2]string{r.SourceSystem, r.DestinationSystem}
		acc := pairs[key]
		if acc == nil {
			acc = &pairAcc{}
			pairs[key] = acc
		}
		acc.reports++
		if r.TotalRecords > 0 {
			acc.rated++
			acc.rateSum = acc.rateSum.Add(decimal.NewFromInt(int64(r.MatchedRecords)).
				Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(int64(r.TotalRecords))))
		}

		date := utils.DateOnly(r.ReconciliationDate)
		if date.Before(since) {
			continue
		}
		day := date.Format(dateLayout)
		t := trend[day]
		if t == nil {
			t = &DailyTrend{Date: day}
			trend[day] = t
		}
		t.Reports++
		t.TotalRecords += r.TotalRecords
		t.MatchedRecords += r.MatchedRecords
		t.DiscrepancyRecords += r.UnmatchedSourceRecords + r.UnmatchedDestinationRecords + r.AmountDiscrepancies
		t.VarianceAmount += r.VarianceAmount
	}

	dashboard.DailyTrend = make([]DailyTrend, 0, len(trend))
	for _, t := range trend {
		dashboard.DailyTrend = append(dashboard.DailyTrend, *t)
	}
	sort.Slice(dashboard.DailyTrend, func(i, j int) bool { return dashboard.DailyTrend[i].Date < dashboard.DailyTrend[j].Date })

	dashboard.SystemPairs = make([]SystemPairSummary, 0, len(pairs))
	for key, acc := range pairs {
		avg := decimal.Zero
		if acc.rated > 0 {
			avg = acc.rateSum.Div(decimal.NewFromInt(int64(acc.rated)))
		}
		dashboard.SystemPairs = append(dashboard.SystemPairs, SystemPairSummary{
			SourceSystem:      key[0],
			DestinationSystem: key[1],
			Reports:           acc.reports,
			AverageMatchRate:  avg.Round(2),
		})
	}
	sort.Slice(dashboard.SystemPairs, func(i, j int) bool {
		a, b := dashboard.SystemPairs[i], dashboard.SystemPairs[j]
		return fmt.Sprintf("%s->%s", a.SourceSystem, a.DestinationSystem) < fmt.Sprintf("%s->%s", b.SourceSystem, b.DestinationSystem)
	})
	return dashboard, nil
}
