package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/mmdatafocus/payroll_bridge/utils"
	"github.com/shopspring/decimal"
)

// ReconciliationReport is one reconciliation run between two systems for a date and category.
// The unique key on (tenant, date, source, destination, type) is the run's soft lock.
type ReconciliationReport struct {
	ID                          int             `gorm:"primary_key" json:"id"`
	TenantId                    string          `gorm:"size:64;not null;index:uniq_recon_run,unique" json:"tenant_id"`
	ReconciliationDate          time.Time       `gorm:"not null;index:uniq_recon_run,unique" json:"reconciliation_date"`
	SourceSystem                string          `gorm:"size:50;not null;index:uniq_recon_run,unique" json:"source_system"`
	DestinationSystem           string          `gorm:"size:50;not null;index:uniq_recon_run,unique" json:"destination_system"`
	ReconciliationType          string          `gorm:"size:50;not null;index:uniq_recon_run,unique" json:"reconciliation_type"`
	TotalRecords                int             `gorm:"not null;default:0" json:"total_records"`
	MatchedRecords              int             `gorm:"not null;default:0" json:"matched_records"`
	UnmatchedSourceRecords      int             `gorm:"not null;default:0" json:"unmatched_source_records"`
	UnmatchedDestinationRecords int             `gorm:"not null;default:0" json:"unmatched_destination_records"`
	AmountDiscrepancies         int             `gorm:"not null;default:0" json:"amount_discrepancies"`
	TotalSourceAmount           int64           `gorm:"not null;default:0" json:"total_source_amount"`
	TotalDestinationAmount      int64           `gorm:"not null;default:0" json:"total_destination_amount"`
	VarianceAmount              int64           `gorm:"not null;default:0" json:"variance_amount"`
	Status                      ReportStatus    `gorm:"size:30;not null;index" json:"status"`
	Notes                       *string         `gorm:"type:text" json:"notes"`
	ToleranceAbsolute           int64           `gorm:"not null;default:0" json:"tolerance_absolute"`
	TolerancePercentage         decimal.Decimal `gorm:"type:decimal(9,4);not null;default:0" json:"tolerance_percentage"`
	CorrelationId               string          `gorm:"size:64;index" json:"correlation_id"`
	StartedAt                   *time.Time      `json:"started_at"`
	CompletedAt                 *time.Time      `json:"completed_at"`
	CreatedBy                   string          `gorm:"size:100" json:"created_by"`
	CreatedAt                   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// MatchRate is matched over total records, 0 for an empty run.
func (r *ReconciliationReport) MatchRate() decimal.Decimal {
	if r.TotalRecords == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(r.MatchedRecords)).
		Div(decimal.NewFromInt(int64(r.TotalRecords))).
		Mul(decimal.NewFromInt(100))
}

func GetReconciliationReport(ctx context.Context, id int) (*ReconciliationReport, error) {
	tenantId, err := utils.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	return utils.FetchTenantRow[ReconciliationReport](config.GetDB().WithContext(ctx), tenantId, id, "reconciliation report")
}

type ReportFilter struct {
	Status            *ReportStatus `json:"status"`
	SourceSystem      *string       `json:"source_system"`
	DestinationSystem *string       `json:"destination_system"`
	FromDate          *time.Time    `json:"from_date"`
	ToDate            *time.Time    `json:"to_date"`
	Limit             int           `json:"limit"`
	After             *string       `json:"after"`
}

func ListReconciliationReports(ctx context.Context, filter ReportFilter) (*Connection[ReconciliationReport], error) {
	tenantId, err := utils.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	dbCtx := config.GetDB().WithContext(ctx).Model(&ReconciliationReport{}).Where("tenant_id = ?", tenantId)
	if filter.Status != nil {
		if !filter.Status.IsValid() {
			return nil, utils.ValidationError("invalid status %q", *filter.Status)
		}
		dbCtx = dbCtx.Where("status = ?", *filter.Status)
	}
	if filter.SourceSystem != nil {
		dbCtx = dbCtx.Where("source_system = ?", *filter.SourceSystem)
	}
	if filter.DestinationSystem != nil {
		dbCtx = dbCtx.Where("destination_system = ?", *filter.DestinationSystem)
	}
	if filter.FromDate != nil {
		dbCtx = dbCtx.Where("reconciliation_date >= ?", utils.DateOnly(*filter.FromDate))
	}
	if filter.ToDate != nil {
		dbCtx = dbCtx.Where("reconciliation_date < ?", utils.DateOnly(*filter.ToDate).AddDate(0, 0, 1))
	}
	return fetchPageByIdDesc(dbCtx, filter.Limit, filter.After, func(r *ReconciliationReport) int { return r.ID })
}
