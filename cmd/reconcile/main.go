package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/mmdatafocus/payroll_bridge/models"
	"github.com/mmdatafocus/payroll_bridge/utils"
	"github.com/shopspring/decimal"
)

func main() {
	tenantID := flag.String("tenant-id", "", "Required: tenant id")
	dateStr := flag.String("date", "", "Reconciliation date (YYYY-MM-DD). Defaults to yesterday (UTC).")
	source := flag.String("source", "payroll", "Source system")
	destination := flag.String("destination", "recordkeeper", "Destination system")
	reconType := flag.String("type", "contribution", "Reconciliation type (ledger category)")
	tolAbs := flag.Int64("tolerance-absolute", -1, "Optional: absolute tolerance in minor units")
	tolPct := flag.String("tolerance-percent", "", "Optional: percentage tolerance, e.g. 1.5")
	days := flag.Int("days", 1, "Reconcile this many consecutive days ending at --date")
	flag.Parse()

	if strings.TrimSpace(*tenantID) == "" {
		fmt.Fprintln(os.Stderr, "--tenant-id is required")
		os.Exit(1)
	}
	end := utils.DateOnly(time.Now()).AddDate(0, 0, -1)
	if v := strings.TrimSpace(*dateStr); v != "" {
		d, err := utils.ParseDate(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --date: %v\n", err)
			os.Exit(1)
		}
		end = d
	}
	if *days < 1 {
		fmt.Fprintln(os.Stderr, "--days must be at least 1")
		os.Exit(1)
	}

	var tolerance *models.ToleranceInput
	if *tolAbs >= 0 || strings.TrimSpace(*tolPct) != "" {
		tolerance = &models.ToleranceInput{}
		if *tolAbs >= 0 {
			tolerance.Absolute = tolAbs
		}
		if v := strings.TrimSpace(*tolPct); v != "" {
			pct, err := decimal.NewFromString(v)
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid --tolerance-percent: %v\n", err)
				os.Exit(1)
			}
			tolerance.Percentage = &pct
		}
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	ctx := utils.SetSystemActor(context.Background(), strings.TrimSpace(*tenantID))
	failed := false
	for d := end.AddDate(0, 0, -(*days - 1)); !d.After(end); d = d.AddDate(0, 0, 1) {
		report, err := models.RunReconciliation(ctx, models.RunReconciliationInput{
			ReconciliationDate: d,
			SourceSystem:       *source,
			DestinationSystem:  *destination,
			ReconciliationType: *reconType,
			Tolerance:          tolerance,
		})
		switch {
		case errors.Is(err, utils.ErrConflict):
			fmt.Printf("%s: already reconciled (%v)\n", d.Format("2006-01-02"), err)
		case err != nil:
			fmt.Fprintf(os.Stderr, "%s: reconciliation failed: %v\n", d.Format("2006-01-02"), err)
			failed = true
		default:
			fmt.Printf("%s: report=%d status=%s total=%d matched=%d variance=%d match_rate=%s%%\n",
				d.Format("2006-01-02"), report.ID, report.Status, report.TotalRecords, report.MatchedRecords,
				report.VarianceAmount, report.MatchRate().StringFixed(2))
		}
	}
	if failed {
		os.Exit(1)
	}
}
