package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/mmdatafocus/payroll_bridge/matching"
	"github.com/mmdatafocus/payroll_bridge/models"
	"github.com/mmdatafocus/payroll_bridge/utils"
)

func main() {
	tenantID := flag.String("tenant-id", "", "Required: tenant id")
	recordType := flag.String("record-type", string(matching.RecordTypeEmployee), "Record type to scan (employee/contribution)")
	minScore := flag.Float64("min-score", -1, "Optional: minimum score override (0..1)")
	fields := flag.String("fields", "", "Optional: comma-separated rule fields to score")
	fromDateStr := flag.String("from", "", "Optional: contributions from date (YYYY-MM-DD)")
	toDateStr := flag.String("to", "", "Optional: contributions to date (YYYY-MM-DD)")
	dryRun := flag.Bool("dry-run", false, "Score pairs without recording findings")
	rulesFile := flag.String("rules", "", "Optional: YAML rule file overriding MATCHING_RULES_FILE for this run")
	flag.Parse()

	if strings.TrimSpace(*tenantID) == "" {
		fmt.Fprintln(os.Stderr, "--tenant-id is required")
		os.Exit(1)
	}

	opts := models.ScanOptions{
		RecordType: matching.RecordType(strings.TrimSpace(*recordType)),
		DryRun:     *dryRun,
	}
	if *minScore >= 0 {
		opts.MinScore = minScore
	}
	for _, f := range strings.Split(*fields, ",") {
		if f = strings.TrimSpace(f); f != "" {
			opts.Fields = append(opts.Fields, f)
		}
	}
	opts.Fields = utils.UniqueSlice(opts.Fields)
	var err error
	if opts.FromDate, err = parseOptionalDate(*fromDateStr); err != nil {
		fmt.Fprintf(os.Stderr, "invalid --from: %v\n", err)
		os.Exit(1)
	}
	if opts.ToDate, err = parseOptionalDate(*toDateStr); err != nil {
		fmt.Fprintf(os.Stderr, "invalid --to: %v\n", err)
		os.Exit(1)
	}

	if path := strings.TrimSpace(*rulesFile); path != "" {
		book, err := matching.LoadRuleBook(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load rules: %v\n", err)
			os.Exit(1)
		}
		models.SetRuleBook(book)
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	ctx := utils.SetSystemActor(context.Background(), strings.TrimSpace(*tenantID))
	result, err := models.ScanDuplicates(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan failed: %v\n", err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
}

func parseOptionalDate(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	d, err := utils.ParseDate(v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
