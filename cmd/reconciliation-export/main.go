package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/mmdatafocus/payroll_bridge/models/reports"
	"github.com/mmdatafocus/payroll_bridge/utils"
)

func main() {
	tenantID := flag.String("tenant-id", "", "Required: tenant id")
	reportID := flag.Int("report-id", 0, "Required: reconciliation report id")
	outDir := flag.String("out", ".", "Directory to write the workbook into")
	flag.Parse()

	if strings.TrimSpace(*tenantID) == "" || *reportID <= 0 {
		fmt.Fprintln(os.Stderr, "--tenant-id and --report-id are required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()

	ctx := utils.SetSystemActor(context.Background(), strings.TrimSpace(*tenantID))
	result, err := reports.ExportReconciliationReport(ctx, *reportID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		os.Exit(1)
	}
	path := filepath.Join(*outDir, result.Filename)
	if err := os.WriteFile(path, result.Content, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
		os.Exit(1)
	}
	fmt.Println("wrote", path)
	if result.Location != "" {
		fmt.Println("uploaded", result.Location)
	}
}
