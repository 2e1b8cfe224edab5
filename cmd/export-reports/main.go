package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/deliverytrack_backend/config"
	"bitbucket.org/mmdatafocus/deliverytrack_backend/models/reports"
)

func main() {
	out := flag.String("out", "delivery_reports.csv", "Output file path (.csv or .xlsx).")
	flag.Parse()

	ctx := context.Background()
	// Explicit DB connect (config no longer connects DB in init()).
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	if strings.HasSuffix(strings.ToLower(*out), ".xlsx") {
		workbook, err := reports.BuildDeliveryReportWorkbook(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
			os.Exit(1)
		}
		if err := workbook.SaveAs(*out); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", *out, err)
			os.Exit(1)
		}
		fmt.Printf("Exported workbook to %s\n", *out)
		return
	}

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", *out, err)
		os.Exit(1)
	}
	defer f.Close()

	count, err := reports.WriteDeliveryReportCSV(ctx, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Exported %d records to %s\n", count, *out)
}
