package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/deliverytrack_backend/config"
	"bitbucket.org/mmdatafocus/deliverytrack_backend/mailsync"
	"bitbucket.org/mmdatafocus/deliverytrack_backend/models"
	"bitbucket.org/mmdatafocus/deliverytrack_backend/utils"
)

func main() {
	from := flag.String("from", "", "Start date (YYYY-MM-DD). Defaults to 30 days ago.")
	to := flag.String("to", "", "End date (YYYY-MM-DD). Defaults to today.")
	flag.Parse()

	ctx := context.Background()

	fromDate := utils.DayKey(time.Now().AddDate(0, 0, -30))
	if strings.TrimSpace(*from) != "" {
		d, err := utils.ParseDateArg(*from)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fromDate = d
	}
	toDate := utils.DayKey(time.Now())
	if strings.TrimSpace(*to) != "" {
		d, err := utils.ParseDateArg(*to)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		toDate = d
	}
	if toDate.Before(fromDate) {
		fmt.Fprintln(os.Stderr, "to date is before from date")
		os.Exit(1)
	}

	source, err := mailsync.NewMailGatewaySource()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mail gateway: %v\n", err)
		os.Exit(1)
	}

	// Explicit DB connect (config no longer connects DB in init()).
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if err := models.MigrateTable(); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Syncing delivery reports from=%s to=%s\n",
		fromDate.Format(utils.DateLayout), toDate.Format(utils.DateLayout))

	run, summary, err := mailsync.RunSyncWindow(ctx, source, fromDate, toDate, models.SyncTriggeredByCLI)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sync failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Run %d (%s): processed=%d skipped=%d synced=%d failed=%d\n",
		run.ID, run.Status, summary.ProcessedCount, summary.SkippedCount,
		summary.SyncedCount, len(summary.Failures))
	for _, f := range summary.Failures {
		fmt.Printf("  failed: %s (%s)\n", f.Subject, f.Reason)
	}
}
