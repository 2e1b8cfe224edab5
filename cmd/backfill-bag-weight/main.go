package main

import (
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/deliverytrack_backend/config"
	"bitbucket.org/mmdatafocus/deliverytrack_backend/models"
)

func main() {
	// Explicit DB connect (config no longer connects DB in init()).
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	if err := models.MigrateTable(); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}

	affected, err := models.BackfillBagWeight()
	if err != nil {
		fmt.Fprintf(os.Stderr, "backfill failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Backfill complete (%d rows updated)\n", affected)
}
