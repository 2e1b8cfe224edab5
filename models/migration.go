package models

import (
	"fmt"

	"bitbucket.org/mmdatafocus/deliverytrack_backend/config"
	"bitbucket.org/mmdatafocus/deliverytrack_backend/utils"
	"gorm.io/gorm"
)

// MigrateTable brings the schema up to date. It must succeed before any
// upsert runs; a failed migration leaves derived columns inconsistent, so
// callers treat an error here as fatal.
func MigrateTable() error {
	db := config.GetDB()
	if db == nil {
		return utils.ErrorStoreUnavailable
	}

	// Legacy installs predate the derived bag_weight_kg column. The column
	// must be added and backfilled BEFORE AutoMigrate, which would otherwise
	// create it empty and hide the legacy state.
	if err := migrateBagWeightColumn(db); err != nil {
		return fmt.Errorf("bag_weight_kg migration: %w", err)
	}

	if err := db.AutoMigrate(
		&DeliveryReport{},
		&SyncRun{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// migrateBagWeightColumn adds the derived column to a pre-existing
// delivery_reports table and backfills every row from its stored
// per_bag_short_excess. Runs at most once: skipped entirely when the column
// already exists, so re-running is safe.
func migrateBagWeightColumn(db *gorm.DB) error {
	migrator := db.Migrator()
	if !migrator.HasTable(&DeliveryReport{}) {
		return nil
	}
	if migrator.HasColumn(&DeliveryReport{}, "BagWeightKg") {
		return nil
	}

	if err := migrator.AddColumn(&DeliveryReport{}, "BagWeightKg"); err != nil {
		return err
	}
	return db.Exec(
		"UPDATE delivery_reports SET bag_weight_kg = ? - per_bag_short_excess",
		NominalBagWeightKg,
	).Error
}

// BackfillBagWeight recomputes bag_weight_kg for every stored row from the
// fixed formula. Operational tool for repairing derived-field drift; the
// result is identical on repeated runs.
func BackfillBagWeight() (int64, error) {
	db := config.GetDB()
	if db == nil {
		return 0, utils.ErrorStoreUnavailable
	}

	result := db.Exec(
		"UPDATE delivery_reports SET bag_weight_kg = ? - per_bag_short_excess",
		NominalBagWeightKg,
	)
	return result.RowsAffected, result.Error
}
