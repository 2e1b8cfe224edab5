package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/deliverytrack_backend/config"
	"bitbucket.org/mmdatafocus/deliverytrack_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NominalBagWeightKg is the rated weight of one cement bag. The stored
// bag_weight_kg is always derived from it: nominal minus the per-bag
// short/excess deviation.
var NominalBagWeightKg = decimal.NewFromInt(50)

// DeliveryReport is the authoritative record for one calendar day of
// weigh-bridge delivery metrics.
//
// Grain: report_date (one row per day). Rows are replaced whole, never
// merged: a newer source message for the same date swaps the entire row.
// bag_weight_kg is derived data and must always equal
// NominalBagWeightKg - per_bag_short_excess.
type DeliveryReport struct {
	ReportDate time.Time `gorm:"primaryKey;type:date" json:"report_date"`

	ShortKg           int             `gorm:"not null" json:"short_kg"`
	ExcessKg          int             `gorm:"not null" json:"excess_kg"`
	PerBagShortExcess decimal.Decimal `gorm:"type:decimal(12,4);not null" json:"per_bag_short_excess"`
	BagWeightKg       decimal.Decimal `gorm:"type:decimal(12,4)" json:"bag_weight_kg"`

	// Provenance only. Which message produced the stored values and when it
	// was received; never consulted for business logic on the metrics.
	EmailSubject    string    `gorm:"size:512" json:"email_subject"`
	EmailReceivedAt time.Time `json:"email_received_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ComputeBagWeight derives the per-bag weight from the deviation value.
func ComputeBagWeight(perBagShortExcess decimal.Decimal) decimal.Decimal {
	return NominalBagWeightKg.Sub(perBagShortExcess)
}

// UpsertDeliveryReport inserts the record or replaces the existing row for
// the same report_date. Applying the same record twice is a no-op change.
func UpsertDeliveryReport(ctx context.Context, record *DeliveryReport) error {
	record.ReportDate = utils.DayKey(record.ReportDate)
	record.BagWeightKg = ComputeBagWeight(record.PerBagShortExcess)

	db := config.GetDB()
	if db == nil {
		return utils.ErrorStoreUnavailable
	}

	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "report_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"short_kg",
			"excess_kg",
			"per_bag_short_excess",
			"bag_weight_kg",
			"email_subject",
			"email_received_at",
			"updated_at",
		}),
	}).Create(record).Error
}

// GetDeliveryReports returns records in the inclusive [from, to] date window,
// ordered by date. A nil bound leaves that side open.
func GetDeliveryReports(ctx context.Context, from *time.Time, to *time.Time) ([]*DeliveryReport, error) {
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorStoreUnavailable
	}

	query := db.WithContext(ctx).Model(&DeliveryReport{})
	if from != nil {
		query = query.Where("report_date >= ?", utils.DayKey(*from))
	}
	if to != nil {
		query = query.Where("report_date <= ?", utils.DayKey(*to))
	}

	var records []*DeliveryReport
	if err := query.Order("report_date").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func GetAllDeliveryReports(ctx context.Context) ([]*DeliveryReport, error) {
	return GetDeliveryReports(ctx, nil, nil)
}

func GetDeliveryReportByDate(ctx context.Context, date time.Time) (*DeliveryReport, error) {
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorStoreUnavailable
	}

	var record DeliveryReport
	err := db.WithContext(ctx).
		Where("report_date = ?", utils.DayKey(date)).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

// UpdateDeliveryReport is the manual correction path used by the dashboard.
// It bypasses parsing/reconciliation, recomputes the derived bag weight and
// replaces the metric fields of the stored row.
func UpdateDeliveryReport(ctx context.Context, date time.Time, shortKg int, excessKg int, perBag decimal.Decimal) (*DeliveryReport, error) {
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorStoreUnavailable
	}

	day := utils.DayKey(date)
	result := db.WithContext(ctx).
		Model(&DeliveryReport{}).
		Where("report_date = ?", day).
		Updates(map[string]interface{}{
			"short_kg":             shortKg,
			"excess_kg":            excessKg,
			"per_bag_short_excess": perBag,
			"bag_weight_kg":        ComputeBagWeight(perBag),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, utils.ErrorRecordNotFound
	}
	return GetDeliveryReportByDate(ctx, day)
}

func DeleteDeliveryReport(ctx context.Context, date time.Time) error {
	db := config.GetDB()
	if db == nil {
		return utils.ErrorStoreUnavailable
	}

	result := db.WithContext(ctx).
		Where("report_date = ?", utils.DayKey(date)).
		Delete(&DeliveryReport{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}
