package reports

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"bitbucket.org/mmdatafocus/deliverytrack_backend/models"
	"bitbucket.org/mmdatafocus/deliverytrack_backend/utils"
	"github.com/xuri/excelize/v2"
)

// Export column order is fixed; downstream spreadsheets key on position.
var deliveryExportHeaders = []string{
	"date",
	"short_kg",
	"excess_kg",
	"per_bag_short_excess",
	"email_subject",
	"email_received_at",
}

func deliveryExportRow(r *models.DeliveryReport) []interface{} {
	return []interface{}{
		r.ReportDate.Format(utils.DateLayout),
		r.ShortKg,
		r.ExcessKg,
		r.PerBagShortExcess.String(),
		r.EmailSubject,
		r.EmailReceivedAt.Format("2006-01-02 15:04:05"),
	}
}

// BuildDeliveryReportWorkbook renders the full record set, ordered by date,
// into an xlsx workbook.
func BuildDeliveryReportWorkbook(ctx context.Context) (*excelize.File, error) {
	records, err := models.GetAllDeliveryReports(ctx)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheetName := "DeliveryReports"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	col := 'A'
	for _, h := range deliveryExportHeaders {
		f.SetCellValue(sheetName, fmt.Sprintf("%c1", col), h)
		col++
	}

	for i, r := range records {
		col := 'A'
		for _, value := range deliveryExportRow(r) {
			f.SetCellValue(sheetName, fmt.Sprintf("%c%d", col, i+2), value)
			col++
		}
	}

	return f, nil
}

// WriteDeliveryReportCSV writes the same export as a flat CSV stream.
func WriteDeliveryReportCSV(ctx context.Context, w io.Writer) (int, error) {
	records, err := models.GetAllDeliveryReports(ctx)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(deliveryExportHeaders); err != nil {
		return 0, err
	}
	for _, r := range records {
		row := make([]string, 0, len(deliveryExportHeaders))
		for _, v := range deliveryExportRow(r) {
			row = append(row, fmt.Sprint(v))
		}
		if err := cw.Write(row); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(records), cw.Error()
}
