package mailsync

import (
	"sort"

	"bitbucket.org/mmdatafocus/deliverytrack_backend/models"
	"bitbucket.org/mmdatafocus/deliverytrack_backend/utils"
)

// reconcile collapses candidates to at most one record per calendar day.
// For each day the record whose source message was received latest wins;
// on an exact timestamp tie the earlier candidate in input order is kept.
// Failed candidates carry no record and pass through only as failure items.
func reconcile(candidates []CandidateReport) (records []*models.DeliveryReport, failures []models.SyncFailureItem) {
	type winner struct {
		record *models.DeliveryReport
		order  int
	}
	byDay := map[int64]winner{}

	for i, c := range candidates {
		if c.Record == nil {
			failures = append(failures, models.SyncFailureItem{
				Subject: c.SourceSubject,
				Reason:  string(c.FailureReason),
			})
			continue
		}

		key := utils.DayKey(c.Record.ReportDate).Unix()
		current, exists := byDay[key]
		if !exists || c.Record.EmailReceivedAt.After(current.record.EmailReceivedAt) {
			byDay[key] = winner{record: c.Record, order: i}
		}
	}

	records = make([]*models.DeliveryReport, 0, len(byDay))
	for _, w := range byDay {
		records = append(records, w.record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ReportDate.Before(records[j].ReportDate)
	})
	return records, failures
}
