package mailsync

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/deliverytrack_backend/models"
	"github.com/shopspring/decimal"
)

func candidateFor(day time.Time, receivedAt time.Time, subject string, shortKg int) CandidateReport {
	return CandidateReport{
		Record: &models.DeliveryReport{
			ReportDate:        day,
			ShortKg:           shortKg,
			PerBagShortExcess: decimal.Zero,
			EmailSubject:      subject,
			EmailReceivedAt:   receivedAt,
		},
		SourceSubject:    subject,
		SourceReceivedAt: receivedAt,
	}
}

func TestReconcile_LatestReceivedWinsPerDay(t *testing.T) {
	day := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	morning := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	afternoon := time.Date(2024, 1, 5, 14, 0, 0, 0, time.UTC)

	records, failures := reconcile([]CandidateReport{
		candidateFor(day, morning, "morning resend", 100),
		candidateFor(day, afternoon, "afternoon correction", 200),
	})
	if len(failures) != 0 {
		t.Fatalf("failures = %d; want 0", len(failures))
	}
	if len(records) != 1 {
		t.Fatalf("records = %d; want 1", len(records))
	}
	if records[0].ShortKg != 200 {
		t.Fatalf("kept shortKg = %d; want the 14:00 message's 200", records[0].ShortKg)
	}
}

func TestReconcile_TieKeepsFirstSeen(t *testing.T) {
	day := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	at := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)

	records, _ := reconcile([]CandidateReport{
		candidateFor(day, at, "first", 1),
		candidateFor(day, at, "second", 2),
	})
	if len(records) != 1 {
		t.Fatalf("records = %d; want 1", len(records))
	}
	if records[0].ShortKg != 1 {
		t.Fatalf("kept shortKg = %d; want first-seen 1", records[0].ShortKg)
	}
}

func TestReconcile_DistinctDaysOrderedByDate(t *testing.T) {
	d1 := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)
	at := time.Date(2024, 1, 6, 9, 0, 0, 0, time.UTC)

	records, _ := reconcile([]CandidateReport{
		candidateFor(d2, at, "later day", 6),
		candidateFor(d1, at, "earlier day", 5),
	})
	if len(records) != 2 {
		t.Fatalf("records = %d; want 2", len(records))
	}
	if !records[0].ReportDate.Equal(d1) || !records[1].ReportDate.Equal(d2) {
		t.Fatalf("records not ordered by date: %s, %s", records[0].ReportDate, records[1].ReportDate)
	}
}

func TestReconcile_FailuresPassThrough(t *testing.T) {
	day := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	at := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)

	records, failures := reconcile([]CandidateReport{
		candidateFor(day, at, "good", 1),
		{FailureReason: FailureDateNotFound, SourceSubject: "bad", SourceReceivedAt: at},
	})
	if len(records) != 1 {
		t.Fatalf("records = %d; want 1", len(records))
	}
	if len(failures) != 1 {
		t.Fatalf("failures = %d; want 1", len(failures))
	}
	if failures[0].Subject != "bad" || failures[0].Reason != string(FailureDateNotFound) {
		t.Fatalf("unexpected failure item: %+v", failures[0])
	}
}
