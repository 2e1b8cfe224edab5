package mailsync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/deliverytrack_backend/models"
	"bitbucket.org/mmdatafocus/deliverytrack_backend/utils"
	"github.com/shopspring/decimal"
)

type fakeSource struct {
	messages []Message
	err      error
}

func (f *fakeSource) FetchWindow(ctx context.Context, from time.Time, to time.Time) ([]Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.messages, nil
}

type fakeStore struct {
	byDate  map[string]*models.DeliveryReport
	upserts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{byDate: map[string]*models.DeliveryReport{}}
}

func (f *fakeStore) UpsertByDate(ctx context.Context, record *models.DeliveryReport) error {
	f.upserts++
	copied := *record
	f.byDate[record.ReportDate.Format(utils.DateLayout)] = &copied
	return nil
}

func reportMessage(date string, receivedAt time.Time, subject string, shortKg int, excessKg int, perBag string) Message {
	body := fmt.Sprintf(`Date: %s

Daily Report
Total Delivery   Bag Weight   Physical Weight   Short   Excess
1000   50000   49900   %d   %d
Per Bag Short/Excess: %s
`, date, shortKg, excessKg, perBag)
	return Message{
		SenderAddress: "scale.sscil@sevenringscement.com",
		SenderName:    "Scale Section",
		Subject:       subject,
		Body:          body,
		ReceivedAt:    receivedAt,
	}
}

func testWindow() SyncRequest {
	return SyncRequest{
		FromDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ToDate:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestEngineRun_EndToEnd(t *testing.T) {
	received := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	source := &fakeSource{messages: []Message{
		reportMessage("05-Jan-2024", received, "Weigh Bridge Report", 320, 2070, "-0.0414"),
	}}
	store := newFakeStore()
	engine := NewEngine(source, store, DefaultConfig())

	summary, err := engine.Run(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.ProcessedCount != 1 || summary.SkippedCount != 0 || summary.SyncedCount != 1 {
		t.Fatalf("summary = %+v; want processed=1 skipped=0 synced=1", summary)
	}

	record := store.byDate["2024-01-05"]
	if record == nil {
		t.Fatal("no record stored for 2024-01-05")
	}
	if record.ShortKg != 320 || record.ExcessKg != 2070 {
		t.Fatalf("stored short/excess = %d/%d; want 320/2070", record.ShortKg, record.ExcessKg)
	}
	if !record.BagWeightKg.Equal(decimal.RequireFromString("50.0414")) {
		t.Fatalf("stored bagWeightKg = %s; want 50.0414", record.BagWeightKg)
	}
}

// Running the same window twice must leave the store in the same state.
func TestEngineRun_Idempotent(t *testing.T) {
	received := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	source := &fakeSource{messages: []Message{
		reportMessage("05-Jan-2024", received, "Weigh Bridge Report", 320, 2070, "-0.0414"),
	}}
	store := newFakeStore()
	engine := NewEngine(source, store, DefaultConfig())

	for i := 0; i < 2; i++ {
		if _, err := engine.Run(context.Background(), testWindow()); err != nil {
			t.Fatalf("Run #%d: %v", i+1, err)
		}
	}

	if len(store.byDate) != 1 {
		t.Fatalf("stored records = %d; want 1", len(store.byDate))
	}
	if store.byDate["2024-01-05"].ShortKg != 320 {
		t.Fatalf("stored shortKg = %d; want 320", store.byDate["2024-01-05"].ShortKg)
	}
}

func TestEngineRun_SubjectFiltering(t *testing.T) {
	received := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	misspelled := reportMessage("05-Jan-2024", received, "Weigh Bridge Repot", 1, 0, "0.1")
	joined := reportMessage("06-Jan-2024", received, "Weighbridge Report", 2, 0, "0.1")
	unrelated := reportMessage("07-Jan-2024", received, "Invoice for December", 3, 0, "0.1")

	source := &fakeSource{messages: []Message{misspelled, joined, unrelated}}
	store := newFakeStore()
	engine := NewEngine(source, store, DefaultConfig())

	summary, err := engine.Run(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.SkippedCount != 1 {
		t.Fatalf("skipped = %d; want 1 (the unrelated subject)", summary.SkippedCount)
	}
	if summary.SyncedCount != 2 {
		t.Fatalf("synced = %d; want 2", summary.SyncedCount)
	}
	if store.byDate["2024-01-07"] != nil {
		t.Fatal("unrelated message must not be stored")
	}
}

func TestEngineRun_SenderFiltering(t *testing.T) {
	received := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	stranger := reportMessage("05-Jan-2024", received, "Weigh Bridge Report", 1, 0, "0.1")
	stranger.SenderAddress = "spoof@example.com"
	stranger.SenderName = "Spoofer"

	aliasOnly := reportMessage("06-Jan-2024", received, "Weigh Bridge Report", 2, 0, "0.1")
	aliasOnly.SenderAddress = ""
	aliasOnly.SenderName = "Scale.SSCIL (Weighbridge)"

	source := &fakeSource{messages: []Message{stranger, aliasOnly}}
	store := newFakeStore()
	engine := NewEngine(source, store, DefaultConfig())

	summary, err := engine.Run(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.SkippedCount != 1 || summary.SyncedCount != 1 {
		t.Fatalf("summary = %+v; want skipped=1 synced=1", summary)
	}
	if store.byDate["2024-01-05"] != nil {
		t.Fatal("spoofed sender must not be stored")
	}
	if store.byDate["2024-01-06"] == nil {
		t.Fatal("alias-matched sender must be stored")
	}
}

func TestEngineRun_DuplicateDayKeepsLatest(t *testing.T) {
	morning := reportMessage("05-Jan-2024", time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC), "Weigh Bridge Report", 100, 0, "0.1")
	afternoon := reportMessage("05-Jan-2024", time.Date(2024, 1, 5, 14, 0, 0, 0, time.UTC), "Weigh Bridge Report (corrected)", 200, 0, "0.2")

	source := &fakeSource{messages: []Message{morning, afternoon}}
	store := newFakeStore()
	engine := NewEngine(source, store, DefaultConfig())

	summary, err := engine.Run(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.SyncedCount != 1 {
		t.Fatalf("synced = %d; want 1", summary.SyncedCount)
	}
	if store.upserts != 1 {
		t.Fatalf("upserts = %d; want 1", store.upserts)
	}
	if store.byDate["2024-01-05"].ShortKg != 200 {
		t.Fatalf("stored shortKg = %d; want the 14:00 message's 200", store.byDate["2024-01-05"].ShortKg)
	}
}

func TestEngineRun_ParseFailureRecorded(t *testing.T) {
	received := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	broken := Message{
		SenderAddress: "scale.sscil@sevenringscement.com",
		Subject:       "Weigh Bridge Report",
		Body:          "the attachment did not render",
		ReceivedAt:    received,
	}

	source := &fakeSource{messages: []Message{broken}}
	store := newFakeStore()
	engine := NewEngine(source, store, DefaultConfig())

	summary, err := engine.Run(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.SyncedCount != 0 || summary.SkippedCount != 1 {
		t.Fatalf("summary = %+v; want synced=0 skipped=1", summary)
	}
	if len(summary.Failures) != 1 {
		t.Fatalf("failures = %d; want 1", len(summary.Failures))
	}
	if summary.Failures[0].Reason != string(FailureDateNotFound) {
		t.Fatalf("failure reason = %s; want %s", summary.Failures[0].Reason, FailureDateNotFound)
	}
}

func TestEngineRun_SourceUnavailable(t *testing.T) {
	source := &fakeSource{err: fmt.Errorf("%w: connection refused", utils.ErrorSourceUnavailable)}
	engine := NewEngine(source, newFakeStore(), DefaultConfig())

	_, err := engine.Run(context.Background(), testWindow())
	if !errors.Is(err, utils.ErrorSourceUnavailable) {
		t.Fatalf("err = %v; want ErrorSourceUnavailable", err)
	}
}

func TestEngineRun_ContextCancelled(t *testing.T) {
	received := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	source := &fakeSource{messages: []Message{
		reportMessage("05-Jan-2024", received, "Weigh Bridge Report", 1, 0, "0.1"),
	}}
	engine := NewEngine(source, newFakeStore(), DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := engine.Run(ctx, testWindow()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v; want context.Canceled", err)
	}
}
