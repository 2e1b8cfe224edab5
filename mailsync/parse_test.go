package mailsync

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const dailyReportBody = `Dear Sir,

Please find the weigh bridge report.

Date: 05-Jan-2024

Daily Report
Total Delivery   Bag Weight   Physical Weight   Short   Excess
12345   617250   616500   320   2070
Per Bag Short/Excess: -0.0414

Monthly to Date Report
Total Delivery   Bag Weight   Physical Weight   Short   Excess
98765   9876500   9870000   9100   2600
Per Bag Short/Excess: -0.0330

Regards,
Scale Section`

func TestParseReportBody_DailyLayout(t *testing.T) {
	parsed, reason := parseReportBody(dailyReportBody, "Weigh Bridge Report")
	if parsed == nil {
		t.Fatalf("parse failed: %s", reason)
	}

	wantDate := time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)
	if !parsed.Date.Equal(wantDate) {
		t.Fatalf("date = %s; want %s", parsed.Date, wantDate)
	}
	if parsed.ShortKg != 320 {
		t.Fatalf("shortKg = %d; want 320", parsed.ShortKg)
	}
	if parsed.ExcessKg != 2070 {
		t.Fatalf("excessKg = %d; want 2070", parsed.ExcessKg)
	}
	wantPerBag := decimal.RequireFromString("-0.0414")
	if !parsed.PerBagShortExcess.Equal(wantPerBag) {
		t.Fatalf("perBag = %s; want %s", parsed.PerBagShortExcess, wantPerBag)
	}
}

// The monthly block must never leak into the daily numbers, even without the
// Daily Report marker: the span between the two identical headers wins.
func TestParseReportBody_TwoHeaderLayout(t *testing.T) {
	body := `Delivery Information: Bag Cement
Date: 12/Feb/2024

Total Delivery   Bag Weight   Physical Weight   Short   Excess
500   25000   24910   120   30

Total Delivery   Bag Weight   Physical Weight   Short   Excess
9000   450000   449000   3100   2100

Per Bag Short: 0.18`

	parsed, reason := parseReportBody(body, "")
	if parsed == nil {
		t.Fatalf("parse failed: %s", reason)
	}
	if parsed.ShortKg != 120 || parsed.ExcessKg != 30 {
		t.Fatalf("short/excess = %d/%d; want 120/30", parsed.ShortKg, parsed.ExcessKg)
	}
	if !parsed.PerBagShortExcess.Equal(decimal.RequireFromString("0.18")) {
		t.Fatalf("perBag = %s; want 0.18", parsed.PerBagShortExcess)
	}
}

func TestParseReportBody_NoAnchors(t *testing.T) {
	body := `Date: 31-Dec-2023
Physical Weight Short Excess
100 5000 4990 40 30
Per Bag Short/Excess: 0.1`

	parsed, reason := parseReportBody(body, "")
	if parsed == nil {
		t.Fatalf("parse failed: %s", reason)
	}
	if parsed.ShortKg != 40 || parsed.ExcessKg != 30 {
		t.Fatalf("short/excess = %d/%d; want 40/30", parsed.ShortKg, parsed.ExcessKg)
	}
}

func TestParseReportBody_DateFromSubject(t *testing.T) {
	body := `Daily Report
Total Delivery Bag Weight Physical Weight Short Excess
10 500 498 2 0
Per Bag Short: 0.2`

	parsed, reason := parseReportBody(body, "Weighbridge Report 07-Mar-2024")
	if parsed == nil {
		t.Fatalf("parse failed: %s", reason)
	}
	want := time.Date(2024, time.March, 7, 0, 0, 0, 0, time.UTC)
	if !parsed.Date.Equal(want) {
		t.Fatalf("date = %s; want %s", parsed.Date, want)
	}
}

func TestParseReportBody_SectionPromisedButMissing(t *testing.T) {
	body := `Date: 05-Jan-2024
Delivery Information: Bag Cement
(no table attached)`

	parsed, reason := parseReportBody(body, "")
	if parsed != nil {
		t.Fatal("expected parse failure")
	}
	if reason != FailureSectionNotFound {
		t.Fatalf("reason = %s; want %s", reason, FailureSectionNotFound)
	}
}

func TestParseReportBody_PerBagMissing(t *testing.T) {
	body := `Date: 05-Jan-2024
Daily Report
Total Delivery Bag Weight Physical Weight Short Excess
12345 617250 616500 320 2070`

	parsed, reason := parseReportBody(body, "")
	if parsed != nil {
		t.Fatal("expected parse failure")
	}
	if reason != FailurePerBagValueNotFound {
		t.Fatalf("reason = %s; want %s", reason, FailurePerBagValueNotFound)
	}
}

func TestResolveReportDate(t *testing.T) {
	cases := []struct {
		name string
		text string
		want time.Time
		ok   bool
	}{
		{"labelled dashes", "Date: 05-Jan-2024", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), true},
		{"labelled slashes", "Date: 12/Feb/2024", time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC), true},
		{"bare triple", "report for 28-Nov-2023 attached", time.Date(2023, 11, 28, 0, 0, 0, 0, time.UTC), true},
		{"full month name", "Date: 05-January-2024", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), true},
		{"two digit year", "Date: 05-Jan-24", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), true},
		{"unknown month", "Date: 05-Abc-2024", time.Time{}, false},
		{"overflow day", "Date: 31-Feb-2024", time.Time{}, false},
		{"no date", "no dates here", time.Time{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := resolveReportDate(tc.text)
			if ok != tc.ok {
				t.Fatalf("ok = %v; want %v", ok, tc.ok)
			}
			if ok && !got.Equal(tc.want) {
				t.Fatalf("date = %s; want %s", got, tc.want)
			}
		})
	}
}

func TestBuildRecord_DerivesBagWeight(t *testing.T) {
	cfg := DefaultConfig()
	parsed := &parsedReport{
		Date:              time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		ShortKg:           320,
		ExcessKg:          2070,
		PerBagShortExcess: decimal.RequireFromString("-0.0414"),
	}

	record := buildRecord(cfg, parsed, "Weigh Bridge Report", time.Now())
	want := decimal.RequireFromString("50.0414")
	if !record.BagWeightKg.Equal(want) {
		t.Fatalf("bagWeightKg = %s; want %s", record.BagWeightKg, want)
	}
}
