package mailsync

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/deliverytrack_backend/models"
	"github.com/shopspring/decimal"
)

// Report bodies arrive in three known layouts:
//
//  1. earliest: a single daily table, optionally labelled "Daily Report" and
//     followed by a "Monthly to Date Report" block;
//  2. labelled: "Daily Report" ... "Monthly to Date Report" markers around
//     the daily block;
//  3. two-column: a "Delivery Information: Bag Cement" block repeating the
//     identical five-column header twice, daily first, monthly second.
//
// Extraction is an ordered list of independent strategies, each a single
// anchor + scan. Adding a layout means adding an anchor, not widening a
// regex.
var (
	reDateLabelled = regexp.MustCompile(`(?i)Date:\s*(\d{2})[-/\s]+([A-Za-z]{3,})[-/\s]+(\d{2,4})`)
	reDateBare     = regexp.MustCompile(`(\d{2})[-/\s]+([A-Za-z]{3,})[-/\s]+(\d{2,4})`)

	reDailyMarker   = regexp.MustCompile(`(?i)Daily\s+Report`)
	reMonthlyMarker = regexp.MustCompile(`(?i)Monthly\s+to\s+Date(?:\s+Report)?`)
	reDeliveryInfo  = regexp.MustCompile(`(?i)Delivery\s+Information:\s*Bag\s+Cement`)
	reTableHeader   = regexp.MustCompile(`(?i)Total\s+Delivery\s+Bag\s+Weight\s+Physical\s+Weight\s+Short\s+Excess`)

	reAnchoredHeader    = regexp.MustCompile(`(?i)Physical\s+Weight\s+Short\s+Excess`)
	reShortExcessHeader = regexp.MustCompile(`(?i)Short\s+Excess`)
	reFiveIntegers      = regexp.MustCompile(`(\d+)\s+(\d+)\s+(\d+)\s+(\d+)\s+(\d+)`)

	rePerBag = regexp.MustCompile(`(?i)Per\s+Bags?\s+Short(?:\s*/?\s*Excess)?:\s*(-?\d+\.?\d*)`)
)

var monthsByAbbrev = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// parsedReport is the raw extraction result before record building.
type parsedReport struct {
	Date              time.Time
	ShortKg           int
	ExcessKg          int
	PerBagShortExcess decimal.Decimal
}

// resolveReportDate finds a day/month-name/year triple and canonicalizes it.
// The labelled "Date:" form wins; a bare triple anywhere in the text is the
// fallback (also used for subject-embedded dates). Month names longer than
// three letters are truncated; two-digit years resolve into 2000-2099.
func resolveReportDate(text string) (time.Time, bool) {
	m := reDateLabelled.FindStringSubmatch(text)
	if m == nil {
		m = reDateBare.FindStringSubmatch(text)
	}
	if m == nil {
		return time.Time{}, false
	}

	day, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[3])
	if year < 100 {
		year += 2000
	}

	monthKey := strings.ToLower(m[2])
	if len(monthKey) > 3 {
		monthKey = monthKey[:3]
	}
	month, ok := monthsByAbbrev[monthKey]
	if !ok {
		return time.Time{}, false
	}

	date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (e.g. 31-Feb becomes 03-Mar); a shifted
	// result means the triple was not a real calendar date.
	if date.Day() != day || date.Month() != month || date.Year() != year {
		return time.Time{}, false
	}
	return date, true
}

// locateDailySection bounds the daily sub-report, excluding any
// monthly-to-date data sharing the document. Ordered anchors:
//
//  1. explicit "Daily Report" marker: span runs to the "Monthly to Date"
//     marker, or to the end if there is none;
//  2. the five-column header repeated: span runs from the first header to
//     the start of the second, so numeric data after the second occurrence
//     is unreachable;
//  3. a single header: the whole body (nothing monthly to collide with);
//  4. a "Delivery Information" block that promises a header but has none is
//     a failure, never a fallback to whole-body scanning;
//  5. no anchors at all: the whole body (earliest layout).
func locateDailySection(body string) (string, bool) {
	if loc := reDailyMarker.FindStringIndex(body); loc != nil {
		section := body[loc[1]:]
		if m := reMonthlyMarker.FindStringIndex(section); m != nil {
			section = section[:m[0]]
		}
		return section, true
	}

	headers := reTableHeader.FindAllStringIndex(body, -1)
	switch {
	case len(headers) >= 2:
		return body[headers[0][0]:headers[1][0]], true
	case len(headers) == 1:
		return body, true
	}

	if reDeliveryInfo.MatchString(body) {
		return "", false
	}
	return body, true
}

// extractTableShortExcess pulls the short and excess kilogram columns out of
// the daily section. Two strategies in order, both positional on the first
// run of five integers after their anchor: (total, bagWeight,
// physicalWeight, short, excess).
func extractTableShortExcess(section string) (shortKg int, excessKg int, ok bool) {
	anchor := reAnchoredHeader.FindStringIndex(section)
	if anchor == nil {
		anchor = reShortExcessHeader.FindStringIndex(section)
	}
	if anchor == nil {
		return 0, 0, false
	}

	m := reFiveIntegers.FindStringSubmatch(section[anchor[1]:])
	if m == nil {
		return 0, 0, false
	}

	shortKg, _ = strconv.Atoi(m[4])
	excessKg, _ = strconv.Atoi(m[5])
	return shortKg, excessKg, true
}

// extractPerBag finds the signed per-bag short/excess value. The daily
// section is searched first; the two-column layout keeps the label outside
// the table span, so the whole body is the fallback and its first occurrence
// (the daily one) wins.
func extractPerBag(section string, body string) (decimal.Decimal, bool) {
	m := rePerBag.FindStringSubmatch(section)
	if m == nil {
		m = rePerBag.FindStringSubmatch(body)
	}
	if m == nil {
		return decimal.Decimal{}, false
	}
	value, err := decimal.NewFromString(m[1])
	if err != nil {
		return decimal.Decimal{}, false
	}
	return value, true
}

// parseReportBody runs the full extraction pipeline over one message.
// Subject is consulted only as a date fallback for bodies that embed the
// date in the subject line instead. Partial results are never returned:
// any missing piece fails the whole message.
func parseReportBody(body string, subject string) (*parsedReport, FailureReason) {
	date, ok := resolveReportDate(body)
	if !ok {
		date, ok = resolveReportDate(subject)
	}
	if !ok {
		return nil, FailureDateNotFound
	}

	section, ok := locateDailySection(body)
	if !ok {
		return nil, FailureSectionNotFound
	}

	shortKg, excessKg, ok := extractTableShortExcess(section)
	if !ok {
		return nil, FailureTableNotFound
	}

	perBag, ok := extractPerBag(section, body)
	if !ok {
		return nil, FailurePerBagValueNotFound
	}

	return &parsedReport{
		Date:              date,
		ShortKg:           shortKg,
		ExcessKg:          excessKg,
		PerBagShortExcess: perBag,
	}, ""
}

// buildRecord combines the parse result with provenance into a store-ready
// record. Pure computation; inputs are already validated upstream.
func buildRecord(cfg Config, parsed *parsedReport, subject string, receivedAt time.Time) *models.DeliveryReport {
	return &models.DeliveryReport{
		ReportDate:        parsed.Date,
		ShortKg:           parsed.ShortKg,
		ExcessKg:          parsed.ExcessKg,
		PerBagShortExcess: parsed.PerBagShortExcess,
		BagWeightKg:       cfg.NominalBagWeight.Sub(parsed.PerBagShortExcess),
		EmailSubject:      subject,
		EmailReceivedAt:   receivedAt,
	}
}
