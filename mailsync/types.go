package mailsync

import (
	"context"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/deliverytrack_backend/models"
	"github.com/shopspring/decimal"
)

// Message is one candidate mail item from the gateway. The engine only reads
// these fields and never writes back to the source.
type Message struct {
	SenderAddress string    `json:"sender_address"`
	SenderName    string    `json:"sender_name"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body"`
	ReceivedAt    time.Time `json:"received_at"`
}

// MessageSource supplies messages received inside an inclusive date window.
type MessageSource interface {
	FetchWindow(ctx context.Context, from time.Time, to time.Time) ([]Message, error)
}

// RecordStore is the keyed-upsert persistence boundary. One row per report
// date; writing the same record twice must be a no-op change.
type RecordStore interface {
	UpsertByDate(ctx context.Context, record *models.DeliveryReport) error
}

// FailureReason classifies why a message that passed the filters could not be
// turned into a record. These are expected outcomes, not errors; the session
// records them and moves on.
type FailureReason string

const (
	FailureDateNotFound        FailureReason = "date_not_found"
	FailureSectionNotFound     FailureReason = "section_not_found"
	FailureTableNotFound       FailureReason = "table_not_found"
	FailurePerBagValueNotFound FailureReason = "per_bag_value_not_found"
)

// CandidateReport is the transient parse result for one message, consumed by
// reconciliation and then discarded. Record is nil when parsing failed.
type CandidateReport struct {
	Record           *models.DeliveryReport
	FailureReason    FailureReason
	SourceSubject    string
	SourceReceivedAt time.Time
}

// SyncRequest is an inclusive calendar date range to synchronize.
type SyncRequest struct {
	FromDate time.Time
	ToDate   time.Time
}

// SyncSummary is the structured result of one session. Skipped counts both
// filter exclusions and parse failures; Failures carries the parse failures
// with their reasons.
type SyncSummary struct {
	ProcessedCount int                      `json:"processed_count"`
	SkippedCount   int                      `json:"skipped_count"`
	SyncedCount    int                      `json:"synced_count"`
	Failures       []models.SyncFailureItem `json:"failures"`
}

// Config carries the sender/subject heuristics and the nominal bag weight as
// data. Earlier versions of the ingest tool duplicated these as literals per
// copy; they are deliberately injected here instead.
type Config struct {
	// ExpectedSender is the canonical sender address.
	ExpectedSender string
	// SenderAliases are case-insensitive substrings accepted against any
	// sender representation (address or display name); mail systems expose
	// sender identity inconsistently across message properties.
	SenderAliases []string
	// TopicKeywordSets: the subject must contain every word of at least one
	// set ("weigh"+"bridge", or the joined "weighbridge" spelling).
	TopicKeywordSets [][]string
	// ReportKeywords: the subject must contain at least one of these; the
	// list tolerates the common "repot" misspelling seen in the wild.
	ReportKeywords []string
	// NominalBagWeight is the rated single-bag weight used to derive
	// bag_weight_kg from the per-bag deviation.
	NominalBagWeight decimal.Decimal
}

// DefaultConfig returns the production heuristics, overridable via env:
// SYNC_EXPECTED_SENDER and SYNC_SENDER_ALIASES (comma separated).
func DefaultConfig() Config {
	cfg := Config{
		ExpectedSender: "scale.sscil@sevenringscement.com",
		SenderAliases:  []string{"scale.sscil", "sevenringscement"},
		TopicKeywordSets: [][]string{
			{"weigh", "bridge"},
			{"weighbridge"},
		},
		ReportKeywords:   []string{"report", "repot"},
		NominalBagWeight: models.NominalBagWeightKg,
	}

	if v := strings.TrimSpace(os.Getenv("SYNC_EXPECTED_SENDER")); v != "" {
		cfg.ExpectedSender = v
	}
	if v := strings.TrimSpace(os.Getenv("SYNC_SENDER_ALIASES")); v != "" {
		aliases := []string{}
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				aliases = append(aliases, part)
			}
		}
		if len(aliases) > 0 {
			cfg.SenderAliases = aliases
		}
	}
	return cfg
}

// SyncRunPayload is the Pub/Sub message queueing one run for execution.
type SyncRunPayload struct {
	RunId         uint   `json:"run_id"`
	CorrelationId string `json:"correlation_id"`
}

// PubSubPushEnvelope is the wrapper Google Pub/Sub uses for push deliveries.
type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}
