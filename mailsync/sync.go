package mailsync

import (
	"context"
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/deliverytrack_backend/config"
	"bitbucket.org/mmdatafocus/deliverytrack_backend/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("mailsync")

// SessionState tracks where in the pipeline a running session is. States
// advance strictly forward; Failed is reachable from any non-terminal state.
type SessionState string

const (
	StateIdle        SessionState = "Idle"
	StateFetching    SessionState = "Fetching"
	StateFiltering   SessionState = "Filtering"
	StateParsing     SessionState = "Parsing"
	StateReconciling SessionState = "Reconciling"
	StatePersisting  SessionState = "Persisting"
	StateDone        SessionState = "Done"
	StateFailed      SessionState = "Failed"
)

// Engine runs one synchronization session end to end: fetch, filter, parse,
// reconcile, persist. It holds no cross-session state; construct one per run
// or share freely, Run is safe for concurrent use.
type Engine struct {
	source MessageSource
	store  RecordStore
	cfg    Config
}

func NewEngine(source MessageSource, store RecordStore, cfg Config) *Engine {
	return &Engine{source: source, store: store, cfg: cfg}
}

// Run executes the pipeline for one date window. A non-nil error means the
// session aborted with the store untouched beyond already-committed upserts;
// per-message parse failures are not errors and land in the summary instead.
func (e *Engine) Run(ctx context.Context, req SyncRequest) (*SyncSummary, error) {
	ctx, span := tracer.Start(ctx, "mailsync.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("sync.from", req.FromDate.Format("2006-01-02")),
		attribute.String("sync.to", req.ToDate.Format("2006-01-02")),
	)

	logger := config.GetLogger()
	state := StateFetching

	if e.source == nil {
		return nil, fmt.Errorf("%w: no message source configured", utils.ErrorSourceUnavailable)
	}
	messages, err := e.source.FetchWindow(ctx, req.FromDate, req.ToDate)
	if err != nil {
		config.LogError(logger, "mailsync", "Run", string(state), req, err)
		return nil, err
	}

	summary := &SyncSummary{}
	state = StateFiltering
	var matched []Message
	for _, msg := range messages {
		summary.ProcessedCount++
		if !e.matchesSender(msg) || !e.matchesSubject(msg.Subject) {
			summary.SkippedCount++
			continue
		}
		matched = append(matched, msg)
	}

	state = StateParsing
	candidates := make([]CandidateReport, 0, len(matched))
	for _, msg := range matched {
		if err := ctx.Err(); err != nil {
			config.LogError(logger, "mailsync", "Run", string(state), msg.Subject, err)
			return nil, err
		}

		candidate := CandidateReport{
			SourceSubject:    msg.Subject,
			SourceReceivedAt: msg.ReceivedAt,
		}
		parsed, reason := parseReportBody(msg.Body, msg.Subject)
		if parsed == nil {
			candidate.FailureReason = reason
			logger.WithField("subject", msg.Subject).
				WithField("reason", string(reason)).
				Debug("report message failed to parse")
		} else {
			candidate.Record = buildRecord(e.cfg, parsed, msg.Subject, msg.ReceivedAt)
		}
		candidates = append(candidates, candidate)
	}

	state = StateReconciling
	records, failures := reconcile(candidates)
	summary.SkippedCount += len(failures)
	summary.Failures = failures

	state = StatePersisting
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			config.LogError(logger, "mailsync", "Run", string(state), record.ReportDate, err)
			return nil, err
		}
		if err := e.store.UpsertByDate(ctx, record); err != nil {
			config.LogError(logger, "mailsync", "Run", string(state), record.ReportDate, err)
			return nil, fmt.Errorf("upsert %s: %w", record.ReportDate.Format("2006-01-02"), err)
		}
		summary.SyncedCount++
	}

	span.SetAttributes(
		attribute.Int("sync.processed", summary.ProcessedCount),
		attribute.Int("sync.skipped", summary.SkippedCount),
		attribute.Int("sync.synced", summary.SyncedCount),
	)
	return summary, nil
}

// matchesSender accepts the exact expected address, or any configured alias
// appearing as a substring of the sender address or display name. Gateways
// expose sender identity inconsistently, so both representations count.
func (e *Engine) matchesSender(msg Message) bool {
	address := strings.ToLower(strings.TrimSpace(msg.SenderAddress))
	name := strings.ToLower(strings.TrimSpace(msg.SenderName))

	if address == strings.ToLower(e.cfg.ExpectedSender) {
		return true
	}
	for _, alias := range e.cfg.SenderAliases {
		alias = strings.ToLower(alias)
		if alias == "" {
			continue
		}
		if strings.Contains(address, alias) || strings.Contains(name, alias) {
			return true
		}
	}
	return false
}

// matchesSubject requires every word of at least one topic keyword set, plus
// at least one report keyword, all case-insensitive substring matches.
func (e *Engine) matchesSubject(subject string) bool {
	subject = strings.ToLower(subject)

	topicOk := false
	for _, set := range e.cfg.TopicKeywordSets {
		all := len(set) > 0
		for _, word := range set {
			if !strings.Contains(subject, strings.ToLower(word)) {
				all = false
				break
			}
		}
		if all {
			topicOk = true
			break
		}
	}
	if !topicOk {
		return false
	}

	for _, word := range e.cfg.ReportKeywords {
		if strings.Contains(subject, strings.ToLower(word)) {
			return true
		}
	}
	return false
}
