package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/deliverytrack_backend/config"
	"bitbucket.org/mmdatafocus/deliverytrack_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SyncRunStatusQueued  = "QUEUED"
	SyncRunStatusRunning = "RUNNING"
	SyncRunStatusSuccess = "SUCCESS"
	SyncRunStatusFailed  = "FAILED"
)

const (
	SyncTriggeredByAPI    = "api"
	SyncTriggeredByPubSub = "pubsub"
	SyncTriggeredByCLI    = "cli"
)

// SyncRun is the audit row for one sync session. It records the requested
// window, final counters and per-message failure details; it is diagnostics
// only and never feeds back into the delivery_reports data.
type SyncRun struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	Status        string    `gorm:"size:16;index" json:"status"`
	TriggeredBy   string    `gorm:"size:16" json:"triggered_by"`
	FromDate      time.Time `gorm:"type:date" json:"from_date"`
	ToDate        time.Time `gorm:"type:date" json:"to_date"`

	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	DurationMs int64      `json:"duration_ms"`

	ProcessedCount int `json:"processed_count"`
	SkippedCount   int `json:"skipped_count"`
	SyncedCount    int `json:"synced_count"`
	FailedCount    int `json:"failed_count"`

	FailuresJSON []byte `gorm:"type:json" json:"-"`
	ErrorMessage string `gorm:"size:1024" json:"error_message"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SyncFailureItem is one skipped-with-reason entry in FailuresJSON.
type SyncFailureItem struct {
	Subject string `json:"subject"`
	Reason  string `json:"reason"`
}

func CreateSyncRun(ctx context.Context, from time.Time, to time.Time, triggeredBy string) (*SyncRun, error) {
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorStoreUnavailable
	}

	run := &SyncRun{
		CorrelationId: uuid.NewString(),
		Status:        SyncRunStatusQueued,
		TriggeredBy:   triggeredBy,
		FromDate:      utils.DayKey(from),
		ToDate:        utils.DayKey(to),
	}
	if err := db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func GetSyncRunById(ctx context.Context, id uint) (*SyncRun, error) {
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorStoreUnavailable
	}

	var run SyncRun
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &run, nil
}

func GetRecentSyncRuns(ctx context.Context, limit int) ([]*SyncRun, error) {
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorStoreUnavailable
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var runs []*SyncRun
	if err := db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// MarkSyncRunRunning transitions a queued run to RUNNING and stamps its start
// time. Terminal runs are left untouched so a redelivered trigger is a no-op.
func MarkSyncRunRunning(ctx context.Context, run *SyncRun) error {
	db := config.GetDB()
	if db == nil {
		return utils.ErrorStoreUnavailable
	}

	now := time.Now()
	startedAt := run.StartedAt
	if startedAt == nil {
		startedAt = &now
	}
	return db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":     SyncRunStatusRunning,
		"started_at": startedAt,
	}).Error
}

// FinishSyncRun records the terminal state and counters of a run.
func FinishSyncRun(ctx context.Context, run *SyncRun, status string, processed int, skipped int, synced int, failures []SyncFailureItem, runErr error) error {
	db := config.GetDB()
	if db == nil {
		return utils.ErrorStoreUnavailable
	}

	finishedAt := time.Now()
	var durationMs int64
	if run.StartedAt != nil {
		durationMs = finishedAt.Sub(*run.StartedAt).Milliseconds()
	}

	failuresJSON, _ := json.Marshal(failures)
	updates := map[string]interface{}{
		"status":          status,
		"finished_at":     finishedAt,
		"duration_ms":     durationMs,
		"processed_count": processed,
		"skipped_count":   skipped,
		"synced_count":    synced,
		"failed_count":    len(failures),
		"failures_json":   failuresJSON,
	}
	if runErr != nil {
		updates["error_message"] = runErr.Error()
	}
	return db.WithContext(ctx).Model(run).Updates(updates).Error
}

// DecodeSyncFailures unpacks FailuresJSON; a corrupt payload decodes to nil.
func DecodeSyncFailures(raw []byte) []SyncFailureItem {
	if len(raw) == 0 {
		return nil
	}
	var items []SyncFailureItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}
