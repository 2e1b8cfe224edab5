package mailsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/deliverytrack_backend/config"
	"bitbucket.org/mmdatafocus/deliverytrack_backend/models"
	"bitbucket.org/mmdatafocus/deliverytrack_backend/utils"
	"github.com/bsm/redislock"
)

// sessionLockKey serializes sessions across all replicas. One sync writes to
// a per-date keyed table; overlapping sessions would race on the same rows.
const sessionLockKey = "deliverysync:session-lock"

const sessionLockTTL = 10 * time.Minute

// ProcessSyncRun executes one queued run to completion: acquires the
// cross-replica lock, marks the run RUNNING, drives the engine and records
// the terminal state. Redelivered triggers for terminal runs are no-ops.
func ProcessSyncRun(ctx context.Context, source MessageSource, runId uint) error {
	run, err := models.GetSyncRunById(ctx, runId)
	if err != nil {
		return err
	}
	if run.Status == models.SyncRunStatusSuccess || run.Status == models.SyncRunStatusFailed {
		return nil
	}

	locker := config.GetRedisLock()
	if locker != nil {
		lock, err := locker.Obtain(ctx, sessionLockKey, sessionLockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			return utils.ErrorSyncInProgress
		}
		if err != nil {
			return fmt.Errorf("obtain session lock: %w", err)
		}
		defer lock.Release(context.Background())
	}

	if err := models.MarkSyncRunRunning(ctx, run); err != nil {
		return err
	}
	now := time.Now()
	if run.StartedAt == nil {
		run.StartedAt = &now
	}

	engine := NewEngine(source, NewRecordStore(), DefaultConfig())
	summary, runErr := engine.Run(ctx, SyncRequest{FromDate: run.FromDate, ToDate: run.ToDate})

	if runErr != nil {
		finishErr := models.FinishSyncRun(ctx, run, models.SyncRunStatusFailed, 0, 0, 0, nil, runErr)
		if finishErr != nil {
			config.LogError(config.GetLogger(), "mailsync", "ProcessSyncRun", "finish failed run", run.ID, finishErr)
		} else {
			cacheFinishedRun(ctx, run.ID)
		}
		return runErr
	}

	if err := models.FinishSyncRun(ctx, run, models.SyncRunStatusSuccess,
		summary.ProcessedCount, summary.SkippedCount, summary.SyncedCount, summary.Failures, nil); err != nil {
		return err
	}
	cacheFinishedRun(ctx, run.ID)
	return nil
}

// syncRunCacheEntry is the cached shape of a terminal run. FailuresJSON is
// excluded from the row's own JSON form, so failures travel alongside.
type syncRunCacheEntry struct {
	Run      *models.SyncRun          `json:"run"`
	Failures []models.SyncFailureItem `json:"failures"`
}

// cacheFinishedRun stores the terminal run row in Redis so status polling
// does not hit the database. Best effort; the database stays authoritative.
func cacheFinishedRun(ctx context.Context, runId uint) {
	run, err := models.GetSyncRunById(ctx, runId)
	if err != nil {
		return
	}
	_ = config.SetRedisObject(syncRunCacheKey(runId), syncRunCacheEntry{
		Run:      run,
		Failures: models.DecodeSyncFailures(run.FailuresJSON),
	}, time.Hour)
}

func syncRunCacheKey(runId uint) string {
	return fmt.Sprintf("SyncRun:%d", runId)
}

// RunSyncWindow creates an audit row and runs the session inline. Used by the
// CLI and the synchronous API path.
func RunSyncWindow(ctx context.Context, source MessageSource, from time.Time, to time.Time, triggeredBy string) (*models.SyncRun, *SyncSummary, error) {
	run, err := models.CreateSyncRun(ctx, from, to, triggeredBy)
	if err != nil {
		return nil, nil, err
	}

	if err := ProcessSyncRun(ctx, source, run.ID); err != nil {
		return run, nil, err
	}

	run, err = models.GetSyncRunById(ctx, run.ID)
	if err != nil {
		return nil, nil, err
	}
	summary := &SyncSummary{
		ProcessedCount: run.ProcessedCount,
		SkippedCount:   run.SkippedCount,
		SyncedCount:    run.SyncedCount,
		Failures:       models.DecodeSyncFailures(run.FailuresJSON),
	}
	return run, summary, nil
}
