package utils

import "errors"

var (
	ErrorRecordNotFound = errors.New("record not found")

	// Fatal session errors. Parse-stage problems are not errors; they are
	// per-message failure reasons carried in the sync summary.
	ErrorSourceUnavailable = errors.New("message source unavailable")
	ErrorStoreUnavailable  = errors.New("record store unavailable")
	ErrorSyncInProgress    = errors.New("another sync session is already running")
)
