package mailsync

import (
	"context"

	"bitbucket.org/mmdatafocus/deliverytrack_backend/models"
)

// dbRecordStore persists through the shared database connection.
type dbRecordStore struct{}

// NewRecordStore returns the production RecordStore.
func NewRecordStore() RecordStore {
	return dbRecordStore{}
}

func (dbRecordStore) UpsertByDate(ctx context.Context, record *models.DeliveryReport) error {
	return models.UpsertDeliveryReport(ctx, record)
}
