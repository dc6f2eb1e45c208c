package esign

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"recruitflow-crm/pkg/errutil"
)

// EventStore persists raw webhook events keyed by their verified signature.
type EventStore struct {
	db *gorm.DB
}

func NewEventStore(db *gorm.DB) *EventStore {
	return &EventStore{db: db}
}

// RecordIfNew inserts the event unless one with the same signature already
// exists. The decision rides on the primary-key constraint (ON CONFLICT DO
// NOTHING + rows affected), not a read-then-write check, so it stays correct
// under concurrent duplicate deliveries.
func (s *EventStore) RecordIfNew(ctx context.Context, event *ExternalSignatureEvent) (bool, *ExternalSignatureEvent, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)
	if res.Error != nil {
		return false, nil, errutil.StorageFailure("failed to record signature event", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, event, nil
	}

	var existing ExternalSignatureEvent
	if err := s.db.WithContext(ctx).
		Where("signature = ?", event.Signature).
		First(&existing).Error; err != nil {
		return false, nil, errutil.StorageFailure("failed to load existing signature event", err)
	}
	return false, &existing, nil
}

// Forget releases an idempotency record so the provider's next redelivery is
// treated as new. Used when applying the event failed transiently after the
// record was committed.
func (s *EventStore) Forget(ctx context.Context, signature string) error {
	err := s.db.WithContext(ctx).
		Where("signature = ?", signature).
		Delete(&ExternalSignatureEvent{}).Error
	if err != nil {
		return errutil.StorageFailure("failed to release signature event", err)
	}
	return nil
}

// LinkAgreement records which agreement an event resolved to.
func (s *EventStore) LinkAgreement(ctx context.Context, signature, agreementID string) error {
	err := s.db.WithContext(ctx).Model(&ExternalSignatureEvent{}).
		Where("signature = ?", signature).
		Update("fee_agreement_id", agreementID).Error
	if err != nil {
		return errutil.StorageFailure("failed to link signature event", err)
	}
	return nil
}
